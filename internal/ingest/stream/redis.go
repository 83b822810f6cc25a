// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dataField is the single field every message carries inside the
// stream; its value is a self-describing serialized LogEntry.
const dataField = "data"

// RedisQueue implements Queue over a Redis Streams consumer group. It
// mirrors the XGroupCreateMkStream / XReadGroup / XAck / XAutoClaim /
// XAdd(Approx) / XPending call sequence used by real Redis Streams
// consumers in the wild: group creation tolerates BUSYGROUP, reads use
// the ">" marker, recovery claims idle entries instead of re-reading.
type RedisQueue struct {
	client redis.Cmdable
	cfg    Config
	logger *zap.Logger
}

// NewRedisQueue constructs a RedisQueue. A nil logger falls back to a
// no-op logger so tests never need a real sink.
func NewRedisQueue(client redis.Cmdable, cfg Config, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, cfg: cfg, logger: logger}
}

// Initialize ensures the stream and consumer group exist, tolerating a
// BUSYGROUP error on repeated calls, then claims for consumer up to
// BatchSize messages that any consumer in the group has left idle longer
// than ClaimMinIdle. The claimed messages are not returned: they stay
// pending under consumer until a later RecoverPending claims them again.
func (q *RedisQueue) Initialize(ctx context.Context, consumer string) error {
	err := q.client.XGroupCreateMkStream(ctx, q.cfg.Key, q.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream: create group %s on %s: %w", q.cfg.Group, q.cfg.Key, err)
	}
	if _, err := q.RecoverPending(ctx, consumer, q.cfg.BatchSize); err != nil {
		return fmt.Errorf("stream: recover pending on initialize for consumer %s: %w", consumer, err)
	}
	return nil
}

// Read performs a blocking XReadGroup for up to count never-delivered
// ("> ") messages.
func (q *RedisQueue) Read(ctx context.Context, consumer string, count int64) ([]Message, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: consumer,
		Streams:  []string{q.cfg.Key, ">"},
		Count:    count,
		Block:    q.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream: read group=%s consumer=%s: %w", q.cfg.Group, consumer, err)
	}
	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			msg, ok := messageFromRedis(m)
			if !ok {
				q.logger.Warn("stream: message missing data field, skipping", zap.String("id", m.ID))
				continue
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

// RecoverPending claims up to count messages idle longer than
// ClaimMinIdle, reassigning ownership to consumer. Uses XAutoClaim,
// which both scans and claims in one round trip.
func (q *RedisQueue) RecoverPending(ctx context.Context, consumer string, count int64) ([]Message, error) {
	messages, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.cfg.Key,
		Group:    q.cfg.Group,
		Consumer: consumer,
		MinIdle:  q.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: recover pending group=%s consumer=%s: %w", q.cfg.Group, consumer, err)
	}
	var out []Message
	for _, m := range messages {
		msg, ok := messageFromRedis(m)
		if !ok {
			q.logger.Warn("stream: claimed message missing data field, skipping", zap.String("id", m.ID))
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Ack acknowledges the given message IDs in one call.
func (q *RedisQueue) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.cfg.Key, q.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("stream: ack %d ids: %w", len(ids), err)
	}
	return nil
}

// Append pipelines one XAdd per payload with an approximate MAXLEN cap,
// failing the whole call if any element of the pipeline fails.
func (q *RedisQueue) Append(ctx context.Context, payloads [][]byte) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	pipe := q.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(payloads))
	for i, p := range payloads {
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.cfg.Key,
			MaxLen: q.cfg.ApproxMaxLen,
			Approx: true,
			Values: map[string]interface{}{dataField: p},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("stream: append %d entries: %w", len(payloads), err)
	}
	ids := make([]string, len(cmds))
	for i, c := range cmds {
		ids[i] = c.Val()
	}
	return ids, nil
}

// PendingInfo reports the stream's pending-entries summary via XPending,
// broken down per consumer.
func (q *RedisQueue) PendingInfo(ctx context.Context) (PendingInfo, error) {
	summary, err := q.client.XPending(ctx, q.cfg.Key, q.cfg.Group).Result()
	if err != nil {
		return PendingInfo{}, fmt.Errorf("stream: pending info group=%s: %w", q.cfg.Group, err)
	}
	info := PendingInfo{Count: summary.Count, ByConsumer: make(map[string]int64, len(summary.Consumers))}
	for consumer, count := range summary.Consumers {
		info.ByConsumer[consumer] = count
	}
	return info, nil
}

// Close is a no-op: the redis.Cmdable's underlying client lifecycle is
// owned by whoever constructed it (cmd/ingestd), not by the queue.
func (q *RedisQueue) Close() error { return nil }

func messageFromRedis(m redis.XMessage) (Message, bool) {
	raw, ok := m.Values[dataField]
	if !ok {
		return Message{}, false
	}
	switch v := raw.(type) {
	case string:
		return Message{ID: m.ID, Data: []byte(v)}, true
	case []byte:
		return Message{ID: m.ID, Data: v}, true
	default:
		return Message{}, false
	}
}
