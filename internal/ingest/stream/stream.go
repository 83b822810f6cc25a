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

// Package stream wraps a durable append-only message stream behind a
// consumer-group-scoped queue contract: append, blocking read, per-ID
// ack, and recovery of messages abandoned by a dead consumer.
package stream

import (
	"context"
	"time"
)

// Message is a single queue-delivered entry: an opaque, stream-assigned
// ID and the serialized bytes carried in the stream's "data" field.
type Message struct {
	ID   string
	Data []byte
}

// PendingInfo summarizes undelivered-but-unacknowledged messages for a
// consumer group, broken down per consumer.
type PendingInfo struct {
	Count      int64
	ByConsumer map[string]int64
}

// Queue is the durable queue contract the Worker and StreamProducer
// depend on. A Redis Streams-backed implementation lives in redis.go;
// any backing store exposing append/consumer-group-read/ack/claim can
// satisfy it.
type Queue interface {
	// Initialize idempotently ensures the stream and consumer group
	// exist, then calls RecoverPending so consumer takes ownership of
	// messages left idle past the claim threshold by any consumer.
	Initialize(ctx context.Context, consumer string) error

	// Read blocks for up to the configured block duration waiting for up
	// to count never-delivered messages for the given consumer.
	Read(ctx context.Context, consumer string, count int64) ([]Message, error)

	// RecoverPending claims up to count messages idle for longer than
	// the configured claim threshold, reassigning them to consumer.
	RecoverPending(ctx context.Context, consumer string, count int64) ([]Message, error)

	// Ack acknowledges the given message IDs. Acknowledged messages are
	// never redelivered.
	Ack(ctx context.Context, ids []string) error

	// Append appends entries and returns their assigned IDs in order. A
	// partial pipeline failure fails the whole call.
	Append(ctx context.Context, payloads [][]byte) ([]string, error)

	// PendingInfo reports the current pending-message count, broken down
	// per consumer.
	PendingInfo(ctx context.Context) (PendingInfo, error)

	// Close releases resources owned by the implementation. RedisQueue
	// owns none and leaves its client open.
	Close() error
}

// Config configures a Queue implementation. Every field corresponds to
// one of the stream.* options.
type Config struct {
	Key            string        // stream.key
	Group          string        // stream.group
	BatchSize      int64         // stream.batch_size
	BlockTimeout   time.Duration // stream.block_ms
	ClaimMinIdle   time.Duration // stream.claim_min_idle_ms
	ApproxMaxLen   int64         // stream.approx_max_len
}
