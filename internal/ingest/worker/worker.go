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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"logingest/internal/ingest/entry"
	"logingest/internal/ingest/retry"
	"logingest/internal/ingest/sink"
	"logingest/internal/ingest/stream"
	"logingest/internal/ingest/telemetry"
)

// Config enumerates the per-worker options from spec.md §4.4/§6.
type Config struct {
	BatchSize       int64         // stream read size (worker_pool reads via this)
	MaxBatchSize    int           // buffer capacity before a size-triggered flush
	MaxWaitTime     time.Duration // buffer age ceiling before an age-triggered flush
	PollInterval    time.Duration // sleep between empty reads
	RetryQueueLimit int           // back-pressure threshold
	RecoverEvery    int           // recover_pending is invoked every N loop iterations
}

// Health is the heartbeat snapshot a Worker publishes to its pool.
type Health struct {
	Consumer       string
	LastHeartbeat  time.Time
	BufferedCount  int
	ProcessedCount int64
}

// Worker owns one logical consumer slot: pull from the queue, buffer,
// flush to the sink, ack the queue, route failures to retry.
type Worker struct {
	consumer string
	cfg      Config
	queue    stream.Queue
	sink     sink.AnalyticsSink
	retryer  retry.Strategy
	logger   *zap.Logger

	buffer  *BatchBuffer
	metrics *telemetry.Metrics

	processed     int64
	lastHeartbeat atomic.Int64 // unix nanos
}

// WithMetrics attaches a Metrics recorder and returns the same Worker
// for chaining. Optional: a Worker with no metrics attached simply
// skips instrumentation.
func (w *Worker) WithMetrics(m *telemetry.Metrics) *Worker {
	w.metrics = m
	return w
}

func New(consumer string, cfg Config, queue stream.Queue, analyticsSink sink.AnalyticsSink, retryer retry.Strategy, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		consumer: consumer,
		cfg:      cfg,
		queue:    queue,
		sink:     analyticsSink,
		retryer:  retryer,
		logger:   logger.With(zap.String("consumer", consumer)),
		buffer:   NewBatchBuffer(cfg.MaxBatchSize),
	}
	w.lastHeartbeat.Store(time.Now().UnixNano())
	return w
}

// Run executes the worker's main loop until ctx is canceled, then flushes
// whatever remains and returns. A returned error signals the pool should
// treat this worker as crashed and restart it with backoff. A panic
// anywhere in the loop is recovered and reported the same way, rather
// than taking down the whole process, matching the supervised-restart
// contract in spec.md §4.5.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: recovered from panic: %v", r)
		}
	}()

	if initErr := w.queue.Initialize(ctx, w.consumer); initErr != nil {
		return fmt.Errorf("worker: initialize queue: %w", initErr)
	}

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return nil
		default:
		}

		w.lastHeartbeat.Store(time.Now().UnixNano())

		if w.cfg.RetryQueueLimit > 0 {
			pending, err := w.retryer.Pending(ctx)
			if err != nil {
				w.logger.Warn("worker: failed to read retry backlog size", zap.Error(err))
			} else if pending > w.cfg.RetryQueueLimit {
				w.sleep(ctx)
				continue
			}
		}

		msgs, err := w.queue.Read(ctx, w.consumer, w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("worker: read failed", zap.Error(err))
			w.sleep(ctx)
			continue
		}

		iterations++
		if w.cfg.RecoverEvery > 0 && iterations%w.cfg.RecoverEvery == 0 {
			recovered, err := w.queue.RecoverPending(ctx, w.consumer, w.cfg.BatchSize)
			if err != nil {
				w.logger.Warn("worker: recover_pending failed", zap.Error(err))
			} else {
				msgs = append(msgs, recovered...)
			}
		}

		if len(msgs) == 0 {
			if w.buffer.Age() >= w.cfg.MaxWaitTime && w.buffer.Age() > 0 {
				w.flush(ctx)
			}
			w.sleep(ctx)
			continue
		}

		for _, m := range msgs {
			var e entry.LogEntry
			if err := json.Unmarshal(m.Data, &e); err != nil {
				w.logger.Error("worker: dropping undecodable message", zap.String("stream_id", m.ID), zap.Error(err))
				continue
			}
			if w.buffer.Len() >= w.cfg.MaxBatchSize {
				w.flush(ctx)
			}
			w.buffer.Add(e, m.ID)
		}

		if w.buffer.Len() >= w.cfg.MaxBatchSize || w.buffer.Age() >= w.cfg.MaxWaitTime {
			w.flush(ctx)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}

// flush swaps the buffer, writes the drained batch to the sink, and acks
// on success or hands off to retry on failure. Ack never precedes a
// successful sink write.
func (w *Worker) flush(ctx context.Context) {
	drained := w.buffer.Swap()
	if len(drained) == 0 {
		return
	}

	entries := make([]entry.LogEntry, len(drained))
	ids := make([]string, len(drained))
	for i, d := range drained {
		entries[i] = d.entry
		ids[i] = d.streamID
	}

	start := time.Now()
	writeErr := w.sink.Write(ctx, entries)
	if w.metrics != nil {
		w.metrics.RecordFlushed(len(entries), time.Since(start).Seconds())
	}
	if writeErr != nil {
		w.logger.Warn("worker: sink write failed, queuing for retry",
			zap.Int("batch_size", len(entries)), zap.Error(writeErr))
		if qerr := w.retryer.QueueForRetry(ctx, entries, ids, writeErr, w.consumer); qerr != nil {
			w.logger.Error("worker: failed to persist retry envelope, batch dropped",
				zap.Int("batch_size", len(entries)), zap.Error(qerr))
		} else if w.metrics != nil {
			w.metrics.RecordRetried(1)
		}
		return
	}

	if err := w.queue.Ack(ctx, ids); err != nil {
		w.logger.Error("worker: ack failed after successful write, messages will be recovered",
			zap.Int("batch_size", len(entries)), zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.RecordAcked(len(entries))
	}

	atomic.AddInt64(&w.processed, int64(len(entries)))
}

// HealthSnapshot reports the worker's current liveness and load, for the
// pool's aggregated health view.
func (w *Worker) HealthSnapshot() Health {
	return Health{
		Consumer:       w.consumer,
		LastHeartbeat:  time.Unix(0, w.lastHeartbeat.Load()),
		BufferedCount:  w.buffer.Len(),
		ProcessedCount: atomic.LoadInt64(&w.processed),
	}
}
