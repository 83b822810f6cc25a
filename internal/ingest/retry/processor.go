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

package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"logingest/internal/ingest/sink"
	"logingest/internal/ingest/stream"
	"logingest/internal/ingest/telemetry"
)

// ProcessorConfig controls the reprocessing loop's cadence and batch
// size.
type ProcessorConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Processor implements process_retries(): on each tick it drains
// envelopes whose NextAttemptAt has arrived, replays them against the
// sink, and resolves each one, mirroring the ticker-driven-cycle shape
// of the teacher's core/worker.go commitLoop/evictionLoop but applied
// to retry envelopes instead of VSA vectors.
type Processor struct {
	strategy Strategy
	sink     sink.AnalyticsSink
	queue    stream.Queue
	cfg      ProcessorConfig
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// WithMetrics attaches a Metrics recorder and returns the same
// Processor for chaining.
func (p *Processor) WithMetrics(m *telemetry.Metrics) *Processor {
	p.metrics = m
	return p
}

func NewProcessor(strategy Strategy, analyticsSink sink.AnalyticsSink, queue stream.Queue, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{strategy: strategy, sink: analyticsSink, queue: queue, cfg: cfg, logger: logger}
}

// Run ticks until ctx is canceled, calling ProcessOnce each time.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, remaining, err := p.ProcessOnce(ctx)
			if err != nil {
				p.logger.Warn("retry processor: cycle failed", zap.Error(err))
				continue
			}
			if processed > 0 {
				p.logger.Info("retry processor: cycle complete",
					zap.Int("processed", processed), zap.Int("remaining", remaining))
			}
		}
	}
}

// ProcessOnce drains due envelopes once and reports {processed,
// remaining}, the exact pair spec.md §4.6's process_retries() names.
func (p *Processor) ProcessOnce(ctx context.Context) (processed, remaining int, err error) {
	due, err := p.strategy.Due(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, env := range due {
		if writeErr := p.sink.Write(ctx, env.Entries); writeErr != nil {
			markErr := p.strategy.MarkFailed(ctx, env.ID, writeErr)
			if errors.Is(markErr, ErrRetryExhausted) {
				// Leave the stream message unacked: it stays pending and
				// recoverable by another worker's RecoverPending, per the
				// at-least-once re-entry contract. Only the retry envelope
				// itself is given up on.
				p.logger.Error("retry processor: envelope dropped after max attempts",
					zap.String("envelope_id", env.ID), zap.Strings("stream_ids", env.StreamIDs), zap.Error(writeErr))
				if p.metrics != nil {
					p.metrics.RecordDropped(len(env.Entries))
				}
			} else if markErr != nil {
				p.logger.Error("retry processor: failed to reschedule envelope",
					zap.String("envelope_id", env.ID), zap.Error(markErr))
			}
			continue
		}

		if err := p.strategy.MarkSucceeded(ctx, env.ID); err != nil {
			p.logger.Error("retry processor: failed to clear succeeded envelope",
				zap.String("envelope_id", env.ID), zap.Error(err))
		}
		if err := p.queue.Ack(ctx, env.StreamIDs); err != nil {
			p.logger.Error("retry processor: ack failed after successful replay",
				zap.String("envelope_id", env.ID), zap.Error(err))
		}
		processed++
	}

	remaining, err = p.strategy.Pending(ctx)
	if err != nil {
		return processed, 0, err
	}
	if p.metrics != nil {
		p.metrics.SetRetryBacklog(remaining)
	}
	return processed, remaining, nil
}
