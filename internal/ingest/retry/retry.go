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

// Package retry persists batches a sink rejected and reprocesses them on
// an exponential backoff schedule, up to a maximum attempt count.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"logingest/internal/ingest/entry"
)

// ErrRetryExhausted marks an envelope dropped after reaching its
// configured maximum attempt count.
var ErrRetryExhausted = errors.New("retry: max attempts exhausted")

// Envelope is a persisted record of a batch that failed to write.
type Envelope struct {
	ID             string
	Entries        []entry.LogEntry
	StreamIDs      []string
	LastError      string
	Attempt        int
	QueuedAt       time.Time
	NextAttemptAt  time.Time
	OriginWorker   string
}

// Strategy is the RetryStrategy contract: two implementations
// (in-memory, durable) sit behind it with no change to worker-facing
// behavior.
type Strategy interface {
	// QueueForRetry persists a retry envelope. Synchronous; a failure
	// here is fatal to the batch (logged and dropped by the caller,
	// since there is nowhere else to put it).
	QueueForRetry(ctx context.Context, entries []entry.LogEntry, streamIDs []string, cause error, worker string) error

	// Due returns envelopes whose NextAttemptAt has arrived, up to
	// limit, for reprocessing.
	Due(ctx context.Context, limit int) ([]Envelope, error)

	// MarkSucceeded removes an envelope after a successful reprocess.
	MarkSucceeded(ctx context.Context, id string) error

	// MarkFailed increments the envelope's attempt count and reschedules
	// it, or drops it with ErrRetryExhausted if attempt has reached
	// MaxAttempts.
	MarkFailed(ctx context.Context, id string, cause error) error

	// Pending reports the number of envelopes not yet resolved, used by
	// the worker's retry_queue_limit back-pressure check.
	Pending(ctx context.Context) (int, error)

	Close() error
}

// BackoffConfig configures the Nth-attempt delay schedule:
// base_delay × 2^N, clamped to max_delay. The exponential base is fixed
// at 2 and is not configurable.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// NextDelay computes the delay before attempt N using a zero-jitter
// exponential backoff, so the schedule is the deterministic
// base_delay × 2^N the spec requires rather than a randomized one.
func (c BackoffConfig) NextDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
