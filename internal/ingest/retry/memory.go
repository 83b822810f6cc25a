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
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"logingest/internal/ingest/entry"
)

// MemoryStrategy is the development-mode Strategy: envelopes live only
// in process memory and are lost on restart.
type MemoryStrategy struct {
	cfg    BackoffConfig
	logger *zap.Logger

	mu       sync.Mutex
	nextID   int64
	byID     map[string]Envelope
}

func NewMemoryStrategy(cfg BackoffConfig, logger *zap.Logger) *MemoryStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStrategy{cfg: cfg, logger: logger, byID: make(map[string]Envelope)}
}

func (m *MemoryStrategy) QueueForRetry(ctx context.Context, entries []entry.LogEntry, streamIDs []string, cause error, worker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := envelopeID(m.nextID)
	now := time.Now()
	m.byID[id] = Envelope{
		ID:            id,
		Entries:       entries,
		StreamIDs:     streamIDs,
		LastError:     cause.Error(),
		Attempt:       0,
		QueuedAt:      now,
		NextAttemptAt: now.Add(m.cfg.NextDelay(0)),
		OriginWorker:  worker,
	}
	return nil
}

func (m *MemoryStrategy) Due(ctx context.Context, limit int) ([]Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []Envelope
	for _, env := range m.byID {
		if len(out) >= limit {
			break
		}
		if !env.NextAttemptAt.After(now) {
			out = append(out, env)
		}
	}
	return out, nil
}

func (m *MemoryStrategy) MarkSucceeded(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

func (m *MemoryStrategy) MarkFailed(ctx context.Context, id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.byID[id]
	if !ok {
		return nil
	}
	env.Attempt++
	env.LastError = cause.Error()
	if env.Attempt >= m.cfg.MaxAttempts {
		delete(m.byID, id)
		m.logger.Error("retry: envelope dropped, max attempts exhausted",
			zap.String("envelope_id", id),
			zap.Int("attempt", env.Attempt),
			zap.Int("entry_count", len(env.Entries)),
		)
		return ErrRetryExhausted
	}
	env.NextAttemptAt = time.Now().Add(m.cfg.NextDelay(env.Attempt))
	m.byID[id] = env
	return nil
}

func (m *MemoryStrategy) Pending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

func (m *MemoryStrategy) Close() error { return nil }

func envelopeID(n int64) string {
	return "env-" + strconv.FormatInt(n, 10)
}
