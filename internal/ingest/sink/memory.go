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

package sink

import (
	"context"
	"sync"

	"logingest/internal/ingest/entry"
)

// MemorySink is a dev-mode AnalyticsSink: rows are held in a map keyed by
// deterministic id, so a redelivered write naturally dedupes without a
// real store, exercising the same idempotency contract ClickHouse gives
// in production.
type MemorySink struct {
	mu   sync.Mutex
	rows map[string]entry.LogEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{rows: make(map[string]entry.LogEntry)}
}

func (s *MemorySink) Write(ctx context.Context, entries []entry.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.rows[e.DeterministicID] = e
	}
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Rows returns a snapshot of all written entries, for test assertions.
func (s *MemorySink) Rows() []entry.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry.LogEntry, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, e)
	}
	return out
}

func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
