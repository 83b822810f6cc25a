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

// Package worker implements the per-consumer-slot pull/buffer/flush loop
// and the pool that supervises many such consumers.
package worker

import (
	"sync"
	"time"

	"logingest/internal/ingest/entry"
)

// buffered pairs a LogEntry with the stream ID it arrived on, so a flush
// can ack exactly the IDs it just wrote.
type buffered struct {
	entry    entry.LogEntry
	streamID string
}

// BatchBuffer is the per-worker bounded buffer described in spec.md
// §3/§4.4: entries accumulate here until a size or age threshold (or
// shutdown) triggers a flush. Swap hands the accumulated entries to the
// caller and starts a fresh slice. The worker flushes synchronously, so
// its read loop waits for each sink write to finish; no entries are read
// while a flush is in flight.
type BatchBuffer struct {
	maxSize int

	mu        sync.Mutex
	items     []buffered
	oldestAt  time.Time
}

func NewBatchBuffer(maxSize int) *BatchBuffer {
	return &BatchBuffer{maxSize: maxSize, items: make([]buffered, 0, maxSize)}
}

// Add appends an entry. Invariant: len(items) never exceeds maxSize is
// the caller's responsibility — the worker main loop flushes a full
// buffer before adding the next entry, so Add itself never blocks.
func (b *BatchBuffer) Add(e entry.LogEntry, streamID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		b.oldestAt = time.Now()
	}
	b.items = append(b.items, buffered{entry: e, streamID: streamID})
}

func (b *BatchBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Age reports how long the oldest buffered entry has been waiting, or
// zero if the buffer is empty.
func (b *BatchBuffer) Age() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return 0
	}
	return time.Since(b.oldestAt)
}

// Swap atomically drains the buffer and returns its contents, resetting
// the buffer to empty so the caller can keep reading into it while the
// drained slice is flushed.
func (b *BatchBuffer) Swap() []buffered {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	drained := b.items
	b.items = make([]buffered, 0, b.maxSize)
	return drained
}
