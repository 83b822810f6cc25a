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
	"errors"
	"sync"
	"testing"
	"time"

	"logingest/internal/ingest/entry"
	"logingest/internal/ingest/retry"
	"logingest/internal/ingest/stream"
)

// fakeQueue serves a fixed batch of messages exactly once, then blocks
// (via ctx) as if there were nothing left to deliver, matching the
// teacher's errPersister style of a narrow hand-written fake.
type fakeQueue struct {
	mu        sync.Mutex
	toServe   []stream.Message
	served    bool
	acked     []string
	recovered []stream.Message
}

func (f *fakeQueue) Initialize(ctx context.Context, consumer string) error { return nil }

func (f *fakeQueue) Read(ctx context.Context, consumer string, count int64) ([]stream.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.served {
		f.served = true
		return f.toServe, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (f *fakeQueue) RecoverPending(ctx context.Context, consumer string, count int64) ([]stream.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.recovered
	f.recovered = nil
	return out, nil
}

func (f *fakeQueue) Ack(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeQueue) Append(ctx context.Context, payloads [][]byte) ([]string, error) {
	return nil, errors.New("not used by worker")
}

func (f *fakeQueue) PendingInfo(ctx context.Context) (stream.PendingInfo, error) {
	return stream.PendingInfo{}, nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.acked))
	copy(out, f.acked)
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	writes  [][]entry.LogEntry
	failN   int // number of initial Write calls that should fail
}

func (s *fakeSink) Write(ctx context.Context, entries []entry.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("sink unavailable")
	}
	s.writes = append(s.writes, entries)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

type fakeRetry struct {
	mu     sync.Mutex
	queued int
}

func (r *fakeRetry) QueueForRetry(ctx context.Context, entries []entry.LogEntry, streamIDs []string, cause error, worker string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued++
	return nil
}

func (r *fakeRetry) Due(ctx context.Context, limit int) ([]retry.Envelope, error) { return nil, nil }

func (r *fakeRetry) MarkSucceeded(ctx context.Context, id string) error { return nil }
func (r *fakeRetry) MarkFailed(ctx context.Context, id string, cause error) error { return nil }

func (r *fakeRetry) Pending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queued, nil
}

func (r *fakeRetry) Close() error { return nil }

func marshalEntry(t *testing.T, e entry.LogEntry) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	return b
}

func TestWorker_FlushesAndAcksOnSuccess(t *testing.T) {
	e := entry.LogEntry{AppID: "app1", Level: entry.LevelInfo, DeterministicID: "e1", Timestamp: time.Now()}
	q := &fakeQueue{toServe: []stream.Message{{ID: "1-0", Data: marshalEntry(t, e)}}}
	sk := &fakeSink{}
	rt := &fakeRetry{}

	w := New("consumer-0", Config{
		BatchSize:    10,
		MaxBatchSize: 1,
		MaxWaitTime:  time.Minute,
		PollInterval: time.Millisecond,
	}, q, sk, rt, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if sk.writeCount() != 1 {
		t.Fatalf("expected 1 sink write, got %d", sk.writeCount())
	}
	if acked := q.ackedIDs(); len(acked) != 1 || acked[0] != "1-0" {
		t.Fatalf("expected ack of [1-0], got %v", acked)
	}
}

func TestWorker_SinkFailureQueuesRetryAndDoesNotAck(t *testing.T) {
	e := entry.LogEntry{AppID: "app1", Level: entry.LevelInfo, DeterministicID: "e1", Timestamp: time.Now()}
	q := &fakeQueue{toServe: []stream.Message{{ID: "1-0", Data: marshalEntry(t, e)}}}
	sk := &fakeSink{failN: 1}
	rt := &fakeRetry{}

	w := New("consumer-0", Config{
		BatchSize:    10,
		MaxBatchSize: 1,
		MaxWaitTime:  time.Minute,
		PollInterval: time.Millisecond,
	}, q, sk, rt, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	if len(q.ackedIDs()) != 0 {
		t.Fatalf("expected no ack on sink failure, got %v", q.ackedIDs())
	}
	rt.mu.Lock()
	queued := rt.queued
	rt.mu.Unlock()
	if queued != 1 {
		t.Fatalf("expected 1 retry envelope queued, got %d", queued)
	}
}
