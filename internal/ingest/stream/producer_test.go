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
	"testing"
	"time"

	"logingest/internal/ingest/entry"
)

// fakeQueue is a hand-written fake implementing the narrow Queue
// interface, in the teacher's worker_unit_test.go errPersister style.
type fakeQueue struct {
	appendErr   error
	appended    [][]byte
	nextID      int
	ackedIDs    []string
	pending     []Message
}

func (f *fakeQueue) Initialize(ctx context.Context, consumer string) error { return nil }

func (f *fakeQueue) Read(ctx context.Context, consumer string, count int64) ([]Message, error) {
	return nil, nil
}

func (f *fakeQueue) RecoverPending(ctx context.Context, consumer string, count int64) ([]Message, error) {
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeQueue) Ack(ctx context.Context, ids []string) error {
	f.ackedIDs = append(f.ackedIDs, ids...)
	return nil
}

func (f *fakeQueue) Append(ctx context.Context, payloads [][]byte) ([]string, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	ids := make([]string, len(payloads))
	for i, p := range payloads {
		f.appended = append(f.appended, p)
		ids[i] = itoa(f.nextID)
		f.nextID++
	}
	return ids, nil
}

func (f *fakeQueue) PendingInfo(ctx context.Context) (PendingInfo, error) {
	return PendingInfo{}, nil
}

func (f *fakeQueue) Close() error { return nil }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func sampleEntry(id, appID string) entry.LogEntry {
	return entry.LogEntry{
		AppID:           appID,
		Level:           entry.LevelInfo,
		Message:         "hello",
		Timestamp:       time.Now(),
		DeterministicID: id,
	}
}

func TestProducer_Save_AppendsInOrder(t *testing.T) {
	q := &fakeQueue{}
	p := NewProducer(q)

	entries := []entry.LogEntry{
		sampleEntry("a", "app1"),
		sampleEntry("b", "app1"),
	}

	ids, err := p.Save(context.Background(), entries)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if len(q.appended) != 2 {
		t.Fatalf("expected 2 appended payloads, got %d", len(q.appended))
	}
}

func TestProducer_Save_WholeBatchFailsTogether(t *testing.T) {
	q := &fakeQueue{appendErr: errors.New("pipeline failed")}
	p := NewProducer(q)

	_, err := p.Save(context.Background(), []entry.LogEntry{sampleEntry("a", "app1")})
	if err == nil {
		t.Fatalf("expected error from failed append")
	}
}
