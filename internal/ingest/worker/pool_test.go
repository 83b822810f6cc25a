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
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_ConsumerNamesAreInstanceScoped(t *testing.T) {
	q := &fakeQueue{}
	p := NewPool(PoolConfig{
		Count:      3,
		InstanceID: "host1",
		WorkerConfig: Config{
			BatchSize: 10, MaxBatchSize: 10, MaxWaitTime: time.Minute, PollInterval: time.Millisecond,
		},
		RestartBaseDelay:  time.Millisecond,
		RestartMaxDelay:   10 * time.Millisecond,
		HeartbeatInterval: time.Second,
		ShutdownGrace:     50 * time.Millisecond,
	}, q, &fakeSink{}, &fakeRetry{}, nil)

	names := map[string]bool{}
	for _, s := range p.slots {
		names[s.consumer] = true
	}
	for _, want := range []string{"host1-0", "host1-1", "host1-2"} {
		if !names[want] {
			t.Fatalf("expected consumer name %q among %v", want, names)
		}
	}

	picked := p.PreferredConsumerFor("some-app")
	if !names[picked] {
		t.Fatalf("PreferredConsumerFor returned name outside the pool: %q", picked)
	}
}

func TestPool_StartAndShutdownIsClean(t *testing.T) {
	q := &fakeQueue{}
	p := NewPool(PoolConfig{
		Count:      2,
		InstanceID: "host1",
		WorkerConfig: Config{
			BatchSize: 10, MaxBatchSize: 10, MaxWaitTime: time.Minute, PollInterval: time.Millisecond,
		},
		RestartBaseDelay:  time.Millisecond,
		RestartMaxDelay:   10 * time.Millisecond,
		HeartbeatInterval: time.Second,
		ShutdownGrace:     200 * time.Millisecond,
	}, q, &fakeSink{}, &fakeRetry{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	p.Shutdown(context.Background())

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 worker health entries, got %d", len(snap))
	}
}

// failingInitQueue always fails Initialize, forcing its worker's Run to
// return an error immediately so the pool's restart-with-backoff path
// is exercised.
type failingInitQueue struct {
	fakeQueue
	inits atomic.Int64
}

func (f *failingInitQueue) Initialize(ctx context.Context, consumer string) error {
	f.inits.Add(1)
	return errors.New("boom")
}

func TestPool_RestartsCrashedWorkerWithBackoff(t *testing.T) {
	q := &failingInitQueue{}
	p := NewPool(PoolConfig{
		Count:      1,
		InstanceID: "host1",
		WorkerConfig: Config{
			BatchSize: 10, MaxBatchSize: 10, MaxWaitTime: time.Minute, PollInterval: time.Millisecond,
		},
		RestartBaseDelay:  time.Millisecond,
		RestartMaxDelay:   5 * time.Millisecond,
		HeartbeatInterval: time.Second,
		ShutdownGrace:     50 * time.Millisecond,
	}, q, &fakeSink{}, &fakeRetry{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	p.Shutdown(context.Background())

	if q.inits.Load() < 2 {
		t.Fatalf("expected worker to be restarted at least once, saw %d Initialize calls", q.inits.Load())
	}

	snap := p.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 worker health entry, got %d", len(snap))
	}
	if snap[0].RestartCount < 1 {
		t.Fatalf("expected restart count >= 1, got %d", snap[0].RestartCount)
	}
}
