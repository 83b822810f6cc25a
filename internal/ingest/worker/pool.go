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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-rendezvous"
	"go.uber.org/zap"

	"logingest/internal/ingest/retry"
	"logingest/internal/ingest/sink"
	"logingest/internal/ingest/stream"
	"logingest/internal/ingest/telemetry"
)

// PoolConfig configures the WorkerPool.
type PoolConfig struct {
	Count              int           // worker_pool.count
	InstanceID         string        // operator-supplied, unique across processes
	WorkerConfig       Config
	RestartBaseDelay   time.Duration
	RestartMaxDelay    time.Duration
	HeartbeatInterval  time.Duration // expected interval between heartbeats; Run refreshes its heartbeat once per loop iteration
	ShutdownGrace      time.Duration // per-worker grace period on shutdown
}

// slot tracks one supervised worker: its Worker instance and restart
// bookkeeping. Mirrors the teacher's stopChan/wg pattern in
// core/worker.go, generalized from two fixed background loops to N
// supervised, independently restarting workers.
type slot struct {
	consumer     string
	w            *Worker
	restartCount atomic.Int64
}

// Pool supervises a fixed number of Workers: restarting crashed ones
// with exponential backoff, aggregating health, and owning graceful
// shutdown.
type Pool struct {
	cfg    PoolConfig
	logger *zap.Logger

	slots []*slot
	hash  *rendezvous.Rendezvous

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPool constructs and names every worker slot. The consumer name is
// InstanceID + worker index, satisfying the deployment-wide uniqueness
// invariant from spec.md §4.5 as long as InstanceID itself is unique
// (hostname or an operator-supplied id).
func NewPool(cfg PoolConfig, queue stream.Queue, analyticsSink sink.AnalyticsSink, retryer retry.Strategy, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{cfg: cfg, logger: logger, stopCh: make(chan struct{})}

	names := make([]string, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		consumer := fmt.Sprintf("%s-%d", cfg.InstanceID, i)
		names[i] = consumer
		p.slots = append(p.slots, &slot{
			consumer: consumer,
			w:        New(consumer, cfg.WorkerConfig, queue, analyticsSink, retryer, logger),
		})
	}
	// Rendezvous hashing over consumer names is not on the read path —
	// stream consumer-group delivery is already server-assigned. It is
	// exposed as an optional routing hint (PreferredConsumerFor) for
	// operators wiring sticky debugging/metrics dashboards per app_id,
	// preserving go-rendezvous's original key->node placement role
	// rather than dropping the dependency unused.
	p.hash = rendezvous.New(names, xxhashSeed)
	return p
}

// WithMetrics attaches m to every worker slot and returns the same
// Pool for chaining. Must be called before Start.
func (p *Pool) WithMetrics(m *telemetry.Metrics) *Pool {
	for _, s := range p.slots {
		s.w.WithMetrics(m)
	}
	return p
}

// PreferredConsumerFor returns the consumer name rendezvous hashing
// would pick for appID, stable across pool membership changes short of
// a worker being replaced outright. Advisory only.
func (p *Pool) PreferredConsumerFor(appID string) string {
	return p.hash.Lookup(appID)
}

// Start launches every worker under supervision.
func (p *Pool) Start(ctx context.Context) {
	for _, s := range p.slots {
		p.wg.Add(1)
		go p.supervise(ctx, s)
	}
}

// supervise runs one worker, restarting it with exponential backoff
// whenever Run returns an error, matching the teacher's pattern of a
// single background loop selecting on its own stop channel — here
// composed with a restart wrapper around it.
func (p *Pool) supervise(ctx context.Context, s *slot) {
	defer p.wg.Done()
	delay := p.cfg.RestartBaseDelay

	for {
		err := s.w.Run(ctx)
		if err == nil {
			return // normal shutdown (ctx canceled)
		}

		s.restartCount.Add(1)
		p.logger.Error("worker crashed, restarting",
			zap.String("consumer", s.consumer),
			zap.Error(err),
			zap.Duration("backoff", delay),
		)

		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > p.cfg.RestartMaxDelay {
			delay = p.cfg.RestartMaxDelay
		}
	}
}

// Snapshot reports per-worker health. A worker silent for more than
// twice its expected heartbeat interval is flagged stale. Flagging is
// all the pool does: it does not restart a stale worker; only a worker
// whose Run returns an error is restarted.
func (p *Pool) Snapshot() []WorkerHealth {
	out := make([]WorkerHealth, 0, len(p.slots))
	staleAfter := 2 * p.cfg.HeartbeatInterval
	now := time.Now()
	for _, s := range p.slots {
		h := s.w.HealthSnapshot()
		out = append(out, WorkerHealth{
			Health:       h,
			RestartCount: s.restartCount.Load(),
			Stale:        staleAfter > 0 && now.Sub(h.LastHeartbeat) > staleAfter,
		})
	}
	return out
}

// WorkerHealth augments a Worker's own heartbeat snapshot with
// pool-level context.
type WorkerHealth struct {
	Health
	RestartCount int64
	Stale        bool
}

// Shutdown stops the supervisors from restarting crashed workers, waits
// up to ShutdownGrace for all of them, and returns once they finish or
// the grace period elapses. It does not stop a running worker itself:
// workers exit only when the ctx passed to Start is canceled, so callers
// cancel that ctx before calling Shutdown. Stragglers are abandoned —
// their goroutines keep running their own ctx-observing cooperative exit.
func (p *Pool) Shutdown(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.ShutdownGrace):
		p.logger.Warn("worker pool: shutdown grace period elapsed with stragglers still running")
	case <-ctx.Done():
	}
}

// xxhashSeed adapts the fnv-style hash go-rendezvous expects; any
// stable, well-distributed uint64 hash of (s, seed) works here, so a
// straightforward FNV-1a implementation is enough for routing advice.
func xxhashSeed(s string, seed uint64) uint64 {
	h := seed ^ 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
