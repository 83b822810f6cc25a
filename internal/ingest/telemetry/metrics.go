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

// Package telemetry wires structured logging and Prometheus metrics
// through the ingestion pipeline.
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus instruments plus the
// process-level atomic counters read back as a snapshot through
// Summary(), generalized from the teacher's
// core/metrics.go attempted/admits/refunds counters into the stage
// names this pipeline actually has.
type Metrics struct {
	Accepted  atomic.Int64
	Coalesced atomic.Int64
	Appended  atomic.Int64
	Flushed   atomic.Int64
	Acked     atomic.Int64
	Retried   atomic.Int64
	Dropped   atomic.Int64

	acceptedTotal  prometheus.Counter
	coalescedTotal prometheus.Counter
	appendedTotal  prometheus.Counter
	flushedTotal   prometheus.Counter
	ackedTotal     prometheus.Counter
	retriedTotal   prometheus.Counter
	droppedTotal   prometheus.Counter

	batchSize     prometheus.Histogram
	flushLatency  prometheus.Histogram
	retryBacklog  prometheus.Gauge
}

// NewMetrics constructs and registers the pipeline's Prometheus
// instruments against reg. Pass prometheus.DefaultRegisterer to expose
// them on the process-wide /metrics endpoint, or a fresh registry in
// tests to avoid duplicate-registration panics across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		acceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_accepted_entries_total",
			Help: "Total log entries accepted past validation.",
		}),
		coalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_coalesced_batches_total",
			Help: "Total batches dispatched by the coalescer.",
		}),
		appendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_stream_appended_entries_total",
			Help: "Total entries successfully appended to the stream.",
		}),
		flushedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_worker_flushed_entries_total",
			Help: "Total entries flushed from a worker buffer into the sink.",
		}),
		ackedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_stream_acked_entries_total",
			Help: "Total stream messages acknowledged after a successful sink write.",
		}),
		retriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_retry_envelopes_total",
			Help: "Total retry envelopes queued after a sink failure.",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_dropped_entries_total",
			Help: "Total entries permanently dropped after exhausting retries.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_worker_batch_size",
			Help:    "Distribution of entry counts per worker flush.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_worker_flush_latency_seconds",
			Help:    "Latency of a worker's sink write per flush.",
			Buckets: prometheus.DefBuckets,
		}),
		retryBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_retry_backlog",
			Help: "Current number of unresolved retry envelopes.",
		}),
	}
	reg.MustRegister(
		m.acceptedTotal, m.coalescedTotal, m.appendedTotal, m.flushedTotal,
		m.ackedTotal, m.retriedTotal, m.droppedTotal, m.batchSize, m.flushLatency, m.retryBacklog,
	)
	return m
}

func (m *Metrics) RecordAccepted(n int) {
	m.Accepted.Add(int64(n))
	m.acceptedTotal.Add(float64(n))
}

func (m *Metrics) RecordCoalesced() {
	m.Coalesced.Add(1)
	m.coalescedTotal.Inc()
}

func (m *Metrics) RecordAppended(n int) {
	m.Appended.Add(int64(n))
	m.appendedTotal.Add(float64(n))
}

func (m *Metrics) RecordFlushed(n int, latencySeconds float64) {
	m.Flushed.Add(int64(n))
	m.flushedTotal.Add(float64(n))
	m.batchSize.Observe(float64(n))
	m.flushLatency.Observe(latencySeconds)
}

func (m *Metrics) RecordAcked(n int) {
	m.Acked.Add(int64(n))
	m.ackedTotal.Add(float64(n))
}

func (m *Metrics) RecordRetried(n int) {
	m.Retried.Add(int64(n))
	m.retriedTotal.Add(float64(n))
}

func (m *Metrics) RecordDropped(n int) {
	m.Dropped.Add(int64(n))
	m.droppedTotal.Add(float64(n))
}

func (m *Metrics) SetRetryBacklog(n int) {
	m.retryBacklog.Set(float64(n))
}

// Summary is the end-of-process snapshot, mirroring the teacher's
// PrintFinalMetrics.
type Summary struct {
	Accepted, Coalesced, Appended, Flushed, Acked, Retried, Dropped int64
}

func (m *Metrics) Summary() Summary {
	return Summary{
		Accepted:  m.Accepted.Load(),
		Coalesced: m.Coalesced.Load(),
		Appended:  m.Appended.Load(),
		Flushed:   m.Flushed.Load(),
		Acked:     m.Acked.Load(),
		Retried:   m.Retried.Load(),
		Dropped:   m.Dropped.Load(),
	}
}
