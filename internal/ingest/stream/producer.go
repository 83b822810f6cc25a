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
	"encoding/json"
	"fmt"

	"logingest/internal/ingest/entry"
	"logingest/internal/ingest/telemetry"
	"logingest/pkg/coalescer"
)

// Producer is the bridge from the coalescer to the durable queue: it
// serializes each coalesced entry and appends the whole batch to the
// queue in a single pipelined write. A whole-batch failure fails every
// entry in the batch uniformly, so producers see one consistent error.
type Producer struct {
	queue   Queue
	metrics *telemetry.Metrics
}

func NewProducer(queue Queue) *Producer {
	return &Producer{queue: queue}
}

// WithMetrics attaches a Metrics recorder and returns the same Producer
// for chaining.
func (p *Producer) WithMetrics(m *telemetry.Metrics) *Producer {
	p.metrics = m
	return p
}

// Save appends all entries in order and returns success iff the queue
// acknowledges the whole pipeline.
func (p *Producer) Save(ctx context.Context, entries []entry.LogEntry) ([]string, error) {
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("stream: marshal entry %s: %w", e.DeterministicID, err)
		}
		payloads[i] = b
	}
	ids, err := p.queue.Append(ctx, payloads)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordAppended(len(ids))
	}
	return ids, nil
}

// Process adapts Save to the coalescer.Processor[entry.LogEntry] shape,
// so a Producer can be passed directly as a Coalescer's processor. A
// whole-batch append failure is returned verbatim, which the coalescer
// then applies to every pending handle in the batch (spec.md §7's
// transient_upstream error kind).
func (p *Producer) Process(ctx context.Context, entries []entry.LogEntry) ([]coalescer.ItemResult, error) {
	if p.metrics != nil {
		p.metrics.RecordCoalesced()
	}
	if _, err := p.Save(ctx, entries); err != nil {
		return nil, err
	}
	results := make([]coalescer.ItemResult, len(entries))
	return results, nil
}
