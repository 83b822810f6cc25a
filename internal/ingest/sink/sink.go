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

// Package sink defines the analytics store write contract and its
// ClickHouse-backed implementation.
package sink

import (
	"context"

	"logingest/internal/ingest/entry"
)

// AnalyticsSink accepts bulk row writes into the columnar analytics
// store. Write must be idempotent per entry.DeterministicID: a retried
// or redelivered batch containing an already-written row must not
// duplicate it.
type AnalyticsSink interface {
	Write(ctx context.Context, entries []entry.LogEntry) error
	Close() error
}
