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
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"logingest/internal/ingest/entry"
)

// ClickHouseSchema (reference):
//
// CREATE TABLE IF NOT EXISTS log_entries (
//   id            String,
//   app_id        String,
//   ts            DateTime64(3),
//   level         LowCardinality(String),
//   message       String,
//   source        String,
//   environment   String,
//   trace_id      String,
//   user_id       String,
//   metadata      String
// ) ENGINE = ReplacingMergeTree
// ORDER BY (app_id, ts, id);
//
// ReplacingMergeTree keyed on (app_id, ts, id) gives write idempotency:
// a redelivered row with the same deterministic id eventually collapses
// with its earlier copy during background merges.

const insertQuery = `INSERT INTO log_entries (id, app_id, ts, level, message, source, environment, trace_id, user_id, metadata)`

// ClickHouseSink writes batches to ClickHouse using a single
// PrepareBatch/Append/Send round trip per flush.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *zap.Logger
}

// ClickHouseConfig carries the connection parameters for the sink.
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// NewClickHouseSink opens a native-protocol connection and returns a
// sink ready to accept writes.
func NewClickHouseSink(cfg ClickHouseConfig, logger *zap.Logger) (*ClickHouseSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sink: open clickhouse: %w", err)
	}
	return &ClickHouseSink{conn: conn, logger: logger}, nil
}

// Write batches every entry into one PrepareBatch/Send round trip.
// Idempotency for redelivered entries is carried by the deterministic id
// column plus the table's ReplacingMergeTree dedup semantics, not
// simulated client-side.
func (s *ClickHouseSink) Write(ctx context.Context, entries []entry.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("sink: prepare batch: %w", err)
	}
	for _, e := range entries {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("sink: marshal metadata for %s: %w", e.DeterministicID, err)
		}
		if err := batch.Append(
			e.DeterministicID,
			e.AppID,
			e.Timestamp,
			string(e.Level),
			e.Message,
			e.Source,
			e.Environment,
			e.TraceID,
			e.UserID,
			string(meta),
		); err != nil {
			return fmt.Errorf("sink: append row %s: %w", e.DeterministicID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send batch of %d rows: %w", len(entries), err)
	}
	s.logger.Debug("sink: wrote batch", zap.Int("rows", len(entries)))
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
