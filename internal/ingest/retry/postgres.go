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

package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"logingest/internal/ingest/entry"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS retry_envelopes (
//   id              TEXT PRIMARY KEY,
//   entries         JSONB NOT NULL,
//   stream_ids      TEXT[] NOT NULL,
//   last_error      TEXT NOT NULL,
//   attempt         INT NOT NULL DEFAULT 0,
//   queued_at       TIMESTAMPTZ NOT NULL,
//   next_attempt_at TIMESTAMPTZ NOT NULL,
//   origin_worker   TEXT NOT NULL
// );
// CREATE INDEX IF NOT EXISTS idx_retry_envelopes_due ON retry_envelopes(next_attempt_at);
//
// This reuses the teacher's applied_commits idempotency discipline in
// spirit: a row exists exactly once per envelope id, and MarkSucceeded
// simply deletes it, so redelivering the same envelope id twice (which
// cannot happen here since ids are generated server-side) would still
// be a no-op past the first insert.

// PostgresStrategy is the durable RetryStrategy implementation: envelopes
// survive process restarts.
type PostgresStrategy struct {
	pool   *pgxpool.Pool
	cfg    BackoffConfig
	logger *zap.Logger
}

func NewPostgresStrategy(pool *pgxpool.Pool, cfg BackoffConfig, logger *zap.Logger) *PostgresStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStrategy{pool: pool, cfg: cfg, logger: logger}
}

func (p *PostgresStrategy) QueueForRetry(ctx context.Context, entries []entry.LogEntry, streamIDs []string, cause error, worker string) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("retry: marshal entries: %w", err)
	}
	id := fmt.Sprintf("env-%s-%d", worker, time.Now().UnixNano())
	now := time.Now()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO retry_envelopes (id, entries, stream_ids, last_error, attempt, queued_at, next_attempt_at, origin_worker)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		id, payload, streamIDs, cause.Error(), now, now.Add(p.cfg.NextDelay(0)), worker,
	)
	if err != nil {
		return fmt.Errorf("retry: insert envelope: %w", err)
	}
	return nil
}

func (p *PostgresStrategy) Due(ctx context.Context, limit int) ([]Envelope, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, entries, stream_ids, last_error, attempt, queued_at, next_attempt_at, origin_worker
		 FROM retry_envelopes WHERE next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("retry: query due envelopes: %w", err)
	}
	defer rows.Close()

	var out []Envelope
	for rows.Next() {
		var env Envelope
		var payload []byte
		if err := rows.Scan(&env.ID, &payload, &env.StreamIDs, &env.LastError, &env.Attempt, &env.QueuedAt, &env.NextAttemptAt, &env.OriginWorker); err != nil {
			return nil, fmt.Errorf("retry: scan envelope: %w", err)
		}
		if err := json.Unmarshal(payload, &env.Entries); err != nil {
			return nil, fmt.Errorf("retry: unmarshal envelope %s entries: %w", env.ID, err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (p *PostgresStrategy) MarkSucceeded(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM retry_envelopes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("retry: delete envelope %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStrategy) MarkFailed(ctx context.Context, id string, cause error) error {
	var attempt int
	err := p.pool.QueryRow(ctx, `SELECT attempt FROM retry_envelopes WHERE id = $1`, id).Scan(&attempt)
	if err != nil {
		return fmt.Errorf("retry: read attempt for %s: %w", id, err)
	}
	attempt++
	if attempt >= p.cfg.MaxAttempts {
		if _, err := p.pool.Exec(ctx, `DELETE FROM retry_envelopes WHERE id = $1`, id); err != nil {
			return fmt.Errorf("retry: drop exhausted envelope %s: %w", id, err)
		}
		p.logger.Error("retry: envelope dropped, max attempts exhausted",
			zap.String("envelope_id", id),
			zap.Int("attempt", attempt),
		)
		return ErrRetryExhausted
	}
	next := time.Now().Add(p.cfg.NextDelay(attempt))
	_, err = p.pool.Exec(ctx,
		`UPDATE retry_envelopes SET attempt = $2, last_error = $3, next_attempt_at = $4 WHERE id = $1`,
		id, attempt, cause.Error(), next,
	)
	if err != nil {
		return fmt.Errorf("retry: update envelope %s: %w", id, err)
	}
	return nil
}

func (p *PostgresStrategy) Pending(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM retry_envelopes`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("retry: count pending: %w", err)
	}
	return count, nil
}

func (p *PostgresStrategy) Close() error {
	p.pool.Close()
	return nil
}
