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

// Package config loads and validates the ingestion daemon's typed
// configuration from a YAML file with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete set of recognized options, one field per
// externally documented knob. Every field carries a default applied by
// Load before validation, so an empty file still produces a runnable
// configuration.
//
// Every duration-like knob is stored as a plain int of milliseconds
// (its `_ms` koanf key, as written) and converted to a time.Duration at
// the use site: koanf's default string-to-duration decode hook never
// fires for a numeric YAML/env source, so a time.Duration field here
// would silently take a raw "50" as 50 nanoseconds instead of 50ms.
type Config struct {
	InstanceID string `koanf:"instance_id"`

	Coalescer struct {
		Enabled        bool `koanf:"enabled"`
		MaxBatchSize   int  `koanf:"max_batch_size"`
		MaxWaitTimeMs  int  `koanf:"max_wait_time_ms"`
	} `koanf:"coalescer"`

	Stream struct {
		Key            string `koanf:"key"`
		Group          string `koanf:"group"`
		BatchSize      int64  `koanf:"batch_size"`
		BlockTimeoutMs int    `koanf:"block_ms"`
		ClaimMinIdleMs int    `koanf:"claim_min_idle_ms"`
		ApproxMaxLen   int64  `koanf:"approx_max_len"`
	} `koanf:"stream"`

	WorkerPool struct {
		Count int `koanf:"count"`
	} `koanf:"worker_pool"`

	Worker struct {
		MaxBatchSize    int `koanf:"max_batch_size"`
		MaxWaitTimeMs   int `koanf:"max_wait_time_ms"`
		RetryQueueLimit int `koanf:"retry_queue_limit"`
		PollIntervalMs  int `koanf:"poll_interval_ms"`
		RecoverEvery    int `koanf:"recover_every"`
	} `koanf:"worker"`

	Retry struct {
		BaseDelayMs int `koanf:"base_delay_ms"`
		MaxDelayMs  int `koanf:"max_delay_ms"`
		MaxAttempts int `koanf:"max_attempts"`
	} `koanf:"retry"`

	Redis struct {
		Addr string `koanf:"addr"`
	} `koanf:"redis"`

	ClickHouse struct {
		Addr     string `koanf:"addr"`
		Database string `koanf:"database"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
	} `koanf:"clickhouse"`

	Postgres struct {
		DSN string `koanf:"dsn"`
	} `koanf:"postgres"`

	HTTP struct {
		Addr string `koanf:"addr"`
	} `koanf:"http"`

	Telemetry struct {
		LogLevel    string `koanf:"log_level"`
		Development bool   `koanf:"development"`
		MetricsAddr string `koanf:"metrics_addr"`
	} `koanf:"telemetry"`
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// CoalescerMaxWaitTime, StreamBlockTimeout, StreamClaimMinIdle,
// WorkerMaxWaitTime, WorkerPollInterval, RetryBaseDelay, and
// RetryMaxDelay convert their respective _ms fields to a time.Duration,
// the one point where a millisecond count becomes a duration.
func (c Config) CoalescerMaxWaitTime() time.Duration { return ms(c.Coalescer.MaxWaitTimeMs) }
func (c Config) StreamBlockTimeout() time.Duration   { return ms(c.Stream.BlockTimeoutMs) }
func (c Config) StreamClaimMinIdle() time.Duration   { return ms(c.Stream.ClaimMinIdleMs) }
func (c Config) WorkerMaxWaitTime() time.Duration    { return ms(c.Worker.MaxWaitTimeMs) }
func (c Config) WorkerPollInterval() time.Duration   { return ms(c.Worker.PollIntervalMs) }
func (c Config) RetryBaseDelay() time.Duration       { return ms(c.Retry.BaseDelayMs) }
func (c Config) RetryMaxDelay() time.Duration        { return ms(c.Retry.MaxDelayMs) }

// Default returns a Config populated with the defaults documented for
// every field spec.md §6 enumerates, mirroring the teacher's
// flag-default style in cmd/ratelimiter-api/main.go, one struct instead
// of one flag.Var call per option.
func Default() Config {
	var c Config
	c.InstanceID = "ingestd-1"

	c.Coalescer.Enabled = true
	c.Coalescer.MaxBatchSize = 500
	c.Coalescer.MaxWaitTimeMs = 50

	c.Stream.Key = "logs:ingest"
	c.Stream.Group = "ingestd"
	c.Stream.BatchSize = 100
	c.Stream.BlockTimeoutMs = 2_000
	c.Stream.ClaimMinIdleMs = 30_000
	c.Stream.ApproxMaxLen = 1_000_000

	c.WorkerPool.Count = 4

	c.Worker.MaxBatchSize = 500
	c.Worker.MaxWaitTimeMs = 200
	c.Worker.RetryQueueLimit = 10_000
	c.Worker.PollIntervalMs = 100
	c.Worker.RecoverEvery = 10

	c.Retry.BaseDelayMs = 500
	c.Retry.MaxDelayMs = 5 * 60_000
	c.Retry.MaxAttempts = 8

	c.Redis.Addr = "localhost:6379"

	c.ClickHouse.Addr = "localhost:9000"
	c.ClickHouse.Database = "default"

	c.HTTP.Addr = ":8080"

	c.Telemetry.LogLevel = "info"

	return c
}

// Validate fails fast on any option that would produce an unrunnable or
// silently-wrong pipeline, matching the router example's eager-
// validation-at-startup style rather than deferring to first use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InstanceID) == "" {
		return fmt.Errorf("config: instance_id is required")
	}
	if c.Coalescer.Enabled {
		if c.Coalescer.MaxBatchSize <= 0 {
			return fmt.Errorf("config: coalescer.max_batch_size must be > 0")
		}
		if c.Coalescer.MaxWaitTimeMs <= 0 {
			return fmt.Errorf("config: coalescer.max_wait_time_ms must be > 0")
		}
	}
	if strings.TrimSpace(c.Stream.Key) == "" {
		return fmt.Errorf("config: stream.key is required")
	}
	if strings.TrimSpace(c.Stream.Group) == "" {
		return fmt.Errorf("config: stream.group is required")
	}
	if c.Stream.BatchSize <= 0 {
		return fmt.Errorf("config: stream.batch_size must be > 0")
	}
	if c.WorkerPool.Count <= 0 {
		return fmt.Errorf("config: worker_pool.count must be > 0")
	}
	if c.Worker.MaxBatchSize <= 0 {
		return fmt.Errorf("config: worker.max_batch_size must be > 0")
	}
	if c.Worker.MaxWaitTimeMs <= 0 {
		return fmt.Errorf("config: worker.max_wait_time_ms must be > 0")
	}
	if c.Retry.BaseDelayMs <= 0 {
		return fmt.Errorf("config: retry.base_delay_ms must be > 0")
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("config: retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: retry.max_attempts must be > 0")
	}
	return nil
}
