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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() must validate cleanly: %v", err)
	}
}

func TestValidate_RejectsZeroWorkerPoolCount(t *testing.T) {
	cfg := Default()
	cfg.WorkerPool.Count = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for worker_pool.count=0")
	}
}

func TestValidate_RejectsMaxDelayBelowBaseDelay(t *testing.T) {
	cfg := Default()
	cfg.Retry.BaseDelayMs = 10_000
	cfg.Retry.MaxDelayMs = 1_000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for max_delay_ms < base_delay_ms")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestd.yaml")
	contents := []byte("instance_id: ingestd-test\nworker_pool:\n  count: 7\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "ingestd-test" {
		t.Fatalf("expected instance_id override, got %q", cfg.InstanceID)
	}
	if cfg.WorkerPool.Count != 7 {
		t.Fatalf("expected worker_pool.count=7, got %d", cfg.WorkerPool.Count)
	}
	if cfg.Stream.Key != Default().Stream.Key {
		t.Fatalf("expected untouched fields to keep defaults, got stream.key=%q", cfg.Stream.Key)
	}
}

func TestLoad_FileOverridesNumericMillisecondField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestd.yaml")
	contents := []byte("worker:\n  max_wait_time_ms: 750\nretry:\n  base_delay_ms: 2000\n  max_delay_ms: 60000\n")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.WorkerMaxWaitTime(), 750*time.Millisecond; got != want {
		t.Fatalf("worker.max_wait_time_ms = %v, want %v", got, want)
	}
	if got, want := cfg.RetryBaseDelay(), 2*time.Second; got != want {
		t.Fatalf("retry.base_delay_ms = %v, want %v", got, want)
	}
	if got, want := cfg.RetryMaxDelay(), time.Minute; got != want {
		t.Fatalf("retry.max_delay_ms = %v, want %v", got, want)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingestd.yaml")
	if err := os.WriteFile(path, []byte("instance_id: from-file\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("INGESTD_INSTANCE_ID", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.InstanceID)
	}
}

func TestLoad_NoFileStillValidates(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.InstanceID != Default().InstanceID {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
