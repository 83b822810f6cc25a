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

// Package entry defines the LogEntry value type accepted by the ingestion
// pipeline and the bounds-checking applied before an entry is allowed past
// the HTTP boundary into the coalescer.
package entry

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Level is a normalized log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

var validLevels = map[Level]struct{}{
	LevelDebug: {},
	LevelInfo:  {},
	LevelWarn:  {},
	LevelError: {},
	LevelFatal: {},
}

const (
	maxAppIDLen  = 100
	maxMessage   = 10000
	maxSourceLen = 255
)

// ErrValidation is the sentinel wrapped by every entry rejection. Callers
// can check errors.Is(err, ErrValidation) to decide whether a failure is a
// synchronous, pre-acceptance rejection rather than a downstream failure.
var ErrValidation = errors.New("log entry failed validation")

// Metadata is a free-form mapping of string keys to scalar values
// (string, bool, number). It is serialized once, at accept time, and never
// mutated afterward.
type Metadata map[string]interface{}

// LogEntry is the immutable value accepted by the pipeline. Once Validate
// succeeds, an entry is never mutated again; it only changes ownership as
// it moves from producer to coalescer to stream to worker.
type LogEntry struct {
	AppID       string    `json:"app_id"`
	Level       Level     `json:"level"`
	Message     string    `json:"message"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	TraceID     string    `json:"trace_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Environment string    `json:"environment,omitempty"`

	// DeterministicID is the id carried through the stream and used by the
	// AnalyticsSink to make writes idempotent under at-least-once
	// redelivery. The producer supplies it and Validate rejects an entry
	// without one; nothing in the pipeline regenerates it on retry or
	// recovery.
	DeterministicID string `json:"id"`
}

// Validate normalizes and bounds-checks an entry in place, returning
// ErrValidation-wrapped errors naming the offending field. It must run
// synchronously before the entry is handed to the coalescer; nothing past
// this point re-validates.
func (e *LogEntry) Validate() error {
	if e.AppID == "" {
		return fmt.Errorf("%w: app_id is required", ErrValidation)
	}
	if utf8.RuneCountInString(e.AppID) > maxAppIDLen {
		return fmt.Errorf("%w: app_id exceeds %d characters", ErrValidation, maxAppIDLen)
	}
	e.Level = Level(strings.ToUpper(strings.TrimSpace(string(e.Level))))
	if _, ok := validLevels[e.Level]; !ok {
		return fmt.Errorf("%w: level %q is not one of DEBUG|INFO|WARN|ERROR|FATAL", ErrValidation, e.Level)
	}
	if utf8.RuneCountInString(e.Message) > maxMessage {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessage)
	}
	if utf8.RuneCountInString(e.Source) > maxSourceLen {
		return fmt.Errorf("%w: source exceeds %d characters", ErrValidation, maxSourceLen)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.DeterministicID == "" {
		return fmt.Errorf("%w: deterministic id is required", ErrValidation)
	}
	return nil
}

// Result is the outcome of attempting to make an entry durable: Err set
// means failure, Err nil means success. The coalescer's completion
// handles carry coalescer.ItemResult, which has the same shape.
type Result struct {
	Err error
}

func (r Result) OK() bool { return r.Err == nil }
