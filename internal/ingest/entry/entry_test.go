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

package entry

import (
	"errors"
	"testing"
	"time"
)

func validEntry() LogEntry {
	return LogEntry{
		AppID:           "checkout-api",
		Level:           LevelInfo,
		Message:         "order placed",
		Source:          "checkout-api-pod-7",
		Timestamp:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DeterministicID: "abc123",
	}
}

func TestValidate_AcceptsWellFormedEntry(t *testing.T) {
	e := validEntry()
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_NormalizesLevelCase(t *testing.T) {
	e := validEntry()
	e.Level = "  warn "
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if e.Level != LevelWarn {
		t.Errorf("Level = %q, want %q", e.Level, LevelWarn)
	}
}

func TestValidate_FillsZeroTimestamp(t *testing.T) {
	e := validEntry()
	e.Timestamp = time.Time{}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp still zero after Validate")
	}
}

func TestValidate_RejectsMissingAppID(t *testing.T) {
	e := validEntry()
	e.AppID = ""
	err := e.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
}

func TestValidate_RejectsOversizedAppID(t *testing.T) {
	e := validEntry()
	big := make([]byte, maxAppIDLen+1)
	for i := range big {
		big[i] = 'a'
	}
	e.AppID = string(big)
	err := e.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
}

func TestValidate_RejectsUnknownLevel(t *testing.T) {
	e := validEntry()
	e.Level = "NOTICE"
	err := e.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
}

func TestValidate_RejectsOversizedMessage(t *testing.T) {
	e := validEntry()
	big := make([]byte, maxMessage+1)
	for i := range big {
		big[i] = 'x'
	}
	e.Message = string(big)
	err := e.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
}

func TestValidate_RejectsMissingDeterministicID(t *testing.T) {
	e := validEntry()
	e.DeterministicID = ""
	err := e.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
}

func TestResult_OK(t *testing.T) {
	if !(Result{}).OK() {
		t.Error("zero-value Result.OK() = false, want true")
	}
	if (Result{Err: ErrValidation}).OK() {
		t.Error("Result with Err set OK() = true, want false")
	}
}
