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
	"testing"
	"time"

	"logingest/internal/ingest/entry"
)

func TestBatchBuffer_AddAndSwap(t *testing.T) {
	b := NewBatchBuffer(10)
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, got len %d", b.Len())
	}

	b.Add(entry.LogEntry{AppID: "a", DeterministicID: "1"}, "1-0")
	b.Add(entry.LogEntry{AppID: "a", DeterministicID: "2"}, "1-1")

	if got := b.Len(); got != 2 {
		t.Fatalf("expected len 2, got %d", got)
	}

	drained := b.Swap()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained items, got %d", len(drained))
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer empty after swap, got %d", b.Len())
	}
}

func TestBatchBuffer_AgeResetsAfterSwap(t *testing.T) {
	b := NewBatchBuffer(10)
	b.Add(entry.LogEntry{AppID: "a", DeterministicID: "1"}, "1-0")
	time.Sleep(5 * time.Millisecond)
	if age := b.Age(); age < 5*time.Millisecond {
		t.Fatalf("expected age >= 5ms, got %s", age)
	}

	b.Swap()
	if age := b.Age(); age != 0 {
		t.Fatalf("expected zero age on empty buffer, got %s", age)
	}
}

func TestBatchBuffer_SwapOnEmptyReturnsNil(t *testing.T) {
	b := NewBatchBuffer(10)
	if drained := b.Swap(); drained != nil {
		t.Fatalf("expected nil from swapping an empty buffer, got %v", drained)
	}
}
