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

// Package httpapi implements the public-facing HTTP server producers
// submit log entries to. It is the one transport this core depends on:
// a single accept(entries) endpoint resolving once each entry is
// durable in the stream, or synchronously rejected.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"logingest/internal/ingest/entry"
	"logingest/internal/ingest/telemetry"
	"logingest/pkg/coalescer"
)

// EntryResult is the wire-level outcome for one submitted entry.
type EntryResult struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server accepts batches of log entries over HTTP and routes each one
// individually through the coalescer, so a fast entry in a batch is
// never held back by a slow sibling beyond the coalescer's own
// batching window.
type Server struct {
	coalescer *coalescer.Coalescer[entry.LogEntry]
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

func NewServer(c *coalescer.Coalescer[entry.LogEntry], logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{coalescer: c, logger: logger}
}

// WithMetrics attaches a Metrics recorder and returns the same Server
// for chaining.
func (s *Server) WithMetrics(m *telemetry.Metrics) *Server {
	s.metrics = m
	return s
}

// RegisterRoutes wires the server's handlers onto mux, matching the
// teacher's RegisterRoutes(mux) shape in internal/ratelimiter/api/server.go.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/entries", s.handleAccept)
	mux.HandleFunc("/healthz", s.handleHealthz)
}

// handleAccept decodes a JSON array of entries, validates each
// synchronously, and for every entry that passes validation submits it
// to the coalescer concurrently so the response waits only as long as
// the slowest entry's own batch takes to dispatch.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var entries []entry.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(entries) == 0 {
		http.Error(w, "at least one entry is required", http.StatusBadRequest)
		return
	}
	results := make([]EntryResult, len(entries))
	var wg sync.WaitGroup
	accepted := 0
	for i := range entries {
		e := entries[i]
		if err := e.Validate(); err != nil {
			results[i] = EntryResult{ID: e.DeterministicID, OK: false, Error: err.Error()}
			continue
		}
		accepted++

		wg.Add(1)
		go func(idx int, e entry.LogEntry) {
			defer wg.Done()
			res, err := s.coalescer.Add(r.Context(), e)
			if err != nil {
				results[idx] = EntryResult{ID: e.DeterministicID, OK: false, Error: err.Error()}
				return
			}
			if res.Err != nil {
				results[idx] = EntryResult{ID: e.DeterministicID, OK: false, Error: res.Err.Error()}
				return
			}
			results[idx] = EntryResult{ID: e.DeterministicID, OK: true}
		}(i, e)
	}
	if s.metrics != nil {
		s.metrics.RecordAccepted(accepted)
	}
	wg.Wait()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		s.logger.Error("httpapi: failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ListenAndServe starts the HTTP server on addr, matching the teacher's
// timeouts and graceful-shutdown-ready server construction in
// internal/ratelimiter/api/server.go's ListenAndServe.
func (s *Server) ListenAndServe(addr string) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
