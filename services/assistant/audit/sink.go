// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit persists completed reasoning traces for after-the-fact
// review. Traces live in an embedded BadgerDB keyed by request id, with a
// retention TTL so the store is self-cleaning.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// ErrNotFound is returned when no trace exists for a request id, either
// because it never existed or its TTL expired.
var ErrNotFound = errors.New("trace not found")

// DefaultRetention is how long exported traces are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Sink receives completed reasoning traces.
//
// # Description
//
// Export is fire-and-forget from the engine's perspective: a sink failure
// is logged but never fails the answer that produced the trace.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Export persists a completed trace.
	Export(ctx context.Context, trace *datatypes.ReasoningTrace) error

	// Get returns the trace exported for a request id, or ErrNotFound.
	Get(ctx context.Context, requestID string) (*datatypes.ReasoningTrace, error)
}

// NopSink discards traces. The default for deployments without an audit
// requirement.
type NopSink struct{}

func (NopSink) Export(context.Context, *datatypes.ReasoningTrace) error { return nil }
func (NopSink) Get(context.Context, string) (*datatypes.ReasoningTrace, error) {
	return nil, ErrNotFound
}

// =============================================================================
// Badger Sink
// =============================================================================

// Config holds configuration for the badger-backed sink.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string

	// InMemory keeps everything in RAM. For tests.
	InMemory bool

	// Retention is the trace TTL. Zero means DefaultRetention.
	Retention time.Duration

	// SyncWrites trades write latency for durability.
	SyncWrites bool
}

// DefaultConfig returns production settings for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		Retention:  DefaultRetention,
		SyncWrites: true,
	}
}

// InMemoryConfig returns settings for tests: no disk, no sync.
func InMemoryConfig() Config {
	return Config{InMemory: true, Retention: DefaultRetention}
}

// BadgerSink stores traces in an embedded BadgerDB.
type BadgerSink struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerSink opens the store. Caller must Close when done.
func NewBadgerSink(cfg Config) (*BadgerSink, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent audit store")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return &BadgerSink{db: db, retention: cfg.Retention}, nil
}

// Close releases the underlying database.
func (s *BadgerSink) Close() error {
	return s.db.Close()
}

// Export persists a completed trace under its request id with the
// configured TTL. Incomplete traces are rejected; the sink only ever
// holds terminal records.
func (s *BadgerSink) Export(_ context.Context, trace *datatypes.ReasoningTrace) error {
	if trace == nil {
		return errors.New("nil trace")
	}
	if !trace.Terminal.IsTerminal() {
		return fmt.Errorf("trace %s is not in a terminal state", trace.ID)
	}

	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encoding trace %s: %w", trace.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(traceKey(trace.RequestID), payload).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("writing trace %s: %w", trace.ID, err)
	}

	slog.Debug("Exported reasoning trace",
		"request_id", trace.RequestID,
		"trace_id", trace.ID,
		"terminal", trace.Terminal,
		"steps", len(trace.Steps),
	)
	return nil
}

// Get loads the trace stored for a request id.
func (s *BadgerSink) Get(_ context.Context, requestID string) (*datatypes.ReasoningTrace, error) {
	var trace datatypes.ReasoningTrace

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(traceKey(requestID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &trace)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
		}
		return nil, fmt.Errorf("reading trace for request %s: %w", requestID, err)
	}
	return &trace, nil
}

func traceKey(requestID string) []byte {
	return []byte("trace:" + requestID)
}

var (
	_ Sink = NopSink{}
	_ Sink = (*BadgerSink)(nil)
)
