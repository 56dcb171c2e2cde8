// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Loader owns the serving rule table and reloads it from disk.
//
// # Description
//
// Readers call Table() on every request; the pointer swap in Refresh is
// atomic, so a refresh never exposes a half-built table. A file that
// fails to parse or compile leaves the previous table serving.
type Loader struct {
	path    string
	current atomic.Pointer[Table]
}

// NewLoader loads the rule file at path and returns a serving loader.
func NewLoader(path string) (*Loader, error) {
	loader := &Loader{path: path}
	if err := loader.Refresh(); err != nil {
		return nil, err
	}
	return loader, nil
}

// NewLoaderFromSpec builds a loader around an in-memory spec. Refresh is a
// no-op without a backing file; used by tests and embedded defaults.
func NewLoaderFromSpec(spec TableSpec) (*Loader, error) {
	table, err := Compile(spec)
	if err != nil {
		return nil, err
	}
	loader := &Loader{}
	loader.current.Store(table)
	return loader, nil
}

// Table returns the currently serving table.
func (l *Loader) Table() *Table {
	return l.current.Load()
}

// Refresh re-reads the rule file and swaps in the new table.
//
// # Outputs
//
//   - error: Non-nil when the file is unreadable, malformed YAML, or fails
//     compilation. The serving table is untouched on error.
func (l *Loader) Refresh() error {
	if l.path == "" {
		return nil
	}

	spec, err := loadSpec(l.path)
	if err != nil {
		return err
	}
	table, err := Compile(spec)
	if err != nil {
		return fmt.Errorf("compiling rule table from %s: %w", l.path, err)
	}

	l.current.Store(table)
	slog.Info("Calibration rule table refreshed",
		"path", l.path,
		"rules", table.RuleCount(),
		"facts", table.FactCount(),
	)
	return nil
}

// Watch reloads the rule file whenever it changes on disk. Intended for
// development; production refreshes go through the admin endpoint.
//
// # Limitations
//
//   - Watches the parent directory, since editors replace files rather
//     than writing in place.
//   - Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		return fmt.Errorf("no rule file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rule watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(l.path), err)
	}
	target := filepath.Base(l.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := l.Refresh(); err != nil {
				slog.Warn("Rule file changed but reload failed, keeping previous table",
					"path", l.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Rule watcher error", "error", err)
		}
	}
}

func loadSpec(path string) (TableSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TableSpec{}, fmt.Errorf("reading rule file %s: %w", path, err)
	}
	return ParseSpec(data)
}
