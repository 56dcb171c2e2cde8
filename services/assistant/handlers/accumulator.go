// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the HTTP handlers for the assistant service.
//
// This file implements secure accumulation of streamed answer chunks.
// Chunks are stored in mlocked memory so client conversations never swap
// to disk, and are incrementally hashed for integrity verification
// against the SSE hash chain.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// SecureBufferSize bounds one accumulated answer. 256 KB is far above
	// any realistic synthesized answer with citations.
	SecureBufferSize = 256 * 1024

	// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
	MinMlockLimitKB = 256
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// ChunkAccumulator collects streamed answer chunks for persistence and
// audit after the stream completes.
//
// # Description
//
// Chunks are hashed incrementally as they arrive, so the final hash can
// be compared against the SSE chain without re-reading the buffer.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Limitations
//
//   - Buffer size is fixed.
//   - An accumulator cannot be reused after Finalize or Destroy.
type ChunkAccumulator interface {
	// Write appends one chunk. Returns an error on overflow or after the
	// accumulator was destroyed.
	Write(chunk string) error

	// Finalize returns the accumulated text and its SHA-256 hash (hex),
	// then wipes the buffer. Can be called once.
	Finalize() (text string, hash string, err error)

	// Destroy wipes the buffer without returning data. Idempotent; use on
	// error paths.
	Destroy()

	// ID identifies this accumulator in logs.
	ID() string

	// CreatedAt is when the accumulator was created.
	CreatedAt() time.Time
}

// secureChunkAccumulator stores chunks in a memguard LockedBuffer: mlocked
// against swap, guard pages against overflow, explicit zeroing on destroy.
type secureChunkAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// insecureChunkAccumulator is the fallback for systems without sufficient
// mlock limits, enabled only with CONCIERGE_INSECURE_MEMORY=true. Data may
// be swapped to disk.
type insecureChunkAccumulator struct {
	id        string
	createdAt time.Time
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

// NewChunkAccumulator returns an accumulator backed by mlocked memory.
//
// # Description
//
// If the system's mlock limit is below MinMlockLimitKB the constructor
// fails, unless CONCIERGE_INSECURE_MEMORY=true is set, in which case an
// insecure fallback is returned with a warning.
func NewChunkAccumulator() (ChunkAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		return handleInsufficientMlock()
	}

	buf := memguard.NewBuffer(SecureBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", SecureBufferSize)
	}
	buf.Melt()

	acc := &secureChunkAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		buffer:    buf,
		hasher:    sha256.New(),
	}
	slog.Debug("Created secure chunk accumulator",
		"accumulator_id", acc.id, "buffer_size", SecureBufferSize)
	return acc, nil
}

func newInsecureChunkAccumulator() ChunkAccumulator {
	acc := &insecureChunkAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		data:      make([]byte, 0, SecureBufferSize),
		hasher:    sha256.New(),
	}
	slog.Warn("Created INSECURE chunk accumulator - data may be swapped to disk",
		"accumulator_id", acc.id)
	return acc
}

// =============================================================================
// Secure Implementation
// =============================================================================

func (a *secureChunkAccumulator) Write(chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow - answer too large")
	}

	chunkBytes := []byte(chunk)
	if a.offset+len(chunkBytes) > SecureBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(chunkBytes), SecureBufferSize-a.offset)
	}

	copy(a.buffer.Bytes()[a.offset:], chunkBytes)
	a.offset += len(chunkBytes)
	a.hasher.Write(chunkBytes)
	return nil
}

func (a *secureChunkAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	text := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("Finalized secure chunk accumulator",
		"accumulator_id", a.id,
		"text_length", len(text),
		"hash", hashStr[:16]+"...",
	)
	return text, hashStr, nil
}

func (a *secureChunkAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
	slog.Debug("Destroyed secure chunk accumulator", "accumulator_id", a.id)
}

func (a *secureChunkAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

func (a *secureChunkAccumulator) ID() string           { return a.id }
func (a *secureChunkAccumulator) CreatedAt() time.Time { return a.createdAt }

// =============================================================================
// Insecure Fallback
// =============================================================================

func (a *insecureChunkAccumulator) Write(chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow - answer too large")
	}

	chunkBytes := []byte(chunk)
	if len(a.data)+len(chunkBytes) > SecureBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(chunkBytes), SecureBufferSize-len(a.data))
	}

	a.data = append(a.data, chunkBytes...)
	a.hasher.Write(chunkBytes)
	return nil
}

func (a *insecureChunkAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	text := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return text, hashStr, nil
}

func (a *insecureChunkAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

// wipe zeros the slice best-effort; the GC may hold copies.
func (a *insecureChunkAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

func (a *insecureChunkAccumulator) ID() string           { return a.id }
func (a *insecureChunkAccumulator) CreatedAt() time.Time { return a.createdAt }

// =============================================================================
// Initialization
// =============================================================================

func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
			)
		} else {
			slog.Error("mlock limit insufficient for secure memory",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", MinMlockLimitKB,
				"help", "raise the limit or set CONCIERGE_INSECURE_MEMORY=true",
			)
		}
	})
}

// checkMlockLimit queries the kernel for the mlock resource limit. Returns
// -1 for unlimited.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

func handleInsufficientMlock() (ChunkAccumulator, error) {
	if os.Getenv("CONCIERGE_INSECURE_MEMORY") == "true" {
		slog.Warn("Using insecure chunk accumulator due to mlock limits",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
		)
		return newInsecureChunkAccumulator(), nil
	}
	return nil, fmt.Errorf(
		"mlock limit insufficient: have %d KB, need %d KB. "+
			"Configure system limits or set CONCIERGE_INSECURE_MEMORY=true",
		currentMlockLimitKB, MinMlockLimitKB,
	)
}

// PurgeAllSecureMemory wipes all memguard-allocated memory. Call during
// graceful shutdown.
func PurgeAllSecureMemory() {
	memguard.Purge()
	slog.Info("Purged all secure memory")
}

var (
	_ ChunkAccumulator = (*secureChunkAccumulator)(nil)
	_ ChunkAccumulator = (*insecureChunkAccumulator)(nil)
)
