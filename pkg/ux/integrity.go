// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides user experience components for the concierge CLI.
//
// This file implements client-side hash chain verification for answer
// streams. Each StreamEvent carries a Hash computed from its content and
// a PrevHash linking to the previous event:
//
//	Event[0] → Event[1] → Event[2] → ... → Event[N]
//
// If any event is modified or dropped in transit, its hash or the link
// to its neighbor breaks, and verification fails.
package ux

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrHashMismatch indicates an event whose stored hash does not match
	// the hash recomputed from its content.
	ErrHashMismatch = errors.New("event hash mismatch")

	// ErrChainBroken indicates an event whose PrevHash does not link to
	// the previous event in the stream.
	ErrChainBroken = errors.New("hash chain broken")
)

// secureHashEqual performs constant-time comparison of two hash strings.
// This prevents timing attacks where an attacker could determine how many
// leading characters of a hash are correct by measuring response times.
func secureHashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ChainVerifier validates the hash chain of a single answer stream.
//
// # Description
//
// Feed every received event to Verify in arrival order. The verifier
// recomputes each event's hash from its content fields and checks that
// PrevHash links to the preceding event. Verified reports whether the
// whole stream so far checked out.
//
// # Thread Safety
//
// Not safe for concurrent use. One verifier per stream.
type ChainVerifier struct {
	prevHash string
	events   int
	failed   bool
}

// NewChainVerifier creates a verifier for a fresh stream.
func NewChainVerifier() *ChainVerifier {
	return &ChainVerifier{}
}

// Verify checks one event against the chain.
//
// # Inputs
//
//   - event: The event as decoded from the wire, Hash and PrevHash intact.
//
// # Outputs
//
//   - error: ErrHashMismatch or ErrChainBroken on failure, nil otherwise.
func (v *ChainVerifier) Verify(event StreamEvent) error {
	if !secureHashEqual(event.PrevHash, v.prevHash) {
		v.failed = true
		return fmt.Errorf("%w: event %d prev_hash %q, want %q",
			ErrChainBroken, v.events, truncateHash(event.PrevHash), truncateHash(v.prevHash))
	}

	expected := ComputeEventHash(event)
	if !secureHashEqual(event.Hash, expected) {
		v.failed = true
		return fmt.Errorf("%w: event %d (%s)", ErrHashMismatch, v.events, event.Type)
	}

	v.prevHash = event.Hash
	v.events++
	return nil
}

// Verified reports whether every event so far passed and at least one
// event was seen.
func (v *ChainVerifier) Verified() bool {
	return !v.failed && v.events > 0
}

// Events returns the number of verified events.
func (v *ChainVerifier) Events() int {
	return v.events
}

// ComputeEventHash recomputes the hash of an event from its content
// fields. The field order and formatting must match the server exactly,
// with the Hash field excluded from the input.
func ComputeEventHash(event StreamEvent) string {
	sourcesJSON := ""
	if len(event.Sources) > 0 {
		if data, err := json.Marshal(event.Sources); err == nil {
			sourcesJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%t|%.6f|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.Error,
		event.RequestId,
		event.Abstained,
		event.Confidence,
		sourcesJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// truncateHash shortens a hash for error messages.
func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
