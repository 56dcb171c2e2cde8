// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainedEvents builds a valid hash chain of token events.
func chainedEvents(tokens ...string) []StreamEvent {
	events := make([]StreamEvent, 0, len(tokens))
	prevHash := ""
	for i, token := range tokens {
		event := StreamEvent{
			Id:        "evt-" + string(rune('a'+i)),
			Type:      StreamEventToken,
			CreatedAt: int64(1700000000000 + i),
			PrevHash:  prevHash,
			Content:   token,
		}
		event.Hash = ComputeEventHash(event)
		prevHash = event.Hash
		events = append(events, event)
	}
	return events
}

func TestChainVerifier_AcceptsValidChain(t *testing.T) {
	t.Parallel()

	verifier := NewChainVerifier()
	for _, event := range chainedEvents("a", "b", "c") {
		require.NoError(t, verifier.Verify(event))
	}
	assert.True(t, verifier.Verified())
	assert.Equal(t, 3, verifier.Events())
}

func TestChainVerifier_DetectsTamperedContent(t *testing.T) {
	t.Parallel()

	events := chainedEvents("a", "b")
	events[1].Content = "tampered"

	verifier := NewChainVerifier()
	require.NoError(t, verifier.Verify(events[0]))

	err := verifier.Verify(events[1])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHashMismatch)
	assert.False(t, verifier.Verified())
}

func TestChainVerifier_DetectsDroppedEvent(t *testing.T) {
	t.Parallel()

	events := chainedEvents("a", "b", "c")

	verifier := NewChainVerifier()
	require.NoError(t, verifier.Verify(events[0]))

	// Skipping events[1] breaks the prev_hash link
	err := verifier.Verify(events[2])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainBroken)
}

func TestChainVerifier_EmptyStreamIsNotVerified(t *testing.T) {
	t.Parallel()

	assert.False(t, NewChainVerifier().Verified())
}

func TestComputeEventHash_CoversVerdict(t *testing.T) {
	t.Parallel()

	done := StreamEvent{
		Id:         "evt-done",
		Type:       StreamEventDone,
		CreatedAt:  1700000000000,
		RequestId:  "req-1",
		Abstained:  false,
		Confidence: 0.82,
	}
	base := ComputeEventHash(done)

	done.Abstained = true
	assert.NotEqual(t, base, ComputeEventHash(done), "flipping the verdict changes the hash")

	done.Abstained = false
	done.Confidence = 0.99
	assert.NotEqual(t, base, ComputeEventHash(done), "changing confidence changes the hash")
}
