// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseBody serializes events into SSE wire format with a valid hash chain.
func sseBody(t *testing.T, events []StreamEvent) string {
	t.Helper()
	var body strings.Builder
	for _, event := range events {
		data, err := json.Marshal(event)
		require.NoError(t, err)
		fmt.Fprintf(&body, "event: %s\ndata: %s\n\n", event.Type, data)
	}
	return body.String()
}

// answerStream builds a complete status/token/sources/done exchange.
func answerStream(t *testing.T, tokens []string) []StreamEvent {
	t.Helper()
	raw := []StreamEvent{{Type: StreamEventStatus, Message: "Memeriksa basis pengetahuan..."}}
	for _, token := range tokens {
		raw = append(raw, StreamEvent{Type: StreamEventToken, Content: token})
	}
	raw = append(raw,
		StreamEvent{Type: StreamEventSources, Sources: []SourceInfo{{Source: "pricing-sheet-2025", Score: 0.92}}},
		StreamEvent{Type: StreamEventDone, RequestId: "req-1", Confidence: 0.82},
	)

	prevHash := ""
	for i := range raw {
		raw[i].Id = fmt.Sprintf("evt-%d", i)
		raw[i].CreatedAt = int64(1700000000000 + i)
		raw[i].PrevHash = prevHash
		raw[i].Hash = ComputeEventHash(raw[i])
		prevHash = raw[i].Hash
	}
	return raw
}

func TestStreamProcessor_AssemblesAnswer(t *testing.T) {
	t.Parallel()

	events := answerStream(t, []string{"Biaya ", "Rp 20.000.000."})
	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	result, err := processor.Process(strings.NewReader(sseBody(t, events)))
	require.NoError(t, err)

	assert.Equal(t, "Biaya Rp 20.000.000.", result.Answer)
	assert.Equal(t, "req-1", result.RequestID)
	assert.InDelta(t, 0.82, result.Confidence, 1e-9)
	assert.False(t, result.Abstained)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "pricing-sheet-2025", result.Sources[0].Source)
	assert.True(t, result.ChainVerified)
}

func TestStreamProcessor_RejectsTamperedStream(t *testing.T) {
	t.Parallel()

	events := answerStream(t, []string{"Rp 20.000.000"})
	// Tamper with the token after hashing
	for i := range events {
		if events[i].Type == StreamEventToken {
			events[i].Content = "Rp 5.000.000"
		}
	}

	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	_, err := processor.Process(strings.NewReader(sseBody(t, events)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestStreamProcessor_IgnoresKeepAlives(t *testing.T) {
	t.Parallel()

	events := answerStream(t, []string{"halo"})
	body := sseBody(t, events[:1]) + ": ping\n\n" + sseBody(t, events[1:])

	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	result, err := processor.Process(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "halo", result.Answer)
	assert.True(t, result.ChainVerified)
}

func TestStreamProcessor_ErrorEvent(t *testing.T) {
	t.Parallel()

	errEvent := StreamEvent{
		Id:        "evt-0",
		Type:      StreamEventError,
		CreatedAt: 1700000000000,
		Error:     "streaming unavailable",
	}
	errEvent.Hash = ComputeEventHash(errEvent)

	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	_, err := processor.Process(strings.NewReader(sseBody(t, []StreamEvent{errEvent})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streaming unavailable")
}

func TestStreamProcessor_TruncatedStream(t *testing.T) {
	t.Parallel()

	events := answerStream(t, []string{"halo"})
	// Drop the done event
	body := sseBody(t, events[:len(events)-1])

	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	_, err := processor.Process(strings.NewReader(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before completion")
}

func TestStreamProcessor_MachineModeBuffersOutput(t *testing.T) {
	t.Parallel()

	events := answerStream(t, []string{"halo ", "dunia"})
	var out bytes.Buffer
	processor := NewStreamProcessorWithWriter(&out, PersonalityMachine)

	_, err := processor.Process(strings.NewReader(sseBody(t, events)))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ANSWER: halo dunia")
}
