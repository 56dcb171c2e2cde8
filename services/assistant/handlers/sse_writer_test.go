// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// parseEvents decodes every data: line in the recorded SSE body.
func parseEvents(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestSSEWriter_EventFormat(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	writer, err := NewSSEWriter(recorder)
	require.NoError(t, err)

	require.NoError(t, writer.WriteStatus("Memeriksa basis pengetahuan..."))
	require.NoError(t, writer.WriteToken("Halo"))
	require.NoError(t, writer.WriteDone("req-1", false, 0.82))

	body := recorder.Body.String()
	assert.Contains(t, body, "event: status\n")
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, "event: done\n")

	events := parseEvents(t, body)
	require.Len(t, events, 3)
	assert.Equal(t, "Halo", events[1].Content)
	assert.Equal(t, "req-1", events[2].RequestId)
	assert.InDelta(t, 0.82, events[2].Confidence, 1e-9)
}

func TestSSEWriter_HashChain(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	writer, err := NewSSEWriter(recorder)
	require.NoError(t, err)

	require.NoError(t, writer.WriteToken("a"))
	require.NoError(t, writer.WriteToken("b"))
	require.NoError(t, writer.WriteToken("c"))

	events := parseEvents(t, recorder.Body.String())
	require.Len(t, events, 3)

	assert.Empty(t, events[0].PrevHash, "chain starts empty")
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.Equal(t, events[1].Hash, events[2].PrevHash)

	for _, event := range events {
		recomputed := event
		recomputed.Hash = ""
		assert.Equal(t, event.Hash, computeEventHash(recomputed), "hash covers event content")
	}
}

func TestSSEWriter_KeepAliveIsComment(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	writer, err := NewSSEWriter(recorder)
	require.NoError(t, err)

	require.NoError(t, writer.WriteToken("a"))
	require.NoError(t, writer.WriteKeepAlive())
	require.NoError(t, writer.WriteToken("b"))

	assert.Contains(t, recorder.Body.String(), ": ping\n\n")

	events := parseEvents(t, recorder.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Hash, events[1].PrevHash, "keepalive does not break the chain")
}

func TestSetSSEHeaders(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	SetSSEHeaders(recorder)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "no", recorder.Header().Get("X-Accel-Buffering"))
}

func TestStreamSources_Caps(t *testing.T) {
	t.Parallel()

	citations := make([]datatypes.Citation, maxStreamSources+5)
	for i := range citations {
		citations[i] = datatypes.Citation{Source: "doc", PassageID: "p"}
	}
	assert.Len(t, streamSources(citations), maxStreamSources)
}
