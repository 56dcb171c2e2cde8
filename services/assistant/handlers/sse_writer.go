// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes Server-Sent Events to an HTTP response.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing. Implementations
// handle the wire format (event: type\ndata: json\n\n) and maintain the
// per-stream hash chain: each event's Hash covers its content and PrevHash
// links to the previous event.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; streaming handlers emit
// tokens and keepalives from different goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write.
type SSEWriter interface {
	// WriteEvent writes one event. Id, CreatedAt, Hash, and PrevHash are
	// populated by the writer; the event is flushed immediately.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event with a display message.
	WriteStatus(message string) error

	// WriteToken writes one token of answer text.
	WriteToken(content string) error

	// WriteSources writes the retrieval sources, ordered by relevance.
	WriteSources(sources []datatypes.SourceInfo) error

	// WriteError writes a sanitized failure message. The stream closes
	// after this event.
	WriteError(errMsg string) error

	// WriteDone writes the final event with the request id and verdict.
	WriteDone(requestID string, abstained bool, confidence float64) error

	// WriteKeepAlive sends an SSE comment to keep the connection alive
	// through load balancer idle timeouts. Comments are not part of the
	// hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter emits SSE events over an http.ResponseWriter.
//
// # Thread Safety
//
// Thread-safe via mutex; chain integrity holds across concurrent writes.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps a ResponseWriter for SSE output.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil when the ResponseWriter does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash hashes every content field so the chain covers tokens,
// sources, the verdict, and timestamps. Called with Hash still empty.
func computeEventHash(event datatypes.StreamEvent) string {
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

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "status", Message: message})
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "token", Content: content})
}

func (w *sseWriter) WriteSources(sources []datatypes.SourceInfo) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "sources", Sources: sources})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "error", Error: errMsg})
}

func (w *sseWriter) WriteDone(requestID string, abstained bool, confidence float64) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:       "done",
		RequestId:  requestID,
		Abstained:  abstained,
		Confidence: confidence,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response for SSE streaming. Must be called
// before any body writes.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
