// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// SourceInfo is one retrieval source reported to a streaming client.
type SourceInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// StreamEvent is a single Server-Sent Event on the answer stream.
//
// # Description
//
// Events carry a hash chain for integrity verification: Hash is the
// SHA-256 of the event's content and PrevHash links to the previous
// event, giving the client a verifiable chain of custody over tokens,
// sources, and timestamps.
//
// # Fields
//
//   - Id: UUID v4, assigned by the writer.
//   - Type: One of status, sources, token, done, error.
//   - CreatedAt: Unix milliseconds when the event was written.
//   - Hash: SHA-256 over this event's content, hex encoded.
//   - PrevHash: Hash of the previous event; empty for the first event.
//   - Content: Token text (token events).
//   - Message: Human-readable status (status events).
//   - Error: Sanitized failure message (error events).
//   - RequestId: Request correlation id (done events).
//   - Sources: Retrieval sources (sources events).
//   - Abstained, Confidence: Final verdict (done events).
type StreamEvent struct {
	Id         string       `json:"id"`
	Type       string       `json:"type"`
	CreatedAt  int64        `json:"created_at"`
	Hash       string       `json:"hash"`
	PrevHash   string       `json:"prev_hash"`
	Content    string       `json:"content,omitempty"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	RequestId  string       `json:"request_id,omitempty"`
	Sources    []SourceInfo `json:"sources,omitempty"`
	Abstained  bool         `json:"abstained,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
}
