// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Evidence
// =============================================================================

// EvidenceItem is a single retrieved passage with its blended relevance score.
//
// # Description
//
// EvidenceItem is immutable once retrieved: the reasoning loop, scorer, and
// synthesizer read evidence but never modify it. Score is the 0.7/0.3 blend
// of dense certainty and normalized sparse score computed by the retrieval
// gateway, always in [0, 1].
//
// # Fields
//
//   - Passage: The retrieved text chunk.
//   - Score: Blended relevance in [0, 1].
//   - Collection: The collection the passage came from (pricing, legal, ...).
//   - PassageID: Weaviate object UUID for citation.
//   - Source: Human-readable provenance (document name or path).
//   - UpdatedAt: Unix milliseconds when the source document was ingested.
//     Used to break score ties in favor of fresher content.
type EvidenceItem struct {
	Passage    string  `json:"passage"`
	Score      float64 `json:"score"`
	Collection string  `json:"collection"`
	PassageID  string  `json:"passage_id"`
	Source     string  `json:"source"`
	UpdatedAt  int64   `json:"updated_at"`
}

// =============================================================================
// Tool Outcomes
// =============================================================================

// ToolOutcome records a single tool execution observed by the reasoning loop.
//
// # Fields
//
//   - Tool: Registered tool name.
//   - Args: Arguments the loop passed to the tool.
//   - Output: Tool output text (empty on failure).
//   - Success: True when the tool ran to completion without error.
//   - Trusted: Copied from the tool's registration-time trust tag. A
//     successful trusted outcome forces full confidence in the scorer.
//   - Latency: Wall-clock execution time.
type ToolOutcome struct {
	Tool    string            `json:"tool"`
	Args    map[string]string `json:"args,omitempty"`
	Output  string            `json:"output,omitempty"`
	Success bool              `json:"success"`
	Trusted bool              `json:"trusted"`
	Latency time.Duration     `json:"latency_ns"`
}
