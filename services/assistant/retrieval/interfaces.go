// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval provides the hybrid knowledge retrieval gateway.
//
// The gateway runs dense (vector) and sparse (BM25) queries concurrently
// against Weaviate and blends their scores. Collection routing decides which
// logical collections a query searches.
package retrieval

import (
	"context"
	"errors"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// ErrUnavailable indicates the retrieval index cannot be reached. Callers
// degrade gracefully: the request proceeds without evidence and the final
// confidence is capped. Never fatal to a request.
var ErrUnavailable = errors.New("retrieval index unavailable")

// EmbeddingProvider computes dense vectors for query text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the retrieval gateway boundary consumed by the reasoning loop.
//
// # Description
//
// Search runs a hybrid query against one collection. Empty results are a
// valid non-error outcome (the query simply has no coverage). ErrUnavailable
// is the only retryable error.
type Searcher interface {
	Search(ctx context.Context, collection, query string, k int) ([]datatypes.EvidenceItem, error)
}

// SearchConfig controls hybrid search behavior.
//
// # Fields
//
//   - DenseWeight / SparseWeight: Blend weights, fixed at 0.7/0.3 by
//     DefaultSearchConfig. They must sum to 1.
//   - DefaultK: Result count when the caller passes k <= 0.
//   - MaxEmbedLength: Queries longer than this are truncated before
//     embedding to bound embedder latency.
type SearchConfig struct {
	DenseWeight    float64
	SparseWeight   float64
	DefaultK       int
	MaxEmbedLength int
}

// DefaultSearchConfig returns the standard 0.7/0.3 hybrid configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		DenseWeight:    0.7,
		SparseWeight:   0.3,
		DefaultK:       8,
		MaxEmbedLength: 2048,
	}
}
