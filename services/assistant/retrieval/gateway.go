// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("concierge.assistant.retrieval")

// weightSumTolerance absorbs float rounding when checking that the blend
// weights sum to 1.
const weightSumTolerance = 1e-9

// WeaviateGateway implements Searcher against a Weaviate index.
//
// # Description
//
// WeaviateGateway runs the dense (NearVector over an external embedding) and
// sparse (BM25) legs of a hybrid query concurrently and blends their scores
// with the configured weights. Both legs filter on the collection property,
// so one KnowledgeChunk class serves every logical collection.
//
// # Thread Safety
//
// WeaviateGateway is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
//
// # Example
//
//	embedder, _ := NewHTTPEmbedder()
//	gateway := NewWeaviateGateway(client, embedder, DefaultSearchConfig())
//	evidence, err := gateway.Search(ctx, "pricing", "biaya pendirian PT PMA", 8)
type WeaviateGateway struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
	config   SearchConfig
}

// NewWeaviateGateway creates a hybrid retrieval gateway.
//
// # Inputs
//
//   - client: Weaviate client for index access.
//   - embedder: Provider for computing query embeddings.
//   - config: Search configuration (use DefaultSearchConfig() for defaults).
//
// # Assumptions
//
//   - Client is connected and the KnowledgeChunk schema exists.
func NewWeaviateGateway(client *weaviate.Client, embedder EmbeddingProvider, config SearchConfig) *WeaviateGateway {
	return &WeaviateGateway{
		client:   client,
		embedder: embedder,
		config:   validateSearchConfig(config),
	}
}

// validateSearchConfig validates and corrects search configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validateSearchConfig(config SearchConfig) SearchConfig {
	defaults := DefaultSearchConfig()

	if config.DenseWeight <= 0 || config.SparseWeight <= 0 ||
		math.Abs(config.DenseWeight+config.SparseWeight-1.0) > weightSumTolerance {
		slog.Warn("Invalid blend weights, using defaults",
			"dense", config.DenseWeight, "sparse", config.SparseWeight)
		config.DenseWeight = defaults.DenseWeight
		config.SparseWeight = defaults.SparseWeight
	}

	if config.DefaultK < 1 {
		slog.Warn("Invalid DefaultK config, using default",
			"provided", config.DefaultK, "default", defaults.DefaultK)
		config.DefaultK = defaults.DefaultK
	}

	if config.MaxEmbedLength < 1 {
		slog.Warn("Invalid MaxEmbedLength config, using default",
			"provided", config.MaxEmbedLength, "default", defaults.MaxEmbedLength)
		config.MaxEmbedLength = defaults.MaxEmbedLength
	}

	return config
}

// Search runs a hybrid query against one collection.
//
// # Description
//
// Runs the dense and sparse legs concurrently, blends the per-passage
// scores as denseWeight*certainty + sparseWeight*normalizedBM25, and sorts
// by blended score with ties broken by most recent ingestion. When one leg
// fails the other serves alone at full weight; when both fail the error
// wraps ErrUnavailable and the caller degrades.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - collection: Logical collection to search (pricing, legal, ...).
//   - query: The search text.
//   - k: Maximum results. k <= 0 uses the configured default.
//
// # Outputs
//
//   - []datatypes.EvidenceItem: Blended results, best first. An empty slice
//     with a nil error means the query has no coverage.
//   - error: Wraps ErrUnavailable when the index cannot serve the query.
//
// # Limitations
//
//   - BM25 scores are unbounded; they are normalized by the max score in
//     the result set before blending.
func (g *WeaviateGateway) Search(ctx context.Context, collection, query string, k int) ([]datatypes.EvidenceItem, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.collection", collection),
		attribute.Int("retrieval.k", k),
	)

	if k <= 0 {
		k = g.config.DefaultK
	}

	var denseResults, sparseResults []datatypes.KnowledgeResult
	var denseErr, sparseErr error

	// Both legs always run to completion; degradation is decided after.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		denseResults, denseErr = g.denseSearch(egCtx, collection, query, k)
		return nil
	})
	eg.Go(func() error {
		sparseResults, sparseErr = g.sparseSearch(egCtx, collection, query, k)
		return nil
	})
	_ = eg.Wait()

	if denseErr != nil && sparseErr != nil {
		err := fmt.Errorf("%w: dense=[%v], sparse=[%v]", ErrUnavailable, denseErr, sparseErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if denseErr != nil {
		slog.Warn("Dense leg failed, serving sparse-only", "collection", collection, "error", denseErr)
	}
	if sparseErr != nil {
		slog.Warn("Sparse leg failed, serving dense-only", "collection", collection, "error", sparseErr)
	}

	merged := g.blend(denseResults, sparseResults, denseErr == nil, sparseErr == nil)
	if len(merged) > k {
		merged = merged[:k]
	}

	span.SetAttributes(attribute.Int("retrieval.results", len(merged)))
	slog.Debug("Hybrid search complete",
		"collection", collection,
		"dense", len(denseResults),
		"sparse", len(sparseResults),
		"merged", len(merged))
	return merged, nil
}

// denseSearch runs the NearVector leg.
func (g *WeaviateGateway) denseSearch(ctx context.Context, collection, query string, k int) ([]datatypes.KnowledgeResult, error) {
	ctx, span := tracer.Start(ctx, "denseSearch")
	defer span.End()

	truncated := query
	if len(query) > g.config.MaxEmbedLength {
		truncated = query[:g.config.MaxEmbedLength]
		slog.Debug("Truncated query for embedding", "originalLen", len(query), "truncatedLen", len(truncated))
	}

	vector, err := g.embedder.Embed(ctx, truncated)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := g.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty (always [0,1]) instead of distance, which varies by metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "collection"},
		{Name: "ingested_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	result, err := g.client.GraphQL().Get().
		WithClassName("KnowledgeChunk").
		WithFields(fields...).
		WithWhere(collectionFilter(collection)).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("weaviate dense search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse dense results: %w", err)
	}
	return parsed.Get.KnowledgeChunk, nil
}

// sparseSearch runs the BM25 leg.
func (g *WeaviateGateway) sparseSearch(ctx context.Context, collection, query string, k int) ([]datatypes.KnowledgeResult, error) {
	ctx, span := tracer.Start(ctx, "sparseSearch")
	defer span.End()

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "collection"},
		{Name: "ingested_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	result, err := g.client.GraphQL().Get().
		WithClassName("KnowledgeChunk").
		WithFields(fields...).
		WithWhere(collectionFilter(collection)).
		WithBM25(g.client.GraphQL().Bm25ArgBuilder().WithQuery(query)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("weaviate sparse search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse sparse results: %w", err)
	}
	return parsed.Get.KnowledgeChunk, nil
}

func collectionFilter(collection string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"collection"}).
		WithOperator(filters.Equal).
		WithValueString(collection)
}

// blend merges the dense and sparse legs into scored evidence.
//
// # Description
//
// Passages are keyed by Weaviate object id. A passage found by both legs
// gets denseWeight*certainty + sparseWeight*normalizedScore; a passage found
// by one leg gets that leg's weighted contribution only. When a leg failed
// entirely, the surviving leg's raw component serves at full weight so a
// degraded index does not depress every score. Results sort by blended
// score descending, ties broken by most recent ingested_at.
func (g *WeaviateGateway) blend(dense, sparse []datatypes.KnowledgeResult, denseOK, sparseOK bool) []datatypes.EvidenceItem {
	denseWeight := g.config.DenseWeight
	sparseWeight := g.config.SparseWeight
	if !denseOK {
		denseWeight, sparseWeight = 0, 1
	}
	if !sparseOK {
		denseWeight, sparseWeight = 1, 0
	}

	// BM25 scores are unbounded; normalize by the max in this result set.
	maxBM25 := 0.0
	for _, r := range sparse {
		if s := parseBM25Score(r); s > maxBM25 {
			maxBM25 = s
		}
	}

	type partial struct {
		item        datatypes.EvidenceItem
		denseScore  float64
		sparseScore float64
	}
	byID := make(map[string]*partial)

	for _, r := range dense {
		certainty := 0.0
		if r.Additional.Certainty != nil {
			certainty = float64(*r.Additional.Certainty)
		}
		byID[r.Additional.ID] = &partial{
			item:       toEvidence(r),
			denseScore: certainty,
		}
	}

	for _, r := range sparse {
		normalized := 0.0
		if maxBM25 > 0 {
			normalized = parseBM25Score(r) / maxBM25
		}
		if p, ok := byID[r.Additional.ID]; ok {
			p.sparseScore = normalized
		} else {
			byID[r.Additional.ID] = &partial{
				item:        toEvidence(r),
				sparseScore: normalized,
			}
		}
	}

	items := make([]datatypes.EvidenceItem, 0, len(byID))
	for _, p := range byID {
		p.item.Score = clamp01(denseWeight*p.denseScore + sparseWeight*p.sparseScore)
		items = append(items, p.item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].UpdatedAt > items[j].UpdatedAt
	})
	return items
}

func toEvidence(r datatypes.KnowledgeResult) datatypes.EvidenceItem {
	return datatypes.EvidenceItem{
		Passage:    r.Content,
		Collection: r.Collection,
		PassageID:  r.Additional.ID,
		Source:     r.Source,
		UpdatedAt:  r.IngestedAt,
	}
}

// parseBM25Score extracts the BM25 score, which Weaviate returns as a
// string in _additional.
func parseBM25Score(r datatypes.KnowledgeResult) float64 {
	if r.Additional.Score == nil {
		return 0
	}
	s, err := strconv.ParseFloat(*r.Additional.Score, 64)
	if err != nil {
		slog.Warn("Unparseable BM25 score", "score", *r.Additional.Score)
		return 0
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SearchAll fans a query out over several collections concurrently.
//
// # Description
//
// Used when routing matches more than one collection. Per-collection
// failures degrade to that collection's absence; only when every collection
// fails does SearchAll return ErrUnavailable.
func (g *WeaviateGateway) SearchAll(ctx context.Context, collections []string, query string, k int) ([]datatypes.EvidenceItem, error) {
	ctx, span := tracer.Start(ctx, "SearchAll")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("retrieval.collections", collections))

	results := make([][]datatypes.EvidenceItem, len(collections))
	errs := make([]error, len(collections))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		eg.Go(func() error {
			results[i], errs[i] = g.Search(egCtx, collection, query, k)
			return nil
		})
	}
	_ = eg.Wait()

	var merged []datatypes.EvidenceItem
	failures := 0
	for i, err := range errs {
		if err != nil {
			failures++
			slog.Warn("Collection search failed", "collection", collections[i], "error", err)
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failures == len(collections) && len(collections) > 0 {
		return nil, fmt.Errorf("%w: all %d collections failed", ErrUnavailable, failures)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].UpdatedAt > merged[j].UpdatedAt
	})
	if len(merged) > k && k > 0 {
		merged = merged[:k]
	}
	return merged, nil
}

var _ Searcher = (*WeaviateGateway)(nil)
