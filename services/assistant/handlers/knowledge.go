// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
)

const (
	// chunkSize is the target chunk length in characters for ingestion.
	chunkSize = 1000

	// chunkOverlap carries context across chunk boundaries.
	chunkOverlap = 150
)

// markdownSeparators split on structure before falling back to sentences.
var markdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", ". ", " "}

// IngestRequest is the payload for POST /v1/knowledge/documents.
type IngestRequest struct {
	Source     string `json:"source" binding:"required"`
	Collection string `json:"collection" binding:"required"`
	Content    string `json:"content" binding:"required"`
}

// CreateDocument ingests a document into the knowledge index.
//
// # Description
//
// Splits the content into overlapping chunks, embeds each chunk, and batch
// imports them into the KnowledgeChunk class tagged with the target
// collection. Chunk ids are deterministic (UUID v5 over source and content
// hash) so re-ingesting a document overwrites its previous chunks instead
// of duplicating them.
//
// # Inputs
//
//   - client: Weaviate client.
//   - embedder: Vector provider used at query time; ingestion must use the
//     same model or dense scores are meaningless.
func CreateDocument(client *weaviate.Client, embedder retrieval.EmbeddingProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if !datatypes.IsKnownCollection(req.Collection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown collection %q", req.Collection)})
			return
		}

		chunksCreated, err := runIngestion(c.Request.Context(), client, embedder, req)
		if err != nil {
			slog.Error("Document ingestion failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
			return
		}

		slog.Info("Ingested document", "source", req.Source,
			"collection", req.Collection, "chunks_processed", chunksCreated)
		c.JSON(http.StatusOK, gin.H{
			"source":           req.Source,
			"collection":       req.Collection,
			"chunks_processed": chunksCreated,
		})
	}
}

func runIngestion(ctx context.Context, client *weaviate.Client, embedder retrieval.EmbeddingProvider, req IngestRequest) (int, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(markdownSeparators),
	)

	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		return 0, fmt.Errorf("splitting document: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}

	now := time.Now().UnixMilli()
	objects := make([]*models.Object, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk %d: %w", i+1, err)
		}

		// Deterministic id: re-ingesting the same source+content upserts.
		hash := sha256.Sum256([]byte(chunk))
		id := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(req.Source), hash[:]...))

		objects = append(objects, &models.Object{
			Class:  "KnowledgeChunk",
			ID:     strfmt.UUID(id.String()),
			Vector: vector,
			Properties: map[string]interface{}{
				"content":     chunk,
				"source":      fmt.Sprintf("%s_part_%d", req.Source, i+1),
				"collection":  req.Collection,
				"ingested_at": now,
			},
		})
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("batch import: %w", err)
	}

	chunksCreated := 0
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors == nil {
			chunksCreated++
		}
	}
	if chunksCreated < len(objects) {
		slog.Warn("Some chunks failed to import",
			"source", req.Source, "created", chunksCreated, "attempted", len(objects))
	}
	return chunksCreated, nil
}

// ListDocuments returns the distinct sources in a collection.
//
// # Description
//
// Handles GET /v1/knowledge/documents?collection=pricing. Uses a grouped
// aggregate over the source property.
func ListDocuments(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		collection := c.Query("collection")
		if collection != "" && !datatypes.IsKnownCollection(collection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown collection %q", collection)})
			return
		}

		builder := client.GraphQL().Aggregate().
			WithClassName("KnowledgeChunk").
			WithGroupBy("source").
			WithFields(
				graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
				graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
			)
		if collection != "" {
			builder = builder.WithWhere(filters.Where().
				WithPath([]string{"collection"}).
				WithOperator(filters.Equal).
				WithValueString(collection))
		}

		result, err := builder.Do(c.Request.Context())
		if err != nil {
			slog.Error("Document listing failed", "collection", collection, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
			return
		}

		c.JSON(http.StatusOK, result.Data)
	}
}

// DeleteBySource removes every chunk ingested from one source.
//
// # Description
//
// Handles DELETE /v1/knowledge/document?source=name. Source matching uses
// a wildcard so all _part_N chunks of the document are covered.
func DeleteBySource(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.Query("source")
		if source == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source query parameter is required"})
			return
		}

		resp, err := client.Batch().ObjectsBatchDeleter().
			WithClassName("KnowledgeChunk").
			WithWhere(filters.Where().
				WithPath([]string{"source"}).
				WithOperator(filters.Like).
				WithValueText(source + "*")).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Document deletion failed", "source", source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "deletion failed"})
			return
		}

		deleted := int64(0)
		if resp != nil && resp.Results != nil {
			deleted = resp.Results.Successful
		}
		slog.Info("Deleted document chunks", "source", source, "deleted", deleted)
		c.JSON(http.StatusOK, gin.H{"source": source, "deleted": deleted})
	}
}
