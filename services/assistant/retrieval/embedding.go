// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type embeddingRequest struct {
	Text string `json:"text"`
}

type embeddingResponse struct {
	ID        string    `json:"id"`
	Timestamp int       `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Dim       int       `json:"dim"`
}

// HTTPEmbedder calls an external embedding service over HTTP.
//
// # Description
//
// POSTs {"text": ...} to the configured endpoint and expects a JSON body
// with a "vector" field. This is the boundary to the embedding provider;
// the model behind it is not this service's concern.
//
// # Thread Safety
//
// HTTPEmbedder is safe for concurrent use.
type HTTPEmbedder struct {
	httpClient *http.Client
	serviceURL string
}

// NewHTTPEmbedder reads EMBEDDING_SERVICE_URL and builds the embedder.
func NewHTTPEmbedder() (*HTTPEmbedder, error) {
	serviceURL := os.Getenv("EMBEDDING_SERVICE_URL")
	if serviceURL == "" {
		return nil, fmt.Errorf("EMBEDDING_SERVICE_URL environment variable not set")
	}
	slog.Info("Initializing embedding client", "url", serviceURL)
	return &HTTPEmbedder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serviceURL: serviceURL,
	}, nil
}

// Embed computes a vector embedding for the given text.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - text: The text to embed.
//
// # Outputs
//
//   - []float32: The embedding vector.
//   - error: Non-nil if the service is unreachable or returns non-200.
//     Unreachable-service errors wrap ErrUnavailable.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serviceURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding service unreachable: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: embedding service returned %d: %s",
			ErrUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(bodyBytes, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(embResp.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return embResp.Vector, nil
}
