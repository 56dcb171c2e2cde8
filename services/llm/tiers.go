// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"log/slog"
	"os"
)

// =============================================================================
// Model Tiers
// =============================================================================

// Tier selects which backend quality class a call should use.
type Tier string

const (
	// TierFast is for cheap, latency-sensitive calls such as action
	// selection inside the reasoning loop.
	TierFast Tier = "fast"

	// TierCapable is for the final conclusion draft where quality matters
	// more than latency.
	TierCapable Tier = "capable"
)

// ModelTiers routes calls to a fast or a capable backend.
//
// # Description
//
// The reasoning loop makes many small routing decisions and one concluding
// draft per request. ModelTiers lets the caller supply different backends
// for the two call classes without the loop hardcoding model names. When
// only one backend is configured it serves both tiers.
//
// # Thread Safety
//
// ModelTiers is immutable after construction and safe for concurrent use.
type ModelTiers struct {
	fast    LLMClient
	capable LLMClient
}

// NewModelTiers builds a tier router. Either argument may be nil as long as
// the other is not; the non-nil client then serves both tiers.
func NewModelTiers(fast, capable LLMClient) *ModelTiers {
	if fast == nil && capable == nil {
		return nil
	}
	if fast == nil {
		slog.Warn("No fast-tier LLM configured, capable tier serves both")
		fast = capable
	}
	if capable == nil {
		slog.Warn("No capable-tier LLM configured, fast tier serves both")
		capable = fast
	}
	return &ModelTiers{fast: fast, capable: capable}
}

// For returns the client for the given tier.
func (m *ModelTiers) For(tier Tier) LLMClient {
	if tier == TierCapable {
		return m.capable
	}
	return m.fast
}

// NewModelTiersFromEnv wires tiers from environment configuration.
//
// # Description
//
// Selects backends by LLM_PROVIDER ("ollama" or "openai", default ollama).
// A distinct fast-tier Ollama model may be named with OLLAMA_FAST_MODEL;
// otherwise one client serves both tiers.
//
// # Outputs
//
//   - *ModelTiers: Configured router.
//   - error: Non-nil when no backend could be constructed.
func NewModelTiersFromEnv() (*ModelTiers, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "ollama"
		slog.Warn("LLM_PROVIDER not set, defaulting to ollama")
	}

	switch provider {
	case "openai":
		client, err := NewOpenAIClient()
		if err != nil {
			return nil, err
		}
		return NewModelTiers(client, client), nil
	default:
		capable, err := NewOllamaClient()
		if err != nil {
			return nil, err
		}
		fast := LLMClient(capable)
		if fastModel := os.Getenv("OLLAMA_FAST_MODEL"); fastModel != "" {
			fastClient := *capable
			fastClient.model = fastModel
			fast = &fastClient
		}
		return NewModelTiers(fast, capable), nil
	}
}
