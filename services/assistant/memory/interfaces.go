// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory persists conversation turns and user facts and serves
// them back as explicit inputs to the answer pipeline. The reasoning loop
// never looks context up on its own; the engine fetches it here first.
package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// Turn is one completed question/answer exchange.
type Turn struct {
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Timestamp  int64  `json:"timestamp"`
	TurnNumber int    `json:"turn_number"`
}

// Provider reads and writes conversational context.
type Provider interface {
	// GetHistory returns up to limit most recent turns for a session, in
	// chronological order.
	GetHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// GetFacts returns the stored user facts for a session, newest value
	// per key, at most MaxUserFacts entries.
	GetFacts(ctx context.Context, sessionID string) ([]datatypes.UserFact, error)

	// SaveTurn persists a completed exchange. Empty answers are skipped.
	SaveTurn(ctx context.Context, turn Turn) error

	// SaveFact persists one user fact.
	SaveFact(ctx context.Context, sessionID string, fact datatypes.UserFact) error
}

// NopProvider satisfies Provider without persistence, for stateless
// deployments and tests.
type NopProvider struct{}

func (NopProvider) GetHistory(context.Context, string, int) ([]Turn, error) { return nil, nil }
func (NopProvider) GetFacts(context.Context, string) ([]datatypes.UserFact, error) {
	return nil, nil
}
func (NopProvider) SaveTurn(context.Context, Turn) error                       { return nil }
func (NopProvider) SaveFact(context.Context, string, datatypes.UserFact) error { return nil }

// maxRenderedAnswerChars keeps one verbose past answer from crowding the
// prompt context.
const maxRenderedAnswerChars = 400

// Render formats history and facts into the memory context block the
// reasoning loop receives. Deterministic; empty inputs render empty.
func Render(turns []Turn, facts []datatypes.UserFact) string {
	if len(turns) == 0 && len(facts) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(facts) > 0 {
		sb.WriteString("Facts:\n")
		for _, fact := range facts {
			fmt.Fprintf(&sb, "- %s: %s\n", fact.Key, fact.Value)
		}
	}
	if len(turns) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Previous turns:\n")
		for _, turn := range turns {
			answer := turn.Answer
			if len(answer) > maxRenderedAnswerChars {
				answer = answer[:maxRenderedAnswerChars] + "..."
			}
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", turn.Question, answer)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Provider = NopProvider{}
