// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

var tracer = otel.Tracer("concierge.assistant.memory")

// DefaultHistoryLimit is the turn count served when the caller asks for
// zero or a negative limit.
const DefaultHistoryLimit = 10

// WeaviateProvider stores turns and facts in the Conversation and
// UserFact classes.
type WeaviateProvider struct {
	client *weaviate.Client
}

// NewWeaviateProvider wraps a connected Weaviate client.
func NewWeaviateProvider(client *weaviate.Client) *WeaviateProvider {
	return &WeaviateProvider{client: client}
}

// GetHistory returns the session's most recent turns, oldest first.
func (p *WeaviateProvider) GetHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	ctx, span := tracer.Start(ctx, "memory.GetHistory")
	defer span.End()

	if sessionID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	fields := []graphql.Field{
		{Name: "session_id"},
		{Name: "question"},
		{Name: "answer"},
		{Name: "timestamp"},
		{Name: "turn_number"},
	}

	resp, err := p.client.GraphQL().Get().
		WithClassName("Conversation").
		WithWhere(where).
		WithFields(fields...).
		WithSort(graphql.Sort{Path: []string{"timestamp"}, Order: graphql.Desc}).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying conversation history: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ConversationQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parsing conversation history: %w", err)
	}

	turns := make([]Turn, 0, len(parsed.Get.Conversation))
	for _, result := range parsed.Get.Conversation {
		turn := Turn{
			SessionID: result.SessionID,
			Question:  result.Question,
			Answer:    result.Answer,
			Timestamp: result.Timestamp,
		}
		if result.TurnNumber != nil {
			turn.TurnNumber = *result.TurnNumber
		}
		turns = append(turns, turn)
	}

	// The query sorts newest first; callers want chronological order.
	sort.Slice(turns, func(i, j int) bool { return turns[i].Timestamp < turns[j].Timestamp })
	return turns, nil
}

// GetFacts returns the newest value per fact key for a session.
func (p *WeaviateProvider) GetFacts(ctx context.Context, sessionID string) ([]datatypes.UserFact, error) {
	ctx, span := tracer.Start(ctx, "memory.GetFacts")
	defer span.End()

	if sessionID == "" {
		return nil, nil
	}

	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	fields := []graphql.Field{
		{Name: "session_id"},
		{Name: "key"},
		{Name: "value"},
		{Name: "timestamp"},
	}

	resp, err := p.client.GraphQL().Get().
		WithClassName("UserFact").
		WithWhere(where).
		WithFields(fields...).
		WithSort(graphql.Sort{Path: []string{"timestamp"}, Order: graphql.Desc}).
		WithLimit(datatypes.MaxUserFacts * 4).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying user facts: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.UserFactQueryResponse](resp)
	if err != nil {
		return nil, fmt.Errorf("parsing user facts: %w", err)
	}

	return latestFacts(parsed.Get.UserFact), nil
}

// SaveTurn persists one completed exchange. Empty answers are skipped the
// same way empty conversations are never persisted.
func (p *WeaviateProvider) SaveTurn(ctx context.Context, turn Turn) error {
	ctx, span := tracer.Start(ctx, "memory.SaveTurn")
	defer span.End()

	if strings.TrimSpace(turn.Answer) == "" || turn.SessionID == "" {
		return nil
	}
	if turn.Timestamp == 0 {
		turn.Timestamp = time.Now().UnixMilli()
	}

	props := datatypes.ConversationProperties{
		SessionID:  turn.SessionID,
		Question:   turn.Question,
		Answer:     turn.Answer,
		Timestamp:  turn.Timestamp,
		TurnNumber: turn.TurnNumber,
	}

	_, err := p.client.Data().Creator().
		WithClassName("Conversation").
		WithProperties(props.ToMap()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("saving conversation turn: %w", err)
	}

	slog.Info("Saved conversation turn", "session_id", turn.SessionID, "turn", turn.TurnNumber)
	return nil
}

// SaveFact persists one user fact. Keys are not unique in storage; reads
// resolve to the newest value per key.
func (p *WeaviateProvider) SaveFact(ctx context.Context, sessionID string, fact datatypes.UserFact) error {
	ctx, span := tracer.Start(ctx, "memory.SaveFact")
	defer span.End()

	if sessionID == "" || fact.Key == "" {
		return nil
	}

	props := datatypes.UserFactProperties{
		SessionID: sessionID,
		Key:       fact.Key,
		Value:     fact.Value,
		Timestamp: time.Now().UnixMilli(),
	}

	_, err := p.client.Data().Creator().
		WithClassName("UserFact").
		WithProperties(props.ToMap()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("saving user fact: %w", err)
	}
	return nil
}

// latestFacts keeps the newest value per key, capped at MaxUserFacts,
// ordered newest first.
func latestFacts(results []datatypes.UserFactResult) []datatypes.UserFact {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Timestamp > results[j].Timestamp })

	seen := make(map[string]bool, len(results))
	var facts []datatypes.UserFact
	for _, result := range results {
		if result.Key == "" || seen[result.Key] {
			continue
		}
		seen[result.Key] = true
		facts = append(facts, datatypes.UserFact{Key: result.Key, Value: result.Value})
		if len(facts) >= datatypes.MaxUserFacts {
			break
		}
	}
	return facts
}

var _ Provider = (*WeaviateProvider)(nil)
