// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("KnowledgeChunk").Do(ctx)
//	if err != nil { ... }
//
//	parsed, err := ParseGraphQLResponse[KnowledgeQueryResponse](resp)
//	if err != nil { ... }
//
//	for _, chunk := range parsed.Get.KnowledgeChunk {
//	    fmt.Println(chunk.Content)
//	}
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Knowledge Query Responses
// =============================================================================

// KnowledgeQueryResponse represents the response from querying KnowledgeChunk.
type KnowledgeQueryResponse struct {
	Get struct {
		KnowledgeChunk []KnowledgeResult `json:"KnowledgeChunk"`
	} `json:"Get"`
}

// KnowledgeResult represents a single knowledge chunk from a query.
//
// # Fields
//
//   - Additional.Certainty: Populated by NearVector queries, always in [0, 1].
//   - Additional.Score: Populated by BM25 queries. Weaviate returns this as
//     a string; callers parse it with strconv.ParseFloat.
type KnowledgeResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Collection string `json:"collection"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
		Score     *string  `json:"score"`
	} `json:"_additional"`
}

// ConversationQueryResponse represents the response from querying Conversation.
type ConversationQueryResponse struct {
	Get struct {
		Conversation []ConversationResult `json:"Conversation"`
	} `json:"Get"`
}

// ConversationResult represents a single conversation turn from a query.
type ConversationResult struct {
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Timestamp  int64  `json:"timestamp"`
	TurnNumber *int   `json:"turn_number"`
}

// UserFactQueryResponse represents the response from querying UserFact.
type UserFactQueryResponse struct {
	Get struct {
		UserFact []UserFactResult `json:"UserFact"`
	} `json:"Get"`
}

// UserFactResult represents a single stored user fact from a query.
type UserFactResult struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// =============================================================================
// Property Structs
// =============================================================================

// KnowledgeProperties represents the properties for creating a KnowledgeChunk.
type KnowledgeProperties struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Collection string `json:"collection"`
	IngestedAt int64  `json:"ingested_at"`
}

// ToMap converts KnowledgeProperties to the map format required by the
// Weaviate client's WithProperties() method.
func (p *KnowledgeProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":     p.Content,
		"source":      p.Source,
		"collection":  p.Collection,
		"ingested_at": p.IngestedAt,
	}
}

// ConversationProperties represents the properties for creating a
// Conversation turn.
type ConversationProperties struct {
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Timestamp  int64  `json:"timestamp"`
	TurnNumber int    `json:"turn_number"`
}

// ToMap converts ConversationProperties to the Weaviate property map format.
func (p *ConversationProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"session_id":  p.SessionID,
		"question":    p.Question,
		"answer":      p.Answer,
		"timestamp":   p.Timestamp,
		"turn_number": p.TurnNumber,
	}
}

// UserFactProperties represents the properties for creating a UserFact.
type UserFactProperties struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// ToMap converts UserFactProperties to the Weaviate property map format.
func (p *UserFactProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"session_id": p.SessionID,
		"key":        p.Key,
		"value":      p.Value,
		"timestamp":  p.Timestamp,
	}
}
