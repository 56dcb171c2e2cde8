// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// Knowledge collections routed by the retrieval gateway. Stored as a
// filterable property on KnowledgeChunk rather than as separate classes so
// one schema serves all of them.
const (
	CollectionPricing     = "pricing"
	CollectionLegal       = "legal"
	CollectionImmigration = "immigration"
	CollectionTax         = "tax"
	CollectionDirectory   = "directory"
	CollectionGeneral     = "general"
)

// KnownCollections lists every valid collection name.
func KnownCollections() []string {
	return []string{
		CollectionPricing,
		CollectionLegal,
		CollectionImmigration,
		CollectionTax,
		CollectionDirectory,
		CollectionGeneral,
	}
}

// IsKnownCollection reports whether name is a valid collection.
func IsKnownCollection(name string) bool {
	for _, c := range KnownCollections() {
		if c == name {
			return true
		}
	}
	return false
}

func GetKnowledgeChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "KnowledgeChunk",
		Description: "A chunk of knowledge-base content with its source and collection.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The text content of the chunk.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The originating document name or path.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "collection",
				DataType:        []string{"text"},
				Description:     "Logical collection (pricing, legal, immigration, tax, directory, general).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetConversationSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Conversation",
		Description: "A record of a user question and the assistant's answer.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the conversation session.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "question",
				DataType:     []string{"text"},
				Description:  "The user's query.",
				Tokenization: "word",
			},
			{
				Name:         "answer",
				DataType:     []string{"text"},
				Description:  "The assistant's response.",
				Tokenization: "word",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "The timestamp of the conversation turn.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "turn_number",
				DataType:        []string{"int"},
				Description:     "The sequential turn number within the session (1-indexed).",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// GetUserFactSchema returns the schema for the UserFact class.
//
// # Description
//
// UserFact stores durable key/value facts about a session's user (company
// name, visa type, preferred language). The memory provider reads these and
// passes them into the reasoning loop as explicit inputs.
func GetUserFactSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "UserFact",
		Description: "A durable key/value fact about a session's user.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "The session this fact belongs to.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "key",
				DataType:        []string{"text"},
				Description:     "Fact key (e.g., 'company_type').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "value",
				DataType:     []string{"text"},
				Description:  "Fact value.",
				Tokenization: "word",
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the fact was recorded.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetKnowledgeChunkSchema,
		GetConversationSchema,
		GetUserFactSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// The client errors when the class does not exist yet.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
