// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"testing"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		hint     string
		expected []string
	}{
		{
			name:     "english pricing query",
			query:    "How much does company formation cost?",
			expected: []string{datatypes.CollectionPricing},
		},
		{
			name:     "indonesian pricing query",
			query:    "Berapa biaya pendirian perusahaan?",
			expected: []string{datatypes.CollectionPricing},
		},
		{
			name:     "visa query routes to immigration",
			query:    "What documents do I need for a KITAS?",
			expected: []string{datatypes.CollectionImmigration},
		},
		{
			name:     "tax query in indonesian",
			query:    "Kapan harus lapor pajak tahunan?",
			expected: []string{datatypes.CollectionTax},
		},
		{
			name:     "directory query",
			query:    "Siapa kontak untuk layanan hukum?",
			expected: []string{datatypes.CollectionLegal, datatypes.CollectionDirectory},
		},
		{
			name:     "unmatched query falls back to general",
			query:    "Tell me about the weather in Jakarta",
			expected: []string{datatypes.CollectionGeneral},
		},
		{
			name:     "explicit hint wins",
			query:    "How much does it cost?",
			hint:     datatypes.CollectionLegal,
			expected: []string{datatypes.CollectionLegal},
		},
		{
			name:     "unknown hint is ignored",
			query:    "How much does it cost?",
			hint:     "nonexistent",
			expected: []string{datatypes.CollectionPricing},
		},
		{
			name:     "mixed query matches multiple collections",
			query:    "What is the price of a work permit visa?",
			expected: []string{datatypes.CollectionPricing, datatypes.CollectionImmigration},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Route(tt.query, tt.hint)
			assert.ElementsMatch(t, tt.expected, got)
		})
	}
}

func TestDomainPolicy_RequiresVerification(t *testing.T) {
	t.Parallel()

	policy := DefaultDomainPolicy()

	regulated := []string{
		datatypes.CollectionPricing,
		datatypes.CollectionLegal,
		datatypes.CollectionImmigration,
		datatypes.CollectionTax,
	}
	for _, c := range regulated {
		assert.True(t, policy.RequiresVerification(c), "collection %s should require verification", c)
	}

	assert.False(t, policy.RequiresVerification(datatypes.CollectionGeneral))
	assert.False(t, policy.RequiresVerification(datatypes.CollectionDirectory))
}

func TestDomainPolicy_RequiresVerificationAny(t *testing.T) {
	t.Parallel()

	policy := DefaultDomainPolicy()

	assert.True(t, policy.RequiresVerificationAny([]string{
		datatypes.CollectionGeneral,
		datatypes.CollectionPricing,
	}), "mixed general+pricing is regulated")

	assert.False(t, policy.RequiresVerificationAny([]string{
		datatypes.CollectionGeneral,
		datatypes.CollectionDirectory,
	}))
}
