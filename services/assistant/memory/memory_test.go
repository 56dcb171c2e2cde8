// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

func TestRender(t *testing.T) {
	t.Parallel()

	turns := []Turn{
		{Question: "Berapa biaya PT PMA?", Answer: "Rp 20.000.000.", Timestamp: 1},
		{Question: "Berapa lama prosesnya?", Answer: "Sekitar dua minggu.", Timestamp: 2},
	}
	facts := []datatypes.UserFact{
		{Key: "nationality", Value: "Australian"},
		{Key: "company_type", Value: "PT PMA"},
	}

	got := Render(turns, facts)
	assert.Contains(t, got, "- nationality: Australian")
	assert.Contains(t, got, "Q: Berapa biaya PT PMA?")
	assert.Contains(t, got, "A: Rp 20.000.000.")
	assert.Less(t, strings.Index(got, "Facts:"), strings.Index(got, "Previous turns:"))
}

func TestRender_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Render(nil, nil))
}

func TestRender_TruncatesLongAnswers(t *testing.T) {
	t.Parallel()

	turns := []Turn{{Question: "q", Answer: strings.Repeat("a", 1000), Timestamp: 1}}
	got := Render(turns, nil)
	assert.Contains(t, got, "...")
	assert.Less(t, len(got), 600)
}

func TestLatestFacts(t *testing.T) {
	t.Parallel()

	results := []datatypes.UserFactResult{
		{Key: "nationality", Value: "stale", Timestamp: 10},
		{Key: "nationality", Value: "Australian", Timestamp: 20},
		{Key: "visa_type", Value: "investor kitas", Timestamp: 15},
		{Key: "", Value: "ignored", Timestamp: 99},
	}

	facts := latestFacts(results)
	require.Len(t, facts, 2)
	assert.Equal(t, datatypes.UserFact{Key: "nationality", Value: "Australian"}, facts[0])
	assert.Equal(t, datatypes.UserFact{Key: "visa_type", Value: "investor kitas"}, facts[1])
}

func TestLatestFacts_CapsAtMaxUserFacts(t *testing.T) {
	t.Parallel()

	results := make([]datatypes.UserFactResult, 0, datatypes.MaxUserFacts*2)
	for i := 0; i < datatypes.MaxUserFacts*2; i++ {
		results = append(results, datatypes.UserFactResult{
			Key:       strings.Repeat("k", i+1),
			Value:     "v",
			Timestamp: int64(i),
		})
	}

	assert.Len(t, latestFacts(results), datatypes.MaxUserFacts)
}

func TestNopProvider(t *testing.T) {
	t.Parallel()

	var provider Provider = NopProvider{}
	turns, err := provider.GetHistory(context.Background(), "s", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.NoError(t, provider.SaveTurn(context.Background(), Turn{}))
}
