// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selaras-ai/concierge/pkg/ux"
	"github.com/selaras-ai/concierge/services/assistant/calibration"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

const testRulesYAML = `facts:
  - topic: pt_pma_formation
    value: "Rp 20.000.000"
    source: pricing-sheet-2025
rules:
  - id: pricing-pt-pma
    topic: pt_pma_formation
    severity: critical
    patterns: ["pt pma"]
    override: "Biaya resmi pendirian PT PMA adalah Rp 20.000.000."
`

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONCIERGE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CONCIERGE_SERVER_URL", "")
	t.Setenv("CONCIERGE_PORT", "")
	t.Setenv("CONCIERGE_RULES_PATH", "")
	t.Setenv("CONCIERGE_AUDIT_PATH", "")

	cfg := LoadConfig()
	assert.Equal(t, "http://localhost:12410", cfg.ServerURL)
	assert.Equal(t, "12410", cfg.Port)
	assert.Equal(t, "configs/rules.yaml", cfg.RulesPath)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nrules_path: from-file.yaml\n"), 0644))

	t.Setenv("CONCIERGE_CONFIG", path)
	t.Setenv("CONCIERGE_PORT", "9100")
	t.Setenv("CONCIERGE_RULES_PATH", "")

	cfg := LoadConfig()
	assert.Equal(t, "9100", cfg.Port, "environment wins over the file")
	assert.Equal(t, "from-file.yaml", cfg.RulesPath)
}

func TestAskRequestBody(t *testing.T) {
	askSession = "sess-1"
	askLanguage = "id"
	askCollection = "pricing"
	askNoStream = false
	askTrustedTools = true
	askMaxSteps = 4
	t.Cleanup(func() {
		askSession, askLanguage, askCollection = "", "", ""
		askMaxSteps = 0
	})

	body, err := askRequestBody("berapa biaya pt pma?")
	require.NoError(t, err)

	var req datatypes.AnswerRequest
	require.NoError(t, json.Unmarshal(body, &req))
	assert.Equal(t, "berapa biaya pt pma?", req.Query)
	assert.Equal(t, "sess-1", req.SessionID)
	assert.Equal(t, "pricing", req.Options.Collection)
	assert.Equal(t, 4, req.Options.MaxSteps)
	assert.True(t, req.Options.Stream)
	assert.True(t, req.Options.TrustedToolsEnabled)
}

func TestAskPlain_DecodesAnswer(t *testing.T) {
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonality(ux.DefaultPersonality()) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/answer", r.URL.Path)
		answer := datatypes.NewAnswer("req-1", "Biaya resmi pendirian PT PMA adalah Rp 20.000.000.")
		answer.Confidence = 0.82
		answer.Citations = []datatypes.Citation{{Source: "pricing-sheet-2025", PassageID: "p1"}}
		require.NoError(t, json.NewEncoder(w).Encode(answer))
	}))
	defer server.Close()

	config.ServerURL = server.URL
	require.NoError(t, askPlain(server.Client(), []byte(`{}`)))
}

func TestAskPlain_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "failed to produce an answer"}`))
	}))
	defer server.Close()

	config.ServerURL = server.URL
	err := askPlain(server.Client(), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to produce an answer")
}

func TestRulesValidate(t *testing.T) {
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonality(ux.DefaultPersonality()) })

	good := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(good, []byte(testRulesYAML), 0644))
	assert.NoError(t, runRulesValidate(good))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [{id: broken"), 0644))
	assert.Error(t, runRulesValidate(bad))
}

func TestRulesRefresh(t *testing.T) {
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	t.Cleanup(func() { ux.SetPersonality(ux.DefaultPersonality()) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/admin/rules/refresh", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"rules": 3, "facts": 5}`))
	}))
	defer server.Close()

	config.ServerURL = server.URL
	assert.NoError(t, runRulesRefresh())
}

func TestLoaderPriceTable_SeesRefreshedRules(t *testing.T) {
	spec, err := calibration.ParseSpec([]byte(testRulesYAML))
	require.NoError(t, err)
	loader, err := calibration.NewLoaderFromSpec(spec)
	require.NoError(t, err)

	table := loaderPriceTable{loader: loader}
	value, source, ok := table.LookupPrice("pt_pma_formation")
	require.True(t, ok)
	assert.Equal(t, "Rp 20.000.000", value)
	assert.Equal(t, "pricing-sheet-2025", source)

	_, _, ok = table.LookupPrice("unknown_topic")
	assert.False(t, ok)
}
