// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selaras-ai/concierge/services/assistant/calibration"
)

const adminTestRules = `facts:
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

func newAdminRouter(t *testing.T) (*gin.Engine, *calibration.Loader, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(adminTestRules), 0644))

	loader, err := calibration.NewLoader(path)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/v1/admin/rules", HandleRulesStatus(loader))
	router.POST("/v1/admin/rules/refresh", HandleRulesRefresh(loader))
	return router, loader, path
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	router, _, _ := newAdminRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestRulesStatus(t *testing.T) {
	t.Parallel()
	router, _, _ := newAdminRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/admin/rules", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 1, body["rules"])
	assert.Equal(t, 1, body["facts"])
}

func TestRulesRefresh_AcceptsValidFile(t *testing.T) {
	t.Parallel()
	router, _, path := newAdminRouter(t)

	updated := strings.Replace(adminTestRules, "pricing-pt-pma", "pricing-pt-pma-v2", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/admin/rules/refresh", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestRulesRefresh_RejectsBadFileKeepsServing(t *testing.T) {
	t.Parallel()
	router, loader, path := newAdminRouter(t)

	require.NoError(t, os.WriteFile(path, []byte("rules: [{id: broken"), 0644))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/admin/rules/refresh", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Equal(t, 1, loader.Table().RuleCount(), "previous table still serves")
}
