// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/selaras-ai/concierge/services/assistant/calibration"
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleRulesRefresh processes POST /v1/admin/rules/refresh.
//
// # Description
//
// Forces a reload of the calibration rule file. A bad file is rejected
// with 422 and the previous table keeps serving; the running service is
// never left without rules.
func HandleRulesRefresh(loader *calibration.Loader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := loader.Refresh(); err != nil {
			slog.Warn("Rule refresh rejected", "error", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		table := loader.Table()
		c.JSON(http.StatusOK, gin.H{
			"rules": table.RuleCount(),
			"facts": table.FactCount(),
		})
	}
}

// HandleRulesStatus processes GET /v1/admin/rules.
func HandleRulesStatus(loader *calibration.Loader) gin.HandlerFunc {
	return func(c *gin.Context) {
		table := loader.Table()
		if table == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no rule table loaded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"rules": table.RuleCount(),
			"facts": table.FactCount(),
		})
	}
}
