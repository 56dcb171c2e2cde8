// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/selaras-ai/concierge/services/assistant"
	"github.com/selaras-ai/concierge/services/assistant/audit"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/observability"
)

// HandleAnswer processes POST /v1/answer requests.
//
// # Description
//
// Binds the request, runs the full answer pipeline, and returns the
// synthesized answer as JSON. Validation failures return 400; pipeline
// errors return 500 with a sanitized message. A provider outage is not an
// HTTP error: the engine returns an explicit unavailable answer with zero
// confidence and the handler serves it with 200.
//
// # Inputs
//
//   - engine: The answer engine. Must be non-nil.
//   - metrics: Request metrics. May be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Handler for the answer route.
func HandleAnswer(engine *assistant.Engine, metrics *observability.AnswerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			countRequest(metrics, "answer", "error")
			return
		}

		answer, err := engine.Answer(c.Request.Context(), &req)
		if err != nil {
			slog.Error("Answer request failed", "request_id", req.RequestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to produce an answer"})
			countRequest(metrics, "answer", "error")
			return
		}

		c.JSON(http.StatusOK, answer)
		countRequest(metrics, "answer", "success")
	}
}

// HandleGetTrace processes GET /v1/answer/:requestId/trace requests.
//
// # Description
//
// Looks up the audited reasoning trace for a past request. Returns 404
// when no trace exists or its retention expired.
func HandleGetTrace(sink audit.Sink) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("requestId")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requestId is required"})
			return
		}

		trace, err := sink.Get(c.Request.Context(), requestID)
		if err != nil {
			if errors.Is(err, audit.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no trace for request"})
				return
			}
			slog.Error("Trace lookup failed", "request_id", requestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trace lookup failed"})
			return
		}

		c.JSON(http.StatusOK, trace)
	}
}

func countRequest(metrics *observability.AnswerMetrics, endpoint, status string) {
	if metrics == nil {
		return
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}
