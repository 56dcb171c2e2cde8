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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/selaras-ai/concierge/services/assistant"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/observability"
)

// heartbeatInterval keeps the SSE connection alive through load balancer
// idle timeouts (60s for ALB/Nginx defaults).
const heartbeatInterval = 15 * time.Second

// maxStreamSources bounds the sources event so a broad multi-collection
// search does not flood the client.
const maxStreamSources = 8

// HandleAnswerStream processes POST /v1/answer/stream requests.
//
// # Description
//
// Runs the same pipeline as HandleAnswer but delivers the answer over SSE.
// Event order is: status events while the pipeline runs, token events
// carrying the answer text, one sources event once the citations are
// known, and a final done event with the request id and verdict. The
// concatenated token contents equal the non-streaming answer text byte
// for byte.
//
// Answer chunks are mirrored into a mlocked accumulator as they stream;
// the finalized hash is logged alongside the trace id so an auditor can
// tie the SSE hash chain back to the stored trace.
//
// # Limitations
//
//   - Requires http.Flusher support on the ResponseWriter.
func HandleAnswerStream(engine *assistant.Engine, metrics *observability.AnswerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.AnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			countRequest(metrics, "answer_stream", "error")
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			countRequest(metrics, "answer_stream", "error")
			return
		}

		accumulator, err := NewChunkAccumulator()
		if err != nil {
			slog.Error("Failed to create chunk accumulator", "error", err)
			_ = writer.WriteError("streaming unavailable")
			countRequest(metrics, "answer_stream", "error")
			return
		}
		defer accumulator.Destroy()

		if metrics != nil {
			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()
		}
		started := time.Now()

		// Heartbeats run until the pipeline finishes.
		heartbeatDone := make(chan struct{})
		go func() {
			ticker := time.NewTicker(heartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := writer.WriteKeepAlive(); err != nil {
						return
					}
				case <-heartbeatDone:
					return
				}
			}
		}()

		_ = writer.WriteStatus("Memeriksa basis pengetahuan...")

		firstToken := true
		answer, err := engine.AnswerStream(c.Request.Context(), &req, func(chunk string) error {
			if firstToken {
				firstToken = false
				if metrics != nil {
					metrics.TimeToFirstTokenSeconds.Observe(time.Since(started).Seconds())
				}
			}
			if err := accumulator.Write(chunk); err != nil {
				slog.Warn("Chunk accumulation failed", "error", err)
			}
			return writer.WriteToken(chunk)
		})
		close(heartbeatDone)

		if err != nil {
			slog.Error("Streaming answer failed", "request_id", req.RequestID, "error", err)
			_ = writer.WriteError("failed to produce an answer")
			observeStream(metrics, started, "error")
			countRequest(metrics, "answer_stream", "error")
			return
		}

		_ = writer.WriteSources(streamSources(answer.Citations))

		text, hashStr, finErr := accumulator.Finalize()
		if finErr != nil {
			slog.Warn("Could not finalize streamed answer", "request_id", answer.RequestID, "error", finErr)
		} else {
			slog.Info("Streamed answer complete",
				"request_id", answer.RequestID,
				"trace_id", answer.TraceID,
				"answer_length", len(text),
				"answer_hash", hashStr,
				"abstained", answer.Abstained,
			)
		}

		_ = writer.WriteDone(answer.RequestID, answer.Abstained, answer.Confidence)
		observeStream(metrics, started, "success")
		countRequest(metrics, "answer_stream", "success")
	}
}

// streamSources converts citations into the client-facing sources event
// payload, capped at maxStreamSources.
func streamSources(citations []datatypes.Citation) []datatypes.SourceInfo {
	sources := make([]datatypes.SourceInfo, 0, len(citations))
	for _, citation := range citations {
		if len(sources) >= maxStreamSources {
			break
		}
		sources = append(sources, datatypes.SourceInfo{Source: citation.Source})
	}
	return sources
}

func observeStream(metrics *observability.AnswerMetrics, started time.Time, status string) {
	if metrics == nil {
		return
	}
	metrics.StreamDurationSeconds.WithLabelValues(status).Observe(time.Since(started).Seconds())
}
