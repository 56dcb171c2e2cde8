// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Metrics cover the full answer pipeline:
//   - Request counters (by endpoint, status)
//   - Outcome counters (abstentions, corrections, trusted overrides)
//   - Confidence score distribution
//   - Tool execution latency by tool and result
//   - Streaming latency (time to first token, stream duration)
//
// Exposed via the /metrics endpoint for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "concierge"

const answerSubsystem = "answer"

// AnswerMetrics holds all Prometheus metrics for the answer pipeline.
// Initialize once at startup via InitMetrics().
type AnswerMetrics struct {
	// RequestsTotal counts answer requests by endpoint and status.
	// Labels: endpoint (answer, answer_stream), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// AbstentionsTotal counts abstained answers by collection.
	AbstentionsTotal *prometheus.CounterVec

	// CorrectionsTotal counts applied calibration rules by severity.
	CorrectionsTotal *prometheus.CounterVec

	// TrustedOverridesTotal counts answers where a trusted tool forced
	// full confidence.
	TrustedOverridesTotal prometheus.Counter

	// ConfidenceScore observes the final confidence per answer.
	ConfidenceScore prometheus.Histogram

	// ReasoningSteps observes steps consumed per request.
	ReasoningSteps prometheus.Histogram

	// ToolDurationSeconds measures tool execution latency.
	// Labels: tool, result (success, failure)
	ToolDurationSeconds *prometheus.HistogramVec

	// RetrievalDegradedTotal counts requests served with the index down.
	RetrievalDegradedTotal prometheus.Counter

	// TimeToFirstTokenSeconds measures streaming latency to first token.
	TimeToFirstTokenSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration by status.
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open streaming connections.
	ActiveStreams prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *AnswerMetrics

// InitMetrics creates and registers all pipeline metrics.
//
// # Description
//
// Call once at startup. Uses promauto against the default registry, so a
// second call panics on duplicate registration.
func InitMetrics() *AnswerMetrics {
	DefaultMetrics = &AnswerMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "requests_total",
				Help:      "Total answer requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		AbstentionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "abstentions_total",
				Help:      "Total abstained answers by collection",
			},
			[]string{"collection"},
		),

		CorrectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "corrections_total",
				Help:      "Total applied calibration rules by severity",
			},
			[]string{"severity"},
		),

		TrustedOverridesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "trusted_overrides_total",
				Help:      "Total answers where a trusted tool forced full confidence",
			},
		),

		ConfidenceScore: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "confidence_score",
				Help:      "Final confidence score per answer",
				Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),

		ReasoningSteps: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "reasoning_steps",
				Help:      "Reasoning steps consumed per request",
				Buckets:   []float64{1, 2, 3, 4, 6, 8, 10, 12},
			},
		),

		ToolDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "tool_duration_seconds",
				Help:      "Tool execution latency by tool and result",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"tool", "result"},
		),

		RetrievalDegradedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "retrieval_degraded_total",
				Help:      "Total requests served while the knowledge index was unavailable",
			},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first streamed token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds by status",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open streaming connections",
			},
		),
	}

	return DefaultMetrics
}

// ObserveOutcome records the per-answer outcome metrics in one place so
// the streaming and non-streaming paths stay consistent.
func (m *AnswerMetrics) ObserveOutcome(collection string, confidence float64, abstained, trustedOverride, degraded bool, steps int) {
	if m == nil {
		return
	}
	m.ConfidenceScore.Observe(confidence)
	m.ReasoningSteps.Observe(float64(steps))
	if abstained {
		m.AbstentionsTotal.WithLabelValues(collection).Inc()
	}
	if trustedOverride {
		m.TrustedOverridesTotal.Inc()
	}
	if degraded {
		m.RetrievalDegradedTotal.Inc()
	}
}
