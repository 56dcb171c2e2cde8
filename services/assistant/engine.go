// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant composes retrieval, reasoning, scoring, calibration,
// and voice into the answer engine behind the public endpoints.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/selaras-ai/concierge/services/assistant/audit"
	"github.com/selaras-ai/concierge/services/assistant/calibration"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/memory"
	"github.com/selaras-ai/concierge/services/assistant/observability"
	"github.com/selaras-ai/concierge/services/assistant/reason"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
	"github.com/selaras-ai/concierge/services/assistant/scoring"
	"github.com/selaras-ai/concierge/services/assistant/voice"
)

var tracer = otel.Tracer("concierge.assistant")

// Engine answers questions. One Engine serves all requests; every
// dependency it holds is safe for concurrent use.
type Engine struct {
	loop        *reason.Loop
	rules       *calibration.Loader
	synthesizer *voice.Synthesizer
	memory      memory.Provider
	sink        audit.Sink
	policy      retrieval.DomainPolicy
	metrics     *observability.AnswerMetrics
}

// NewEngine wires the answer pipeline. The loop and rule loader are
// required; nil optional dependencies get no-op or default stand-ins.
func NewEngine(loop *reason.Loop, rules *calibration.Loader, synthesizer *voice.Synthesizer,
	provider memory.Provider, sink audit.Sink, policy *retrieval.DomainPolicy,
	metrics *observability.AnswerMetrics) *Engine {

	if synthesizer == nil {
		synthesizer = voice.NewSynthesizer(nil)
	}
	if provider == nil {
		provider = memory.NopProvider{}
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	resolvedPolicy := retrieval.DefaultDomainPolicy()
	if policy != nil {
		resolvedPolicy = *policy
	}

	return &Engine{
		loop:        loop,
		rules:       rules,
		synthesizer: synthesizer,
		memory:      provider,
		sink:        sink,
		policy:      resolvedPolicy,
		metrics:     metrics,
	}
}

// Answer runs the full pipeline for one request.
//
// # Description
//
// Route collections, gather memory context, run the reasoning loop, gate
// the draft through the evidence scorer, calibrate facts, and synthesize
// the final voice. An unrecoverable provider failure never turns into a
// silent abstention: the user gets an explicit temporarily-unavailable
// answer with zero confidence.
//
// # Outputs
//
//   - *Answer: Always non-nil unless ctx was cancelled or the request is
//     invalid.
//   - error: Validation failures and caller cancellation only.
func (e *Engine) Answer(ctx context.Context, req *datatypes.AnswerRequest) (*datatypes.Answer, error) {
	return e.answer(ctx, req, nil)
}

// AnswerStream runs the same pipeline and delivers the final text in
// chunks. The concatenated chunks equal the Answer text byte for byte.
func (e *Engine) AnswerStream(ctx context.Context, req *datatypes.AnswerRequest, emit voice.StreamFunc) (*datatypes.Answer, error) {
	if emit == nil {
		return nil, fmt.Errorf("nil stream callback")
	}
	return e.answer(ctx, req, emit)
}

func (e *Engine) answer(ctx context.Context, req *datatypes.AnswerRequest, emit voice.StreamFunc) (*datatypes.Answer, error) {
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid answer request: %w", err)
	}

	ctx, span := tracer.Start(ctx, "assistant.Answer", oteltrace.WithAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Bool("request.stream", emit != nil),
	))
	defer span.End()

	started := time.Now()
	collections := retrieval.Route(req.Query, req.Options.Collection)
	span.SetAttributes(attribute.StringSlice("request.collections", collections))

	memoryContext := e.loadMemoryContext(ctx, req)

	trace, err := e.loop.Run(ctx, req.Query, memoryContext, reason.Options{
		RequestID:  req.RequestID,
		MaxSteps:   req.Options.MaxSteps,
		Collection: req.Options.Collection,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Explicit failure answer, never a silent abstain.
		slog.Error("Reasoning loop failed", "request_id", req.RequestID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.exportTrace(ctx, trace)
		answer := datatypes.NewAnswer(req.RequestID, unavailableText(req.Language))
		answer.TraceID = trace.ID
		answer.ProcessingTimeMs = time.Since(started).Milliseconds()
		return answer, nil
	}

	assessment := scoring.Score(trace.Evidence, trace.ToolOutcomes, scoring.Options{
		RequiresVerification: e.policy.RequiresVerificationAny(collections),
		RetrievalDegraded:    trace.RetrievalDegraded,
		TrustedToolsEnabled:  req.Options.TrustedToolsEnabled,
		BudgetExhausted:      trace.BudgetExhausted,
	})

	calibrated := calibration.Calibrate(e.rules.Table(), trace.Draft, req.Query)

	voiceReq := voice.Request{
		Query:       req.Query,
		Language:    req.Language,
		Tone:        req.Options.Tone,
		Draft:       trace.Draft,
		Calibration: calibrated,
		Assessment:  assessment,
		Evidence:    trace.Evidence,
	}

	var text string
	var citations []datatypes.Citation
	if emit != nil {
		text, citations, err = e.synthesizer.SynthesizeStream(ctx, voiceReq, emit)
	} else {
		text, citations, err = e.synthesizer.Synthesize(ctx, voiceReq)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("synthesizing answer: %w", err)
	}

	abstained := assessment.Band == scoring.BandAbstain
	if abstained {
		trace.Terminal = datatypes.StateAbstained
	}

	answer := datatypes.NewAnswer(req.RequestID, text)
	answer.Citations = citations
	answer.Abstained = abstained
	answer.Confidence = assessment.Score
	answer.TraceID = trace.ID
	answer.ProcessingTimeMs = time.Since(started).Milliseconds()
	if !abstained {
		answer.CorrectionsApplied = calibrated.Applied()
	}

	e.exportTrace(ctx, trace)
	e.persistTurn(ctx, req, answer)
	e.observe(collections, answer, assessment, trace, calibrated)

	span.SetAttributes(
		attribute.Float64("answer.confidence", answer.Confidence),
		attribute.Bool("answer.abstained", answer.Abstained),
		attribute.Int("answer.citations", len(answer.Citations)),
	)
	return answer, nil
}

// loadMemoryContext merges stored session context with the request's
// explicit user facts. Storage failures degrade to a cold session.
func (e *Engine) loadMemoryContext(ctx context.Context, req *datatypes.AnswerRequest) string {
	history, err := e.memory.GetHistory(ctx, req.SessionID, memory.DefaultHistoryLimit)
	if err != nil {
		slog.Warn("Failed to load conversation history, continuing without",
			"request_id", req.RequestID, "error", err)
	}

	facts, err := e.memory.GetFacts(ctx, req.SessionID)
	if err != nil {
		slog.Warn("Failed to load user facts, continuing without",
			"request_id", req.RequestID, "error", err)
	}

	// Request-supplied facts are the caller's word and win over storage.
	merged := make([]datatypes.UserFact, 0, len(facts)+len(req.UserFacts))
	seen := make(map[string]bool, len(req.UserFacts))
	for _, fact := range req.UserFacts {
		seen[fact.Key] = true
		merged = append(merged, fact)
	}
	for _, fact := range facts {
		if !seen[fact.Key] {
			merged = append(merged, fact)
		}
	}

	return memory.Render(history, merged)
}

func (e *Engine) exportTrace(ctx context.Context, trace *datatypes.ReasoningTrace) {
	if trace == nil {
		return
	}
	if err := e.sink.Export(ctx, trace); err != nil {
		slog.Warn("Failed to export reasoning trace",
			"trace_id", trace.ID, "request_id", trace.RequestID, "error", err)
	}
}

func (e *Engine) persistTurn(ctx context.Context, req *datatypes.AnswerRequest, answer *datatypes.Answer) {
	if req.SessionID == "" {
		return
	}

	turn := memory.Turn{
		SessionID: req.SessionID,
		Question:  req.Query,
		Answer:    answer.Text,
		Timestamp: answer.Timestamp,
	}
	if err := e.memory.SaveTurn(ctx, turn); err != nil {
		slog.Warn("Failed to persist conversation turn",
			"session_id", req.SessionID, "request_id", req.RequestID, "error", err)
	}

	for _, fact := range req.UserFacts {
		if err := e.memory.SaveFact(ctx, req.SessionID, fact); err != nil {
			slog.Warn("Failed to persist user fact",
				"session_id", req.SessionID, "key", fact.Key, "error", err)
		}
	}
}

func (e *Engine) observe(collections []string, answer *datatypes.Answer, assessment scoring.Assessment,
	trace *datatypes.ReasoningTrace, calibrated calibration.Result) {

	if e.metrics == nil {
		return
	}

	collection := "general"
	if len(collections) > 0 {
		collection = collections[0]
	}
	e.metrics.ObserveOutcome(collection, answer.Confidence, answer.Abstained,
		assessment.TrustedOverride, trace.RetrievalDegraded, len(trace.Steps))

	for _, correction := range calibrated.Corrections {
		e.metrics.CorrectionsTotal.WithLabelValues(string(correction.Severity)).Inc()
	}
	for _, outcome := range trace.ToolOutcomes {
		result := "failure"
		if outcome.Success {
			result = "success"
		}
		e.metrics.ToolDurationSeconds.WithLabelValues(outcome.Tool, result).Observe(outcome.Latency.Seconds())
	}
}

func unavailableText(language string) string {
	if language == "en" {
		return "We are temporarily unable to answer. Please try again in a moment."
	}
	return "Untuk saat ini kami belum dapat menjawab. Silakan coba lagi beberapa saat lagi."
}
