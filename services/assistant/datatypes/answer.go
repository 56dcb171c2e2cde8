// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the assistant service.
//
// This file contains request and response types for the answer endpoints.
// For evidence and tool types, see evidence.go. For the reasoning trace,
// see trace.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Input Limits
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a single user query.
	// Checked as byte length, not rune count, to bound memory per request.
	MaxQueryBytes = 8 * 1024 // 8KB

	// MaxUserFacts is the maximum number of user facts accepted per request.
	MaxUserFacts = 50

	// MaxReasoningSteps is the hard ceiling on reasoning loop iterations.
	// Requests may ask for fewer steps; they can never ask for more.
	MaxReasoningSteps = 12

	// DefaultReasoningSteps is used when the request does not set max_steps.
	DefaultReasoningSteps = 6
)

// =============================================================================
// Confidence Bands
// =============================================================================

const (
	// AbstainThreshold is the confidence below which the engine refuses to
	// answer with specifics and returns a designed abstention instead.
	AbstainThreshold = 0.30

	// ConfidentThreshold is the confidence above which the answer is stated
	// without hedging.
	ConfidentThreshold = 0.60
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// answerValidate is the validator instance for answer datatypes.
// Initialized in init() with custom validators.
var answerValidate *validator.Validate

func init() {
	answerValidate = validator.New()
	_ = answerValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxQueryBytes.
//
// # Description
//
// Custom validator enforcing query size limits. Checks byte length (not rune
// count) to prevent memory exhaustion with large payloads.
//
// # Inputs
//
//   - fl: Validator field level containing the string to validate
//
// # Outputs
//
//   - bool: true if content <= 8KB, false otherwise
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxQueryBytes
}

// =============================================================================
// Tone
// =============================================================================

// Tone selects the register the voice synthesizer writes in.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneUrgent       Tone = "urgent"
	ToneEducational  Tone = "educational"
)

// =============================================================================
// Request Types
// =============================================================================

// UserFact is a single known fact about the requesting user, supplied by the
// caller as explicit input. The engine never looks these up on its own.
type UserFact struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// AnswerOptions carries per-request knobs for the reasoning pipeline.
//
// # Fields
//
//   - TrustedToolsEnabled: When false, trusted tools are still callable but
//     their success no longer forces full confidence.
//   - MaxSteps: Reasoning step budget, 0 means DefaultReasoningSteps.
//     Capped at MaxReasoningSteps.
//   - Stream: Request SSE streaming delivery.
//   - Tone: Optional tone override. Empty means infer from the query.
//   - Collection: Optional retrieval collection hint. Empty means route by
//     query classification.
type AnswerOptions struct {
	TrustedToolsEnabled bool   `json:"trusted_tools_enabled"`
	MaxSteps            int    `json:"max_steps" validate:"gte=0,lte=12"`
	Stream              bool   `json:"stream"`
	Tone                Tone   `json:"tone,omitempty" validate:"omitempty,oneof=professional casual urgent educational"`
	Collection          string `json:"collection,omitempty"`
}

// AnswerRequest represents a question posed to the assistant.
//
// # Description
//
// AnswerRequest contains the user query plus the explicit conversational
// context (session id, user facts) and pipeline options. Every request
// carries a unique ID and timestamp for audit trails and correlation.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4
//   - Timestamp: required, must be > 0
//   - Query: required, max 8192 bytes
//   - UserFacts: at most 50 entries, each with key and value
//   - Options.MaxSteps: 0-12
//
// # Limitations
//
//   - Query content limited to 8KB (larger payloads rejected)
//   - Language is a hint only; detection falls back to query heuristics
type AnswerRequest struct {
	RequestID string        `json:"request_id" validate:"required,uuid4"`
	Timestamp int64         `json:"timestamp" validate:"required,gt=0"`
	Query     string        `json:"query" validate:"required,maxbytes"`
	SessionID string        `json:"session_id,omitempty"`
	Language  string        `json:"language,omitempty" validate:"omitempty,oneof=id en"`
	UserFacts []UserFact    `json:"user_facts,omitempty" validate:"max=50,dive"`
	Options   AnswerOptions `json:"options"`
}

// Validate validates the AnswerRequest fields.
func (r *AnswerRequest) Validate() error {
	return answerValidate.Struct(r)
}

// EnsureDefaults populates generated identifiers and step budgets.
//
// # Description
//
// Generates RequestID and Timestamp if not provided by the client and
// clamps the step budget into [1, MaxReasoningSteps].
func (r *AnswerRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Options.MaxSteps <= 0 {
		r.Options.MaxSteps = DefaultReasoningSteps
	}
	if r.Options.MaxSteps > MaxReasoningSteps {
		r.Options.MaxSteps = MaxReasoningSteps
	}
}

// =============================================================================
// Response Types
// =============================================================================

// Citation points a statement in the answer back to the passage it came from.
type Citation struct {
	Source    string `json:"source"`
	PassageID string `json:"passage_id"`
}

// Answer represents the final synthesized response.
//
// # Description
//
// Contains the user-facing text, provenance, and the confidence assessment
// that produced it. When Abstained is true the text is a designed refusal
// and contains no regulated-domain specifics.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4), server side.
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix milliseconds (UTC) when the response was produced.
//   - Text: The synthesized answer.
//   - Citations: One entry per retrieval-sourced fact in the text.
//   - Abstained: True when the confidence gate refused a substantive answer.
//   - Confidence: Final evidence score in [0, 1].
//   - CorrectionsApplied: IDs of calibration rules that fired.
//   - TraceID: Reasoning trace identifier for audit lookup.
//   - ProcessingTimeMs: Wall-clock processing time.
type Answer struct {
	ResponseID         string     `json:"response_id"`
	RequestID          string     `json:"request_id"`
	Timestamp          int64      `json:"timestamp"`
	Text               string     `json:"text"`
	Citations          []Citation `json:"citations,omitempty"`
	Abstained          bool       `json:"abstained"`
	Confidence         float64    `json:"confidence"`
	CorrectionsApplied []string   `json:"corrections_applied,omitempty"`
	TraceID            string     `json:"trace_id,omitempty"`
	ProcessingTimeMs   int64      `json:"processing_time_ms,omitempty"`
}

// NewAnswer creates an Answer with generated ID and timestamp.
func NewAnswer(requestID, text string) *Answer {
	return &Answer{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Text:       text,
	}
}

// =============================================================================
// Chat Messages
// =============================================================================

// Message is a single turn in an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func generateUUID() string {
	return uuid.NewString()
}
