// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Reasoning States
// =============================================================================

// LoopState is the state of the reasoning loop at a given step.
type LoopState string

const (
	StateThinking   LoopState = "THINKING"
	StateActing     LoopState = "ACTING"
	StateObserving  LoopState = "OBSERVING"
	StateConcluding LoopState = "CONCLUDING"
	StateAbstained  LoopState = "ABSTAINED"
	StateFailed     LoopState = "FAILED"
)

// IsTerminal reports whether the state ends the loop.
func (s LoopState) IsTerminal() bool {
	switch s {
	case StateConcluding, StateAbstained, StateFailed:
		return true
	}
	return false
}

// =============================================================================
// Trace
// =============================================================================

// TraceStep is one Thought -> Action -> Observation iteration.
type TraceStep struct {
	Index       int       `json:"index"`
	State       LoopState `json:"state"`
	Thought     string    `json:"thought,omitempty"`
	Action      string    `json:"action,omitempty"`
	Observation string    `json:"observation,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}

// ReasoningTrace is the bounded record of one request's reasoning.
//
// # Description
//
// The trace accumulates at most MaxReasoningSteps steps plus the evidence
// and tool outcomes observed along the way. It exists for the lifetime of
// one request: after the answer is produced it is exported to the audit
// sink and discarded. Traces are single-writer; the loop that owns a trace
// is the only goroutine that appends to it.
//
// # Fields
//
//   - ID: Trace identifier (UUID v4), also the audit sink key.
//   - RequestID: Correlates with the originating AnswerRequest.
//   - Steps: Ordered reasoning steps, len(Steps) <= MaxReasoningSteps.
//   - Evidence: All passages retrieved during the loop.
//   - ToolOutcomes: All tool executions observed during the loop.
//   - Terminal: Final state, one of CONCLUDING / ABSTAINED / FAILED.
//   - Draft: The model's concluding draft (pre-calibration, pre-voice).
//   - BudgetExhausted: True when the loop stopped because the step budget
//     ran out rather than because the model concluded.
//   - RetrievalDegraded: True when any retrieval call returned unavailable.
//     Caps final confidence at 0.50.
type ReasoningTrace struct {
	ID                string         `json:"id"`
	RequestID         string         `json:"request_id"`
	StartedAt         int64          `json:"started_at"`
	CompletedAt       int64          `json:"completed_at,omitempty"`
	Steps             []TraceStep    `json:"steps"`
	Evidence          []EvidenceItem `json:"evidence,omitempty"`
	ToolOutcomes      []ToolOutcome  `json:"tool_outcomes,omitempty"`
	Terminal          LoopState      `json:"terminal"`
	Draft             string         `json:"draft,omitempty"`
	BudgetExhausted   bool           `json:"budget_exhausted"`
	RetrievalDegraded bool           `json:"retrieval_degraded"`
}

// NewReasoningTrace creates an empty trace for a request.
func NewReasoningTrace(requestID string) *ReasoningTrace {
	return &ReasoningTrace{
		ID:        generateUUID(),
		RequestID: requestID,
		StartedAt: time.Now().UnixMilli(),
		Steps:     make([]TraceStep, 0, DefaultReasoningSteps),
	}
}

// AddStep appends a step and returns its index.
func (t *ReasoningTrace) AddStep(state LoopState, thought, action, observation string) int {
	step := TraceStep{
		Index:       len(t.Steps),
		State:       state,
		Thought:     thought,
		Action:      action,
		Observation: observation,
		Timestamp:   time.Now().UnixMilli(),
	}
	t.Steps = append(t.Steps, step)
	return step.Index
}

// Complete marks the trace finished in the given terminal state.
func (t *ReasoningTrace) Complete(terminal LoopState) {
	t.Terminal = terminal
	t.CompletedAt = time.Now().UnixMilli()
}
