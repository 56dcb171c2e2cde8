// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reason runs the bounded Thought/Action/Observation loop that
// gathers evidence for one answer.
package reason

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
	"github.com/selaras-ai/concierge/services/assistant/tools"
	"github.com/selaras-ai/concierge/services/llm"
)

var tracer = otel.Tracer("concierge.assistant.reason")

// TierPolicy names which model tier serves each call class. Supplied by
// the caller; the loop never hardcodes a tier.
type TierPolicy struct {
	// Action selects the tier for per-step action decisions.
	Action llm.Tier
	// Conclude selects the tier for the final draft.
	Conclude llm.Tier
}

// DefaultTierPolicy routes action selection to the fast tier and the
// concluding draft to the capable tier.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{Action: llm.TierFast, Conclude: llm.TierCapable}
}

// Options carries per-request loop inputs.
type Options struct {
	// RequestID correlates the trace with the originating request.
	RequestID string

	// MaxSteps bounds the loop. Clamped to [1, MaxReasoningSteps];
	// zero means DefaultReasoningSteps.
	MaxSteps int

	// Collection is the caller's collection hint for searches that name
	// no known collection.
	Collection string

	// Tiers is the model tier policy. Zero value means DefaultTierPolicy.
	Tiers TierPolicy
}

// Config carries process-wide loop settings.
type Config struct {
	// ProviderRPS rate-limits model calls across all requests.
	ProviderRPS float64
	// ProviderBurst is the limiter burst size.
	ProviderBurst int
	// StepTimeout bounds one model call, including its single retry's
	// budget window.
	StepTimeout time.Duration
	// RetryBackoff is the pause before the single retry.
	RetryBackoff time.Duration
	// SearchK is the passage count requested per search action.
	SearchK int
}

// DefaultConfig returns the production loop settings.
func DefaultConfig() Config {
	return Config{
		ProviderRPS:   5,
		ProviderBurst: 10,
		StepTimeout:   30 * time.Second,
		RetryBackoff:  500 * time.Millisecond,
		SearchK:       8,
	}
}

// Loop drives the reasoning cycle for answer requests.
//
// # Description
//
// Each request runs single-threaded: one goroutine owns the trace and
// makes at most MaxSteps model calls. Cross-request parallelism is safe;
// the only shared state is the provider rate limiter.
type Loop struct {
	tiers    *llm.ModelTiers
	searcher retrieval.Searcher
	executor *tools.Executor
	registry *tools.Registry
	limiter  *rate.Limiter
	config   Config
}

// NewLoop builds a reasoning loop. A nil config uses DefaultConfig.
func NewLoop(tiers *llm.ModelTiers, searcher retrieval.Searcher, executor *tools.Executor,
	registry *tools.Registry, config *Config) *Loop {

	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.ProviderRPS <= 0 || cfg.StepTimeout <= 0 || cfg.SearchK <= 0 {
		slog.Warn("Invalid reasoning loop config, using defaults",
			"provider_rps", cfg.ProviderRPS,
			"step_timeout", cfg.StepTimeout,
			"search_k", cfg.SearchK,
		)
		cfg = DefaultConfig()
	}

	return &Loop{
		tiers:    tiers,
		searcher: searcher,
		executor: executor,
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst),
		config:   cfg,
	}
}

// Run executes the reasoning loop for one query.
//
// # Description
//
// Each iteration builds a prompt from the accumulated steps, asks the
// action-tier model for one action, and executes it. Provider failures on
// a step get one retry with backoff; a timeout that survives the retry
// degrades the step to an empty observation, while any other provider
// error that survives the retry fails the trace. When the step budget
// runs out before the model concludes, the loop still produces a best
// partial draft and flags the trace BudgetExhausted.
//
// # Inputs
//
//   - ctx: Cancellation stops model calls and pending tool work for this
//     trace only.
//   - query: The user's question.
//   - memoryContext: Rendered session history and user facts; empty for
//     a cold session.
//   - opts: Per-request options.
//
// # Outputs
//
//   - *ReasoningTrace: Always non-nil, in a terminal state. On error the
//     terminal state is FAILED.
//   - error: Non-nil only for unrecoverable provider failures or caller
//     cancellation.
func (l *Loop) Run(ctx context.Context, query, memoryContext string, opts Options) (*datatypes.ReasoningTrace, error) {
	opts = normalizeOptions(opts)

	ctx, span := tracer.Start(ctx, "reason.Run", oteltrace.WithAttributes(
		attribute.String("request.id", opts.RequestID),
		attribute.Int("loop.max_steps", opts.MaxSteps),
	))
	defer span.End()

	trace := datatypes.NewReasoningTrace(opts.RequestID)
	defs := l.registry.Definitions()

	for len(trace.Steps) < opts.MaxSteps {
		output, err := l.callModel(ctx, opts.Tiers.Action, actionMessages(query, memoryContext, defs, trace))
		if err != nil {
			if isTimeout(err) {
				// Degraded step: the provider stalled twice, keep going
				// with whatever the loop has gathered so far.
				slog.Warn("Model call timed out after retry, degrading step",
					"request_id", opts.RequestID, "step", len(trace.Steps))
				trace.AddStep(datatypes.StateObserving, "", "", "")
				continue
			}
			return l.fail(span, trace, fmt.Errorf("action model call: %w", err))
		}

		action, err := ParseAction(output)
		if err != nil {
			trace.AddStep(datatypes.StateThinking, "", "",
				"Response had no valid ACTION line. Reply with one SEARCH, TOOL, or CONCLUDE action.")
			continue
		}

		if action.Type == ActionConclude {
			return l.conclude(ctx, span, trace, query, memoryContext, action, opts)
		}

		var actionLabel, observation string
		switch action.Type {
		case ActionSearch:
			actionLabel, observation = l.doSearch(ctx, trace, action, opts)
		case ActionTool:
			actionLabel, observation = l.doTool(ctx, trace, action)
		}
		trace.AddStep(datatypes.StateObserving, action.Thought, actionLabel, observation)
	}

	trace.BudgetExhausted = true
	span.SetAttributes(attribute.Bool("loop.budget_exhausted", true))
	return l.conclude(ctx, span, trace, query, memoryContext, nil, opts)
}

// conclude produces the final draft on the conclusion tier. When that
// fails and the action model already wrote an answer, the loop falls back
// to it rather than failing a request it can still serve.
func (l *Loop) conclude(ctx context.Context, span oteltrace.Span, trace *datatypes.ReasoningTrace,
	query, memoryContext string, action *Action, opts Options) (*datatypes.ReasoningTrace, error) {

	thought := ""
	if action != nil {
		thought = action.Thought
	}

	draft, err := l.callModel(ctx, opts.Tiers.Conclude, conclusionMessages(query, memoryContext, trace))
	if err != nil {
		if action == nil || action.Answer == "" {
			return l.fail(span, trace, fmt.Errorf("conclusion model call: %w", err))
		}
		slog.Warn("Conclusion tier failed, falling back to action-tier answer",
			"request_id", opts.RequestID, "error", err)
		draft = action.Answer
	}

	trace.Draft = draft
	if len(trace.Steps) < opts.MaxSteps {
		trace.AddStep(datatypes.StateConcluding, thought, "conclude", "")
	}
	trace.Complete(datatypes.StateConcluding)
	span.SetAttributes(attribute.Int("loop.steps", len(trace.Steps)))
	return trace, nil
}

func (l *Loop) fail(span oteltrace.Span, trace *datatypes.ReasoningTrace, err error) (*datatypes.ReasoningTrace, error) {
	trace.Complete(datatypes.StateFailed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return trace, err
}

// callModel makes one rate-limited chat call with a single retry.
func (l *Loop) callModel(ctx context.Context, tier llm.Tier, messages []datatypes.Message) (string, error) {
	client := l.tiers.For(tier)

	output, err := l.callOnce(ctx, client, messages)
	if err == nil {
		return output, nil
	}
	if !errors.Is(err, llm.ErrTransient) && !isTimeout(err) {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	select {
	case <-time.After(l.config.RetryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return l.callOnce(ctx, client, messages)
}

func (l *Loop) callOnce(ctx context.Context, client llm.LLMClient, messages []datatypes.Message) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	stepCtx, cancel := context.WithTimeout(ctx, l.config.StepTimeout)
	defer cancel()
	return client.Chat(stepCtx, messages, llm.GenerationParams{})
}

// doSearch executes a search action and returns the action label and
// observation. Index unavailability is a degradation, never fatal.
func (l *Loop) doSearch(ctx context.Context, trace *datatypes.ReasoningTrace, action *Action, opts Options) (string, string) {
	collection := action.Collection
	if !datatypes.IsKnownCollection(collection) {
		collection = opts.Collection
	}
	if !datatypes.IsKnownCollection(collection) {
		collection = datatypes.CollectionGeneral
	}
	label := fmt.Sprintf("search %s | %s", collection, action.Query)

	items, err := l.searcher.Search(ctx, collection, action.Query, l.config.SearchK)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			trace.RetrievalDegraded = true
			return label, "The knowledge index is unavailable. Answer from already gathered evidence or conclude."
		}
		return label, fmt.Sprintf("Search failed: %v", err)
	}
	if len(items) == 0 {
		return label, "No passages found."
	}

	trace.Evidence = append(trace.Evidence, items...)
	return label, formatEvidence(items)
}

// doTool executes a tool action. Failed outcomes are recorded on the
// trace so the scorer sees that a trusted tool did not succeed.
func (l *Loop) doTool(ctx context.Context, trace *datatypes.ReasoningTrace, action *Action) (string, string) {
	label := "tool " + action.Tool

	outcome, err := l.executor.Execute(ctx, action.Tool, action.Args)
	if outcome != nil {
		trace.ToolOutcomes = append(trace.ToolOutcomes, *outcome)
	}
	if err != nil {
		return label, fmt.Sprintf("Tool %s failed: %v", action.Tool, err)
	}
	return label, outcome.Output
}

func normalizeOptions(opts Options) Options {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = datatypes.DefaultReasoningSteps
	}
	if opts.MaxSteps > datatypes.MaxReasoningSteps {
		opts.MaxSteps = datatypes.MaxReasoningSteps
	}
	if opts.Tiers == (TierPolicy{}) {
		opts.Tiers = DefaultTierPolicy()
	}
	return opts
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
