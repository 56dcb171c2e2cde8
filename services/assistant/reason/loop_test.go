// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reason

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
	"github.com/selaras-ai/concierge/services/assistant/tools"
	"github.com/selaras-ai/concierge/services/llm"
)

// scriptedClient replays canned responses; the last response repeats when
// the script runs out.
type scriptedClient struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	text string
	err  error
}

func (c *scriptedClient) next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	r := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return r.text, r.err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClient) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return c.next()
}

func (c *scriptedClient) Chat(context.Context, []datatypes.Message, llm.GenerationParams) (string, error) {
	return c.next()
}

func (c *scriptedClient) ChatStream(context.Context, []datatypes.Message, llm.GenerationParams, llm.StreamCallback) error {
	return errors.New("not used")
}

// fakeSearcher serves fixed evidence or a fixed error.
type fakeSearcher struct {
	items []datatypes.EvidenceItem
	err   error
}

func (f *fakeSearcher) Search(context.Context, string, string, int) ([]datatypes.EvidenceItem, error) {
	return f.items, f.err
}

type fixedTool struct {
	name   string
	output string
}

func (f *fixedTool) Definition() tools.Definition {
	return tools.Definition{
		Name:  f.name,
		Trust: tools.TrustTrusted,
		Parameters: map[string]tools.ParamDef{
			"expression": {Description: "input"},
		},
	}
}

func (f *fixedTool) Execute(context.Context, map[string]string) (string, error) {
	return f.output, nil
}

func testConfig() *Config {
	return &Config{
		ProviderRPS:   1000,
		ProviderBurst: 1000,
		StepTimeout:   time.Second,
		RetryBackoff:  time.Millisecond,
		SearchK:       3,
	}
}

func newTestLoop(fast, capable *scriptedClient, searcher retrieval.Searcher, extraTools ...tools.Tool) *Loop {
	registry := tools.NewRegistry()
	for _, tool := range extraTools {
		registry.Register(tool)
	}
	executor := tools.NewExecutor(registry, nil)
	return NewLoop(llm.NewModelTiers(fast, capable), searcher, executor, registry, testConfig())
}

func TestRun_ConcludeImmediately(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "THOUGHT: trivial question\nACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Jawaban final."}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "halo", "", Options{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StateConcluding, trace.Terminal)
	assert.Equal(t, "Jawaban final.", trace.Draft)
	assert.Len(t, trace.Steps, 1)
	assert.False(t, trace.BudgetExhausted)
	assert.Equal(t, 1, fast.callCount())
	assert.Equal(t, 1, capable.callCount())
}

func TestRun_SearchThenConclude(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "THOUGHT: need the price\nACTION: SEARCH pricing | biaya pendirian PT PMA"},
		{text: "THOUGHT: enough evidence\nACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Biayanya Rp 20.000.000."}}}
	searcher := &fakeSearcher{items: []datatypes.EvidenceItem{
		{Passage: "Pendirian PT PMA: Rp 20.000.000", Score: 0.91, Collection: datatypes.CollectionPricing, Source: "pricing-sheet-2025"},
	}}
	loop := newTestLoop(fast, capable, searcher)

	trace, err := loop.Run(context.Background(), "Berapa biaya pendirian PT PMA?", "", Options{RequestID: "req-2"})
	require.NoError(t, err)
	require.Len(t, trace.Steps, 2)
	assert.Contains(t, trace.Steps[0].Action, "search pricing")
	assert.Contains(t, trace.Steps[0].Observation, "pricing-sheet-2025")
	require.Len(t, trace.Evidence, 1)
	assert.Equal(t, "Biayanya Rp 20.000.000.", trace.Draft)
}

func TestRun_ToolOutcomeRecorded(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "THOUGHT: compute\nACTION: TOOL calculator | expression=6*7"},
		{text: "ACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "42."}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{}, &fixedTool{name: "calculator", output: "42"})

	trace, err := loop.Run(context.Background(), "6*7?", "", Options{RequestID: "req-3"})
	require.NoError(t, err)
	require.Len(t, trace.ToolOutcomes, 1)
	assert.True(t, trace.ToolOutcomes[0].Trusted)
	assert.Equal(t, "42", trace.Steps[0].Observation)
}

func TestRun_TerminatesUnderAdversarialEmptySearches(t *testing.T) {
	t.Parallel()

	// The model never concludes and every search comes back empty. The
	// loop must still terminate at the step budget with a partial draft.
	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "THOUGHT: keep looking\nACTION: SEARCH general | more"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Maaf, saya belum menemukan jawabannya."}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "pertanyaan sulit", "", Options{RequestID: "req-4", MaxSteps: 4})
	require.NoError(t, err)
	assert.True(t, trace.BudgetExhausted)
	assert.Len(t, trace.Steps, 4)
	assert.Equal(t, 4, fast.callCount())
	assert.Equal(t, datatypes.StateConcluding, trace.Terminal)
	assert.NotEmpty(t, trace.Draft)
	for _, step := range trace.Steps {
		assert.Equal(t, "No passages found.", step.Observation)
	}
}

func TestRun_MaxStepsClampedToHardLimit(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "ACTION: SEARCH general | again"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Partial."}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "q", "", Options{RequestID: "req-5", MaxSteps: 99})
	require.NoError(t, err)
	assert.Len(t, trace.Steps, datatypes.MaxReasoningSteps)
	assert.True(t, trace.BudgetExhausted)
}

func TestRun_TransientFailureRetriesOnceThenFails(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{err: fmt.Errorf("upstream 503: %w", llm.ErrTransient)},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "unused"}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "q", "", Options{RequestID: "req-6"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrTransient))
	assert.Equal(t, datatypes.StateFailed, trace.Terminal)
	assert.Equal(t, 2, fast.callCount(), "exactly one retry")
}

func TestRun_TransientFailureRecoversOnRetry(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{err: fmt.Errorf("connection reset: %w", llm.ErrTransient)},
		{text: "ACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Pulih."}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "q", "", Options{RequestID: "req-7"})
	require.NoError(t, err)
	assert.Equal(t, "Pulih.", trace.Draft)
	assert.Equal(t, 2, fast.callCount())
}

func TestRun_RetrievalUnavailableDegrades(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "ACTION: SEARCH pricing | harga"},
		{text: "ACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "Jawaban hati-hati."}}}
	searcher := &fakeSearcher{err: fmt.Errorf("dial tcp: %w", retrieval.ErrUnavailable)}
	loop := newTestLoop(fast, capable, searcher)

	trace, err := loop.Run(context.Background(), "harga?", "", Options{RequestID: "req-8"})
	require.NoError(t, err, "an unreachable index is a degradation, not a failure")
	assert.True(t, trace.RetrievalDegraded)
	assert.Contains(t, trace.Steps[0].Observation, "unavailable")
	assert.Equal(t, datatypes.StateConcluding, trace.Terminal)
}

func TestRun_UnparseableOutputConsumesStep(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "The price is probably around twenty million."},
		{text: "ACTION: CONCLUDE"},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "ok"}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "q", "", Options{RequestID: "req-9"})
	require.NoError(t, err)
	require.Len(t, trace.Steps, 2)
	assert.Contains(t, trace.Steps[0].Observation, "ACTION")
}

func TestRun_ConclusionTierFallsBackToActionAnswer(t *testing.T) {
	t.Parallel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{text: "THOUGHT: done\nACTION: CONCLUDE\nANSWER: Jawaban cadangan."},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{
		{err: fmt.Errorf("model overloaded: %w", llm.ErrTransient)},
	}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(context.Background(), "q", "", Options{RequestID: "req-10"})
	require.NoError(t, err)
	assert.Equal(t, "Jawaban cadangan.", trace.Draft)
	assert.Equal(t, datatypes.StateConcluding, trace.Terminal)
}

func TestRun_CallerCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fast := &scriptedClient{responses: []scriptedResponse{
		{err: fmt.Errorf("unreachable: %w", llm.ErrTransient)},
	}}
	capable := &scriptedClient{responses: []scriptedResponse{{text: "unused"}}}
	loop := newTestLoop(fast, capable, &fakeSearcher{})

	trace, err := loop.Run(ctx, "q", "", Options{RequestID: "req-11"})
	require.Error(t, err)
	assert.Equal(t, datatypes.StateFailed, trace.Terminal)
}
