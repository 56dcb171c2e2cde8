// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a configurable tool for executor tests.
type fakeTool struct {
	def    Definition
	output string
	err    error
	delay  time.Duration
}

func (f *fakeTool) Definition() Definition { return f.def }

func (f *fakeTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.output, f.err
}

func newTestExecutor(tools ...Tool) *Executor {
	registry := NewRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewExecutor(registry, nil)
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{
		def: Definition{
			Name:  "echo",
			Trust: TrustUntrusted,
			Parameters: map[string]ParamDef{
				"input": {Required: true},
			},
		},
		output: "hello",
	}
	executor := newTestExecutor(tool)

	outcome, err := executor.Execute(context.Background(), "echo", map[string]string{"input": "x"})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "hello", outcome.Output)
	assert.False(t, outcome.Trusted)
	assert.Greater(t, outcome.Latency, time.Duration(0))
}

func TestExecute_TrustTagFlowsIntoOutcome(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{
		def:    Definition{Name: "authoritative", Trust: TrustTrusted},
		output: "Rp 20.000.000",
	}
	executor := newTestExecutor(tool)

	outcome, err := executor.Execute(context.Background(), "authoritative", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Trusted, "trust tag must come from the registration-time definition")
}

func TestExecute_ToolNotFound(t *testing.T) {
	t.Parallel()

	executor := newTestExecutor()
	outcome, err := executor.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	require.NotNil(t, outcome, "outcome must be usable as a failed observation")
	assert.False(t, outcome.Success)
}

func TestExecute_ValidationFailure(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{
		def: Definition{
			Name: "strict",
			Parameters: map[string]ParamDef{
				"required_arg": {Required: true},
				"short_arg":    {MaxLength: 3},
			},
		},
	}
	executor := newTestExecutor(tool)

	tests := []struct {
		name string
		args map[string]string
	}{
		{name: "missing required", args: map[string]string{}},
		{name: "over max length", args: map[string]string{"required_arg": "x", "short_arg": "toolong"}},
		{name: "unknown parameter", args: map[string]string{"required_arg": "x", "mystery": "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := executor.Execute(context.Background(), "strict", tt.args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidationFailed))
		})
	}
}

func TestExecute_ExecutionFailure(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{
		def: Definition{Name: "broken", Trust: TrustTrusted},
		err: errors.New("backend exploded"),
	}
	executor := newTestExecutor(tool)

	outcome, err := executor.Execute(context.Background(), "broken", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecutionFailed))
	assert.False(t, outcome.Success, "a failed trusted tool must not count as a trusted success")
	assert.True(t, outcome.Trusted)
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	tool := &fakeTool{
		def: Definition{
			Name:    "slow",
			Timeout: 20 * time.Millisecond,
		},
		delay:  500 * time.Millisecond,
		output: "too late",
	}
	executor := newTestExecutor(tool)

	started := time.Now()
	outcome, err := executor.Execute(context.Background(), "slow", nil)
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, outcome.Success)
	assert.Less(t, elapsed, 300*time.Millisecond, "executor must abandon, not wait out, a slow tool")
}

func TestExecute_OutputTruncation(t *testing.T) {
	t.Parallel()

	large := make([]byte, 64)
	for i := range large {
		large[i] = 'a'
	}
	tool := &fakeTool{
		def:    Definition{Name: "chatty"},
		output: string(large),
	}
	registry := NewRegistry()
	registry.Register(tool)
	executor := NewExecutor(registry, &ExecutorOptions{
		DefaultTimeout: time.Second,
		MaxOutputBytes: 16,
	})

	outcome, err := executor.Execute(context.Background(), "chatty", nil)
	require.NoError(t, err)
	assert.Contains(t, outcome.Output, "[truncated]")
	assert.Less(t, len(outcome.Output), 64)
}

func TestRegistry_ReplaceKeepsLatestTrust(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(&fakeTool{def: Definition{Name: "dup", Trust: TrustUntrusted}})
	registry.Register(&fakeTool{def: Definition{Name: "dup", Trust: TrustTrusted}})

	tool, ok := registry.Get("dup")
	require.True(t, ok)
	assert.Equal(t, TrustTrusted, tool.Definition().Trust)
	assert.Equal(t, 1, registry.Count())
}

func TestCalculator(t *testing.T) {
	t.Parallel()

	calc := NewCalculatorTool()
	assert.Equal(t, TrustTrusted, calc.Definition().Trust)

	tests := []struct {
		expr     string
		expected string
		wantErr  bool
	}{
		{expr: "2+2", expected: "4"},
		{expr: "10 * (3 + 2)", expected: "50"},
		{expr: "7 / 2", expected: "3.5"},
		{expr: "-4 + 10", expected: "6"},
		{expr: "5 * 1.5", expected: "7.5"},
		{expr: "1/0", wantErr: true},
		{expr: "2 +", wantErr: true},
		{expr: "(1 + 2", wantErr: true},
		{expr: "rm -rf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			out, err := calc.Execute(context.Background(), map[string]string{"expression": tt.expr})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

type fakePriceTable struct {
	prices map[string]string
}

func (f *fakePriceTable) LookupPrice(topic string) (string, string, bool) {
	v, ok := f.prices[topic]
	return v, "pricing-sheet-2025", ok
}

func TestPricingLookup(t *testing.T) {
	t.Parallel()

	tool := NewPricingLookupTool(&fakePriceTable{
		prices: map[string]string{"pt_pma_formation": "Rp 20.000.000"},
	})
	assert.Equal(t, TrustTrusted, tool.Definition().Trust)

	out, err := tool.Execute(context.Background(), map[string]string{"topic": "PT_PMA_Formation"})
	require.NoError(t, err)
	assert.Contains(t, out, "Rp 20.000.000")
	assert.Contains(t, out, "pricing-sheet-2025")

	_, err = tool.Execute(context.Background(), map[string]string{"topic": "unknown_topic"})
	assert.Error(t, err, "a miss is a failed lookup")
}
