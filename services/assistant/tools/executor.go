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
	"fmt"
	"log/slog"
	"time"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("concierge.assistant.tools")

// Sentinel errors for the executor.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrValidationFailed indicates parameter validation failed.
	ErrValidationFailed = errors.New("parameter validation failed")

	// ErrExecutionFailed indicates tool execution failed.
	ErrExecutionFailed = errors.New("tool execution failed")

	// ErrTimeout indicates the tool execution timed out.
	ErrTimeout = errors.New("tool execution timed out")
)

// ExecutorOptions configures the executor.
type ExecutorOptions struct {
	// DefaultTimeout applies to tools whose definition sets no timeout.
	DefaultTimeout time.Duration

	// MaxOutputBytes truncates observations larger than this.
	MaxOutputBytes int
}

// DefaultExecutorOptions returns production defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		DefaultTimeout: 10 * time.Second,
		MaxOutputBytes: 16 * 1024,
	}
}

// Executor handles tool invocations with validation and observability.
//
// Thread Safety:
//
//	Executor is safe for concurrent use. Multiple tool executions can
//	run simultaneously.
type Executor struct {
	registry *Registry
	options  ExecutorOptions
}

// NewExecutor creates a new tool executor.
//
// Inputs:
//
//	registry - The tool registry
//	opts - Executor options (uses defaults if nil)
func NewExecutor(registry *Registry, opts *ExecutorOptions) *Executor {
	options := DefaultExecutorOptions()
	if opts != nil {
		options = *opts
	}
	return &Executor{
		registry: registry,
		options:  options,
	}
}

// Execute runs a named tool and records the outcome.
//
// Description:
//
//	Validates arguments against the tool definition, runs the tool under
//	a bounded timeout, and measures latency. A timed-out tool is
//	abandoned, not killed: the call keeps running on its goroutine with a
//	canceled context and its eventual result is dropped. The returned
//	ToolOutcome always carries the tool's registration-time trust tag.
//
// Inputs:
//
//	ctx - Context for cancellation
//	name - Registered tool name
//	args - Tool arguments
//
// Outputs:
//
//	*datatypes.ToolOutcome - The outcome. Non-nil even for failed
//	    executions so the loop can record a failed observation.
//	error - Non-nil when the outcome is a failure. Test with errors.Is
//	    against ErrToolNotFound, ErrValidationFailed, ErrTimeout, and
//	    ErrExecutionFailed.
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]string) (*datatypes.ToolOutcome, error) {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	logger := slog.With("tool", name)

	tool, ok := e.registry.Get(name)
	if !ok {
		logger.Warn("Tool not found")
		err := fmt.Errorf("%w: %s", ErrToolNotFound, name)
		span.SetStatus(codes.Error, err.Error())
		return &datatypes.ToolOutcome{Tool: name, Args: args}, err
	}

	def := tool.Definition()
	span.SetAttributes(attribute.String("tool.trust", def.Trust.String()))

	outcome := &datatypes.ToolOutcome{
		Tool:    name,
		Args:    args,
		Trusted: def.Trust == TrustTrusted,
	}

	if err := validateArgs(def, args); err != nil {
		logger.Warn("Parameter validation failed", "error", err)
		wrapped := fmt.Errorf("%w: %v", ErrValidationFailed, err)
		span.SetStatus(codes.Error, wrapped.Error())
		return outcome, wrapped
	}

	timeout := e.options.DefaultTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct {
		output string
		err    error
	}
	resultCh := make(chan execResult, 1)

	started := time.Now()
	go func() {
		output, err := tool.Execute(execCtx, args)
		resultCh <- execResult{output: output, err: err}
	}()

	select {
	case res := <-resultCh:
		outcome.Latency = time.Since(started)
		if res.err != nil {
			logger.Error("Tool execution failed", "error", res.err, "latency", outcome.Latency)
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
			return outcome, fmt.Errorf("%w: %v", ErrExecutionFailed, res.err)
		}
		outcome.Success = true
		outcome.Output = truncateOutput(res.output, e.options.MaxOutputBytes)
		logger.Debug("Tool executed", "latency", outcome.Latency, "trusted", outcome.Trusted)
		return outcome, nil

	case <-execCtx.Done():
		// Abandon the in-flight call; its goroutine drains into the
		// buffered channel whenever it finishes.
		outcome.Latency = time.Since(started)
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "canceled")
			return outcome, fmt.Errorf("tool %s canceled: %w", name, ctx.Err())
		}
		logger.Error("Tool execution timed out", "timeout", timeout)
		err := fmt.Errorf("%w: %s after %v", ErrTimeout, name, timeout)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
}

// validateArgs validates arguments against the tool definition.
func validateArgs(def Definition, args map[string]string) error {
	for name, paramDef := range def.Parameters {
		value, present := args[name]
		if paramDef.Required && !present {
			return &ValidationError{Parameter: name, Message: "required parameter missing"}
		}
		if present && paramDef.MaxLength > 0 && len(value) > paramDef.MaxLength {
			return &ValidationError{
				Parameter: name,
				Message:   fmt.Sprintf("length must be at most %d", paramDef.MaxLength),
			}
		}
	}
	for name := range args {
		if _, ok := def.Parameters[name]; !ok {
			return &ValidationError{Parameter: name, Message: "unknown parameter"}
		}
	}
	return nil
}

func truncateOutput(output string, maxBytes int) string {
	if maxBytes <= 0 || len(output) <= maxBytes {
		return output
	}
	return output[:maxBytes] + "\n... [truncated]"
}
