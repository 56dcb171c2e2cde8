// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides the tool registry and executor for the reasoning
// loop. Tools are tagged trusted or untrusted at registration time; the
// trust tag flows into every outcome so downstream consumers never match
// on tool names.
package tools

import (
	"context"
	"fmt"
	"time"
)

// Trust is the authority class of a tool, fixed at registration.
type Trust int

const (
	// TrustUntrusted marks tools whose output is ordinary evidence.
	TrustUntrusted Trust = iota

	// TrustTrusted marks tools backed by authoritative data. A successful
	// trusted outcome forces full confidence in the evidence scorer.
	TrustTrusted
)

func (t Trust) String() string {
	if t == TrustTrusted {
		return "trusted"
	}
	return "untrusted"
}

// ParamDef describes one tool parameter for validation.
type ParamDef struct {
	// Description is shown to the model when listing tools.
	Description string

	// Required parameters must be present in the invocation.
	Required bool

	// MaxLength bounds string parameters (0 = unbounded).
	MaxLength int
}

// Definition describes a tool for registration and prompting.
//
// Fields:
//
//	Name - Unique tool name, stable across releases
//	Description - One-line purpose shown to the model
//	Trust - Authority class, resolved at registration
//	Parameters - Parameter validation schema
//	Timeout - Per-tool execution budget (0 = executor default)
type Definition struct {
	Name        string
	Description string
	Trust       Trust
	Parameters  map[string]ParamDef
	Timeout     time.Duration
}

// Tool is a capability the reasoning loop can invoke.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use; the executor may run
//	the same tool for several requests at once.
type Tool interface {
	// Definition returns the tool's registration metadata.
	Definition() Definition

	// Execute runs the tool. The returned string is the observation text
	// fed back into the reasoning loop.
	Execute(ctx context.Context, args map[string]string) (string, error)
}

// ValidationError describes a single invalid parameter.
type ValidationError struct {
	Parameter string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message)
}
