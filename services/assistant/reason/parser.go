// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reason

import (
	"errors"
	"fmt"
	"strings"
)

// ActionType discriminates what the model asked the loop to do next.
type ActionType string

const (
	ActionSearch   ActionType = "search"
	ActionTool     ActionType = "tool"
	ActionConclude ActionType = "conclude"
)

// Action is one parsed model decision.
type Action struct {
	Type    ActionType
	Thought string

	// Search fields.
	Collection string
	Query      string

	// Tool fields.
	Tool string
	Args map[string]string

	// Answer carries the model's own draft on a conclude action. The loop
	// prefers a capable-tier conclusion; this is the fallback.
	Answer string
}

// ErrUnparseable means the model output contained no recognizable action.
var ErrUnparseable = errors.New("no recognizable action in model output")

// ParseAction extracts exactly one action from a model turn.
//
// # Description
//
// The expected shape is line-oriented:
//
//	THOUGHT: <one line>
//	ACTION: SEARCH <collection> | <query>
//	ACTION: TOOL <name> | <param>=<value>; <param>=<value>
//	ACTION: CONCLUDE
//	ANSWER: <free text, may span lines>
//
// The first ACTION line wins; everything after an ANSWER marker is the
// answer verbatim. Keywords are case-insensitive, the rest is preserved.
//
// # Outputs
//
//   - *Action: The parsed action.
//   - error: Wraps ErrUnparseable when no valid ACTION line is present.
func ParseAction(output string) (*Action, error) {
	action := &Action{Args: make(map[string]string)}
	lines := strings.Split(output, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		switch {
		case strings.HasPrefix(upper, "THOUGHT:"):
			if action.Thought == "" {
				action.Thought = strings.TrimSpace(trimmed[len("THOUGHT:"):])
			}

		case strings.HasPrefix(upper, "ANSWER:"):
			first := strings.TrimSpace(trimmed[len("ANSWER:"):])
			rest := strings.Join(lines[i+1:], "\n")
			action.Answer = strings.TrimSpace(first + "\n" + rest)
			if action.Type == "" {
				return nil, fmt.Errorf("answer without a conclude action: %w", ErrUnparseable)
			}
			return action, nil

		case strings.HasPrefix(upper, "ACTION:") && action.Type == "":
			if err := parseActionBody(action, strings.TrimSpace(trimmed[len("ACTION:"):])); err != nil {
				return nil, err
			}
		}
	}

	if action.Type == "" {
		return nil, ErrUnparseable
	}
	return action, nil
}

func parseActionBody(action *Action, body string) error {
	head, rest, _ := strings.Cut(body, "|")
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return fmt.Errorf("empty action: %w", ErrUnparseable)
	}

	switch strings.ToUpper(fields[0]) {
	case "SEARCH":
		action.Type = ActionSearch
		if len(fields) > 1 {
			action.Collection = strings.ToLower(fields[1])
		}
		action.Query = strings.TrimSpace(rest)
		if action.Query == "" {
			return fmt.Errorf("search action without a query: %w", ErrUnparseable)
		}

	case "TOOL":
		action.Type = ActionTool
		if len(fields) < 2 {
			return fmt.Errorf("tool action without a tool name: %w", ErrUnparseable)
		}
		action.Tool = fields[1]
		for _, pair := range strings.Split(rest, ";") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			action.Args[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}

	case "CONCLUDE":
		action.Type = ActionConclude

	default:
		return fmt.Errorf("unknown action %q: %w", fields[0], ErrUnparseable)
	}
	return nil
}
