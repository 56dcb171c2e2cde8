// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
)

// =============================================================================
// Calculator (trusted)
// =============================================================================

// CalculatorTool evaluates arithmetic expressions deterministically.
//
// Description:
//
//	Supports +, -, *, /, parentheses, and decimal numbers. The evaluator
//	is a small recursive-descent parser; there is no eval of arbitrary
//	input. Trusted because arithmetic over the given operands cannot be
//	wrong.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Definition() Definition {
	return Definition{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression (+, -, *, /, parentheses).",
		Trust:       TrustTrusted,
		Parameters: map[string]ParamDef{
			"expression": {Description: "The expression to evaluate", Required: true, MaxLength: 512},
		},
		Timeout: 2 * time.Second,
	}
}

func (t *CalculatorTool) Execute(_ context.Context, args map[string]string) (string, error) {
	result, err := evalExpression(args["expression"])
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(result, 'f', -1, 64), nil
}

// exprParser is a recursive-descent parser over arithmetic expressions.
type exprParser struct {
	input []rune
	pos   int
}

func evalExpression(expr string) (float64, error) {
	p := &exprParser{input: []rune(expr)}
	result, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return result, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return v, nil
}

// =============================================================================
// Pricing Lookup (trusted)
// =============================================================================

// PriceTable is the read boundary to the calibrated fact table.
type PriceTable interface {
	// LookupPrice returns the calibrated value for a pricing topic and
	// whether the topic exists.
	LookupPrice(topic string) (value string, source string, ok bool)
}

// PricingLookupTool reads prices from the calibrated fact table.
//
// Description:
//
//	Trusted because the fact table is curated by operations staff; a hit
//	here is the firm's authoritative price. A miss is an ordinary failed
//	lookup, not an error.
type PricingLookupTool struct {
	table PriceTable
}

func NewPricingLookupTool(table PriceTable) *PricingLookupTool {
	return &PricingLookupTool{table: table}
}

func (t *PricingLookupTool) Definition() Definition {
	return Definition{
		Name:        "pricing_lookup",
		Description: "Look up the firm's current price for a service topic.",
		Trust:       TrustTrusted,
		Parameters: map[string]ParamDef{
			"topic": {Description: "Service topic key, e.g. 'pt_pma_formation'", Required: true, MaxLength: 128},
		},
		Timeout: 2 * time.Second,
	}
}

func (t *PricingLookupTool) Execute(_ context.Context, args map[string]string) (string, error) {
	topic := strings.TrimSpace(strings.ToLower(args["topic"]))
	value, source, ok := t.table.LookupPrice(topic)
	if !ok {
		return "", fmt.Errorf("no calibrated price for topic %q", topic)
	}
	return fmt.Sprintf("%s (source: %s)", value, source), nil
}

// =============================================================================
// Directory Lookup (untrusted)
// =============================================================================

// DirectoryLookupTool searches the directory collection for people and
// contact details.
//
// Description:
//
//	Untrusted: directory content is ingested text, not an authoritative
//	system of record, so a hit is evidence like any retrieved passage.
type DirectoryLookupTool struct {
	searcher retrieval.Searcher
}

func NewDirectoryLookupTool(searcher retrieval.Searcher) *DirectoryLookupTool {
	return &DirectoryLookupTool{searcher: searcher}
}

func (t *DirectoryLookupTool) Definition() Definition {
	return Definition{
		Name:        "directory_lookup",
		Description: "Find a person, team, or office contact in the staff directory.",
		Trust:       TrustUntrusted,
		Parameters: map[string]ParamDef{
			"query": {Description: "Who or what to look up", Required: true, MaxLength: 256},
		},
		Timeout: 5 * time.Second,
	}
}

func (t *DirectoryLookupTool) Execute(ctx context.Context, args map[string]string) (string, error) {
	items, err := t.searcher.Search(ctx, datatypes.CollectionDirectory, args["query"], 3)
	if err != nil {
		return "", fmt.Errorf("directory search failed: %w", err)
	}
	if len(items) == 0 {
		return "No matching directory entries found.", nil
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(item.Passage)
	}
	return sb.String(), nil
}

var (
	_ Tool = (*CalculatorTool)(nil)
	_ Tool = (*PricingLookupTool)(nil)
	_ Tool = (*DirectoryLookupTool)(nil)
)
