// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package calibration applies deterministic fact corrections to answer
// drafts. Correction rules and calibrated facts are loaded from YAML into
// an immutable compiled table; Refresh swaps the whole table atomically.
package calibration

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity tiers a correction rule. Critical rules always apply when
// matched; high and low contribute at most one correction per tier.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityLow      Severity = "low"
)

func (s Severity) valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityLow:
		return true
	}
	return false
}

// RuleSpec is the YAML shape of one correction rule.
type RuleSpec struct {
	ID       string   `yaml:"id"`
	Topic    string   `yaml:"topic"`
	Severity Severity `yaml:"severity"`
	Patterns []string `yaml:"patterns"`
	Override string   `yaml:"override"`
}

// FactSpec is the YAML shape of one calibrated fact.
type FactSpec struct {
	Topic  string `yaml:"topic"`
	Value  string `yaml:"value"`
	Source string `yaml:"source"`
}

// TableSpec is the YAML shape of the whole rule file.
type TableSpec struct {
	Facts []FactSpec `yaml:"facts"`
	Rules []RuleSpec `yaml:"rules"`
}

// ParseSpec decodes a YAML rule file. Unknown fields are rejected so a
// typo in a rule file fails loudly instead of silently dropping a rule.
func ParseSpec(data []byte) (TableSpec, error) {
	var spec TableSpec
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return TableSpec{}, fmt.Errorf("parsing rule file: %w", err)
	}
	return spec, nil
}

// Rule is a compiled correction rule.
type Rule struct {
	ID       string
	Topic    string
	Severity Severity
	Patterns []*regexp.Regexp
	Override string
}

// Matches reports whether any pattern matches the normalized text.
func (r *Rule) Matches(normalized string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// CalibratedFact is a curated value that supersedes generated numbers on
// the same topic.
type CalibratedFact struct {
	Topic  string
	Value  string
	Source string
}

// Table is the immutable compiled rule table. Built once by Compile and
// never mutated afterwards; Refresh replaces the whole table.
type Table struct {
	rules map[Severity][]Rule
	facts map[string]CalibratedFact
}

// Compile validates and compiles a TableSpec.
//
// # Description
//
// Patterns compile against normalized text (lowercased, whitespace
// collapsed, synonyms folded), so specs write patterns in lowercase
// canonical terms. Rule order within a tier is preserved: for high and
// low tiers, the first matching rule in file order wins.
//
// # Outputs
//
//   - *Table: The compiled table.
//   - error: Non-nil on a duplicate rule ID, invalid severity, empty
//     pattern list, or unparseable regex. A table that fails to compile
//     never replaces a serving table.
func Compile(spec TableSpec) (*Table, error) {
	table := &Table{
		rules: make(map[Severity][]Rule),
		facts: make(map[string]CalibratedFact),
	}

	for _, f := range spec.Facts {
		topic := strings.TrimSpace(strings.ToLower(f.Topic))
		if topic == "" {
			return nil, fmt.Errorf("calibrated fact with empty topic")
		}
		if _, exists := table.facts[topic]; exists {
			return nil, fmt.Errorf("duplicate calibrated fact topic %q", topic)
		}
		table.facts[topic] = CalibratedFact{Topic: topic, Value: f.Value, Source: f.Source}
	}

	seen := make(map[string]bool)
	for _, r := range spec.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule with empty id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		if !r.Severity.valid() {
			return nil, fmt.Errorf("rule %q: invalid severity %q", r.ID, r.Severity)
		}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %q: no patterns", r.ID)
		}

		compiled := Rule{
			ID:       r.ID,
			Topic:    strings.TrimSpace(strings.ToLower(r.Topic)),
			Severity: r.Severity,
			Override: r.Override,
		}
		for _, pattern := range r.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: pattern %q: %w", r.ID, pattern, err)
			}
			compiled.Patterns = append(compiled.Patterns, re)
		}
		table.rules[r.Severity] = append(table.rules[r.Severity], compiled)
	}

	return table, nil
}

// Fact returns the calibrated fact for a topic.
func (t *Table) Fact(topic string) (CalibratedFact, bool) {
	f, ok := t.facts[strings.TrimSpace(strings.ToLower(topic))]
	return f, ok
}

// LookupPrice implements the pricing tool's table boundary.
func (t *Table) LookupPrice(topic string) (string, string, bool) {
	f, ok := t.Fact(topic)
	if !ok {
		return "", "", false
	}
	return f.Value, f.Source, true
}

// RuleCount returns the total number of compiled rules.
func (t *Table) RuleCount() int {
	n := 0
	for _, rules := range t.rules {
		n += len(rules)
	}
	return n
}

// FactCount returns the number of calibrated facts.
func (t *Table) FactCount() int {
	return len(t.facts)
}

// =============================================================================
// Text Normalization
// =============================================================================

// synonymFolds maps Indonesian/English variants onto one canonical term so
// patterns match either language. Applied after lowercasing.
var synonymFolds = [][2]string{
	{"biaya", "price"},
	{"harga", "price"},
	{"tarif", "price"},
	{"cost", "price"},
	{"fee", "price"},
	{"pajak", "tax"},
	{"imigrasi", "immigration"},
	{"hukum", "legal"},
	{"perusahaan", "company"},
	{"pendirian", "formation"},
	{"izin", "permit"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases, collapses whitespace, and folds a small
// Indonesian/English synonym set. Rule patterns match against this form.
func Normalize(text string) string {
	lowered := strings.ToLower(text)
	lowered = whitespaceRe.ReplaceAllString(lowered, " ")
	for _, fold := range synonymFolds {
		lowered = strings.ReplaceAll(lowered, fold[0], fold[1])
	}
	return strings.TrimSpace(lowered)
}
