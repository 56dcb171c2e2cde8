// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package calibration

import (
	"regexp"
	"strings"
)

// moneyRe matches rupiah amounts as models tend to emit them, including
// shorthand like "Rp 20 juta".
var moneyRe = regexp.MustCompile(`(?i)Rp\.?\s?[0-9]([0-9.,]*[0-9])?(\s?(juta|jt|ribu|rb|miliar)\b)?`)

// durationRe matches processing-time spans in Indonesian and English.
var durationRe = regexp.MustCompile(`(?i)\b[0-9]+(\s*-\s*[0-9]+)?\s*(hari kerja|hari|minggu|bulan|working days?|business days?|days?|weeks?|months?)\b`)

// Correction records one applied rule.
type Correction struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Topic    string   `json:"topic,omitempty"`
}

// Result is the outcome of calibrating one draft.
type Result struct {
	// Text is the calibrated draft.
	Text string `json:"text"`

	// Corrections lists applied rules in application order.
	Corrections []Correction `json:"corrections,omitempty"`

	// Critical is true when any critical rule applied. Critical override
	// text must survive all downstream rewriting.
	Critical bool `json:"critical"`
}

// Applied returns the applied rule IDs in order.
func (r Result) Applied() []string {
	ids := make([]string, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		ids = append(ids, c.RuleID)
	}
	return ids
}

// Calibrate applies the table's correction rules to a draft answer.
//
// # Description
//
// Pure and deterministic over (table, draft, query). Rules match against
// the normalized concatenation of query and draft, so a rule fires whether
// the risky topic came from the user or from the model. All matching
// critical rules apply; the high and low tiers each apply at most their
// first match in file order.
//
// An applied rule does two things. If its topic has a calibrated fact,
// every generated amount of that fact's kind in the draft is replaced with
// the calibrated value. If the rule carries override text, the text is
// appended as a standalone paragraph unless already present. When several
// matched rules calibrate the same kind of value, inline replacement is
// skipped for that kind and the overrides carry the corrections.
//
// Calibration is idempotent: calibrating an already calibrated draft is a
// no-op, because calibrated values match their own replacement pattern and
// override paragraphs are containment-checked before appending.
//
// # Inputs
//
//   - table: The compiled rule table. A nil table returns the draft as is.
//   - draft: The generated answer text.
//   - query: The user's question.
//
// # Outputs
//
//   - Result: Calibrated text plus the applied corrections.
func Calibrate(table *Table, draft, query string) Result {
	result := Result{Text: draft}
	if table == nil {
		return result
	}

	normalized := Normalize(query + " " + draft)

	var matched []Rule
	for _, rule := range table.rules[SeverityCritical] {
		if rule.Matches(normalized) {
			matched = append(matched, rule)
		}
	}
	for _, tier := range []Severity{SeverityHigh, SeverityLow} {
		for _, rule := range table.rules[tier] {
			if rule.Matches(normalized) {
				matched = append(matched, rule)
				break
			}
		}
	}

	// Fact replacement runs first. When several matched rules calibrate
	// the same kind of value there is no way to tell which number in the
	// draft belongs to which topic, so inline replacement is skipped for
	// that kind and the override paragraphs carry the corrections.
	kindCount := make(map[string]int)
	for _, rule := range matched {
		if fact, ok := table.Fact(rule.Topic); ok {
			if kind := kindFor(fact.Value); kind != "" {
				kindCount[kind]++
			}
		}
	}

	replacedBy := make(map[string]bool)
	for _, rule := range matched {
		fact, ok := table.Fact(rule.Topic)
		if !ok {
			continue
		}
		kind := kindFor(fact.Value)
		if kind == "" || kindCount[kind] > 1 {
			continue
		}
		replaced := patternByKind(kind).ReplaceAllLiteralString(result.Text, fact.Value)
		if replaced != result.Text {
			result.Text = replaced
			replacedBy[rule.ID] = true
		}
	}

	// Overrides append after all replacements so a money fact can never
	// rewrite an earlier rule's override paragraph.
	for _, rule := range matched {
		applied := replacedBy[rule.ID]

		if rule.Override != "" && !strings.Contains(result.Text, rule.Override) {
			if result.Text != "" {
				result.Text = strings.TrimRight(result.Text, "\n") + "\n\n"
			}
			result.Text += rule.Override
			applied = true
		}

		// Critical rules are recorded even when the draft already happened
		// to be correct, so the response surfaces that it was checked.
		if applied || rule.Severity == SeverityCritical {
			result.Corrections = append(result.Corrections, Correction{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Topic:    rule.Topic,
			})
			if rule.Severity == SeverityCritical {
				result.Critical = true
			}
		}
	}

	return result
}

const (
	kindMoney    = "money"
	kindDuration = "duration"
)

// kindFor classifies a calibrated value so a price fact only touches
// prices and a timeline fact only touches time spans.
func kindFor(value string) string {
	if moneyRe.MatchString(value) {
		return kindMoney
	}
	if durationRe.MatchString(value) {
		return kindDuration
	}
	return ""
}

func patternByKind(kind string) *regexp.Regexp {
	if kind == kindMoney {
		return moneyRe
	}
	return durationRe
}
