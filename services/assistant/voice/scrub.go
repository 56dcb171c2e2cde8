// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package voice

import (
	"regexp"
	"sort"
	"strings"
)

// Scrubber removes internal component and tool identifiers from
// user-facing text. The model occasionally narrates its own machinery
// ("pricing_lookup returned..."); users should see plain language.
type Scrubber struct {
	patterns []scrubPattern
}

type scrubPattern struct {
	re          *regexp.Regexp
	replacement string
}

// defaultScrubRules maps internal identifiers to user-facing phrasing.
// Keys are matched case-insensitively on word boundaries.
var defaultScrubRules = map[string]string{
	"pricing_lookup":    "our price list",
	"directory_lookup":  "our staff directory",
	"calculator":        "a calculation",
	"KnowledgeChunk":    "our knowledge base",
	"Weaviate":          "our knowledge base",
	"BM25":              "our knowledge base",
	"NearVector":        "our knowledge base",
	"retrieval gateway": "our knowledge base",
	"reasoning loop":    "our review process",
	"trusted tool":      "a verified source",
}

// NewScrubber builds a scrubber from the default rules plus any extras.
// Extra rules override defaults for the same identifier.
func NewScrubber(extra map[string]string) *Scrubber {
	rules := make(map[string]string, len(defaultScrubRules)+len(extra))
	for k, v := range defaultScrubRules {
		rules[k] = v
	}
	for k, v := range extra {
		rules[k] = v
	}

	// Stable pattern order so every scrubber built from the same rules
	// produces identical output.
	identifiers := make([]string, 0, len(rules))
	for identifier := range rules {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	scrubber := &Scrubber{}
	for _, identifier := range identifiers {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(identifier) + `\b`)
		scrubber.patterns = append(scrubber.patterns, scrubPattern{re: re, replacement: rules[identifier]})
	}
	return scrubber
}

// Scrub replaces every internal identifier occurrence and collapses the
// doubled spaces replacement can leave behind.
func (s *Scrubber) Scrub(text string) string {
	for _, p := range s.patterns {
		text = p.re.ReplaceAllLiteralString(text, p.replacement)
	}
	return strings.ReplaceAll(text, "  ", " ")
}
