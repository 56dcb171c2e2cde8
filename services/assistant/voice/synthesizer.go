// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package voice renders the final user-facing answer: tone adaptation,
// hedging, citations, abstention text, and the identifier leak scan.
package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/selaras-ai/concierge/services/assistant/calibration"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/scoring"
)

// Request carries everything the synthesizer needs for one answer.
type Request struct {
	// Query is the user's question, used for tone detection.
	Query string

	// Language is "id" (default) or "en".
	Language string

	// Tone is the caller's tone hint; empty means detect from the query.
	Tone datatypes.Tone

	// Draft is the raw model draft, used only when calibration produced
	// no text.
	Draft string

	// Calibration is the calibrated draft plus applied corrections.
	Calibration calibration.Result

	// Assessment is the scorer's verdict; its band decides between a
	// plain answer, a hedged answer, and an abstention.
	Assessment scoring.Assessment

	// Evidence provides the citation sources.
	Evidence []datatypes.EvidenceItem
}

// defaultChunkSize is the streaming chunk target in bytes. Chunks never
// split a UTF-8 rune.
const defaultChunkSize = 64

// Synthesizer assembles final answer text.
//
// # Description
//
// Synthesis is deterministic text assembly with no model call, which is
// what makes the streaming guarantee cheap: SynthesizeStream renders the
// exact same string and chunks it, so the concatenated stream equals the
// non-streaming output byte for byte.
type Synthesizer struct {
	scrubber  *Scrubber
	chunkSize int
}

// NewSynthesizer builds a synthesizer. A nil scrubber gets the defaults.
func NewSynthesizer(scrubber *Scrubber) *Synthesizer {
	if scrubber == nil {
		scrubber = NewScrubber(nil)
	}
	return &Synthesizer{scrubber: scrubber, chunkSize: defaultChunkSize}
}

// Synthesize renders the final answer text and its citations.
//
// # Description
//
// Band rules: ABSTAIN returns the designed refusal with no citations and
// no domain specifics, regardless of what the draft said. HEDGED prefixes
// a verification note and keeps citations. CONFIDENT is the plain answer.
// Critical calibration overrides are part of the calibrated draft and so
// always reach the user on non-abstained answers. All user-facing text
// passes the identifier leak scan.
//
// # Outputs
//
//   - string: The final answer text.
//   - []Citation: One entry per distinct retrieved passage cited.
//   - error: Non-nil only when there is nothing to render.
func (s *Synthesizer) Synthesize(_ context.Context, req Request) (string, []datatypes.Citation, error) {
	if req.Assessment.Band == scoring.BandAbstain {
		return abstentionText(req.Language), nil, nil
	}

	body := req.Calibration.Text
	if body == "" {
		body = req.Draft
	}
	if body == "" {
		return "", nil, fmt.Errorf("nothing to synthesize: empty draft")
	}

	tone := DetectTone(req.Query, req.Tone)
	citations := buildCitations(req.Evidence)

	var sections []string
	if lead := opener(tone, req.Language); lead != "" {
		sections = append(sections, lead)
	}
	if req.Assessment.Band == scoring.BandHedged {
		sections = append(sections, hedgeText(req.Language))
	}
	sections = append(sections, s.scrubber.Scrub(body))
	if section := citationSection(citations, req.Language); section != "" {
		sections = append(sections, section)
	}

	return strings.Join(sections, "\n\n"), citations, nil
}

// StreamFunc receives one chunk of the rendered answer.
type StreamFunc func(chunk string) error

// SynthesizeStream renders the answer and delivers it in chunks.
//
// # Description
//
// The concatenation of all emitted chunks is byte-for-byte equal to the
// Synthesize output for the same request. Chunks split on rune
// boundaries, never inside one.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, req Request, emit StreamFunc) (string, []datatypes.Citation, error) {
	text, citations, err := s.Synthesize(ctx, req)
	if err != nil {
		return "", nil, err
	}

	for _, chunk := range chunkText(text, s.chunkSize) {
		if ctx.Err() != nil {
			return text, citations, ctx.Err()
		}
		if err := emit(chunk); err != nil {
			return text, citations, fmt.Errorf("stream consumer rejected chunk: %w", err)
		}
	}
	return text, citations, nil
}

// buildCitations deduplicates evidence into citation entries, preserving
// retrieval order.
func buildCitations(evidence []datatypes.EvidenceItem) []datatypes.Citation {
	seen := make(map[string]bool, len(evidence))
	var citations []datatypes.Citation
	for _, item := range evidence {
		if item.Source == "" {
			continue
		}
		key := item.Source + "\x00" + item.PassageID
		if seen[key] {
			continue
		}
		seen[key] = true
		citations = append(citations, datatypes.Citation{Source: item.Source, PassageID: item.PassageID})
	}
	return citations
}

func citationSection(citations []datatypes.Citation, language string) string {
	if len(citations) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(citations))
	var sources []string
	for _, c := range citations {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}

	label := "Sumber"
	if language == "en" {
		label = "Sources"
	}
	return label + ": " + strings.Join(sources, ", ")
}

func abstentionText(language string) string {
	if language == "en" {
		return "Sorry, we are not confident enough to answer this with specifics yet. " +
			"Please contact our team so we can verify the details for you first."
	}
	return "Maaf, kami belum cukup yakin untuk menjawab pertanyaan ini secara spesifik. " +
		"Silakan hubungi tim kami agar detailnya dapat kami verifikasi terlebih dahulu."
}

func hedgeText(language string) string {
	if language == "en" {
		return "Based on the information we currently have (please confirm before relying on it):"
	}
	return "Berdasarkan informasi yang kami miliki saat ini (mohon konfirmasi sebelum dijadikan acuan):"
}

// chunkText splits text into chunks of at least size bytes, cutting only
// on rune boundaries.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = defaultChunkSize
	}

	var chunks []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if current.Len() >= size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
