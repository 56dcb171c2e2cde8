// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring computes the evidence confidence that gates every answer.
//
// The scorer is pure and deterministic: identical inputs always produce the
// identical assessment, with no I/O and no randomness. This is the safety
// gate that decides whether the assistant may state regulated facts.
package scoring

import (
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// Scoring constants. topSimilarity dominates; corroboration from extra
// independent sources adds at most 0.30.
const (
	similarityWeight    = 0.70
	corroborationWeight = 0.15
	maxCorroboration    = 2

	// unverifiedDomainFloor applies when a domain needs no verification
	// and retrieval found nothing: the answer is allowed but hedged.
	unverifiedDomainFloor = 0.45

	// degradedCap bounds confidence when the retrieval index was
	// unavailable during the request.
	degradedCap = 0.50
)

// Band classifies an assessment against the confidence thresholds.
type Band string

const (
	// BandAbstain means the engine must refuse a substantive answer.
	BandAbstain Band = "ABSTAIN"
	// BandHedged means answer with hedging language and citations.
	BandHedged Band = "HEDGED"
	// BandConfident means answer plainly.
	BandConfident Band = "CONFIDENT"
)

// Options carries the request-scoped scoring inputs.
//
// # Fields
//
//   - RequiresVerification: True when any routed collection is a regulated
//     domain. Unverified domains get a floor instead of an abstention when
//     evidence is empty.
//   - RetrievalDegraded: True when the index was unreachable at any point
//     during the request. Caps the score at 0.50.
//   - TrustedToolsEnabled: When false, trusted tool successes no longer
//     force full confidence.
//   - BudgetExhausted: True when the reasoning loop hit its step budget
//     before concluding. The draft is a best partial, so the score is
//     capped at the confident threshold and the band is at most HEDGED.
type Options struct {
	RequiresVerification bool
	RetrievalDegraded    bool
	TrustedToolsEnabled  bool
	BudgetExhausted      bool
}

// Assessment is the scorer's verdict on one answer draft.
type Assessment struct {
	// Score is the final confidence in [0, 1].
	Score float64 `json:"score"`

	// Band is the threshold classification of Score.
	Band Band `json:"band"`

	// TrustedOverride is true when a successful trusted tool forced the
	// score to 1.0.
	TrustedOverride bool `json:"trusted_override"`

	// Capped is true when the degraded-retrieval cap lowered the score.
	Capped bool `json:"capped"`

	// BudgetLimited is true when step-budget exhaustion lowered the score.
	BudgetLimited bool `json:"budget_limited"`

	// TopSimilarity is the best evidence score seen.
	TopSimilarity float64 `json:"top_similarity"`

	// IndependentSources is the number of distinct evidence sources.
	IndependentSources int `json:"independent_sources"`
}

// Score computes the confidence assessment for a set of evidence and tool
// outcomes.
//
// # Description
//
// Pure function: no I/O, no clock, no randomness. Any successful outcome
// from a trusted tool forces the score to 1.0 regardless of evidence
// (unless trusted tools are disabled for the request). Otherwise the score
// is similarityWeight * topSimilarity plus a corroboration bonus for
// additional independent sources, clamped to [0, 1].
//
// Precedence when inputs combine: the trusted override wins over the
// degraded cap (an authoritative tool answered; the broken index is
// irrelevant), and the cap applies after the unverified-domain floor.
// Budget exhaustion caps last and beats even the trusted override: the
// shipped draft is partial no matter how good its evidence was.
//
// # Inputs
//
//   - evidence: Retrieved passages with blended scores.
//   - outcomes: Tool executions observed during the reasoning loop.
//   - opts: Request-scoped policy switches.
//
// # Outputs
//
//   - Assessment: The verdict. Band reflects the final score after floors
//     and caps.
func Score(evidence []datatypes.EvidenceItem, outcomes []datatypes.ToolOutcome, opts Options) Assessment {
	assessment := Assessment{}

	if opts.TrustedToolsEnabled {
		for _, outcome := range outcomes {
			if outcome.Trusted && outcome.Success {
				assessment.TrustedOverride = true
				assessment.Score = applyBudgetCap(1.0, opts, &assessment)
				assessment.Band = bandFor(assessment.Score)
				return assessment
			}
		}
	}

	sources := make(map[string]bool)
	for _, item := range evidence {
		if item.Score > assessment.TopSimilarity {
			assessment.TopSimilarity = item.Score
		}
		if item.Source != "" {
			sources[item.Source] = true
		}
	}
	assessment.IndependentSources = len(sources)

	score := 0.0
	if len(evidence) > 0 {
		corroboration := assessment.IndependentSources - 1
		if corroboration < 0 {
			corroboration = 0
		}
		if corroboration > maxCorroboration {
			corroboration = maxCorroboration
		}
		score = similarityWeight*assessment.TopSimilarity + corroborationWeight*float64(corroboration)
	} else if !opts.RequiresVerification {
		score = unverifiedDomainFloor
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	if opts.RetrievalDegraded && score > degradedCap {
		score = degradedCap
		assessment.Capped = true
	}

	score = applyBudgetCap(score, opts, &assessment)

	assessment.Score = score
	assessment.Band = bandFor(score)
	return assessment
}

// applyBudgetCap keeps a partial draft out of the CONFIDENT band. Capping
// to exactly the confident threshold lands in HEDGED, so the synthesizer
// hedges the answer.
func applyBudgetCap(score float64, opts Options, assessment *Assessment) float64 {
	if opts.BudgetExhausted && score > datatypes.ConfidentThreshold {
		assessment.BudgetLimited = true
		return datatypes.ConfidentThreshold
	}
	return score
}

func bandFor(score float64) Band {
	switch {
	case score < datatypes.AbstainThreshold:
		return BandAbstain
	case score <= datatypes.ConfidentThreshold:
		return BandHedged
	default:
		return BandConfident
	}
}
