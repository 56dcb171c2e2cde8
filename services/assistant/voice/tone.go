// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package voice

import (
	"strings"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// Keyword lists for tone detection, Indonesian first. Matching is
// substring-based over the lowercased query; order of the checks is the
// priority order when a query mixes signals.
var (
	urgentMarkers = []string{
		"urgent", "segera", "asap", "secepatnya", "hari ini",
		"besok", "deadline", "tenggat", "emergency", "darurat",
	}
	educationalMarkers = []string{
		"jelaskan", "apa itu", "apa bedanya", "bagaimana cara",
		"mengapa", "kenapa", "explain", "what is", "how does", "why",
	}
	casualMarkers = []string{
		"halo", "hai", "hei", "gimana", "makasih", "thanks",
		"hey", "btw", "dong", "nih",
	}
)

// DetectTone picks a response tone from query heuristics.
//
// # Description
//
// An explicit hint always wins. Otherwise urgency markers beat
// educational markers beat casual markers, and everything else is
// professional. Deterministic; same query, same tone.
func DetectTone(query string, hint datatypes.Tone) datatypes.Tone {
	switch hint {
	case datatypes.ToneProfessional, datatypes.ToneCasual, datatypes.ToneUrgent, datatypes.ToneEducational:
		return hint
	}

	lowered := strings.ToLower(query)
	for _, marker := range urgentMarkers {
		if strings.Contains(lowered, marker) {
			return datatypes.ToneUrgent
		}
	}
	for _, marker := range educationalMarkers {
		if strings.Contains(lowered, marker) {
			return datatypes.ToneEducational
		}
	}
	for _, marker := range casualMarkers {
		if strings.Contains(lowered, marker) {
			return datatypes.ToneCasual
		}
	}
	return datatypes.ToneProfessional
}

// opener returns the tone's lead-in line, or "" for none.
func opener(tone datatypes.Tone, language string) string {
	english := language == "en"
	switch tone {
	case datatypes.ToneUrgent:
		if english {
			return "Straight to the point:"
		}
		return "Langsung ke intinya:"
	case datatypes.ToneCasual:
		if english {
			return "Happy to help!"
		}
		return "Siap, kami bantu!"
	case datatypes.ToneEducational:
		if english {
			return "Here is a short explanation."
		}
		return "Berikut penjelasan singkatnya."
	}
	return ""
}
