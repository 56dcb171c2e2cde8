// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reason

import (
	"fmt"
	"sort"
	"strings"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
	"github.com/selaras-ai/concierge/services/assistant/tools"
)

const actionSystemPrompt = `You are the reasoning controller for an Indonesian business services assistant (company formation, visas and immigration, legal, tax).

Each turn, respond with exactly one action in this shape:

THOUGHT: <one line of reasoning>
ACTION: SEARCH <collection> | <search query>

or

THOUGHT: <one line of reasoning>
ACTION: TOOL <tool name> | <param>=<value>; <param>=<value>

or, when you have enough information:

THOUGHT: <one line of reasoning>
ACTION: CONCLUDE
ANSWER: <your full answer>

Search before you answer questions about prices, regulations, or timelines. Never invent prices. If the gathered evidence does not answer the question, conclude and say what is missing.`

const conclusionSystemPrompt = `You are an assistant for an Indonesian business services firm (company formation, visas and immigration, legal, tax). Write the final answer to the user's question using only the evidence and tool results below. Cite nothing that is not in the evidence. If the evidence is insufficient, say so plainly. Answer in the user's language.`

// actionMessages builds the chat for one action-selection turn.
func actionMessages(query, memoryContext string, defs []tools.Definition, trace *datatypes.ReasoningTrace) []datatypes.Message {
	var sb strings.Builder
	sb.WriteString(actionSystemPrompt)

	sb.WriteString("\n\nCollections: ")
	sb.WriteString(strings.Join(datatypes.KnownCollections(), ", "))
	sb.WriteString(".")

	if len(defs) > 0 {
		sb.WriteString("\n\nTools:")
		for _, def := range defs {
			sb.WriteString(fmt.Sprintf("\n- %s: %s", def.Name, def.Description))
			if len(def.Parameters) > 0 {
				sb.WriteString(" Params: ")
				sb.WriteString(strings.Join(paramNames(def), ", "))
				sb.WriteString(".")
			}
		}
	}

	messages := []datatypes.Message{{Role: "system", Content: sb.String()}}
	messages = append(messages, datatypes.Message{Role: "user", Content: userTurn(query, memoryContext, trace)})
	return messages
}

// conclusionMessages builds the chat for the final capable-tier draft.
func conclusionMessages(query, memoryContext string, trace *datatypes.ReasoningTrace) []datatypes.Message {
	return []datatypes.Message{
		{Role: "system", Content: conclusionSystemPrompt},
		{Role: "user", Content: userTurn(query, memoryContext, trace)},
	}
}

func userTurn(query, memoryContext string, trace *datatypes.ReasoningTrace) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)

	if memoryContext != "" {
		sb.WriteString("\n\nKnown about this user:\n")
		sb.WriteString(memoryContext)
	}

	if transcript := transcript(trace); transcript != "" {
		sb.WriteString("\n\nSteps so far:\n")
		sb.WriteString(transcript)
	}

	if evidence := formatEvidence(trace.Evidence); evidence != "" {
		sb.WriteString("\n\nEvidence:\n")
		sb.WriteString(evidence)
	}
	return sb.String()
}

func transcript(trace *datatypes.ReasoningTrace) string {
	if trace == nil || len(trace.Steps) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, step := range trace.Steps {
		if step.Thought != "" {
			fmt.Fprintf(&sb, "THOUGHT: %s\n", step.Thought)
		}
		if step.Action != "" {
			fmt.Fprintf(&sb, "ACTION: %s\n", step.Action)
		}
		fmt.Fprintf(&sb, "OBSERVATION: %s\n", step.Observation)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// maxPassageChars keeps a single long passage from crowding the prompt.
const maxPassageChars = 600

func formatEvidence(items []datatypes.EvidenceItem) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, item := range items {
		passage := item.Passage
		if len(passage) > maxPassageChars {
			passage = passage[:maxPassageChars] + "..."
		}
		fmt.Fprintf(&sb, "[%d] (%s, %s) %s\n", i+1, item.Collection, item.Source, passage)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func paramNames(def tools.Definition) []string {
	names := make([]string, 0, len(def.Parameters))
	for name := range def.Parameters {
		names = append(names, name)
	}
	// Parameters is a map; sort for stable prompting.
	sort.Strings(names)
	return names
}
