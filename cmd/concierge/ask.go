// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/selaras-ai/concierge/pkg/ux"
	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

var (
	askSession      string
	askLanguage     string
	askTone         string
	askCollection   string
	askNoStream     bool
	askTrustedTools bool
	askMaxSteps     int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the concierge a question",
	Long: `Ask sends a question to the concierge service and prints the answer
with its sources and confidence. The question can be given as arguments
or piped on stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question, err := readQuestion(args)
		if err != nil {
			return err
		}
		return runAsk(question)
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id for conversational context")
	askCmd.Flags().StringVar(&askLanguage, "lang", "", "Answer language (id or en, default inferred)")
	askCmd.Flags().StringVar(&askTone, "tone", "", "Answer tone (professional, casual, urgent, educational)")
	askCmd.Flags().StringVar(&askCollection, "collection", "", "Restrict retrieval to one collection")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "Wait for the complete answer instead of streaming")
	askCmd.Flags().BoolVar(&askTrustedTools, "trusted-tools", true, "Allow trusted tool lookups")
	askCmd.Flags().IntVar(&askMaxSteps, "max-steps", 0, "Reasoning step budget (0 uses the server default)")
}

// readQuestion takes the question from arguments, or from stdin when
// input is piped in.
func readQuestion(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("no question given; pass it as arguments or pipe it on stdin")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	question := strings.TrimSpace(string(data))
	if question == "" {
		return "", fmt.Errorf("stdin was empty")
	}
	return question, nil
}

func askRequestBody(question string) ([]byte, error) {
	req := datatypes.AnswerRequest{
		Query:     question,
		SessionID: askSession,
		Language:  askLanguage,
		Options: datatypes.AnswerOptions{
			TrustedToolsEnabled: askTrustedTools,
			MaxSteps:            askMaxSteps,
			Stream:              !askNoStream,
			Tone:                datatypes.Tone(askTone),
			Collection:          askCollection,
		},
	}
	return json.Marshal(req)
}

func runAsk(question string) error {
	body, err := askRequestBody(question)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Minute}

	if askNoStream {
		return askPlain(client, body)
	}
	return askStreaming(client, body)
}

func askStreaming(client *http.Client, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, config.ServerURL+"/v1/answer/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("concierge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp)
	}

	result, err := ux.NewStreamProcessor().Process(resp.Body)
	if err != nil {
		return err
	}

	printVerdict(result.Confidence, result.Abstained, result.Sources)
	if !result.ChainVerified {
		ux.Warning("stream integrity could not be verified")
	}
	return nil
}

func askPlain(client *http.Client, body []byte) error {
	resp, err := client.Post(config.ServerURL+"/v1/answer", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("concierge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp)
	}

	var answer datatypes.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}

	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Printf("ANSWER: %s\n", answer.Text)
	} else {
		fmt.Println(answer.Text)
	}

	sources := make([]ux.SourceInfo, 0, len(answer.Citations))
	for _, citation := range answer.Citations {
		sources = append(sources, ux.SourceInfo{Source: citation.Source})
	}
	printVerdict(answer.Confidence, answer.Abstained, sources)
	return nil
}

func printVerdict(confidence float64, abstained bool, sources []ux.SourceInfo) {
	if ux.GetPersonality().ShowSources && len(sources) > 0 {
		ux.Muted("\nsources:")
		for _, source := range sources {
			ux.SourceLine(source.Source, source.Score)
		}
	}
	ux.Confidence(confidence, abstained)
}

func serviceError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("service returned %d", resp.StatusCode)
}
