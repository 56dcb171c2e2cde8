// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StreamEventType represents the type of streaming event
type StreamEventType string

const (
	StreamEventStatus  StreamEventType = "status"
	StreamEventToken   StreamEventType = "token"
	StreamEventSources StreamEventType = "sources"
	StreamEventDone    StreamEventType = "done"
	StreamEventError   StreamEventType = "error"
)

// SourceInfo is one retrieval source reported by the server
type SourceInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// StreamEvent represents a single streaming event from the answer service.
// Field names and json tags mirror the server wire format so the hash
// chain can be recomputed client-side.
type StreamEvent struct {
	Id         string          `json:"id"`
	Type       StreamEventType `json:"type"`
	CreatedAt  int64           `json:"created_at"`
	Hash       string          `json:"hash"`
	PrevHash   string          `json:"prev_hash"`
	Content    string          `json:"content,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	RequestId  string          `json:"request_id,omitempty"`
	Sources    []SourceInfo    `json:"sources,omitempty"`
	Abstained  bool            `json:"abstained,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// StreamResult contains the complete result of processing a stream
type StreamResult struct {
	Answer     string
	Sources    []SourceInfo
	RequestID  string
	Abstained  bool
	Confidence float64

	// ChainVerified is true when every event's hash checked out and the
	// chain was unbroken from the first event to the last.
	ChainVerified bool
}

// StreamProcessor defines the interface for processing streaming responses.
type StreamProcessor interface {
	// Process reads and processes a streaming response from the reader.
	// Returns the complete answer, sources, verdict, and any error.
	Process(reader io.Reader) (*StreamResult, error)
}

// sseStreamProcessor implements StreamProcessor for Server-Sent Events
type sseStreamProcessor struct {
	writer      io.Writer
	personality PersonalityLevel
	verifier    *ChainVerifier
	spinner     *Spinner
	answer      strings.Builder
	sources     []SourceInfo
}

// NewStreamProcessor creates a new SSE stream processor
func NewStreamProcessor() StreamProcessor {
	return &sseStreamProcessor{
		writer:      os.Stdout,
		personality: GetPersonality().Level,
		verifier:    NewChainVerifier(),
	}
}

// NewStreamProcessorWithWriter creates a stream processor with custom writer (for testing)
func NewStreamProcessorWithWriter(w io.Writer, personality PersonalityLevel) StreamProcessor {
	return &sseStreamProcessor{
		writer:      w,
		personality: personality,
		verifier:    NewChainVerifier(),
	}
}

// Process reads and processes a streaming response
func (p *sseStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)

	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and SSE comments (keepalives)
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}

		// The event: line duplicates the type field inside data:
		if strings.HasPrefix(line, "event: ") {
			continue
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			p.finalize()
			return nil, fmt.Errorf("malformed stream event: %w", err)
		}

		if err := p.verifier.Verify(event); err != nil {
			p.finalize()
			return nil, fmt.Errorf("stream integrity check failed: %w", err)
		}

		switch event.Type {
		case StreamEventStatus:
			p.handleStatus(event.Message)
		case StreamEventToken:
			p.handleToken(event.Content)
		case StreamEventSources:
			p.sources = event.Sources
		case StreamEventDone:
			p.finalize()
			return &StreamResult{
				Answer:        p.answer.String(),
				Sources:       p.sources,
				RequestID:     event.RequestId,
				Abstained:     event.Abstained,
				Confidence:    event.Confidence,
				ChainVerified: p.verifier.Verified(),
			}, nil
		case StreamEventError:
			p.finalize()
			return nil, fmt.Errorf("%s", event.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		p.finalize()
		return nil, err
	}

	// Stream ended without a done event
	p.finalize()
	return nil, fmt.Errorf("stream closed before completion")
}

func (p *sseStreamProcessor) handleStatus(message string) {
	if p.personality == PersonalityMachine {
		fmt.Fprintf(p.writer, "STATUS: %s\n", message)
		return
	}

	// Start or update spinner
	if p.spinner == nil {
		p.spinner = NewSpinner(message)
		p.spinner.Start()
	} else {
		p.spinner.UpdateMessage(message)
	}
}

func (p *sseStreamProcessor) handleToken(token string) {
	// Stop spinner when first token arrives
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
		if p.personality != PersonalityMachine {
			fmt.Fprintln(p.writer)
		}
	}

	p.answer.WriteString(token)

	if p.personality == PersonalityMachine {
		// In machine mode, buffer until done
		return
	}

	fmt.Fprint(p.writer, token)
}

func (p *sseStreamProcessor) finalize() {
	if p.spinner != nil {
		p.spinner.Stop()
		p.spinner = nil
	}

	if p.personality == PersonalityMachine {
		if p.answer.Len() > 0 {
			fmt.Fprintf(p.writer, "ANSWER: %s\n", p.answer.String())
		}
	} else {
		if p.answer.Len() > 0 && !strings.HasSuffix(p.answer.String(), "\n") {
			fmt.Fprintln(p.writer)
		}
	}
}

var _ StreamProcessor = (*sseStreamProcessor)(nil)
