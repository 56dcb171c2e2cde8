// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// =============================================================================
// Mock Server Helpers
// =============================================================================

// newMockOllamaServer creates a test server that returns streaming NDJSON.
func newMockOllamaServer(handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// newTestOllamaClient creates an OllamaClient pointing to a test server,
// bypassing environment variable configuration.
func newTestOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}
}

func userMessage(content string) []datatypes.Message {
	return []datatypes.Message{{Role: "user", Content: content}}
}

// =============================================================================
// ChatStream Integration Tests (with Mock Server)
// =============================================================================

// TestChatStream_BasicSuccess tests successful streaming.
//
// # Description
//
// Verifies that tokens arrive in order and a done event terminates the
// stream.
func TestChatStream_BasicSuccess(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":" world"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	var tokens []string
	var doneSeen bool
	callback := func(event StreamEvent) error {
		switch event.Type {
		case StreamEventToken:
			tokens = append(tokens, event.Content)
		case StreamEventDone:
			doneSeen = true
		}
		return nil
	}

	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{}, callback)
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if got := strings.Join(tokens, ""); got != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", got)
	}
	if !doneSeen {
		t.Error("Expected a done event")
	}
}

// TestChatStream_ServerError tests handling of HTTP errors.
func TestChatStream_ServerError(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(StreamEvent) error { return nil })
	if err == nil {
		t.Fatal("ChatStream should return error for server error")
	}
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient for 500 status, got: %v", err)
	}
}

// TestChatStream_StreamError tests handling of an error chunk mid-stream.
func TestChatStream_StreamError(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"partial"},"done":false}` + "\n"))
		w.Write([]byte(`{"error":"model crashed"}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(StreamEvent) error { return nil })
	if err == nil {
		t.Fatal("ChatStream should return error when stream contains error")
	}
	if !strings.Contains(err.Error(), "model crashed") {
		t.Errorf("Expected stream error message, got: %v", err)
	}
}

// TestChatStream_ContextCancellation tests context cancellation handling.
func TestChatStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"first"},"done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	})
	defer server.Close()
	defer close(release)

	client := newTestOllamaClient(server.URL, "test-model")

	ctx, cancel := context.WithCancel(context.Background())
	callback := func(event StreamEvent) error {
		cancel() // cancel as soon as the first token arrives
		return nil
	}

	err := client.ChatStream(ctx, userMessage("hi"), GenerationParams{}, callback)
	if err == nil {
		t.Fatal("ChatStream should return error on context cancellation")
	}
}

// TestChatStream_CallbackAbort tests callback-initiated abort.
func TestChatStream_CallbackAbort(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"one"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"two"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	abortErr := errors.New("client went away")
	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(StreamEvent) error { return abortErr })
	if err == nil {
		t.Fatal("ChatStream should return error when callback aborts")
	}
	if !errors.Is(err, ErrStreamAborted) {
		t.Errorf("Expected ErrStreamAborted, got: %v", err)
	}
}

// TestChatStream_MalformedJSON tests that malformed lines are skipped.
func TestChatStream_MalformedJSON(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"ok"},"done":false}` + "\n"))
		w.Write([]byte(`{not valid json` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	var tokens []string
	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(event StreamEvent) error {
			if event.Type == StreamEventToken {
				tokens = append(tokens, event.Content)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream should not fail on malformed JSON, got: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "ok" {
		t.Errorf("Expected one token 'ok', got %v", tokens)
	}
}

// TestChatStream_EmptyLines tests handling of empty lines in the stream.
func TestChatStream_EmptyLines(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\n\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":"data"},"done":false}` + "\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	var tokens []string
	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(event StreamEvent) error {
			if event.Type == StreamEventToken {
				tokens = append(tokens, event.Content)
			}
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "data" {
		t.Errorf("Expected one token 'data', got %v", tokens)
	}
}

// TestChatStream_NoDoneChunk verifies a stream that ends without a done
// chunk still completes with a done event.
func TestChatStream_NoDoneChunk(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"tail"},"done":false}` + "\n"))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")

	var doneSeen bool
	err := client.ChatStream(context.Background(), userMessage("hi"), GenerationParams{},
		func(event StreamEvent) error {
			if event.Type == StreamEventDone {
				doneSeen = true
			}
			return nil
		})
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	if !doneSeen {
		t.Error("Expected synthetic done event at stream end")
	}
}

// =============================================================================
// Generate / Chat Tests
// =============================================================================

// TestGenerate_Success tests the non-streaming generate path.
func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"model":"test-model","response":"generated text","done":true}`))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	out, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out != "generated text" {
		t.Errorf("Expected 'generated text', got '%s'", out)
	}
}

// TestChat_Success tests the non-streaming chat path.
func TestChat_Success(t *testing.T) {
	t.Parallel()

	server := newMockOllamaServer(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"chat reply"},"done":true}`))
	})
	defer server.Close()

	client := newTestOllamaClient(server.URL, "test-model")
	out, err := client.Chat(context.Background(), userMessage("hi"), GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if out != "chat reply" {
		t.Errorf("Expected 'chat reply', got '%s'", out)
	}
}

// TestChat_ConnectionRefused verifies connection failures are transient.
func TestChat_ConnectionRefused(t *testing.T) {
	t.Parallel()

	client := newTestOllamaClient("http://127.0.0.1:1", "test-model")
	_, err := client.Chat(context.Background(), userMessage("hi"), GenerationParams{})
	if err == nil {
		t.Fatal("Chat should fail against closed port")
	}
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient for connection failure, got: %v", err)
	}
}
