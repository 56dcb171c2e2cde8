package llm

import (
	"context"
	"errors"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ErrTransient marks provider failures that are worth a single retry:
// connection failures, timeouts, and 5xx responses. Callers test with
// errors.Is; anything not wrapping ErrTransient is unrecoverable.
var ErrTransient = errors.New("transient llm provider failure")

// ErrStreamAborted is returned by ChatStream when the callback asked to
// stop the stream by returning an error.
var ErrStreamAborted = errors.New("stream aborted by callback")

// StreamEventType discriminates streaming events.
type StreamEventType int

const (
	// StreamEventToken carries a content token in Content.
	StreamEventToken StreamEventType = iota
	// StreamEventDone signals the end of the stream.
	StreamEventDone
)

// StreamEvent is a single event emitted during streaming generation.
type StreamEvent struct {
	Type    StreamEventType
	Content string
}

// StreamCallback receives streaming events. Returning a non-nil error
// aborts the stream; ChatStream then returns an error wrapping
// ErrStreamAborted.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams,
		callback StreamCallback) error
}
