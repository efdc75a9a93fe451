// Package llm declares the external language-model capabilities the
// question pipeline consumes. Implementations live in internal/services.
package llm

import (
	"context"
	"errors"
	"time"
)

// Failure taxonomy shared by every provider adapter. Adapters wrap the
// provider error with one of these so callers can use errors.Is.
var (
	ErrRateLimited          = errors.New("llm: rate limited")
	ErrAuthenticationFailed = errors.New("llm: authentication failed")
	ErrTimeout              = errors.New("llm: timeout")
	ErrTransport            = errors.New("llm: transport error")
	ErrBadRequest           = errors.New("llm: bad request")
)

type CompletionRequest struct {
	Prompt        string
	SystemMessage string
	MaxTokens     int
	Temperature   float32
	// JSONResponse asks the provider to constrain output to JSON when it supports it.
	JSONResponse bool
}

// Completer submits a prompt and returns the raw model text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type TranscriptionRequest struct {
	Audio    []byte
	Filename string
	Language string
	// Prompt carries context (e.g. the tail of the previous segment) to keep
	// vocabulary and spelling consistent across segments.
	Prompt string
}

type TimedText struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type TranscriptionResult struct {
	Text     string
	Language string
	Duration time.Duration
	Segments []TimedText
}

type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (TranscriptionResult, error)
}

// Kind returns a short label for a classified error, for logs and diagnostics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "transport"
	}
}
