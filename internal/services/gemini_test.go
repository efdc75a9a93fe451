package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"quizforge-backend/internal/llm"
)

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"quota", &googleapi.Error{Code: 429}, llm.ErrRateLimited},
		{"bad key", &googleapi.Error{Code: 403}, llm.ErrAuthenticationFailed},
		{"unauthenticated", &googleapi.Error{Code: 401}, llm.ErrAuthenticationFailed},
		{"gateway timeout", &googleapi.Error{Code: 504}, llm.ErrTimeout},
		{"invalid argument", &googleapi.Error{Code: 400}, llm.ErrBadRequest},
		{"server error", &googleapi.Error{Code: 500}, llm.ErrTransport},
		{"wrapped quota", fmt.Errorf("generate: %w", &googleapi.Error{Code: 429}), llm.ErrRateLimited},
		{"deadline", context.DeadlineExceeded, llm.ErrTimeout},
		{"blocked", &genai.BlockedError{}, llm.ErrBadRequest},
		{"unknown", errors.New("connection reset by peer"), llm.ErrTransport},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyGeminiError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestClassifyGeminiError_Nil(t *testing.T) {
	if classifyGeminiError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestBuildTranscriptionPrompt(t *testing.T) {
	plain := buildTranscriptionPrompt("", "")
	if strings.Contains(plain, "---PREVIOUS---") {
		t.Errorf("first segment must not carry previous text: %q", plain)
	}

	chained := buildTranscriptionPrompt("ja", "前回の講義の最後の文。")
	if !strings.Contains(chained, `"ja"`) {
		t.Errorf("expected language hint, got %q", chained)
	}
	if !strings.Contains(chained, "---PREVIOUS---\n前回の講義の最後の文。\n---END---") {
		t.Errorf("expected previous text block, got %q", chained)
	}
}

func TestAudioMIMEType(t *testing.T) {
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	if got := audioMIMEType(wav); got != "audio/wav" {
		t.Errorf("expected audio/wav, got %q", got)
	}
	if got := audioMIMEType([]byte("plain text, not audio")); got != "audio/mpeg" {
		t.Errorf("expected default audio/mpeg, got %q", got)
	}
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"title":`), genai.Text(`"x"}`)}}},
		{Content: nil},
	}}
	if got := extractText(resp); got != `{"title":"x"}` {
		t.Errorf("unexpected text %q", got)
	}
	if extractText(nil) != "" {
		t.Error("nil response must yield empty text")
	}
}
