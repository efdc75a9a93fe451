package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/logger"
)

// GeminiService adapts the Gemini API to llm.Completer and llm.Transcriber.
type GeminiService struct {
	client    *genai.Client
	modelName string
	log       *logger.Logger
	rateChan  chan struct{} // Token bucket
}

var (
	_ llm.Completer   = (*GeminiService)(nil)
	_ llm.Transcriber = (*GeminiService)(nil)
)

func NewGeminiService(apiKey, modelName string, concurrentReqs int, log *logger.Logger) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:    client,
		modelName: modelName,
		log:       log.With("service", "GeminiService"),
		rateChan:  rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for Gemini rate slot: %w", llm.ErrTimeout)
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot: %w", llm.ErrRateLimited)
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Complete sends one prompt and returns the raw model text.
func (s *GeminiService) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(req.Temperature)
	model.SetTopP(0.95)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.SystemMessage != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemMessage))
	}
	if req.JSONResponse {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.Warn("Gemini candidate did not stop cleanly", "candidate", i, "finish_reason", cand.FinishReason.String(), "tokens", cand.TokenCount)
		}
	}

	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini returned empty text: %w", llm.ErrTransport)
	}
	return text, nil
}

// Transcribe uploads the audio through the File API and asks for a verbatim
// transcript. The remote file is deleted afterwards.
func (s *GeminiService) Transcribe(ctx context.Context, req llm.TranscriptionRequest) (llm.TranscriptionResult, error) {
	if len(req.Audio) == 0 {
		return llm.TranscriptionResult{}, fmt.Errorf("audio payload is empty: %w", llm.ErrBadRequest)
	}

	if err := s.acquireRate(ctx); err != nil {
		return llm.TranscriptionResult{}, err
	}
	defer s.releaseRate()

	mimeType := audioMIMEType(req.Audio)

	file, err := s.client.UploadFile(ctx, "", bytes.NewReader(req.Audio), &genai.UploadFileOptions{
		DisplayName: req.Filename,
		MIMEType:    mimeType,
	})
	if err != nil {
		return llm.TranscriptionResult{}, fmt.Errorf("failed to upload audio to Gemini: %w", classifyGeminiError(err))
	}

	// Ensure remote file is cleaned up
	defer func() {
		if err := s.client.DeleteFile(context.Background(), file.Name); err != nil {
			s.log.Warn("failed to delete uploaded audio", "file", file.Name, "error", err)
		}
	}()

	// Wait until file is active
	for i := 0; i < 20 && file.State != genai.FileStateActive; i++ {
		current, getErr := s.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return llm.TranscriptionResult{}, fmt.Errorf("failed to get uploaded file status: %w", classifyGeminiError(getErr))
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return llm.TranscriptionResult{}, fmt.Errorf("Gemini failed to process uploaded audio file: %w", llm.ErrBadRequest)
		}

		select {
		case <-ctx.Done():
			return llm.TranscriptionResult{}, fmt.Errorf("waiting for uploaded audio: %w", llm.ErrTimeout)
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return llm.TranscriptionResult{}, fmt.Errorf("audio file did not become active in time: %w", llm.ErrTimeout)
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.Text(buildTranscriptionPrompt(req.Language, req.Prompt)),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
	if err != nil {
		return llm.TranscriptionResult{}, fmt.Errorf("Gemini transcription error: %w", classifyGeminiError(err))
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return llm.TranscriptionResult{}, fmt.Errorf("Gemini returned empty transcription: %w", llm.ErrTransport)
	}

	return llm.TranscriptionResult{Text: text, Language: req.Language}, nil
}

func buildTranscriptionPrompt(language, previous string) string {
	var b strings.Builder
	b.WriteString("Transcribe the provided audio verbatim. Return plain text only, without markdown, headers, timestamps, or explanations.")
	if language != "" {
		b.WriteString(fmt.Sprintf("\nThe audio is spoken in %q; transcribe in that language.", language))
	}
	if previous != "" {
		b.WriteString("\nThe audio continues from a previous segment that ended with the text below. Keep spelling and terminology consistent with it, and do not repeat it.\n---PREVIOUS---\n")
		b.WriteString(previous)
		b.WriteString("\n---END---")
	}
	return b.String()
}

// audioMIMEType sniffs the payload; the File API rejects generic types.
func audioMIMEType(data []byte) string {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || strings.HasPrefix(m.String(), "video/") {
			return strings.TrimSpace(strings.Split(mt.String(), ";")[0])
		}
	}
	return "audio/mpeg"
}

// classifyGeminiError maps provider failures onto the llm taxonomy.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", llm.ErrBadRequest, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", llm.ErrAuthenticationFailed, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %v", llm.ErrTimeout, err)
		case http.StatusBadRequest, http.StatusNotFound, http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %v", llm.ErrBadRequest, err)
		}
	}
	return fmt.Errorf("%w: %v", llm.ErrTransport, err)
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
