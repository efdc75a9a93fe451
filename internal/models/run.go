package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RunKindGenerate   = "generate"
	RunKindExtract    = "extract_verbatim"
	RunKindTranscript = "transcript"

	RunStatusPending    = "pending"
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// Run records one generation, extraction or transcription request.
type Run struct {
	ID                uuid.UUID       `json:"id"`
	Kind              string          `json:"kind"`
	Status            string          `json:"status"`
	Category          string          `json:"category"`
	Succeeded         int             `json:"succeeded"`
	Failed            int             `json:"failed"`
	SkippedDuplicates int             `json:"skipped_duplicates"`
	RetryCount        int             `json:"retry_count"`
	Config            json.RawMessage `json:"config"`
	Result            json.RawMessage `json:"result,omitempty"`
	ErrorMessage      *string         `json:"error_message"`
	CreatedAt         time.Time       `json:"created_at"`
	CompletedAt       *time.Time      `json:"completed_at"`
}

// Job is the queue payload for a Run; Config holds a GenerationJob or a
// TranscriptJob depending on Type.
type Job struct {
	RunID      uuid.UUID       `json:"run_id"`
	Type       string          `json:"type"`
	Config     json.RawMessage `json:"config"`
	RetryCount int             `json:"retry_count"`
}

type GenerationJob struct {
	RawText             string  `json:"raw_text"`
	Category            string  `json:"category"`
	Difficulty          string  `json:"difficulty,omitempty"`
	Count               int     `json:"count"`
	Mode                string  `json:"mode"`
	Topic               string  `json:"topic,omitempty"`
	DuplicateCheck      bool    `json:"duplicate_check"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	MaxRetries          int     `json:"max_retries"`
	DuplicatePolicy     string  `json:"duplicate_policy,omitempty"`
	MultipleAnswer      bool    `json:"multiple_answer"`
}

// TranscriptJob references either an uploaded file on local disk or a
// YouTube video.
type TranscriptJob struct {
	AudioPath       string  `json:"audio_path,omitempty"`
	Filename        string  `json:"filename,omitempty"`
	VideoID         string  `json:"video_id,omitempty"`
	Language        string  `json:"language,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ProgressUpdate struct {
	RunID    uuid.UUID `json:"run_id"`
	Message  string    `json:"message"`
	Fraction float64   `json:"fraction"`
}

type CompletedEvent struct {
	RunID     uuid.UUID `json:"run_id"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
}

type ErrorEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
