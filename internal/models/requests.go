package models

import "github.com/google/uuid"

type GenerateQuestionsRequest struct {
	RawText             string   `json:"raw_text" validate:"required"`
	Category            string   `json:"category" validate:"required,max=100"`
	Difficulty          string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Count               int      `json:"count" validate:"gte=0,lte=100"`
	Mode                string   `json:"mode" validate:"required,oneof=generate extract_verbatim"`
	Topic               string   `json:"topic" validate:"max=200"`
	DuplicateCheck      *bool    `json:"duplicate_check"`
	SimilarityThreshold *float64 `json:"similarity_threshold" validate:"omitempty,gte=0,lte=1"`
	MaxRetries          *int     `json:"max_retries" validate:"omitempty,gte=0,lte=10"`
	DuplicatePolicy     string   `json:"duplicate_policy" validate:"omitempty,oneof=persist skip"`
	MultipleAnswer      bool     `json:"multiple_answer"`
}

type CheckDuplicateRequest struct {
	Title     string   `json:"title" validate:"required"`
	Body      string   `json:"body" validate:"required"`
	Category  string   `json:"category" validate:"required"`
	Threshold *float64 `json:"threshold" validate:"omitempty,gte=0,lte=1"`
}

type RecordAnswerRequest struct {
	ChoiceID  uuid.UUID `json:"choice_id" validate:"required"`
	SessionID string    `json:"session_id" validate:"required,max=100"`
}

type YouTubeTranscriptRequest struct {
	URL      string `json:"url" validate:"required,max=500"`
	Language string `json:"language" validate:"omitempty,max=10"`
}
