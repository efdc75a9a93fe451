package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quality"
	"quizforge-backend/internal/repository"
)

type QuestionReader interface {
	List(ctx context.Context, category string, limit, offset int) ([]models.Question, int, error)
	GetWithChoices(ctx context.Context, id uuid.UUID) (models.QuestionWithChoices, error)
	DeleteQuestion(ctx context.Context, id uuid.UUID) (bool, error)
}

type AnswerRecorder interface {
	Create(ctx context.Context, questionID, choiceID uuid.UUID, sessionID string) (models.AnswerRecord, error)
}

type DuplicateService interface {
	Check(ctx context.Context, title, body, category string, threshold float64) (quality.CheckResult, error)
	CategoryStats(ctx context.Context, category string) (models.CategoryStats, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type QuestionHandler struct {
	questions        QuestionReader
	answers          AnswerRecorder
	duplicates       DuplicateService
	defaultThreshold float64
	log              *logger.Logger
}

func NewQuestionHandler(questions QuestionReader, answers AnswerRecorder, duplicates DuplicateService, defaultThreshold float64, log *logger.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions:        questions,
		answers:          answers,
		duplicates:       duplicates,
		defaultThreshold: defaultThreshold,
		log:              log.With("handler", "questions"),
	}
}

func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	questions, total, err := h.questions.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("category")), limit, offset)
	if err != nil {
		h.log.Error("failed to list questions", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list questions", r))
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": questions,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	q, err := h.questions.GetWithChoices(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load question", r))
		return
	}

	writeJSON(w, http.StatusOK, q)
}

func (h *QuestionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	deleted, err := h.questions.DeleteQuestion(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete question", r))
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Question not found", r))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req models.CheckDuplicateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	threshold := h.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	result, err := h.duplicates.Check(r.Context(), req.Title, req.Body, strings.TrimSpace(req.Category), threshold)
	if err != nil {
		h.log.Error("duplicate check failed", "category", req.Category, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Duplicate check failed", r))
		return
	}
	if result.Matches == nil {
		result.Matches = []quality.Match{}
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *QuestionHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := questionID(w, r)
	if !ok {
		return
	}

	var req models.RecordAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.answers.Create(r.Context(), id, req.ChoiceID, req.SessionID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Choice not found for this question", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record answer", r))
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *QuestionHandler) CategoryStats(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(chi.URLParam(r, "category"))
	if category == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Category is required", r))
		return
	}

	stats, err := h.duplicates.CategoryStats(r.Context(), category)
	if err != nil {
		h.log.Error("failed to compute category stats", "category", category, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to compute stats", r))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func questionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid question ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
