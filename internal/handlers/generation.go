package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/services"
	"quizforge-backend/internal/worker"
)

type DocumentExtractor interface {
	ExtractText(data []byte, filename string, method services.ExtractMethod) (string, error)
}

// GenerationDefaults fill request fields the client left out.
type GenerationDefaults struct {
	SimilarityThreshold float64
	MaxRetries          int
	MaxUploadBytes      int64
}

type GenerationHandler struct {
	launcher
	documents DocumentExtractor
	defaults  GenerationDefaults
}

func NewGenerationHandler(runs RunStore, queue JobQueue, documents DocumentExtractor, defaults GenerationDefaults, log *logger.Logger) *GenerationHandler {
	return &GenerationHandler{
		launcher:  launcher{runs: runs, queue: queue, log: log.With("handler", "generation")},
		documents: documents,
		defaults:  defaults,
	}
}

// Generate queues a run over raw text posted as JSON.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQuestionsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.RawText) == "" {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{"raw_text": "is required"}, r))
		return
	}

	h.launch(w, r, runKind(req.Mode), req.Category, worker.JobGeneration, h.jobConfig(req))
}

// Upload queues a run over the text of an uploaded .pdf, .txt or .docx file.
// Options travel as form fields named like the JSON request.
func (h *GenerationHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.defaults.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{"file": "is required"}, r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read uploaded file", r))
		return
	}

	req, fields := generateRequestFromForm(r)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	method := services.ExtractMethod(r.FormValue("extract_method"))
	text, err := h.documents.ExtractText(data, header.Filename, method)
	switch {
	case errors.Is(err, services.ErrUnsupportedDocument):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_DOCUMENT", err.Error(), r))
		return
	case errors.Is(err, services.ErrNoDocumentText):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("EMPTY_INPUT", err.Error(), r))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read document", r))
		return
	}
	req.RawText = text

	if !validateRequest(w, r, &req) {
		return
	}

	h.launch(w, r, runKind(req.Mode), req.Category, worker.JobGeneration, h.jobConfig(req))
}

func (h *GenerationHandler) jobConfig(req models.GenerateQuestionsRequest) models.GenerationJob {
	cfg := models.GenerationJob{
		RawText:             req.RawText,
		Category:            strings.TrimSpace(req.Category),
		Difficulty:          req.Difficulty,
		Count:               req.Count,
		Mode:                req.Mode,
		Topic:               req.Topic,
		DuplicateCheck:      true,
		SimilarityThreshold: h.defaults.SimilarityThreshold,
		MaxRetries:          h.defaults.MaxRetries,
		DuplicatePolicy:     req.DuplicatePolicy,
		MultipleAnswer:      req.MultipleAnswer,
	}
	if req.DuplicateCheck != nil {
		cfg.DuplicateCheck = *req.DuplicateCheck
	}
	if req.SimilarityThreshold != nil {
		cfg.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	return cfg
}

func runKind(mode string) string {
	if models.Mode(mode) == models.ModeExtractVerbatim {
		return models.RunKindExtract
	}
	return models.RunKindGenerate
}

func generateRequestFromForm(r *http.Request) (models.GenerateQuestionsRequest, map[string]string) {
	fields := map[string]string{}
	req := models.GenerateQuestionsRequest{
		Category:        r.FormValue("category"),
		Difficulty:      r.FormValue("difficulty"),
		Mode:            r.FormValue("mode"),
		Topic:           r.FormValue("topic"),
		DuplicatePolicy: r.FormValue("duplicate_policy"),
	}

	if v := r.FormValue("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields["count"] = "must be an integer"
		}
		req.Count = n
	}
	if v := r.FormValue("max_retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields["max_retries"] = "must be an integer"
		}
		req.MaxRetries = &n
	}
	if v := r.FormValue("similarity_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fields["similarity_threshold"] = "must be a number"
		}
		req.SimilarityThreshold = &f
	}
	if v := r.FormValue("duplicate_check"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["duplicate_check"] = fmt.Sprintf("invalid boolean %q", v)
		}
		req.DuplicateCheck = &b
	}
	if v := r.FormValue("multiple_answer"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fields["multiple_answer"] = fmt.Sprintf("invalid boolean %q", v)
		}
		req.MultipleAnswer = b
	}

	return req, fields
}
