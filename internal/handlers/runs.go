package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/repository"
)

type RunStore interface {
	Create(ctx context.Context, kind, category string, config json.RawMessage) (models.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Run, error)
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

type JobQueue interface {
	Push(ctx context.Context, job models.Job) error
}

// launcher records a pending run and hands it to the worker queue.
type launcher struct {
	runs  RunStore
	queue JobQueue
	log   *logger.Logger
}

func (l launcher) launch(w http.ResponseWriter, r *http.Request, kind, category, jobType string, cfg interface{}) {
	configBytes, err := json.Marshal(cfg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to encode run config", r))
		return
	}

	run, err := l.runs.Create(r.Context(), kind, category, configBytes)
	if err != nil {
		l.log.Error("failed to create run", "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create run", r))
		return
	}

	job := models.Job{RunID: run.ID, Type: jobType, Config: configBytes}
	if err := l.queue.Push(r.Context(), job); err != nil {
		l.log.Error("failed to enqueue run", "run_id", run.ID, "error", err)
		if failErr := l.runs.Fail(r.Context(), run.ID, "failed to enqueue: "+err.Error()); failErr != nil {
			l.log.Warn("failed to mark run failed", "run_id", run.ID, "error", failErr)
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Failed to queue run", r))
		return
	}

	l.log.Info("run queued", "run_id", run.ID, "kind", kind)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
		"ws_url": "/api/v1/ws?run_id=" + run.ID.String(),
	})
}

type RunHandler struct {
	runs RunStore
}

func NewRunHandler(runs RunStore) *RunHandler {
	return &RunHandler{runs: runs}
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid run ID", r))
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Run not found", r))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load run", r))
		return
	}

	writeJSON(w, http.StatusOK, run)
}
