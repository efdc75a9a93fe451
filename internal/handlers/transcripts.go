package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/services"
	"quizforge-backend/internal/worker"
)

type TranscriptHandler struct {
	launcher
	uploadDir      string
	maxUploadBytes int64
}

func NewTranscriptHandler(runs RunStore, queue JobQueue, uploadDir string, maxUploadBytes int64, log *logger.Logger) *TranscriptHandler {
	return &TranscriptHandler{
		launcher:       launcher{runs: runs, queue: queue, log: log.With("handler", "transcripts")},
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload stores an audio or video file for the worker and queues its
// transcription. Optional form fields: language, duration_seconds.
func (h *TranscriptHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("UPLOAD_TOO_LARGE", "Upload is too large or malformed", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{"file": "is required"}, r))
		return
	}
	defer file.Close()

	mt, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Failed to read uploaded file", r))
		return
	}
	if !isMedia(mt) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_MEDIA", fmt.Sprintf("expected audio or video, got %s", mt.String()), r))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to read uploaded file", r))
		return
	}

	cfg := models.TranscriptJob{
		Filename: filepath.Base(header.Filename),
		Language: strings.TrimSpace(r.FormValue("language")),
	}
	if v := r.FormValue("duration_seconds"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{"duration_seconds": "must be a non-negative number"}, r))
			return
		}
		cfg.DurationSeconds = secs
	}

	path, err := h.save(file, cfg.Filename, mt.Extension())
	if err != nil {
		h.log.Error("failed to store upload", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store upload", r))
		return
	}
	cfg.AudioPath = path

	h.launch(w, r, models.RunKindTranscript, "", worker.JobTranscript, cfg)
}

// YouTube queues a transcript run for a video URL or bare id.
func (h *TranscriptHandler) YouTube(w http.ResponseWriter, r *http.Request) {
	var req models.YouTubeTranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	videoID, err := services.VideoID(req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", map[string]string{"url": "is not a YouTube video"}, r))
		return
	}

	h.launch(w, r, models.RunKindTranscript, "", worker.JobTranscript, models.TranscriptJob{
		VideoID:  videoID,
		Language: strings.TrimSpace(req.Language),
	})
}

func (h *TranscriptHandler) save(src io.Reader, filename, sniffedExt string) (string, error) {
	dir := filepath.Join(h.uploadDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = sniffedExt
	}
	path := filepath.Join(dir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func isMedia(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || strings.HasPrefix(m.String(), "video/") {
			return true
		}
	}
	return false
}
