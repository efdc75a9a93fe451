package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/middleware"
)

type Handlers struct {
	Generation  *handlers.GenerationHandler
	Transcripts *handlers.TranscriptHandler
	Questions   *handlers.QuestionHandler
	Runs        *handlers.RunHandler
	WebSocket   http.HandlerFunc
}

func New(ctx context.Context, h Handlers, frontendURL string, ratePerMinute int) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Generation is the expensive path; everything that queues a run is limited per IP
	runLimiter := middleware.NewRateLimiter(ctx, ratePerMinute, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Question Routes ────
		r.Route("/questions", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(runLimiter.Middleware)
				r.Post("/generate", h.Generation.Generate)
				r.Post("/generate/upload", h.Generation.Upload)
			})

			r.Post("/check-duplicate", h.Questions.CheckDuplicate)
			r.Get("/", h.Questions.List)
			r.Get("/{id}", h.Questions.Get)
			r.Delete("/{id}", h.Questions.Delete)
			r.Post("/{id}/answers", h.Questions.RecordAnswer)
		})

		// ──── Category Routes ────
		r.Get("/categories/{category}/stats", h.Questions.CategoryStats)

		// ──── Transcript Routes ────
		r.Route("/transcripts", func(r chi.Router) {
			r.Use(runLimiter.Middleware)
			r.Post("/", h.Transcripts.Upload)
			r.Post("/youtube", h.Transcripts.YouTube)
		})

		// ──── Run Routes ────
		r.Get("/runs/{id}", h.Runs.Get)

		// ──── WebSocket ────
		r.Get("/ws", h.WebSocket)
	})

	return r
}
