package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizforge-backend/internal/generation"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
)

var errBadJob = errors.New("malformed job")

type Generator interface {
	GenerateQuestions(ctx context.Context, req generation.Request, progress generation.ProgressFunc) (generation.Result, error)
}

type TranscriptExtractor interface {
	ExtractTranscript(ctx context.Context, data []byte, filename, language string, customDuration time.Duration, progress generation.ProgressFunc) (generation.TranscriptResult, error)
}

type VideoSource interface {
	GetTranscript(ctx context.Context, videoID, language string) (string, error)
	DownloadAudio(ctx context.Context, videoID string) ([]byte, time.Duration, error)
}

type RunStore interface {
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkRetrying(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	Complete(ctx context.Context, id uuid.UUID, succeeded, failed, skipped int, result any) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

type Publisher interface {
	Publish(ctx context.Context, runID uuid.UUID, msg models.WSMessage)
	Progress(ctx context.Context, runID uuid.UUID) func(message string, fraction float64)
}

type Deps struct {
	Queue       Queue
	Runs        RunStore
	Generator   Generator
	Transcripts TranscriptExtractor
	Videos      VideoSource
	Publisher   Publisher
	Log         *logger.Logger
}

type Pool struct {
	queue       Queue
	runs        RunStore
	generator   Generator
	transcripts TranscriptExtractor
	videos      VideoSource
	publisher   Publisher
	log         *logger.Logger
	workerCount int
	maxRetries  int
	popTimeout  time.Duration
	retryDelay  func(retry int) time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(d Deps, workerCount, maxRetries int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		queue:       d.Queue,
		runs:        d.Runs,
		generator:   d.Generator,
		transcripts: d.Transcripts,
		videos:      d.Videos,
		publisher:   d.Publisher,
		log:         d.Log.With("component", "worker"),
		workerCount: workerCount,
		maxRetries:  maxRetries,
		popTimeout:  30 * time.Second,
		retryDelay: func(retry int) time.Duration {
			return time.Duration(1<<uint(retry)) * time.Second
		},
		stopChan: make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.log.Info("started worker goroutines", "count", p.workerCount)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With("worker", id)

	for {
		select {
		case <-p.stopChan:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) && ctx.Err() == nil {
				log.Warn("failed to pop job", "error", err)
			}
			continue
		}

		// Try to acquire lock
		locked, err := p.queue.Lock(ctx, job.RunID, 30*time.Minute)
		if err != nil || !locked {
			continue // Another worker has this job
		}

		p.process(ctx, job)

		if err := p.queue.Unlock(ctx, job.RunID); err != nil {
			log.Warn("failed to release run lock", "run_id", job.RunID, "error", err)
		}
	}
}

func (p *Pool) process(ctx context.Context, job models.Job) {
	log := p.log.With("run_id", job.RunID, "type", job.Type)
	log.Info("processing job", "attempt", job.RetryCount+1)

	if err := p.runs.MarkProcessing(ctx, job.RunID); err != nil {
		log.Warn("failed to mark run processing", "error", err)
	}
	progress := p.publisher.Progress(ctx, job.RunID)

	var (
		counts  [3]int
		result  any
		procErr error
	)
	switch job.Type {
	case JobGeneration:
		var res generation.Result
		res, procErr = p.processGeneration(ctx, job, progress)
		counts = [3]int{res.Succeeded, res.Failed, res.SkippedDuplicates}
		result = res
	case JobTranscript:
		var res generation.TranscriptResult
		res, procErr = p.processTranscript(ctx, job, progress)
		counts = [3]int{res.Diagnostics.Succeeded, res.Diagnostics.Failed, 0}
		result = res
	default:
		procErr = fmt.Errorf("%w: unknown job type %q", errBadJob, job.Type)
	}

	if procErr != nil {
		p.handleFailure(ctx, job, procErr)
		return
	}
	p.handleSuccess(ctx, job, counts, result)
}

func (p *Pool) processGeneration(ctx context.Context, job models.Job, progress generation.ProgressFunc) (generation.Result, error) {
	var cfg models.GenerationJob
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		return generation.Result{}, fmt.Errorf("%w: %v", errBadJob, err)
	}

	var difficulty models.Difficulty
	if cfg.Difficulty != "" {
		difficulty = models.ParseDifficulty(cfg.Difficulty)
	}

	return p.generator.GenerateQuestions(ctx, generation.Request{
		RawText:             cfg.RawText,
		Category:            cfg.Category,
		Difficulty:          difficulty,
		Count:               cfg.Count,
		Mode:                models.Mode(cfg.Mode),
		Topic:               cfg.Topic,
		DuplicateCheck:      cfg.DuplicateCheck,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxRetries:          cfg.MaxRetries,
		DuplicatePolicy:     generation.DuplicatePolicy(cfg.DuplicatePolicy),
		MultipleAnswer:      cfg.MultipleAnswer,
	}, progress)
}

// processTranscript prefers published captions for videos and only falls
// back to downloading and transcribing the audio when none exist.
func (p *Pool) processTranscript(ctx context.Context, job models.Job, progress generation.ProgressFunc) (generation.TranscriptResult, error) {
	var cfg models.TranscriptJob
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		return generation.TranscriptResult{}, fmt.Errorf("%w: %v", errBadJob, err)
	}
	duration := time.Duration(cfg.DurationSeconds * float64(time.Second))

	var (
		data     []byte
		filename = cfg.Filename
	)
	switch {
	case cfg.VideoID != "":
		text, err := p.videos.GetTranscript(ctx, cfg.VideoID, cfg.Language)
		if err == nil {
			progress("Captions found", 1.0)
			return generation.TranscriptResult{
				Success: true,
				Text:    text,
				Diagnostics: generation.TranscriptDiagnostics{
					SplitMethod: "captions",
					Segments:    1,
					Succeeded:   1,
					Language:    cfg.Language,
				},
			}, nil
		}
		p.log.Info("no captions, transcribing audio", "video_id", cfg.VideoID, "reason", err)

		progress("Downloading audio", 0.05)
		data, duration, err = p.videos.DownloadAudio(ctx, cfg.VideoID)
		if err != nil {
			return generation.TranscriptResult{}, err
		}
		filename = cfg.VideoID + ".m4a"
	case cfg.AudioPath != "":
		var err error
		data, err = os.ReadFile(cfg.AudioPath)
		if err != nil {
			return generation.TranscriptResult{}, fmt.Errorf("%w: read audio: %v", errBadJob, err)
		}
	default:
		return generation.TranscriptResult{}, fmt.Errorf("%w: transcript job has no source", errBadJob)
	}

	return p.transcripts.ExtractTranscript(ctx, data, filename, cfg.Language, duration, progress)
}

func (p *Pool) handleSuccess(ctx context.Context, job models.Job, counts [3]int, result any) {
	if err := p.runs.Complete(ctx, job.RunID, counts[0], counts[1], counts[2], result); err != nil {
		p.log.Error("failed to record run result", "run_id", job.RunID, "error", err)
	}
	p.cleanup(job)

	p.publisher.Publish(ctx, job.RunID, models.WSMessage{
		Type:    "completed",
		Payload: models.CompletedEvent{RunID: job.RunID, Succeeded: counts[0], Failed: counts[1]},
	})

	p.log.Info("job completed", "run_id", job.RunID, "succeeded", counts[0], "failed", counts[1], "skipped", counts[2])
}

func (p *Pool) handleFailure(ctx context.Context, job models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if !isPermanent(err) && job.RetryCount < p.maxRetries {
		delay := p.retryDelay(job.RetryCount)
		p.log.Warn("job failed, retrying", "run_id", job.RunID, "attempt", job.RetryCount, "delay", delay, "error", errMsg)
		if err := p.runs.MarkRetrying(ctx, job.RunID, errMsg, job.RetryCount); err != nil {
			p.log.Warn("failed to mark run retrying", "run_id", job.RunID, "error", err)
		}
		p.requeue(job, delay)
		return
	}

	p.log.Error("job failed permanently", "run_id", job.RunID, "attempts", job.RetryCount, "error", errMsg)
	if err := p.runs.Fail(ctx, job.RunID, errMsg); err != nil {
		p.log.Error("failed to mark run failed", "run_id", job.RunID, "error", err)
	}
	p.cleanup(job)

	p.publisher.Publish(ctx, job.RunID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			RunID:        job.RunID,
			ErrorCode:    errorCode(err),
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) requeue(job models.Job, delay time.Duration) {
	push := func() {
		if err := p.queue.Push(context.Background(), job); err != nil {
			p.log.Error("failed to requeue job", "run_id", job.RunID, "error", err)
		}
	}
	if delay <= 0 {
		push()
		return
	}
	time.AfterFunc(delay, push)
}

// cleanup removes an uploaded audio file once its run is finished.
func (p *Pool) cleanup(job models.Job) {
	if job.Type != JobTranscript {
		return
	}
	var cfg models.TranscriptJob
	if json.Unmarshal(job.Config, &cfg) != nil || cfg.AudioPath == "" {
		return
	}
	if err := os.Remove(cfg.AudioPath); err != nil && !os.IsNotExist(err) {
		p.log.Warn("failed to remove uploaded audio", "path", cfg.AudioPath, "error", err)
	}
}

// isPermanent reports failures a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, errBadJob) ||
		errors.Is(err, generation.ErrEmptyInput) ||
		errors.Is(err, generation.ErrInvalidRequest) ||
		errors.Is(err, generation.ErrEmptyAudio) ||
		errors.Is(err, generation.ErrAudioTooLarge)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, generation.ErrEmptyInput), errors.Is(err, generation.ErrEmptyAudio):
		return "EMPTY_INPUT"
	case errors.Is(err, generation.ErrInvalidRequest), errors.Is(err, errBadJob):
		return "INVALID_REQUEST"
	case errors.Is(err, generation.ErrAudioTooLarge):
		return "AUDIO_TOO_LARGE"
	default:
		return "RUN_FAILED"
	}
}
