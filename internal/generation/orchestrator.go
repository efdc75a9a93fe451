package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"quizforge-backend/internal/extraction"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quality"
)

var (
	ErrEmptyInput     = errors.New("no usable input text")
	ErrInvalidRequest = errors.New("invalid generation request")

	errMalformed        = errors.New("model response unusable")
	errExternal         = errors.New("model unavailable")
	errInvalid          = errors.New("question failed validation")
	errDuplicate        = errors.New("question duplicates an existing one")
	errDuplicateSkipped = errors.New("duplicate skipped")
	errNoStructure      = errors.New("unit holds no recoverable question")
)

const defaultCount = 5

// DuplicatePolicy decides what happens to a flagged duplicate once retries
// are exhausted (generate) or immediately (extract_verbatim).
type DuplicatePolicy string

const (
	DuplicatePersistAnyway DuplicatePolicy = "persist"
	DuplicateSkip          DuplicatePolicy = "skip"
)

func DefaultDuplicatePolicy(mode models.Mode) DuplicatePolicy {
	if mode == models.ModeExtractVerbatim {
		return DuplicateSkip
	}
	return DuplicatePersistAnyway
}

// ProgressFunc is called synchronously with a message and a fraction in [0,1].
type ProgressFunc func(message string, fraction float64)

type QuestionStore interface {
	CreateQuestion(ctx context.Context, q models.NewQuestion) (models.Question, error)
	CreateChoice(ctx context.Context, questionID uuid.UUID, content string, isCorrect bool, orderNum int) (models.Choice, error)
	DeleteQuestion(ctx context.Context, id uuid.UUID) (bool, error)
}

type DuplicateChecker interface {
	Check(ctx context.Context, title, body, category string, threshold float64) (quality.CheckResult, error)
}

type UnitExtractor interface {
	Extract(ctx context.Context, unit string, mode models.Mode, opts extraction.Options) (extraction.ParseOutcome, extraction.Diagnostics)
}

type UnitSegmenter interface {
	Segment(raw string) []string
}

type Settings struct {
	CallDelay           time.Duration
	MaxRetries          int
	SimilarityThreshold float64
	ChunkRunes          int
}

// Deps is everything a run needs, built once at startup.
type Deps struct {
	Store      QuestionStore
	Duplicates DuplicateChecker
	Extractor  UnitExtractor
	Segmenter  UnitSegmenter
	Log        *logger.Logger
	Settings   Settings
}

type Request struct {
	RawText             string
	Category            string
	Difficulty          models.Difficulty
	Count               int
	Mode                models.Mode
	Topic               string
	DuplicateCheck      bool
	SimilarityThreshold float64
	MaxRetries          int
	DuplicatePolicy     DuplicatePolicy
	MultipleAnswer      bool
}

const (
	StatusPersisted = "persisted"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped_duplicate"

	SourceLLM      = "llm"
	SourceFallback = "fallback"
)

type UnitReport struct {
	Index      int        `json:"index"`
	Status     string     `json:"status"`
	Source     string     `json:"source,omitempty"`
	QuestionID *uuid.UUID `json:"question_id,omitempty"`
	Attempts   int        `json:"attempts"`
	Reason     string     `json:"reason,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

type Result struct {
	QuestionIDs       []uuid.UUID  `json:"question_ids"`
	Succeeded         int          `json:"succeeded"`
	Failed            int          `json:"failed"`
	SkippedDuplicates int          `json:"skipped_duplicates"`
	Units             []UnitReport `json:"units"`
}

type Orchestrator struct {
	store      QuestionStore
	duplicates DuplicateChecker
	extractor  UnitExtractor
	segmenter  UnitSegmenter
	log        *logger.Logger
	settings   Settings
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	seg := d.Segmenter
	if seg == nil {
		seg = extraction.NewSegmenter()
	}
	return &Orchestrator{
		store:      d.Store,
		duplicates: d.Duplicates,
		extractor:  d.Extractor,
		segmenter:  seg,
		log:        log.With("service", "GenerationOrchestrator"),
		settings:   d.Settings,
		sleep:      sleepCtx,
	}
}

// GenerateQuestions runs one generation or extraction request to completion.
// Per-unit failures are counted in the result; only an unusable request or
// empty input is returned as an error.
func (o *Orchestrator) GenerateQuestions(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(string, float64) {}
	}
	req, err := o.normalize(req)
	if err != nil {
		return Result{}, err
	}

	var units []unitInput
	if req.Mode == models.ModeExtractVerbatim {
		for _, u := range o.segmenter.Segment(req.RawText) {
			units = append(units, unitInput{text: u})
		}
		if req.Count > 0 && len(units) > req.Count {
			units = units[:req.Count]
		}
	} else {
		// question i draws on chunk i mod n; later passes ask for a new angle
		chunks := extraction.ChunkContent(req.RawText, o.settings.ChunkRunes)
		for i := 0; i < req.Count && len(chunks) > 0; i++ {
			units = append(units, unitInput{text: chunks[i%len(chunks)], variation: i / len(chunks)})
		}
	}
	if len(units) == 0 {
		return Result{}, fmt.Errorf("%w: no question units found", ErrEmptyInput)
	}

	o.log.Info("run started", "mode", req.Mode, "category", req.Category, "units", len(units))
	progress(fmt.Sprintf("Text analyzed: %d units", len(units)), 0.1)

	res := Result{QuestionIDs: []uuid.UUID{}}
	for i, unit := range units {
		if req.Mode == models.ModeGenerate && i > 0 {
			if err := o.sleep(ctx, o.settings.CallDelay); err != nil {
				return res, err
			}
		}

		report := o.processUnit(ctx, req, i, unit)
		switch report.Status {
		case StatusPersisted:
			res.Succeeded++
			res.QuestionIDs = append(res.QuestionIDs, *report.QuestionID)
		case StatusSkipped:
			res.SkippedDuplicates++
		default:
			res.Failed++
		}
		res.Units = append(res.Units, report)

		progress(fmt.Sprintf("Processed %d/%d", i+1, len(units)), 0.1+0.9*float64(i+1)/float64(len(units)))
	}

	o.log.Info("run finished", "succeeded", res.Succeeded, "failed", res.Failed, "skipped_duplicates", res.SkippedDuplicates)
	progress("Complete", 1.0)
	return res, nil
}

func (o *Orchestrator) normalize(req Request) (Request, error) {
	if strings.TrimSpace(req.RawText) == "" {
		return req, ErrEmptyInput
	}
	if strings.TrimSpace(req.Category) == "" {
		return req, fmt.Errorf("%w: category is required", ErrInvalidRequest)
	}
	if req.Mode == "" {
		req.Mode = models.ModeGenerate
	}
	if !req.Mode.Valid() {
		return req, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Mode == models.ModeGenerate && req.Count <= 0 {
		req.Count = defaultCount
	}
	if req.MaxRetries < 0 {
		req.MaxRetries = 0
	}
	if req.SimilarityThreshold <= 0 || req.SimilarityThreshold > 1 {
		req.SimilarityThreshold = o.settings.SimilarityThreshold
	}
	if req.DuplicatePolicy == "" {
		req.DuplicatePolicy = DefaultDuplicatePolicy(req.Mode)
	}
	if req.DuplicatePolicy != DuplicatePersistAnyway && req.DuplicatePolicy != DuplicateSkip {
		return req, fmt.Errorf("%w: unknown duplicate policy %q", ErrInvalidRequest, req.DuplicatePolicy)
	}
	return req, nil
}

type unitInput struct {
	text      string
	variation int
}

// unitAttempt is what one attempt produced, kept across retries so an
// exhausted duplicate can still be persisted.
type unitAttempt struct {
	structure models.ExtractedStructure
	source    string
	warnings  []string
}

func (o *Orchestrator) processUnit(ctx context.Context, req Request, index int, in unitInput) UnitReport {
	log := o.log.With("unit", index, "mode", req.Mode)
	report := UnitReport{Index: index}

	opts := extraction.Options{
		Category:     req.Category,
		Difficulty:   req.Difficulty,
		Topic:        req.Topic,
		SingleAnswer: !req.MultipleAnswer,
		Variation:    in.variation,
	}
	forceFallback := false
	var lastDuplicate *unitAttempt

	wait := time.Duration(0)
	if req.Mode == models.ModeGenerate {
		wait = o.settings.CallDelay
	}

	got, err := retry(ctx, req.MaxRetries+1, wait,
		func(attempt int) (unitAttempt, error) {
			report.Attempts = attempt + 1
			a, err := o.attempt(ctx, req, in.text, opts, forceFallback, log)
			if err != nil {
				return a, err
			}

			if req.DuplicateCheck && o.duplicates != nil {
				dup, derr := o.duplicates.Check(ctx, a.structure.Title, a.structure.QuestionText, req.Category, req.SimilarityThreshold)
				switch {
				case derr != nil:
					log.Warn("duplicate check failed, continuing without it", "error", derr)
				case dup.IsDuplicate:
					log.Info("duplicate detected", "similarity", dup.HighestSimilarity, "matches", len(dup.Matches))
					a.warnings = append(a.warnings, fmt.Sprintf("similar to an existing question (%.2f)", dup.HighestSimilarity))
					if req.Mode == models.ModeExtractVerbatim {
						if req.DuplicatePolicy == DuplicateSkip {
							return a, backoff.Permanent(errDuplicateSkipped)
						}
						return a, nil
					}
					lastDuplicate = &a
					return a, errDuplicate
				}
			}
			return a, nil
		},
		func(attempt int, err error) {
			log.Info("retrying unit", "attempt", attempt+1, "reason", err)
			if req.Mode == models.ModeExtractVerbatim {
				forceFallback = true
				return
			}
			opts.Variation = in.variation + attempt + 1
			opts.Topic = nudgeTopic(req.Topic, attempt+1)
		},
	)

	switch {
	case err == nil:
	case errors.Is(err, errDuplicateSkipped):
		report.Status = StatusSkipped
		report.Reason = "duplicate"
		return report
	case lastDuplicate != nil:
		// an earlier attempt produced a valid question that was only a duplicate
		if req.DuplicatePolicy == DuplicateSkip {
			report.Status = StatusSkipped
			report.Reason = "duplicate after retries"
			return report
		}
		log.Warn("persisting duplicate after exhausting retries", "attempts", report.Attempts)
		got = *lastDuplicate
		got.warnings = append(got.warnings, "persisted despite duplicate after retries")
	default:
		log.Warn("unit failed", "attempts", report.Attempts, "error", err)
		report.Status = StatusFailed
		report.Reason = err.Error()
		return report
	}

	if capped, dropped := quality.CapChoices(got.structure.Choices); dropped {
		got.structure.Choices = capped
		got.warnings = append(got.warnings, fmt.Sprintf("choices trimmed to %d", quality.MaxChoices))
	}
	report.Source = got.source
	report.Warnings = got.warnings

	id, err := o.persist(ctx, req, got.structure)
	if err != nil {
		log.Error("failed to persist question", "error", err)
		report.Status = StatusFailed
		report.Reason = err.Error()
		return report
	}
	report.Status = StatusPersisted
	report.QuestionID = &id
	return report
}

// attempt produces and validates one structure. In extraction mode a model
// failure falls back to the line parser; in generation mode it skips the unit.
func (o *Orchestrator) attempt(ctx context.Context, req Request, unit string, opts extraction.Options, forceFallback bool, log *logger.Logger) (unitAttempt, error) {
	var a unitAttempt

	if req.Mode == models.ModeExtractVerbatim && forceFallback {
		s, ok := o.fallback(req, unit)
		if !ok {
			return a, backoff.Permanent(errNoStructure)
		}
		a.structure, a.source = s, SourceFallback
	} else {
		outcome, diag := o.extractor.Extract(ctx, unit, req.Mode, opts)
		if diag.Truncated {
			log.Info("unit truncated before extraction")
			a.warnings = append(a.warnings, "unit truncated")
		}

		switch out := outcome.(type) {
		case extraction.Parsed:
			a.structure, a.source = out.Structure, SourceLLM
		case extraction.Malformed:
			if req.Mode == models.ModeGenerate {
				return a, fmt.Errorf("%w: %s", errMalformed, out.Reason)
			}
			log.Info("model response malformed, using fallback parser", "reason", out.Reason)
			s, ok := o.fallback(req, unit)
			if !ok {
				return a, backoff.Permanent(errNoStructure)
			}
			a.structure, a.source = s, SourceFallback
		case extraction.ExternalFailure:
			if req.Mode == models.ModeGenerate {
				return a, backoff.Permanent(fmt.Errorf("%w: %s", errExternal, out.Reason))
			}
			log.Info("model unavailable, using fallback parser", "reason", out.Reason)
			s, ok := o.fallback(req, unit)
			if !ok {
				return a, backoff.Permanent(errNoStructure)
			}
			a.structure, a.source = s, SourceFallback
		default:
			return a, backoff.Permanent(fmt.Errorf("unexpected extraction outcome %T", outcome))
		}
	}

	if a.structure.Degenerate {
		a.warnings = append(a.warnings, "recovered from unstructured text")
	}

	report := quality.Validate(quality.Candidate{
		Structure:    a.structure,
		Category:     req.Category,
		SingleAnswer: !req.MultipleAnswer,
	})
	a.warnings = append(a.warnings, report.Warnings...)
	if !report.Valid {
		err := fmt.Errorf("%w: %s", errInvalid, strings.Join(report.Errors, "; "))
		// the line parser is deterministic, so a second pass cannot do better
		if a.source == SourceFallback {
			return a, backoff.Permanent(err)
		}
		return a, err
	}
	return a, nil
}

func (o *Orchestrator) fallback(req Request, unit string) (models.ExtractedStructure, bool) {
	p := extraction.FallbackParser{MultipleAnswer: req.MultipleAnswer, Difficulty: req.Difficulty}
	return p.Parse(unit)
}

// persist writes the question and its choices; a failed choice removes the
// question again so no partial record remains.
func (o *Orchestrator) persist(ctx context.Context, req Request, s models.ExtractedStructure) (uuid.UUID, error) {
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = s.Difficulty
	}
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}

	q, err := o.store.CreateQuestion(ctx, models.NewQuestion{
		Title:       s.Title,
		Body:        s.QuestionText,
		Explanation: s.Explanation,
		Category:    req.Category,
		Difficulty:  difficulty,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create question: %w", err)
	}

	for i, c := range s.Choices {
		if _, err := o.store.CreateChoice(ctx, q.ID, c.Text, c.IsCorrect, i+1); err != nil {
			if _, derr := o.store.DeleteQuestion(ctx, q.ID); derr != nil {
				o.log.Error("failed to roll back question", "question_id", q.ID, "error", derr)
			}
			return uuid.Nil, fmt.Errorf("create choice %d: %w", i+1, err)
		}
	}
	return q.ID, nil
}

func nudgeTopic(topic string, attempt int) string {
	hint := fmt.Sprintf("a different aspect than previous questions (attempt %d)", attempt+1)
	if topic == "" {
		return hint
	}
	return topic + "; " + hint
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
