package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
)

const (
	defaultCallBound    = 60 * time.Second
	defaultMaxUnitRunes = 4000
	defaultMaxTokens    = 2048

	temperatureVerbatim = 0.1
	temperatureGenerate = 0.7
)

// ParseOutcome is the result of one extraction attempt: Parsed, Malformed
// or ExternalFailure.
type ParseOutcome interface {
	outcome()
}

type Parsed struct {
	Structure models.ExtractedStructure
}

// Malformed means the model answered but the answer was unusable.
type Malformed struct {
	Reason string
	Raw    string
}

// ExternalFailure means the model could not be reached or did not answer
// within the call bound.
type ExternalFailure struct {
	Reason string
	Err    error
}

func (Parsed) outcome()          {}
func (Malformed) outcome()       {}
func (ExternalFailure) outcome() {}

// Diagnostics describes how an attempt was made, independent of its outcome.
type Diagnostics struct {
	Mode      models.Mode
	Truncated bool
	Elapsed   time.Duration
}

type ExtractorOption func(*Extractor)

func WithCallBound(d time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if d > 0 {
			e.callBound = d
		}
	}
}

func WithMaxUnitRunes(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxUnitRunes = n
		}
	}
}

func WithLogger(l *logger.Logger) ExtractorOption {
	return func(e *Extractor) { e.log = l }
}

// Extractor turns a unit of text into an ExtractedStructure with one model call.
type Extractor struct {
	llm          llm.Completer
	callBound    time.Duration
	maxUnitRunes int
	maxTokens    int
	log          *logger.Logger
	now          func() time.Time
}

func NewExtractor(completer llm.Completer, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		llm:          completer,
		callBound:    defaultCallBound,
		maxUnitRunes: defaultMaxUnitRunes,
		maxTokens:    defaultMaxTokens,
		log:          logger.Nop(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, unit string, mode models.Mode, opts Options) (ParseOutcome, Diagnostics) {
	diag := Diagnostics{Mode: mode}

	if utf8.RuneCountInString(unit) > e.maxUnitRunes {
		unit = truncateRunes(unit, e.maxUnitRunes)
		diag.Truncated = true
	}

	req := llm.CompletionRequest{
		SystemMessage: systemMessage,
		MaxTokens:     e.maxTokens,
		JSONResponse:  true,
	}
	switch mode {
	case models.ModeExtractVerbatim:
		req.Prompt = buildVerbatimPrompt(unit, opts)
		req.Temperature = temperatureVerbatim
	default:
		req.Prompt = buildGeneratePrompt(unit, opts)
		req.Temperature = temperatureGenerate
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callBound)
	defer cancel()

	start := e.now()
	raw, err := e.llm.Complete(callCtx, req)
	diag.Elapsed = e.now().Sub(start)

	if err != nil {
		e.log.Warn("llm call failed", "mode", mode, "kind", llm.Kind(err), "error", err)
		return ExternalFailure{Reason: llm.Kind(err), Err: err}, diag
	}
	if diag.Elapsed > e.callBound {
		return ExternalFailure{
			Reason: "timeout",
			Err:    fmt.Errorf("%w: call took %s", llm.ErrTimeout, diag.Elapsed),
		}, diag
	}

	out := ParseResponse(raw, opts.SingleAnswer)
	if p, ok := out.(Parsed); ok && p.Structure.Difficulty == "" {
		p.Structure.Difficulty = difficultyOrDefault(opts.Difficulty)
		out = p
	}
	return out, diag
}

type rawChoice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type rawQuestion struct {
	Title          *string         `json:"title"`
	Question       *string         `json:"question"`
	Choices        json.RawMessage `json:"choices"`
	Explanation    *string         `json:"explanation"`
	Difficulty     string          `json:"difficulty"`
	CorrectIndex   *int            `json:"correct_index"`
	CorrectIndices []int           `json:"correct_indices"`
}

// ParseResponse decodes raw model text into an outcome. It never calls out.
func ParseResponse(raw string, singleAnswer bool) ParseOutcome {
	q, ok := decodeQuestion(raw)
	if !ok {
		return Malformed{Reason: "response is not a JSON question object", Raw: raw}
	}

	var missing []string
	if q.Title == nil || strings.TrimSpace(*q.Title) == "" {
		missing = append(missing, "title")
	}
	if q.Question == nil || strings.TrimSpace(*q.Question) == "" {
		missing = append(missing, "question")
	}
	if len(q.Choices) == 0 {
		missing = append(missing, "choices")
	}
	if q.Explanation == nil {
		missing = append(missing, "explanation")
	}
	if len(missing) > 0 {
		return Malformed{Reason: "missing fields: " + strings.Join(missing, ", "), Raw: raw}
	}

	choices, ok := decodeChoices(q)
	if !ok {
		return Malformed{Reason: "choices have an unknown shape", Raw: raw}
	}
	if len(choices) < 2 {
		return Malformed{Reason: "fewer than 2 choices", Raw: raw}
	}

	s := models.ExtractedStructure{
		Title:        strings.TrimSpace(*q.Title),
		QuestionText: strings.TrimSpace(*q.Question),
		Choices:      choices,
		Explanation:  strings.TrimSpace(*q.Explanation),
	}
	if q.Difficulty != "" {
		s.Difficulty = models.ParseDifficulty(q.Difficulty)
	}

	if singleAnswer {
		enforceSingleCorrect(s.Choices)
	} else if s.CorrectCount() == 0 {
		return Malformed{Reason: "no correct choice marked", Raw: raw}
	}

	return Parsed{Structure: s}
}

// decodeQuestion accepts a bare object, a list whose first element is an
// object, or an object embedded in surrounding prose.
func decodeQuestion(raw string) (rawQuestion, bool) {
	text := stripCodeFences(raw)

	var q rawQuestion
	if err := json.Unmarshal([]byte(text), &q); err == nil {
		return q, true
	}

	var list []rawQuestion
	if err := json.Unmarshal([]byte(text), &list); err == nil && len(list) > 0 {
		return list[0], true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &q); err == nil {
			return q, true
		}
	}
	return rawQuestion{}, false
}

func decodeChoices(q rawQuestion) ([]models.ExtractedChoice, bool) {
	var objs []rawChoice
	if err := json.Unmarshal(q.Choices, &objs); err == nil {
		out := make([]models.ExtractedChoice, 0, len(objs))
		for _, c := range objs {
			out = append(out, models.ExtractedChoice{Text: strings.TrimSpace(c.Text), IsCorrect: c.IsCorrect})
		}
		return out, true
	}

	var texts []string
	if err := json.Unmarshal(q.Choices, &texts); err == nil {
		out := make([]models.ExtractedChoice, 0, len(texts))
		for i, t := range texts {
			correct := containsInt(q.CorrectIndices, i) || (q.CorrectIndex != nil && *q.CorrectIndex == i)
			out = append(out, models.ExtractedChoice{Text: strings.TrimSpace(t), IsCorrect: correct})
		}
		return out, true
	}
	return nil, false
}

// enforceSingleCorrect leaves exactly one correct choice, preferring the
// first one already marked.
func enforceSingleCorrect(choices []models.ExtractedChoice) {
	first := -1
	for i := range choices {
		if choices[i].IsCorrect {
			if first < 0 {
				first = i
				continue
			}
			choices[i].IsCorrect = false
		}
	}
	if first < 0 && len(choices) > 0 {
		choices[0].IsCorrect = true
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
