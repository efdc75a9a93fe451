package generation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"quizforge-backend/internal/extraction"
	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quality"
)

// ─── Test Doubles ───

type memStore struct {
	questions    []models.Question
	choices      map[uuid.UUID][]models.Choice
	failChoiceAt int
	choiceCalls  int
	deleted      []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{choices: map[uuid.UUID][]models.Choice{}}
}

func (m *memStore) CreateQuestion(_ context.Context, q models.NewQuestion) (models.Question, error) {
	explanation := q.Explanation
	out := models.Question{
		ID:          uuid.New(),
		Title:       q.Title,
		Body:        q.Body,
		Explanation: &explanation,
		Category:    q.Category,
		Difficulty:  q.Difficulty,
		CreatedAt:   time.Now(),
	}
	m.questions = append(m.questions, out)
	return out, nil
}

func (m *memStore) CreateChoice(_ context.Context, questionID uuid.UUID, content string, isCorrect bool, orderNum int) (models.Choice, error) {
	m.choiceCalls++
	if m.failChoiceAt > 0 && m.choiceCalls == m.failChoiceAt {
		return models.Choice{}, errors.New("constraint violation")
	}
	c := models.Choice{ID: uuid.New(), QuestionID: questionID, Content: content, IsCorrect: isCorrect, OrderNum: orderNum}
	m.choices[questionID] = append(m.choices[questionID], c)
	return c, nil
}

func (m *memStore) DeleteQuestion(_ context.Context, id uuid.UUID) (bool, error) {
	for i, q := range m.questions {
		if q.ID == id {
			m.questions = append(m.questions[:i], m.questions[i+1:]...)
			delete(m.choices, id)
			m.deleted = append(m.deleted, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListByCategory(_ context.Context, category string) ([]models.Question, error) {
	var out []models.Question
	for _, q := range m.questions {
		if q.Category == category {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memStore) CategoryAnswerCounts(context.Context, string) (int, int, error) { return 0, 0, nil }

type failingCompleter struct{ calls int }

func (f *failingCompleter) Complete(context.Context, llm.CompletionRequest) (string, error) {
	f.calls++
	return "", fmt.Errorf("connection reset: %w", llm.ErrTransport)
}

type scriptedExtractor struct {
	outcomes []extraction.ParseOutcome
	calls    []extraction.Options
}

func (s *scriptedExtractor) Extract(_ context.Context, _ string, _ models.Mode, opts extraction.Options) (extraction.ParseOutcome, extraction.Diagnostics) {
	i := len(s.calls)
	s.calls = append(s.calls, opts)
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i], extraction.Diagnostics{}
}

func parsed(title string) extraction.Parsed {
	return extraction.Parsed{Structure: models.ExtractedStructure{
		Title:        title,
		QuestionText: "光合成で主に作られる物質はどれか。",
		Choices: []models.ExtractedChoice{
			{Text: "ブドウ糖", IsCorrect: true},
			{Text: "タンパク質"},
			{Text: "脂肪"},
			{Text: "核酸"},
		},
		Explanation: "光合成ではブドウ糖が作られる。",
		Difficulty:  models.DifficultyMedium,
	}}
}

func newOrchestrator(store *memStore, ex UnitExtractor) *Orchestrator {
	o := NewOrchestrator(Deps{
		Store:      store,
		Duplicates: quality.NewDuplicateDetector(store, store),
		Extractor:  ex,
		Log:        logger.Nop(),
		Settings:   Settings{SimilarityThreshold: 0.8, ChunkRunes: 3000},
	})
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

const lectureText = "光合成は植物が光エネルギーを使って二酸化炭素と水からブドウ糖を作る反応である。葉緑体で行われる。"

// ─── End-to-End ───

func TestGenerateQuestions_ExtractionSurvivesLLMOutage(t *testing.T) {
	store := newMemStore()
	completer := &failingCompleter{}
	o := newOrchestrator(store, extraction.NewExtractor(completer))

	raw := "【問1】次のうち、日本の首都はどれか。\n① 大阪\n② 東京\n③ 京都\n④ 名古屋\n(正解）②\n(解説）日本の首都は東京である。"
	res, err := o.GenerateQuestions(context.Background(), Request{
		RawText:        raw,
		Category:       "地理",
		Mode:           models.ModeExtractVerbatim,
		DuplicateCheck: true,
		MaxRetries:     3,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if completer.calls == 0 {
		t.Error("expected the model to be tried before falling back")
	}
	if len(res.QuestionIDs) != 1 || len(store.questions) != 1 {
		t.Fatalf("expected exactly 1 persisted question, got %d (%+v)", len(res.QuestionIDs), res.Units)
	}
	q := store.questions[0]
	if q.Explanation == nil || strings.TrimSpace(*q.Explanation) == "" {
		t.Error("expected a non-empty explanation")
	}
	choices := store.choices[q.ID]
	if len(choices) != 4 {
		t.Fatalf("expected 4 choices, got %d", len(choices))
	}
	for _, c := range choices {
		wantCorrect := c.OrderNum == 2
		if c.IsCorrect != wantCorrect {
			t.Errorf("choice %d (%s) correct=%v, want %v", c.OrderNum, c.Content, c.IsCorrect, wantCorrect)
		}
	}
	if res.Units[0].Source != SourceFallback {
		t.Errorf("expected fallback source, got %q", res.Units[0].Source)
	}
}

// ─── Generation Mode ───

func TestGenerateQuestions_GenerateModeProgressAndIDs(t *testing.T) {
	store := newMemStore()
	ex := &scriptedExtractor{outcomes: []extraction.ParseOutcome{parsed("光合成1"), parsed("光合成2"), parsed("光合成3")}}
	o := newOrchestrator(store, ex)

	var fractions []float64
	res, err := o.GenerateQuestions(context.Background(), Request{
		RawText:  lectureText,
		Category: "生物",
		Count:    3,
		Mode:     models.ModeGenerate,
	}, func(_ string, f float64) { fractions = append(fractions, f) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Succeeded != 3 || len(res.QuestionIDs) != 3 {
		t.Fatalf("expected 3 questions, got %+v", res)
	}
	if fractions[0] != 0.1 || fractions[len(fractions)-1] != 1.0 {
		t.Errorf("unexpected progress endpoints %v", fractions)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards: %v", fractions)
		}
	}
	if ex.calls[1].Variation != 1 || ex.calls[2].Variation != 2 {
		t.Errorf("repeated passes over one chunk should vary, got %+v", ex.calls)
	}
	for _, id := range res.QuestionIDs {
		if got := store.choices[id]; len(got) != 4 || got[0].OrderNum != 1 || got[3].OrderNum != 4 {
			t.Errorf("choices not persisted in order: %+v", got)
		}
	}
}

func TestGenerateQuestions_ExternalFailureSkipsUnit(t *testing.T) {
	store := newMemStore()
	ex := &scriptedExtractor{outcomes: []extraction.ParseOutcome{
		extraction.ExternalFailure{Reason: "rate_limited", Err: llm.ErrRateLimited},
		parsed("二問目"),
	}}
	o := newOrchestrator(store, ex)

	res, err := o.GenerateQuestions(context.Background(), Request{
		RawText: lectureText, Category: "生物", Count: 2, Mode: models.ModeGenerate, MaxRetries: 3,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Failed != 1 || res.Succeeded != 1 {
		t.Fatalf("expected 1 failed and 1 succeeded, got %+v", res)
	}
	if res.Units[0].Attempts != 1 {
		t.Errorf("external failures must not be retried, got %d attempts", res.Units[0].Attempts)
	}
}

func TestGenerateQuestions_MalformedIsRetriedWithNudgedTopic(t *testing.T) {
	store := newMemStore()
	ex := &scriptedExtractor{outcomes: []extraction.ParseOutcome{
		extraction.Malformed{Reason: "not json"},
		parsed("再試行"),
	}}
	o := newOrchestrator(store, ex)

	res, _ := o.GenerateQuestions(context.Background(), Request{
		RawText: lectureText, Category: "生物", Count: 1, Mode: models.ModeGenerate, Topic: "葉緑体", MaxRetries: 2,
	}, nil)

	if res.Succeeded != 1 || res.Units[0].Attempts != 2 {
		t.Fatalf("expected success on the second attempt, got %+v", res.Units)
	}
	if ex.calls[1].Topic == "葉緑体" || !strings.HasPrefix(ex.calls[1].Topic, "葉緑体") {
		t.Errorf("expected a nudged topic on retry, got %q", ex.calls[1].Topic)
	}
}

func TestGenerateQuestions_DuplicatePolicies(t *testing.T) {
	tests := []struct {
		name          string
		policy        DuplicatePolicy
		wantSucceeded int
		wantSkipped   int
		wantWarning   string
	}{
		{"persist anyway after retries", DuplicatePersistAnyway, 1, 0, "persisted despite duplicate after retries"},
		{"skip after retries", DuplicateSkip, 0, 1, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			store.CreateQuestion(context.Background(), models.NewQuestion{
				Title: "既存", Body: "光合成で主に作られる物質はどれか。", Category: "生物",
			})
			ex := &scriptedExtractor{outcomes: []extraction.ParseOutcome{parsed("新規の問題")}}
			o := newOrchestrator(store, ex)

			res, err := o.GenerateQuestions(context.Background(), Request{
				RawText: lectureText, Category: "生物", Count: 1, Mode: models.ModeGenerate,
				DuplicateCheck: true, MaxRetries: 2, DuplicatePolicy: tc.policy,
			}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(ex.calls) != 3 {
				t.Errorf("expected 3 attempts, got %d", len(ex.calls))
			}
			if res.Succeeded != tc.wantSucceeded || res.SkippedDuplicates != tc.wantSkipped {
				t.Fatalf("unexpected result %+v", res)
			}
			if tc.wantWarning != "" && !slices.Contains(res.Units[0].Warnings, tc.wantWarning) {
				t.Errorf("expected warning %q, got %v", tc.wantWarning, res.Units[0].Warnings)
			}
		})
	}
}

// ─── Extraction Mode ───

func TestGenerateQuestions_ExtractionDuplicateSkippedByDefault(t *testing.T) {
	store := newMemStore()
	store.CreateQuestion(context.Background(), models.NewQuestion{
		Title: "問題1", Body: "次のうち、日本の首都はどれか。", Category: "地理",
	})
	o := newOrchestrator(store, extraction.NewExtractor(&failingCompleter{}))

	res, err := o.GenerateQuestions(context.Background(), Request{
		RawText:        "【問1】次のうち、日本の首都はどれか。\n① 大阪\n② 東京\n(正解）②",
		Category:       "地理",
		Mode:           models.ModeExtractVerbatim,
		DuplicateCheck: true,
		MaxRetries:     3,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.SkippedDuplicates != 1 || res.Succeeded != 0 {
		t.Fatalf("expected the duplicate to be skipped, got %+v", res)
	}
	if res.Units[0].Attempts != 1 {
		t.Errorf("extraction duplicates are decided without retrying, got %d attempts", res.Units[0].Attempts)
	}
}

func TestGenerateQuestions_InvalidModelOutputFallsBackOnRetry(t *testing.T) {
	store := newMemStore()
	bad := parsed("ab")
	ex := &scriptedExtractor{outcomes: []extraction.ParseOutcome{bad}}
	o := newOrchestrator(store, ex)

	res, _ := o.GenerateQuestions(context.Background(), Request{
		RawText:    "【問1】次のうち、日本の首都はどれか。\n① 大阪\n② 東京\n(正解）②",
		Category:   "地理",
		Mode:       models.ModeExtractVerbatim,
		MaxRetries: 3,
	}, nil)

	if res.Succeeded != 1 {
		t.Fatalf("expected fallback to recover the unit, got %+v", res.Units)
	}
	if len(ex.calls) != 1 {
		t.Errorf("retries in extraction mode must not call the model again, got %d calls", len(ex.calls))
	}
	if res.Units[0].Source != SourceFallback {
		t.Errorf("expected fallback source, got %q", res.Units[0].Source)
	}
}

func TestGenerateQuestions_ChoiceFailureRollsBackQuestion(t *testing.T) {
	store := newMemStore()
	store.failChoiceAt = 2
	o := newOrchestrator(store, &scriptedExtractor{outcomes: []extraction.ParseOutcome{parsed("光合成")}})

	res, _ := o.GenerateQuestions(context.Background(), Request{
		RawText: lectureText, Category: "生物", Count: 1, Mode: models.ModeGenerate,
	}, nil)

	if res.Failed != 1 || len(store.questions) != 0 || len(store.deleted) != 1 {
		t.Fatalf("expected the partial question to be removed, got %+v / %d questions", res, len(store.questions))
	}
}

func TestGenerateQuestions_TrimsExtraChoicesKeepingCorrect(t *testing.T) {
	store := newMemStore()
	wide := parsed("選択肢の多い問題")
	wide.Structure.Choices = []models.ExtractedChoice{
		{Text: "炭素"}, {Text: "窒素"}, {Text: "酸素"}, {Text: "水素"},
		{Text: "硫黄"}, {Text: "リン"}, {Text: "塩素"}, {Text: "ブドウ糖", IsCorrect: true},
	}
	o := newOrchestrator(store, &scriptedExtractor{outcomes: []extraction.ParseOutcome{wide}})

	res, err := o.GenerateQuestions(context.Background(), Request{
		RawText: lectureText, Category: "生物", Count: 1, Mode: models.ModeGenerate,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("expected the question to be stored, got %+v", res)
	}

	choices := store.choices[store.questions[0].ID]
	if len(choices) != quality.MaxChoices {
		t.Fatalf("expected %d choices, got %d", quality.MaxChoices, len(choices))
	}
	last := choices[len(choices)-1]
	if !last.IsCorrect || last.Content != "ブドウ糖" || last.OrderNum != quality.MaxChoices {
		t.Errorf("expected the correct choice kept last, got %+v", last)
	}
	if !slices.Contains(res.Units[0].Warnings, fmt.Sprintf("choices trimmed to %d", quality.MaxChoices)) {
		t.Errorf("expected a trim warning, got %v", res.Units[0].Warnings)
	}
}

func TestGenerateQuestions_RequestErrors(t *testing.T) {
	o := newOrchestrator(newMemStore(), &scriptedExtractor{outcomes: []extraction.ParseOutcome{parsed("x")}})

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty text", Request{RawText: "  ", Category: "c", Mode: models.ModeGenerate}, ErrEmptyInput},
		{"missing category", Request{RawText: lectureText, Mode: models.ModeGenerate}, ErrInvalidRequest},
		{"unknown mode", Request{RawText: lectureText, Category: "c", Mode: "translate"}, ErrInvalidRequest},
		{"unknown policy", Request{RawText: lectureText, Category: "c", Mode: models.ModeGenerate, DuplicatePolicy: "merge"}, ErrInvalidRequest},
		{"too short to segment", Request{RawText: "問1 短い", Category: "c", Mode: models.ModeExtractVerbatim}, ErrEmptyInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := o.GenerateQuestions(context.Background(), tc.req, nil); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
