package quality

import (
	"strings"
	"testing"

	"quizforge-backend/internal/models"
)

func choices(texts []string, correct ...int) []models.ExtractedChoice {
	out := make([]models.ExtractedChoice, len(texts))
	for i, t := range texts {
		out[i] = models.ExtractedChoice{Text: t}
	}
	for _, c := range correct {
		out[c].IsCorrect = true
	}
	return out
}

func validStructure() models.ExtractedStructure {
	return models.ExtractedStructure{
		Title:        "日本の首都",
		QuestionText: "日本の首都はどこか。",
		Choices:      choices([]string{"大阪", "東京", "京都", "名古屋"}, 1),
		Explanation:  "東京である。",
	}
}

func TestValidate_AcceptsWellFormedQuestion(t *testing.T) {
	r := Validate(Candidate{Structure: validStructure(), Category: "地理", SingleAnswer: true})

	if !r.Valid {
		t.Fatalf("expected valid, got errors %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", r.Warnings)
	}
	if r.Details.ChoiceCount != 4 || r.Details.CorrectCount != 1 {
		t.Errorf("unexpected details %+v", r.Details)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.ExtractedStructure)
		category string
	}{
		{"no choices", func(s *models.ExtractedStructure) { s.Choices = nil }, "地理"},
		{"one choice", func(s *models.ExtractedStructure) { s.Choices = choices([]string{"東京"}, 0) }, "地理"},
		{"no correct choice", func(s *models.ExtractedStructure) { s.Choices = choices([]string{"a", "b"}) }, "地理"},
		{"empty body", func(s *models.ExtractedStructure) { s.QuestionText = "" }, "地理"},
		{"short title", func(s *models.ExtractedStructure) { s.Title = "ab" }, "地理"},
		{"empty choice text", func(s *models.ExtractedStructure) { s.Choices[2].Text = "  " }, "地理"},
		{"blank category", func(s *models.ExtractedStructure) {}, "   "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validStructure()
			tc.mutate(&s)

			r := Validate(Candidate{Structure: s, Category: tc.category, SingleAnswer: true})

			if r.Valid {
				t.Fatal("expected invalid")
			}
			if len(r.Errors) == 0 {
				t.Fatal("expected at least one error")
			}
		})
	}
}

func TestValidate_WarningsDoNotBlock(t *testing.T) {
	s := validStructure()
	s.Choices = choices([]string{"a", "A", "c", "d", "e", "f", strings.Repeat("長", 201)}, 0, 2)

	r := Validate(Candidate{Structure: s, Category: "地理", SingleAnswer: true})

	if !r.Valid {
		t.Fatalf("warnings must not block, got errors %v", r.Errors)
	}
	if len(r.Warnings) != 4 {
		t.Fatalf("expected 4 warnings (duplicate, length, count, multi-correct), got %v", r.Warnings)
	}
}

func TestValidate_MultipleCorrectAllowedInMultiAnswerMode(t *testing.T) {
	s := validStructure()
	s.Choices = choices([]string{"a", "b", "c"}, 0, 1)

	r := Validate(Candidate{Structure: s, Category: "地理", SingleAnswer: false})

	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean report, got %+v", r)
	}
}

// ─── Choice Cap Tests ───

func TestCapChoices(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	tests := []struct {
		name        string
		in          []models.ExtractedChoice
		wantDropped bool
		wantTexts   string
	}{
		{"within limit", choices(texts[:4], 0), false, "abcd"},
		{"correct early", choices(texts, 1), true, "abcdef"},
		{"correct beyond limit", choices(texts, 7), true, "abcdeh"},
		{"several correct late", choices(texts, 6, 7), true, "abcdgh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, dropped := CapChoices(tt.in)
			if dropped != tt.wantDropped {
				t.Errorf("dropped = %v, want %v", dropped, tt.wantDropped)
			}
			var got strings.Builder
			for _, c := range out {
				got.WriteString(c.Text)
			}
			if got.String() != tt.wantTexts {
				t.Errorf("kept %q, want %q", got.String(), tt.wantTexts)
			}
			correct := 0
			for _, c := range out {
				if c.IsCorrect {
					correct++
				}
			}
			if correct == 0 {
				t.Error("a correct choice was dropped")
			}
		})
	}
}
