package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"quizforge-backend/internal/models"
)

const (
	minTitleRunes    = 3
	minBodyRunes     = 5
	minChoices       = 2
	maxChoiceRunes   = 200
	minCategoryRunes = 1
)

// MaxChoices is the most choices a stored question may carry. Validation
// only warns past it; callers trim with CapChoices before persisting.
const MaxChoices = 6

// Candidate is a structure about to be persisted under a category.
type Candidate struct {
	Structure    models.ExtractedStructure
	Category     string
	SingleAnswer bool
}

type Details struct {
	ChoiceCount  int `json:"choice_count"`
	CorrectCount int `json:"correct_count"`
	TitleLength  int `json:"title_length"`
	BodyLength   int `json:"body_length"`
}

// Report lists blocking errors and advisory warnings. Details are filled
// regardless of validity.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Details  Details  `json:"details"`
}

func Validate(c Candidate) Report {
	s := c.Structure
	r := Report{
		Details: Details{
			ChoiceCount:  len(s.Choices),
			CorrectCount: s.CorrectCount(),
			TitleLength:  utf8.RuneCountInString(strings.TrimSpace(s.Title)),
			BodyLength:   utf8.RuneCountInString(strings.TrimSpace(s.QuestionText)),
		},
	}

	if r.Details.TitleLength < minTitleRunes {
		r.Errors = append(r.Errors, fmt.Sprintf("title must be at least %d characters", minTitleRunes))
	}
	if r.Details.BodyLength < minBodyRunes {
		r.Errors = append(r.Errors, fmt.Sprintf("question body must be at least %d characters", minBodyRunes))
	}
	if utf8.RuneCountInString(strings.TrimSpace(c.Category)) < minCategoryRunes {
		r.Errors = append(r.Errors, "category is required")
	}
	if r.Details.ChoiceCount < minChoices {
		r.Errors = append(r.Errors, fmt.Sprintf("at least %d choices are required", minChoices))
	}
	if r.Details.CorrectCount == 0 {
		r.Errors = append(r.Errors, "no choice is marked correct")
	}

	seen := make(map[string]int, len(s.Choices))
	for i, ch := range s.Choices {
		text := strings.TrimSpace(ch.Text)
		if text == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("choice %d is empty", i+1))
			continue
		}
		if utf8.RuneCountInString(text) > maxChoiceRunes {
			r.Warnings = append(r.Warnings, fmt.Sprintf("choice %d is longer than %d characters", i+1, maxChoiceRunes))
		}
		key := strings.ToLower(text)
		if j, ok := seen[key]; ok {
			r.Warnings = append(r.Warnings, fmt.Sprintf("choice %d duplicates choice %d", i+1, j+1))
		} else {
			seen[key] = i
		}
	}

	if r.Details.ChoiceCount > MaxChoices {
		r.Warnings = append(r.Warnings, fmt.Sprintf("more than %d choices", MaxChoices))
	}
	if c.SingleAnswer && r.Details.CorrectCount > 1 {
		r.Warnings = append(r.Warnings, "more than one correct choice in single-answer mode")
	}

	r.Valid = len(r.Errors) == 0
	return r
}

// CapChoices trims choices to MaxChoices, keeping every correct choice it can
// and then the earliest others, in their original order. It reports whether
// anything was dropped.
func CapChoices(choices []models.ExtractedChoice) ([]models.ExtractedChoice, bool) {
	if len(choices) <= MaxChoices {
		return choices, false
	}

	keep := make([]bool, len(choices))
	kept := 0
	for i, c := range choices {
		if c.IsCorrect && kept < MaxChoices {
			keep[i] = true
			kept++
		}
	}
	for i := range choices {
		if kept == MaxChoices {
			break
		}
		if !keep[i] {
			keep[i] = true
			kept++
		}
	}

	out := make([]models.ExtractedChoice, 0, MaxChoices)
	for i, c := range choices {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out, true
}
