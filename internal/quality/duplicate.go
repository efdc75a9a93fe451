package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"quizforge-backend/internal/models"
)

// DuplicateCutoff flags a duplicate regardless of the caller's threshold.
const DuplicateCutoff = 0.9

// QuestionLister reads the questions already stored under a category.
type QuestionLister interface {
	ListByCategory(ctx context.Context, category string) ([]models.Question, error)
}

// AnswerStatsReader aggregates answer records for a category.
type AnswerStatsReader interface {
	CategoryAnswerCounts(ctx context.Context, category string) (answers, correct int, err error)
}

type Match struct {
	QuestionID uuid.UUID `json:"question_id"`
	Title      string    `json:"title"`
	Similarity float64   `json:"similarity"`
}

type CheckResult struct {
	IsDuplicate       bool    `json:"is_duplicate"`
	HighestSimilarity float64 `json:"highest_similarity"`
	Matches           []Match `json:"matches"`
}

type DuplicateDetector struct {
	questions QuestionLister
	answers   AnswerStatsReader
}

func NewDuplicateDetector(questions QuestionLister, answers AnswerStatsReader) *DuplicateDetector {
	return &DuplicateDetector{questions: questions, answers: answers}
}

// Check compares a candidate against every question in the same category.
func (d *DuplicateDetector) Check(ctx context.Context, title, body, category string, threshold float64) (CheckResult, error) {
	existing, err := d.questions.ListByCategory(ctx, category)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to list questions for %q: %w", category, err)
	}
	return CompareAgainst(existing, title, body, threshold), nil
}

// CompareAgainst is the scan behind Check, over an already loaded category.
func CompareAgainst(existing []models.Question, title, body string, threshold float64) CheckResult {
	var res CheckResult
	normTitle, normBody := normalize(title), normalize(body)

	for _, q := range existing {
		qTitle, qBody := normalize(q.Title), normalize(q.Body)

		if qTitle == normTitle && qBody == normBody {
			res.IsDuplicate = true
		}

		sim := Similarity(normTitle, qTitle)
		if b := Similarity(normBody, qBody); b > sim {
			sim = b
		}
		if sim > res.HighestSimilarity {
			res.HighestSimilarity = sim
		}
		if sim >= threshold {
			res.Matches = append(res.Matches, Match{QuestionID: q.ID, Title: q.Title, Similarity: sim})
		}
	}

	if res.HighestSimilarity >= DuplicateCutoff {
		res.IsDuplicate = true
	}
	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Similarity > res.Matches[j].Similarity
	})
	return res
}

// Similarity returns 1 - editDistance/maxLen over runes, case-insensitively.
func Similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1.0
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func (d *DuplicateDetector) CategoryStats(ctx context.Context, category string) (models.CategoryStats, error) {
	questions, err := d.questions.ListByCategory(ctx, category)
	if err != nil {
		return models.CategoryStats{}, fmt.Errorf("failed to list questions for %q: %w", category, err)
	}
	answers, correct, err := d.answers.CategoryAnswerCounts(ctx, category)
	if err != nil {
		return models.CategoryStats{}, fmt.Errorf("failed to count answers for %q: %w", category, err)
	}

	stats := models.CategoryStats{
		Category:      category,
		QuestionCount: len(questions),
		AnswerCount:   answers,
		CorrectCount:  correct,
	}
	if answers > 0 {
		stats.AccuracyRate = float64(correct) / float64(answers)
	}
	return stats, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
