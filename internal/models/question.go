package models

import (
	"time"

	"github.com/google/uuid"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps free-form input onto the enum, defaulting to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(s)
	}
	switch s {
	case "易しい", "簡単", "初級":
		return DifficultyEasy
	case "難しい", "上級":
		return DifficultyHard
	}
	return DifficultyMedium
}

type Question struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Explanation *string    `json:"explanation"`
	Category    string     `json:"category"`
	Difficulty  Difficulty `json:"difficulty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Content    string    `json:"content"`
	IsCorrect  bool      `json:"is_correct"`
	OrderNum   int       `json:"order_num"`
}

type AnswerRecord struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	ChoiceID   uuid.UUID `json:"choice_id"`
	IsCorrect  bool      `json:"is_correct"`
	SessionID  string    `json:"session_id"`
	AnsweredAt time.Time `json:"answered_at"`
}

// NewQuestion is the input for persisting a question.
type NewQuestion struct {
	Title       string
	Body        string
	Explanation string
	Category    string
	Difficulty  Difficulty
}

type QuestionWithChoices struct {
	Question
	Choices        []Choice `json:"choices"`
	MultipleAnswer bool     `json:"multiple_answer"`
}

// IsMultipleAnswer infers multi-answer mode from the stored choices; the
// mode itself is not persisted.
func IsMultipleAnswer(choices []Choice) bool {
	n := 0
	for _, c := range choices {
		if c.IsCorrect {
			n++
		}
	}
	return n > 1
}

// CategoryStats summarises answer records for one category.
type CategoryStats struct {
	Category      string  `json:"category"`
	QuestionCount int     `json:"question_count"`
	AnswerCount   int     `json:"answer_count"`
	CorrectCount  int     `json:"correct_count"`
	AccuracyRate  float64 `json:"accuracy_rate"`
}
