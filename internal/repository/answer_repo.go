package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizforge-backend/internal/models"
)

type AnswerRepo struct {
	pool *pgxpool.Pool
}

func NewAnswerRepo(pool *pgxpool.Pool) *AnswerRepo {
	return &AnswerRepo{pool: pool}
}

// Create records an answer; correctness is copied from the chosen choice.
// ErrNotFound means the choice does not belong to the question.
func (r *AnswerRepo) Create(ctx context.Context, questionID, choiceID uuid.UUID, sessionID string) (models.AnswerRecord, error) {
	query := `INSERT INTO answer_records (id, question_id, choice_id, is_correct, session_id)
		SELECT $1, question_id, id, is_correct, $4 FROM choices WHERE id = $3 AND question_id = $2
		RETURNING id, question_id, choice_id, is_correct, session_id, answered_at`

	var a models.AnswerRecord
	err := r.pool.QueryRow(ctx, query, uuid.New(), questionID, choiceID, sessionID).Scan(
		&a.ID, &a.QuestionID, &a.ChoiceID, &a.IsCorrect, &a.SessionID, &a.AnsweredAt,
	)
	if err != nil {
		return models.AnswerRecord{}, notFound(err)
	}
	return a, nil
}

func (r *AnswerRepo) CategoryAnswerCounts(ctx context.Context, category string) (answers, correct int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(a.id), COUNT(a.id) FILTER (WHERE a.is_correct)
		FROM answer_records a JOIN questions q ON q.id = a.question_id
		WHERE q.category = $1`, category,
	).Scan(&answers, &correct)
	return answers, correct, err
}
