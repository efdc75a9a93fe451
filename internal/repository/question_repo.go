package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizforge-backend/internal/models"
)

type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

const questionColumns = `id, title, body, explanation, category, difficulty, created_at`

func scanQuestion(row pgx.Row) (models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.Title, &q.Body, &q.Explanation, &q.Category, &q.Difficulty, &q.CreatedAt)
	return q, err
}

func (r *QuestionRepo) CreateQuestion(ctx context.Context, nq models.NewQuestion) (models.Question, error) {
	var explanation *string
	if nq.Explanation != "" {
		explanation = &nq.Explanation
	}

	query := `INSERT INTO questions (id, title, body, explanation, category, difficulty)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + questionColumns

	return scanQuestion(r.pool.QueryRow(ctx, query,
		uuid.New(), nq.Title, nq.Body, explanation, nq.Category, nq.Difficulty,
	))
}

func (r *QuestionRepo) CreateChoice(ctx context.Context, questionID uuid.UUID, content string, isCorrect bool, orderNum int) (models.Choice, error) {
	c := models.Choice{ID: uuid.New(), QuestionID: questionID, Content: content, IsCorrect: isCorrect, OrderNum: orderNum}

	_, err := r.pool.Exec(ctx,
		"INSERT INTO choices (id, question_id, content, is_correct, order_num) VALUES ($1, $2, $3, $4, $5)",
		c.ID, c.QuestionID, c.Content, c.IsCorrect, c.OrderNum,
	)
	if err != nil {
		return models.Choice{}, err
	}
	return c, nil
}

// DeleteQuestion removes a question; choices and answer records cascade.
func (r *QuestionRepo) DeleteQuestion(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM questions WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Question, error) {
	q, err := scanQuestion(r.pool.QueryRow(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE id = $1", id))
	if err != nil {
		return models.Question{}, notFound(err)
	}
	return q, nil
}

func (r *QuestionRepo) GetChoices(ctx context.Context, questionID uuid.UUID) ([]models.Choice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, content, is_correct, order_num
		FROM choices WHERE question_id = $1 ORDER BY order_num`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	choices := []models.Choice{}
	for rows.Next() {
		var c models.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Content, &c.IsCorrect, &c.OrderNum); err != nil {
			return nil, err
		}
		choices = append(choices, c)
	}
	return choices, rows.Err()
}

func (r *QuestionRepo) GetWithChoices(ctx context.Context, id uuid.UUID) (models.QuestionWithChoices, error) {
	q, err := r.GetByID(ctx, id)
	if err != nil {
		return models.QuestionWithChoices{}, err
	}
	choices, err := r.GetChoices(ctx, id)
	if err != nil {
		return models.QuestionWithChoices{}, err
	}
	return models.QuestionWithChoices{
		Question:       q,
		Choices:        choices,
		MultipleAnswer: models.IsMultipleAnswer(choices),
	}, nil
}

// ListByCategory returns every question in a category, oldest first.
func (r *QuestionRepo) ListByCategory(ctx context.Context, category string) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+questionColumns+" FROM questions WHERE category = $1 ORDER BY created_at", category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectQuestions(rows)
}

// List pages through questions, newest first, optionally within one category.
func (r *QuestionRepo) List(ctx context.Context, category string, limit, offset int) ([]models.Question, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM questions WHERE ($1 = '' OR category = $1)", category,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions
		WHERE ($1 = '' OR category = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		category, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	questions, err := collectQuestions(rows)
	if err != nil {
		return nil, 0, err
	}
	return questions, total, nil
}

func collectQuestions(rows pgx.Rows) ([]models.Question, error) {
	questions := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
