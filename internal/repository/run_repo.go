package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizforge-backend/internal/models"
)

type RunRepo struct {
	pool *pgxpool.Pool
}

func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

func (r *RunRepo) Create(ctx context.Context, kind, category string, config json.RawMessage) (models.Run, error) {
	run := models.Run{
		ID:       uuid.New(),
		Kind:     kind,
		Status:   models.RunStatusPending,
		Category: category,
		Config:   config,
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage("{}")
	}

	query := `INSERT INTO generation_runs (id, kind, category, status, config_json)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		run.ID, run.Kind, run.Category, run.Status, []byte(run.Config),
	).Scan(&run.CreatedAt)
	if err != nil {
		return models.Run{}, err
	}
	return run, nil
}

func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Run, error) {
	var run models.Run
	query := `SELECT id, kind, category, status, succeeded, failed, skipped_duplicates, retry_count,
		config_json, result_json, error_message, created_at, completed_at
		FROM generation_runs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Kind, &run.Category, &run.Status, &run.Succeeded, &run.Failed,
		&run.SkippedDuplicates, &run.RetryCount, &run.Config, &run.Result,
		&run.ErrorMessage, &run.CreatedAt, &run.CompletedAt,
	)
	if err != nil {
		return models.Run{}, notFound(err)
	}
	return run, nil
}

func (r *RunRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_runs SET status = $1 WHERE id = $2",
		models.RunStatusProcessing, id,
	)
	return err
}

// MarkRetrying puts a run back to pending after a transient failure.
func (r *RunRepo) MarkRetrying(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_runs SET status = $1, error_message = $2, retry_count = $3 WHERE id = $4",
		models.RunStatusPending, errMsg, retryCount, id,
	)
	return err
}

func (r *RunRepo) Complete(ctx context.Context, id uuid.UUID, succeeded, failed, skipped int, result any) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE generation_runs
		SET status = $1, succeeded = $2, failed = $3, skipped_duplicates = $4,
			result_json = $5, error_message = NULL, completed_at = $6
		WHERE id = $7`,
		models.RunStatusCompleted, succeeded, failed, skipped, resultBytes, time.Now(), id,
	)
	return err
}

func (r *RunRepo) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_runs SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4",
		models.RunStatusFailed, errMsg, time.Now(), id,
	)
	return err
}
