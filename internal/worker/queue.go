package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/models"
)

const (
	JobGeneration = "question-generation"
	JobTranscript = "transcript"
)

// ErrQueueEmpty is returned by Pop when nothing arrived before the timeout.
var ErrQueueEmpty = errors.New("queue empty")

// Queue is the job transport between the API and the worker pool.
type Queue interface {
	Push(ctx context.Context, job models.Job) error
	Pop(ctx context.Context, timeout time.Duration) (models.Job, error)
	Lock(ctx context.Context, runID uuid.UUID, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, runID uuid.UUID) error
}

func QueueName(jobType string) string {
	return "queue:" + jobType
}

// RedisQueue keeps one Redis list per job type.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Push(ctx context.Context, job models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, QueueName(job.Type), data).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (models.Job, error) {
	result, err := q.client.BRPop(ctx, timeout, QueueName(JobGeneration), QueueName(JobTranscript)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrQueueEmpty
	}
	if err != nil {
		return models.Job{}, err
	}
	if len(result) < 2 {
		return models.Job{}, ErrQueueEmpty
	}

	var job models.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return models.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func (q *RedisQueue) Lock(ctx context.Context, runID uuid.UUID, ttl time.Duration) (bool, error) {
	return q.client.SetNX(ctx, lockKey(runID), "1", ttl).Result()
}

func (q *RedisQueue) Unlock(ctx context.Context, runID uuid.UUID) error {
	return q.client.Del(ctx, lockKey(runID)).Err()
}

func lockKey(runID uuid.UUID) string {
	return fmt.Sprintf("run_lock:%s", runID.String())
}
