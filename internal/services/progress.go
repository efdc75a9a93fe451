package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/models"
)

// ProgressChannel is the pub/sub channel carrying updates for one run.
func ProgressChannel(runID uuid.UUID) string {
	return "generation_progress:" + runID.String()
}

// ProgressPublisher fans run progress out through Redis pub/sub so any API
// instance holding the client's websocket can deliver it.
type ProgressPublisher struct {
	redis *redis.Client
	log   *logger.Logger
}

func NewProgressPublisher(redisClient *redis.Client, log *logger.Logger) *ProgressPublisher {
	return &ProgressPublisher{redis: redisClient, log: log.With("service", "ProgressPublisher")}
}

// Publish sends a WebSocket update via Redis pub/sub. Delivery is best effort.
func (p *ProgressPublisher) Publish(ctx context.Context, runID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("failed to encode progress message", "run_id", runID, "error", err)
		return
	}
	if err := p.redis.Publish(ctx, ProgressChannel(runID), data).Err(); err != nil {
		p.log.Warn("failed to publish progress", "run_id", runID, "error", err)
	}
}

// Progress returns a callback that publishes status_update messages for runID.
func (p *ProgressPublisher) Progress(ctx context.Context, runID uuid.UUID) func(message string, fraction float64) {
	return func(message string, fraction float64) {
		p.Publish(ctx, runID, models.WSMessage{
			Type:    "status_update",
			Payload: models.ProgressUpdate{RunID: runID, Message: message, Fraction: fraction},
		})
	}
}
