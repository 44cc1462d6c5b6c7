package repository

import (
	"context"

	"github.com/vidra-ai/vidra/internal/generation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, prediction_id, status, payload, received_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.PredictionID,
		event.Status,
		event.Payload,
		event.ReceivedAt,
	).Error
}
