package repository

import (
	"context"

	"github.com/vidra-ai/vidra/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, modelID string) (*domain.Model, error) {
	var model domain.Model
	err := db.WithContext(ctx).Raw(
		`SELECT id, replicate_name, display_name, duration_options, schema_parameters,
		        aspect_ratios, credits_per_second, supports_audio, created_at, updated_at
		 FROM models WHERE id = ?`,
		modelID,
	).Scan(&model).Error
	if err != nil {
		return nil, err
	}
	if model.ID == "" {
		return nil, nil
	}
	return &model, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB) ([]*domain.Model, error) {
	var models []*domain.Model
	err := db.WithContext(ctx).
		Model(&domain.Model{}).
		Order("id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}
