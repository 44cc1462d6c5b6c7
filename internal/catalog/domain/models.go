package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Model describes one video generation model available for submission.
// The JSON columns carry per-model option lists so new models can ship
// without a schema change.
type Model struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	ReplicateName    string         `gorm:"not null" json:"replicate_name"`
	DisplayName      string         `gorm:"not null" json:"display_name"`
	DurationOptions  datatypes.JSON `gorm:"type:jsonb" json:"duration_options"`
	SchemaParameters datatypes.JSON `gorm:"type:jsonb" json:"schema_parameters"`
	AspectRatios     datatypes.JSON `gorm:"type:jsonb" json:"aspect_ratios"`
	CreditsPerSecond int64          `gorm:"not null" json:"credits_per_second"`
	SupportsAudio    bool           `gorm:"not null" json:"supports_audio"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName sets the database table name.
func (Model) TableName() string { return "models" }

var (
	ErrModelNotFound   = errors.New("model_not_found")
	ErrInvalidDuration = errors.New("invalid_duration")
)

// Durations decodes the duration_options column.
func (m *Model) Durations() []int {
	var values []int
	if len(m.DurationOptions) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.DurationOptions, &values); err != nil {
		return nil
	}
	return values
}

// SchemaParameter is one input accepted by the provider model schema.
type SchemaParameter struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// Parameters decodes the schema_parameters column.
func (m *Model) Parameters() []SchemaParameter {
	var values []SchemaParameter
	if len(m.SchemaParameters) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.SchemaParameters, &values); err != nil {
		return nil
	}
	return values
}

// AllowsDuration reports whether duration is a valid choice. A model with
// no declared options accepts any positive duration.
func (m *Model) AllowsDuration(duration int) bool {
	if duration <= 0 {
		return false
	}
	options := m.Durations()
	if len(options) == 0 {
		return true
	}
	for _, option := range options {
		if option == duration {
			return true
		}
	}
	return false
}

// Cost is the credit price for a clip of the given duration.
func (m *Model) Cost(duration int) int64 {
	return m.CreditsPerSecond * int64(duration)
}

type Service interface {
	Get(ctx context.Context, modelID string) (*Model, error)
	List(ctx context.Context) ([]*Model, error)
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, modelID string) (*Model, error)
	FindAll(ctx context.Context, db *gorm.DB) ([]*Model, error)
}
