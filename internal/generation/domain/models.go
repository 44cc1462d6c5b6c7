package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerateRequest is one video generation submission.
type GenerateRequest struct {
	Prompt          string `json:"prompt"`
	ModelID         string `json:"modelId"`
	DurationSeconds int    `json:"durationSeconds"`
	AspectRatio     string `json:"aspectRatio"`
	EnableAudio     bool   `json:"enableAudio"`
	FirstFrameURL   string `json:"firstFrameUrl,omitempty"`
	LastFrameURL    string `json:"lastFrameUrl,omitempty"`
	NegativePrompt  string `json:"negativePrompt,omitempty"`
}

// GenerateResult is returned to the submitting client.
type GenerateResult struct {
	PredictionID string `json:"predictionId"`
	Status       string `json:"status"`
	Webhook      string `json:"webhook,omitempty"`
}

// EffectRequest creates a queued effect job with no provider call.
type EffectRequest struct {
	EffectID     string `json:"effectId"`
	EffectPrompt string `json:"effectPrompt,omitempty"`
	ImageURL     string `json:"imageUrl"`
	AspectRatio  string `json:"aspectRatio,omitempty"`
}

// EffectResult is returned to the submitting client.
type EffectResult struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// WebhookEvent is one recorded provider delivery, kept for audit and
// replay analysis.
type WebhookEvent struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	PredictionID string         `gorm:"not null"`
	Status       string         `gorm:"not null"`
	Payload      datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt   time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrDuplicateInFlight = errors.New("duplicate_submission_in_flight")
)

type Service interface {
	Generate(ctx context.Context, userID string, req GenerateRequest) (*GenerateResult, error)
	CreateEffect(ctx context.Context, userID string, req EffectRequest) (*EffectResult, error)
}

type Reconciler interface {
	// Process applies one provider webhook delivery. Only a malformed
	// payload returns an error; every other outcome is acknowledged.
	Process(ctx context.Context, prediction *replicate.Prediction) error
}

type Repository interface {
	InsertWebhookEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) error
}
