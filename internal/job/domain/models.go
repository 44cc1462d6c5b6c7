package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Status is the lifecycle state of a generation job.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is one video generation request, keyed by (user_id, id). For
// generation jobs the id is the provider prediction id, so a duplicate
// submission lands on the same row.
type Job struct {
	UserID                string  `gorm:"primaryKey;column:user_id"`
	ID                    string  `gorm:"primaryKey"`
	Prompt                string  `gorm:"not null"`
	ModelID               string  `gorm:"not null"`
	ModelName             string  `gorm:"not null"`
	DurationSeconds       int     `gorm:"not null"`
	AspectRatio           string  `gorm:"not null"`
	EnableAudio           bool    `gorm:"not null"`
	Status                Status  `gorm:"type:text;not null"`
	Cost                  int64   `gorm:"not null"`
	CreditsDeducted       int64   `gorm:"not null"`
	CreditsRefunded       *int64  `gorm:"column:credits_refunded"`
	ReplicatePredictionID *string `gorm:"column:replicate_prediction_id"`
	InputImage            *string
	FirstFrameURL         *string `gorm:"column:first_frame_url"`
	LastFrameURL          *string `gorm:"column:last_frame_url"`
	StorageURL            *string `gorm:"column:storage_url"`
	PreviewURL            *string `gorm:"column:preview_url"`
	ErrorMessage          *string
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
	CompletedAt           *time.Time
	FailedAt              *time.Time
}

// TableName sets the database table name.
func (Job) TableName() string { return "jobs" }

// PredictionRef maps a provider prediction id back to the owning job.
type PredictionRef struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null"`
	JobID     string `gorm:"not null"`
	CreatedAt time.Time
}

// TableName sets the database table name.
func (PredictionRef) TableName() string { return "predictions" }

// Update is a partial job mutation. Nil fields are left untouched.
type Update struct {
	Status                *Status
	ReplicatePredictionID *string
	StorageURL            *string
	PreviewURL            *string
	ErrorMessage          *string
	CompletedAt           *time.Time
	FailedAt              *time.Time
}

var (
	ErrInvalidJob = errors.New("invalid_job")
	ErrNotFound   = errors.New("job_not_found")
)

type Service interface {
	// Create inserts the job unless a job with the same (user, id) already
	// exists. Returns false when the row was already present.
	Create(ctx context.Context, job *Job) (bool, error)
	Get(ctx context.Context, userID, jobID string) (*Job, error)
	List(ctx context.Context, userID string, limit int) ([]*Job, error)
	Update(ctx context.Context, userID, jobID string, update Update) error
	Delete(ctx context.Context, userID, jobID string) error
	// ClaimRefund stamps credits_refunded exactly once. It returns true only
	// for the caller that won the claim; replays observe false.
	ClaimRefund(ctx context.Context, userID, jobID string, amount int64) (bool, error)
	// PutPrediction records the prediction-to-job mapping used by webhook
	// dispatch.
	PutPrediction(ctx context.Context, predictionID, userID, jobID string) error
	// ResolvePrediction returns the owning (user, job) for a prediction id.
	ResolvePrediction(ctx context.Context, predictionID string) (userID, jobID string, found bool, err error)
	// FindByPredictionID scans the jobs table directly. It backs the
	// slower fallback path when the mapping row is missing.
	FindByPredictionID(ctx context.Context, predictionID string) (*Job, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, userID, jobID string) (*Job, error)
	FindByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*Job, error)
	Update(ctx context.Context, db *gorm.DB, userID, jobID string, update Update) error
	Delete(ctx context.Context, db *gorm.DB, userID, jobID string) error
	ClaimRefund(ctx context.Context, db *gorm.DB, userID, jobID string, amount int64) (bool, error)
	InsertPredictionRef(ctx context.Context, db *gorm.DB, ref *PredictionRef) error
	FindPredictionRef(ctx context.Context, db *gorm.DB, predictionID string) (*PredictionRef, error)
	FindByPredictionID(ctx context.Context, db *gorm.DB, predictionID string) (*Job, error)
}
