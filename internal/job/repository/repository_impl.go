package repository

import (
	"context"
	"time"

	"github.com/vidra-ai/vidra/internal/job/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO jobs (
			user_id, id, prompt, model_id, model_name, duration_seconds, aspect_ratio,
			enable_audio, status, cost, credits_deducted, credits_refunded,
			replicate_prediction_id, input_image, first_frame_url, last_frame_url,
			storage_url, preview_url, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO NOTHING`,
		job.UserID,
		job.ID,
		job.Prompt,
		job.ModelID,
		job.ModelName,
		job.DurationSeconds,
		job.AspectRatio,
		job.EnableAudio,
		string(job.Status),
		job.Cost,
		job.CreditsDeducted,
		job.CreditsRefunded,
		job.ReplicatePredictionID,
		job.InputImage,
		job.FirstFrameURL,
		job.LastFrameURL,
		job.StorageURL,
		job.PreviewURL,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM jobs WHERE user_id = ? AND id = ?`,
		userID,
		jobID,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) FindByUser(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*domain.Job, error) {
	var jobs []*domain.Job
	stmt := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, userID, jobID string, update domain.Update) error {
	values := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.Status != nil {
		values["status"] = string(*update.Status)
	}
	if update.ReplicatePredictionID != nil {
		values["replicate_prediction_id"] = *update.ReplicatePredictionID
	}
	if update.StorageURL != nil {
		values["storage_url"] = *update.StorageURL
	}
	if update.PreviewURL != nil {
		values["preview_url"] = *update.PreviewURL
	}
	if update.ErrorMessage != nil {
		values["error_message"] = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		values["completed_at"] = update.CompletedAt.UTC()
	}
	if update.FailedAt != nil {
		values["failed_at"] = update.FailedAt.UTC()
	}
	stmt := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("user_id = ? AND id = ?", userID, jobID)
	// A non-terminal transition must never overwrite COMPLETE or FAILED,
	// even when two deliveries race between read and write.
	if update.Status != nil && !update.Status.Terminal() {
		stmt = stmt.Where("status NOT IN ?", []string{
			string(domain.StatusComplete),
			string(domain.StatusFailed),
		})
	}
	return stmt.Updates(values).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID, jobID string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM jobs WHERE user_id = ? AND id = ?`,
		userID,
		jobID,
	).Error
}

func (r *repo) ClaimRefund(ctx context.Context, db *gorm.DB, userID, jobID string, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE jobs SET credits_refunded = ?, updated_at = ?
		 WHERE user_id = ? AND id = ? AND credits_refunded IS NULL AND credits_deducted > 0`,
		amount,
		time.Now().UTC(),
		userID,
		jobID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertPredictionRef(ctx context.Context, db *gorm.DB, ref *domain.PredictionRef) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO predictions (id, user_id, job_id, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ref.ID,
		ref.UserID,
		ref.JobID,
		ref.CreatedAt,
	).Error
}

func (r *repo) FindPredictionRef(ctx context.Context, db *gorm.DB, predictionID string) (*domain.PredictionRef, error) {
	var ref domain.PredictionRef
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, job_id, created_at FROM predictions WHERE id = ?`,
		predictionID,
	).Scan(&ref).Error
	if err != nil {
		return nil, err
	}
	if ref.ID == "" {
		return nil, nil
	}
	return &ref, nil
}

func (r *repo) FindByPredictionID(ctx context.Context, db *gorm.DB, predictionID string) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM jobs WHERE replicate_prediction_id = ? LIMIT 1`,
		predictionID,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}
