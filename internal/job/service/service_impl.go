package service

import (
	"context"
	"strings"
	"time"

	"github.com/vidra-ai/vidra/internal/job/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("job.service"),
		repo: p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, job *domain.Job) (bool, error) {
	if job == nil || strings.TrimSpace(job.UserID) == "" || strings.TrimSpace(job.ID) == "" {
		return false, domain.ErrInvalidJob
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	created, err := s.repo.Insert(ctx, s.db, job)
	if err != nil {
		return false, err
	}
	if !created {
		s.log.Info("job already exists, skipping create",
			zap.String("user_id", job.UserID),
			zap.String("job_id", job.ID),
		)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return nil, domain.ErrInvalidJob
	}
	job, err := s.repo.FindByID(ctx, s.db, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidJob
	}
	return s.repo.FindByUser(ctx, s.db, userID, limit)
}

func (s *Service) Update(ctx context.Context, userID, jobID string, update domain.Update) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return domain.ErrInvalidJob
	}
	return s.repo.Update(ctx, s.db, userID, jobID, update)
}

func (s *Service) Delete(ctx context.Context, userID, jobID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return domain.ErrInvalidJob
	}
	return s.repo.Delete(ctx, s.db, userID, jobID)
}

func (s *Service) ClaimRefund(ctx context.Context, userID, jobID string, amount int64) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return false, domain.ErrInvalidJob
	}
	return s.repo.ClaimRefund(ctx, s.db, userID, jobID, amount)
}

func (s *Service) PutPrediction(ctx context.Context, predictionID, userID, jobID string) error {
	if strings.TrimSpace(predictionID) == "" {
		return domain.ErrInvalidJob
	}
	return s.repo.InsertPredictionRef(ctx, s.db, &domain.PredictionRef{
		ID:        predictionID,
		UserID:    userID,
		JobID:     jobID,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) ResolvePrediction(ctx context.Context, predictionID string) (string, string, bool, error) {
	if strings.TrimSpace(predictionID) == "" {
		return "", "", false, domain.ErrInvalidJob
	}
	ref, err := s.repo.FindPredictionRef(ctx, s.db, predictionID)
	if err != nil {
		return "", "", false, err
	}
	if ref == nil {
		return "", "", false, nil
	}
	return ref.UserID, ref.JobID, true, nil
}

func (s *Service) FindByPredictionID(ctx context.Context, predictionID string) (*domain.Job, error) {
	if strings.TrimSpace(predictionID) == "" {
		return nil, domain.ErrInvalidJob
	}
	return s.repo.FindByPredictionID(ctx, s.db, predictionID)
}
