package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	accountdomain "github.com/vidra-ai/vidra/internal/account/domain"
	catalogdomain "github.com/vidra-ai/vidra/internal/catalog/domain"
	"github.com/vidra-ai/vidra/internal/config"
	"github.com/vidra-ai/vidra/internal/generation/domain"
	"github.com/vidra-ai/vidra/internal/idempotency"
	jobdomain "github.com/vidra-ai/vidra/internal/job/domain"
	obsmetrics "github.com/vidra-ai/vidra/internal/observability/metrics"
	"github.com/vidra-ai/vidra/internal/providers/replicate"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultLockTTL = 30 * time.Second

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Accounts   accountdomain.Service
	Jobs       jobdomain.Service
	Catalog    catalogdomain.Service
	Gateway    replicate.Gateway
	Locker     *idempotency.Locker `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	accounts   accountdomain.Service
	jobs       jobdomain.Service
	catalog    catalogdomain.Service
	gateway    replicate.Gateway
	locker     *idempotency.Locker
	lockTTL    time.Duration
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	lockTTL := p.Cfg.SubmitLockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Service{
		log:        p.Log.Named("generation.service"),
		accounts:   p.Accounts,
		jobs:       p.Jobs,
		catalog:    p.Catalog,
		gateway:    p.Gateway,
		locker:     p.Locker,
		lockTTL:    lockTTL,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Generate(ctx context.Context, userID string, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(req.Prompt) == "" || strings.TrimSpace(req.ModelID) == "" {
		return nil, domain.ErrInvalidRequest
	}

	model, err := s.catalog.Get(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}
	if !model.AllowsDuration(req.DurationSeconds) {
		return nil, catalogdomain.ErrInvalidDuration
	}

	// Serialize identical in-flight submissions so a double-tap cannot
	// reserve credits twice for the same request.
	lockKey := submissionLockKey(userID, req)
	token, err := s.locker.Acquire(ctx, lockKey, s.lockTTL)
	if err != nil {
		if err == idempotency.ErrAlreadyLocked {
			return nil, domain.ErrDuplicateInFlight
		}
		s.log.Warn("submission lock unavailable, continuing without it", zap.Error(err))
	}
	defer s.locker.Release(ctx, lockKey, token)

	cost := model.Cost(req.DurationSeconds)
	if _, err := s.accounts.Reserve(ctx, userID, cost, ""); err != nil {
		s.recordSubmission(ctx, req.ModelID, "rejected")
		return nil, err
	}

	prediction, err := s.gateway.Submit(ctx, model.ReplicateName, buildInput(model, req))
	if err != nil {
		s.compensate(ctx, userID, cost, "")
		s.recordSubmission(ctx, req.ModelID, "provider_error")
		return nil, err
	}

	now := time.Now().UTC()
	created, err := s.jobs.Create(ctx, &jobdomain.Job{
		UserID:                userID,
		ID:                    prediction.ID,
		Prompt:                req.Prompt,
		ModelID:               req.ModelID,
		ModelName:             model.ReplicateName,
		DurationSeconds:       req.DurationSeconds,
		AspectRatio:           req.AspectRatio,
		EnableAudio:           req.EnableAudio,
		Status:                jobdomain.StatusProcessing,
		Cost:                  cost,
		CreditsDeducted:       cost,
		ReplicatePredictionID: &prediction.ID,
		FirstFrameURL:         optional(req.FirstFrameURL),
		LastFrameURL:          optional(req.LastFrameURL),
		CreatedAt:             now,
		UpdatedAt:             now,
	})
	if err != nil {
		s.compensate(ctx, userID, cost, prediction.ID)
		return nil, err
	}
	if !created {
		// Lost the race to an identical submission; its reservation
		// stands and this one is returned.
		s.compensate(ctx, userID, cost, prediction.ID)
		existing, err := s.jobs.Get(ctx, userID, prediction.ID)
		if err != nil {
			return nil, err
		}
		s.recordSubmission(ctx, req.ModelID, "duplicate")
		return &domain.GenerateResult{
			PredictionID: prediction.ID,
			Status:       string(existing.Status),
			Webhook:      prediction.URLs.Get,
		}, nil
	}

	if err := s.jobs.PutPrediction(ctx, prediction.ID, userID, prediction.ID); err != nil {
		s.log.Error("failed to record prediction lookup",
			zap.String("prediction_id", prediction.ID),
			zap.Error(err),
		)
	}

	s.recordSubmission(ctx, req.ModelID, "accepted")
	s.log.Info("generation submitted",
		zap.String("user_id", userID),
		zap.String("model_id", req.ModelID),
		zap.String("prediction_id", prediction.ID),
		zap.Int64("cost", cost),
	)
	return &domain.GenerateResult{
		PredictionID: prediction.ID,
		Status:       prediction.Status,
		Webhook:      prediction.URLs.Get,
	}, nil
}

func (s *Service) CreateEffect(ctx context.Context, userID string, req domain.EffectRequest) (*domain.EffectResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(req.EffectID) == "" || strings.TrimSpace(req.ImageURL) == "" {
		return nil, domain.ErrInvalidRequest
	}

	aspectRatio := req.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}

	jobID := uuid.NewString()
	now := time.Now().UTC()
	if _, err := s.jobs.Create(ctx, &jobdomain.Job{
		UserID:      userID,
		ID:          jobID,
		Prompt:      req.EffectPrompt,
		ModelID:     req.EffectID,
		ModelName:   "effect",
		AspectRatio: aspectRatio,
		Status:      jobdomain.StatusQueued,
		InputImage:  &req.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, err
	}

	s.log.Info("effect job queued",
		zap.String("user_id", userID),
		zap.String("effect_id", req.EffectID),
		zap.String("job_id", jobID),
	)
	return &domain.EffectResult{JobID: jobID, Status: string(jobdomain.StatusQueued)}, nil
}

// compensate returns reserved credits after a failed submission. A failure
// here is logged loudly; the ledger keeps enough context to repair by hand.
func (s *Service) compensate(ctx context.Context, userID string, cost int64, jobID string) {
	if cost <= 0 {
		return
	}
	if _, err := s.accounts.Refund(ctx, userID, cost, jobID); err != nil {
		s.log.Error("failed to refund reserved credits",
			zap.String("user_id", userID),
			zap.Int64("cost", cost),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordSubmission(ctx context.Context, modelID, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSubmission(ctx, modelID, outcome)
	}
}

func submissionLockKey(userID string, req domain.GenerateRequest) string {
	fingerprint := sha256.Sum256([]byte(strings.Join([]string{
		req.ModelID,
		req.Prompt,
		fmt.Sprintf("%d", req.DurationSeconds),
		req.AspectRatio,
		req.FirstFrameURL,
		req.LastFrameURL,
	}, "|")))
	return "gen:lock:" + userID + ":" + hex.EncodeToString(fingerprint[:])
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
