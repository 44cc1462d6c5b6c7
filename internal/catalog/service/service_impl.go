package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/vidra-ai/vidra/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const modelCacheTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Redis *redis.Client `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	redis *redis.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		repo:  p.Repo,
		redis: p.Redis,
	}
}

func (s *Service) Get(ctx context.Context, modelID string) (*domain.Model, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, domain.ErrModelNotFound
	}

	if cached := s.fromCache(ctx, modelID); cached != nil {
		return cached, nil
	}

	model, err := s.repo.FindByID(ctx, s.db, modelID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	s.toCache(ctx, model)
	return model, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Model, error) {
	return s.repo.FindAll(ctx, s.db)
}

func (s *Service) fromCache(ctx context.Context, modelID string) *domain.Model {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, cacheKey(modelID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("model cache read failed", zap.String("model_id", modelID), zap.Error(err))
		}
		return nil
	}
	var model domain.Model
	if err := json.Unmarshal(raw, &model); err != nil {
		return nil
	}
	return &model
}

func (s *Service) toCache(ctx context.Context, model *domain.Model) {
	if s.redis == nil || model == nil {
		return
	}
	raw, err := json.Marshal(model)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(model.ID), raw, modelCacheTTL).Err(); err != nil {
		s.log.Warn("model cache write failed", zap.String("model_id", model.ID), zap.Error(err))
	}
}

func cacheKey(modelID string) string {
	return "catalog:model:" + modelID
}
