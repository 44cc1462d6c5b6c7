package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vidra-ai/vidra/internal/account/domain"
	obsmetrics "github.com/vidra-ai/vidra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("account.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Reserve(ctx context.Context, userID string, amount int64, jobID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	if amount < 0 {
		return 0, domain.ErrInvalidAmount
	}

	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureUser(ctx, tx, userID); err != nil {
			return err
		}
		ok, err := s.repo.TryDebit(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if !ok {
			available, _, err := s.repo.Balance(ctx, tx, userID)
			if err != nil {
				return err
			}
			return &domain.InsufficientCreditsError{Required: amount, Available: available}
		}
		balance, _, err = s.repo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		return s.repo.InsertEntry(ctx, tx, &domain.LedgerEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Kind:         domain.KindReserve,
			Delta:        -amount,
			BalanceAfter: balance,
			JobID:        optional(jobID),
			CreatedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditEntry(ctx, string(domain.KindReserve))
	}
	return balance, nil
}

func (s *Service) Refund(ctx context.Context, userID string, amount int64, jobID string) (int64, error) {
	return s.credit(ctx, userID, amount, domain.KindRefund, optional(jobID), nil)
}

func (s *Service) Grant(ctx context.Context, userID string, amount int64, reference string) (int64, error) {
	return s.credit(ctx, userID, amount, domain.KindGrant, nil, optional(reference))
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (s *Service) RedeemPurchase(ctx context.Context, userID, productID, token string, credits int64) (int64, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, false, domain.ErrInvalidUser
	}
	token = strings.TrimSpace(token)
	if token == "" || credits <= 0 {
		return 0, false, domain.ErrInvalidAmount
	}

	granted := false
	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureUser(ctx, tx, userID); err != nil {
			return err
		}
		inserted, err := s.repo.InsertPurchase(ctx, tx, &domain.Purchase{
			Token:     token,
			UserID:    userID,
			ProductID: productID,
			Credits:   credits,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			balance, _, err = s.repo.Balance(ctx, tx, userID)
			return err
		}
		granted = true
		if err := s.repo.Credit(ctx, tx, userID, credits); err != nil {
			return err
		}
		balance, _, err = s.repo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		return s.repo.InsertEntry(ctx, tx, &domain.LedgerEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Kind:         domain.KindPurchase,
			Delta:        credits,
			BalanceAfter: balance,
			Reference:    &token,
			CreatedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, false, err
	}
	if granted {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordCreditEntry(ctx, string(domain.KindPurchase))
		}
	} else {
		s.log.Info("purchase token already redeemed", zap.String("user_id", userID), zap.String("product_id", productID))
	}
	return balance, granted, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	balance, found, err := s.repo.Balance(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return balance, nil
}

func (s *Service) FCMToken(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", domain.ErrInvalidUser
	}
	return s.repo.FCMToken(ctx, s.db, userID)
}

func (s *Service) credit(ctx context.Context, userID string, amount int64, kind domain.LedgerKind, jobID, reference *string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, domain.ErrInvalidUser
	}
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.repo.Credit(ctx, tx, userID, amount); err != nil {
			return err
		}
		var err error
		balance, _, err = s.repo.Balance(ctx, tx, userID)
		if err != nil {
			return err
		}
		return s.repo.InsertEntry(ctx, tx, &domain.LedgerEntry{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Kind:         kind,
			Delta:        amount,
			BalanceAfter: balance,
			JobID:        jobID,
			Reference:    reference,
			CreatedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditEntry(ctx, string(kind))
	}
	return balance, nil
}
