package repository

import (
	"context"
	"time"

	"github.com/vidra-ai/vidra/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureUser(ctx context.Context, db *gorm.DB, userID string) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, credits, created_at, updated_at)
		 VALUES (?, 0, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		userID,
		now,
		now,
	).Error
}

func (r *repo) TryDebit(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits - ?, updated_at = ?
		 WHERE id = ? AND credits >= ?`,
		amount,
		time.Now().UTC(),
		userID,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, userID string, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ?`,
		amount,
		time.Now().UTC(),
		userID,
	).Error
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, userID string) (int64, bool, error) {
	var row struct {
		Found   bool
		Credits int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT TRUE AS found, credits FROM users WHERE id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return 0, false, err
	}
	return row.Credits, row.Found, nil
}

func (r *repo) FCMToken(ctx context.Context, db *gorm.DB, userID string) (string, error) {
	var row struct {
		FCMToken *string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT fcm_token FROM users WHERE id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if row.FCMToken == nil {
		return "", nil
	}
	return *row.FCMToken, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_ledger (id, user_id, kind, delta, balance_after, job_id, reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		string(entry.Kind),
		entry.Delta,
		entry.BalanceAfter,
		entry.JobID,
		entry.Reference,
		entry.CreatedAt,
	).Error
}

func (r *repo) InsertPurchase(ctx context.Context, db *gorm.DB, purchase *domain.Purchase) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO purchases (token, user_id, product_id, credits, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (token) DO NOTHING`,
		purchase.Token,
		purchase.UserID,
		purchase.ProductID,
		purchase.Credits,
		purchase.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
