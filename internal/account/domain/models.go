package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// LedgerKind classifies credit ledger entries.
type LedgerKind string

const (
	KindReserve  LedgerKind = "reserve"  // deducted at generation submission
	KindRefund   LedgerKind = "refund"   // compensation for a failed job
	KindGrant    LedgerKind = "grant"    // manual / test credit grant
	KindPurchase LedgerKind = "purchase" // credits bought through the store
)

// User is the durable account record. Credits are only ever mutated through
// atomic SQL increments, never read-modify-write.
type User struct {
	ID        string    `gorm:"primaryKey"`
	Credits   int64     `gorm:"not null;default:0"`
	FCMToken  *string   `gorm:"column:fcm_token"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// LedgerEntry is an append-only record of one balance mutation.
type LedgerEntry struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	UserID       string       `gorm:"not null;index"`
	Kind         LedgerKind   `gorm:"type:text;not null"`
	Delta        int64        `gorm:"not null"`
	BalanceAfter int64        `gorm:"not null"`
	JobID        *string
	Reference    *string
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger" }

// Purchase records a redeemed store purchase token, keyed by token so a
// replayed redemption cannot grant credits twice.
type Purchase struct {
	Token     string `gorm:"primaryKey"`
	UserID    string `gorm:"not null"`
	ProductID string `gorm:"not null"`
	Credits   int64  `gorm:"not null"`
	CreatedAt time.Time
}

// TableName sets the database table name.
func (Purchase) TableName() string { return "purchases" }

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidAmount = errors.New("invalid_amount")
)

// InsufficientCreditsError is a normal, expected outcome of Reserve,
// not an internal failure.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an insufficient-credits outcome.
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}

type Service interface {
	// Reserve atomically debits amount from the user's balance, creating
	// the account with zero credits on first touch. Returns the balance
	// after the debit, or *InsufficientCreditsError.
	Reserve(ctx context.Context, userID string, amount int64, jobID string) (int64, error)
	// Refund atomically credits amount back. Refund idempotency is owned
	// by the caller.
	Refund(ctx context.Context, userID string, amount int64, jobID string) (int64, error)
	// Grant credits amount with no job attached.
	Grant(ctx context.Context, userID string, amount int64, reference string) (int64, error)
	// RedeemPurchase grants the product's credits exactly once per token.
	RedeemPurchase(ctx context.Context, userID, productID, token string, credits int64) (balance int64, granted bool, err error)
	Balance(ctx context.Context, userID string) (int64, error)
	FCMToken(ctx context.Context, userID string) (string, error)
}

type Repository interface {
	EnsureUser(ctx context.Context, db *gorm.DB, userID string) error
	// TryDebit decrements credits only when the balance covers amount.
	TryDebit(ctx context.Context, db *gorm.DB, userID string, amount int64) (bool, error)
	Credit(ctx context.Context, db *gorm.DB, userID string, amount int64) error
	Balance(ctx context.Context, db *gorm.DB, userID string) (int64, bool, error)
	FCMToken(ctx context.Context, db *gorm.DB, userID string) (string, error)
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	InsertPurchase(ctx context.Context, db *gorm.DB, purchase *Purchase) (bool, error)
}
