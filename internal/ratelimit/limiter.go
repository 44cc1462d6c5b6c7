package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/vidra-ai/vidra/internal/config"
)

const keySubmit = "ratelimit:submit:%s"

// SubmissionLimiter throttles generation submissions per user. A nil
// limiter (no redis, or limits unset) allows everything.
type SubmissionLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewSubmissionLimiter(cfg config.Config, bucket *TokenBucket) *SubmissionLimiter {
	if bucket == nil || cfg.RateLimit.SubmitRate <= 0 || cfg.RateLimit.SubmitBurst <= 0 {
		return nil
	}
	return &SubmissionLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.SubmitRate,
		burst:  cfg.RateLimit.SubmitBurst,
	}
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *SubmissionLimiter) Allow(ctx context.Context, userID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keySubmit, strings.TrimSpace(userID)), l.rate, l.burst)
}
