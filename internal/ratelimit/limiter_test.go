package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/vidra-ai/vidra/internal/config"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	var l *SubmissionLimiter

	if l.Enabled() {
		t.Fatal("nil limiter must report disabled")
	}
	result, err := l.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !result.Allowed {
		t.Fatal("disabled limiter must allow")
	}
}

func TestNewSubmissionLimiterRequiresRedisAndLimits(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{SubmitRate: 1, SubmitBurst: 5}}
	if NewSubmissionLimiter(cfg, nil) != nil {
		t.Fatal("expected nil limiter without redis")
	}

	bucket := &TokenBucket{}
	if NewSubmissionLimiter(config.Config{}, bucket) != nil {
		t.Fatal("expected nil limiter without configured limits")
	}
	if NewSubmissionLimiter(cfg, bucket) == nil {
		t.Fatal("expected limiter with redis and limits")
	}
}

func TestBucketTTL(t *testing.T) {
	// 5 tokens at 1/s refills in 5s: keep the key twice that long.
	if got := bucketTTL(1, 5); got != 10*time.Second {
		t.Fatalf("expected 10s, got %s", got)
	}
	if got := bucketTTL(100, 1); got != time.Second {
		t.Fatalf("expected 1s floor, got %s", got)
	}
}
