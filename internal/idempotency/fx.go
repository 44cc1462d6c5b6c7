package idempotency

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/vidra-ai/vidra/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when no redis address is configured. Redis
// backed features degrade to their local fallbacks in that case.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
}
