package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrAlreadyLocked is returned when another holder owns the key.
var ErrAlreadyLocked = errors.New("idempotency: key already locked")

// Locker serializes concurrent submissions of the same job across
// instances. A nil Locker disables locking; the database unique key then
// remains the only duplicate guard.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// Acquire takes the lock for key, returning a release token. When the
// locker is disabled it succeeds with an empty token.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l == nil || l.client == nil {
		return "", nil
	}
	if key == "" {
		return "", errors.New("idempotency: lock key is empty")
	}
	if ttl <= 0 {
		return "", errors.New("idempotency: lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAlreadyLocked
	}
	return token, nil
}

// Release frees the lock only when token still owns it, so a holder that
// outlived its TTL cannot release a successor's lock.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
