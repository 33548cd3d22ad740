package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("sweep lock not acquired")
)

// Locker serializes a named periodic sweep across worker instances. The
// booking path deliberately carries no lock; only the background sweeps
// (reminders, waitlist expiry) take one so that two workers do not run the
// same sweep at the same time.
type Locker interface {
	WithSweepLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type redisSweepLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSweepLocker creates a locker that uses a per sweep Redis key.
func NewRedisSweepLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisSweepLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisSweepLocker) WithSweepLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:sweep:%s", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSweepLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release sweep lock: %w", err)
	}
	return nil
}
