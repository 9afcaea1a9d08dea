package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps Redis transport failures.
var ErrBackendUnavailable = errors.New("security backend unavailable")

// RedisLockout is a LockoutTracker equivalent backed by Redis counters, for
// deployments where lockout state must survive restarts and be shared across
// instances. Counter keys carry the streak TTL; trip keys carry the lockout
// duration.
type RedisLockout struct {
	client redis.UniversalClient
	config LockoutConfig
	prefix string
}

// NewRedisLockout builds a Redis-backed lockout store.
func NewRedisLockout(client redis.UniversalClient, cfg LockoutConfig, prefix string) *RedisLockout {
	if prefix == "" {
		prefix = "mp:lockout"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.CounterTTL <= 0 {
		cfg.CounterTTL = time.Hour
	}
	return &RedisLockout{client: client, config: cfg, prefix: prefix}
}

func (r *RedisLockout) counterKey(id string) string { return r.prefix + ":count:" + id }
func (r *RedisLockout) lockKey(id string) string    { return r.prefix + ":lock:" + id }

func (r *RedisLockout) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	key := NormalizeIdentifier(identifier)

	count, err := r.client.Incr(ctx, r.counterKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		r.client.Expire(ctx, r.counterKey(key), r.config.CounterTTL)
	}

	if count >= int64(r.config.MaxAttempts) {
		until := time.Now().Add(r.config.LockoutDuration)
		if err := r.client.Set(ctx, r.lockKey(key), until.Unix(), r.config.LockoutDuration).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return true, nil
	}
	return false, nil
}

func (r *RedisLockout) IsLocked(ctx context.Context, identifier string) (bool, error) {
	remaining, err := r.TimeRemaining(ctx, identifier)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

func (r *RedisLockout) TimeRemaining(ctx context.Context, identifier string) (time.Duration, error) {
	key := NormalizeIdentifier(identifier)
	ttl, err := r.client.TTL(ctx, r.lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if ttl < 0 {
		// Key missing or persistent; either way no live lockout.
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisLockout) Reset(ctx context.Context, identifier string) error {
	key := NormalizeIdentifier(identifier)
	if err := r.client.Del(ctx, r.counterKey(key), r.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Sweep is a no-op for the Redis backend: key TTLs handle expiry.
func (r *RedisLockout) Sweep(context.Context) (int, error) { return 0, nil }
