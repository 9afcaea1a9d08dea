package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures so callers can distinguish an
// unavailable backend from a missing session.
var ErrRedisUnavailable = errors.New("session backend unavailable")

// RedisStore persists sessions as JSON blobs with a per-user index set.
// Row TTL tracks the session expiry so Redis reclaims abandoned sessions even
// without a sweep.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a RedisStore with the given key prefix (for example
// "mp:sess").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mp:sess"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (st *RedisStore) key(id string) string      { return st.prefix + ":" + id }
func (st *RedisStore) userKey(uid string) string { return st.prefix + ":user:" + uid }

func (st *RedisStore) Create(ctx context.Context, s Session) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	pipe := st.client.TxPipeline()
	pipe.Set(ctx, st.key(s.ID), blob, ttl)
	pipe.SAdd(ctx, st.userKey(s.UserID), s.ID)
	// Index lives slightly longer than the row so sweeps can reconcile.
	pipe.Expire(ctx, st.userKey(s.UserID), ttl+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (st *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	blob, err := st.client.Get(ctx, st.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session row %s: %w", id, err)
	}
	return s, nil
}

func (st *RedisStore) Update(ctx context.Context, s Session) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := st.client.SetXX(ctx, st.key(s.ID), blob, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (st *RedisStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	ids, err := st.client.SMembers(ctx, st.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		s, err := st.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Row expired under the index entry; reconcile.
			st.client.SRem(ctx, st.userKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (st *RedisStore) Delete(ctx context.Context, id string) error {
	s, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := st.client.TxPipeline()
	pipe.Del(ctx, st.key(id))
	pipe.SRem(ctx, st.userKey(s.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (st *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	ids, err := st.client.SMembers(ctx, st.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := 0
	for _, id := range ids {
		if err := st.client.Del(ctx, st.key(id)).Err(); err == nil {
			removed++
		}
	}
	if err := st.client.Del(ctx, st.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// SweepExpired reconciles user index sets against rows Redis already
// reclaimed via TTL. Row expiry itself needs no sweep here.
func (st *RedisStore) SweepExpired(ctx context.Context, _ time.Time) (int, error) {
	var cursor uint64
	removed := 0
	pattern := st.prefix + ":user:*"
	for {
		keys, next, err := st.client.Scan(ctx, cursor, pattern, 64).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		for _, userKey := range keys {
			ids, err := st.client.SMembers(ctx, userKey).Result()
			if err != nil {
				continue
			}
			for _, id := range ids {
				exists, err := st.client.Exists(ctx, st.key(id)).Result()
				if err == nil && exists == 0 {
					st.client.SRem(ctx, userKey, id)
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
