package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the session as a JSON blob under one Redis key, so
// several processes on different hosts share one signed-in session.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
	// ttl bounds how long a stored session survives without a refresh.
	// Zero keeps it until cleared.
	ttl time.Duration
}

// NewRedisStore returns a store writing to key on rdb.
func NewRedisStore(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("session: redis get %s: %w", r.key, err)
	}

	return decodeRecord(data)
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := encodeRecord(s)
	if err != nil {
		return err
	}

	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set %s: %w", r.key, err)
	}

	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("session: redis del %s: %w", r.key, err)
	}

	return nil
}
