package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "wellness:last_sync"

// RedisStore keeps the watermark string under a single key.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore returns a store writing to key.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Save stores ts without expiry.
func (s *RedisStore) Save(ctx context.Context, ts time.Time) error {
	if err := s.client.Set(ctx, s.key, Format(ts), 0).Err(); err != nil {
		return &PersistError{Location: "redis:" + s.key, Err: err}
	}
	return nil
}

// Load returns false when the key does not exist.
func (s *RedisStore) Load(ctx context.Context) (time.Time, bool, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get watermark: %w", err)
	}
	ts, err := time.Parse(Layout, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse watermark %q: %w", value, err)
	}
	return ts, true, nil
}
