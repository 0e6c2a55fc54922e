package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// distinguish infrastructure trouble from an empty slot.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisStore keeps the current refresh-token value per principal in Redis.
// One key per principal, TTL bound to the refresh token lifetime.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store writing under prefix with the given slot TTL.
// A zero ttl stores slots without expiry.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "sa"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the stored refresh-token value for principalID, or the empty
// string when no session is live.
func (s *RedisStore) Get(ctx context.Context, principalID string) (string, error) {
	value, err := s.client.Get(ctx, s.key(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return value, nil
}

// Set overwrites the slot for principalID with refreshToken. Any previously
// stored value is superseded.
func (s *RedisStore) Set(ctx context.Context, principalID, refreshToken string) error {
	if err := s.client.Set(ctx, s.key(principalID), refreshToken, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}

// Clear deletes the slot for principalID. Clearing an empty slot is a no-op.
func (s *RedisStore) Clear(ctx context.Context, principalID string) error {
	if err := s.client.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) key(principalID string) string {
	return s.prefix + ":rt:" + principalID
}
