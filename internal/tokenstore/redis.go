package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// RedisStore keeps the token under a per-profile key so several kiosks can
// share one signed-in identity.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. ttl caps how long a token without an
// exp claim is kept.
func NewRedisStore(rdb *redis.Client, profile string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: config.CacheKey.TokenKey(profile),
		ttl: ttl,
	}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.rdb.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("get token: %w", err)
	}
	if err := checkExpiry(token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	ttl := s.ttl
	if life := remainingLifetime(token); life > 0 && (ttl <= 0 || life < ttl) {
		ttl = life
	}
	if err := s.rdb.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
