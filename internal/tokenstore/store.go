// Package tokenstore keeps the bearer credential the agent presents to the
// exam API. The hosting process owns the store's lifecycle; the API client
// only reads it and clears it when the API rejects the credential.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// Common token store errors.
var (
	ErrNoToken = errors.New("no token stored")
	ErrExpired = errors.New("stored token has expired")
)

// Store persists a single bearer token.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// New selects the backend named by cfg.TokenStore. rdb may be nil unless the
// redis backend is selected.
func New(cfg *config.Config, rdb *redis.Client) (Store, error) {
	switch cfg.TokenStore {
	case config.TokenStoreEnv:
		return NewStaticStore(cfg.Token), nil
	case config.TokenStoreFile, "":
		return NewFileStore(cfg.TokenFile, cfg.TokenPassword), nil
	case config.TokenStoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("token store %q requires REDIS_URL", cfg.TokenStore)
		}
		return NewRedisStore(rdb, cfg.TokenProfile, cfg.TokenRedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

// StaticStore holds the token in memory, seeded from configuration.
type StaticStore struct {
	mu    sync.RWMutex
	token string
}

// NewStaticStore creates a StaticStore seeded with token (may be empty).
func NewStaticStore(token string) *StaticStore {
	return &StaticStore{token: token}
}

func (s *StaticStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoToken
	}
	if err := checkExpiry(token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *StaticStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *StaticStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
