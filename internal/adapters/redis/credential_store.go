package redis

// Package redis provides Redis-based adapters for tourbook.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CredentialKey is the well-known key suffix under which a session's bearer credential is kept.
const CredentialKey = "credential:"

// CredentialStores hands out per-session credential stores that share one Redis client.
type CredentialStores struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCredentialStores creates a factory for per-session stores.
// ttl bounds how long a durable copy survives without a rewrite; zero means no expiry.
func NewCredentialStores(client redis.UniversalClient, prefix string, ttl time.Duration) *CredentialStores {
	return &CredentialStores{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// For returns the store bound to the given browser session id.
func (f *CredentialStores) For(sessionID string) *CredentialStore {
	return &CredentialStore{
		client: f.client,
		key:    f.prefix + CredentialKey + sessionID,
		ttl:    f.ttl,
	}
}

// CredentialStore is durable storage for one session's latest bearer credential.
// The stored value is the plain credential string.
type CredentialStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewCredentialStore creates a store bound to an explicit key.
func NewCredentialStore(client redis.UniversalClient, key string, ttl time.Duration) *CredentialStore {
	return &CredentialStore{client: client, key: key, ttl: ttl}
}

// Key returns the Redis key this store owns.
func (s *CredentialStore) Key() string { return s.key }

func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (s *CredentialStore) Save(ctx context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New("credential cannot be empty")
	}
	if err := s.client.Set(ctx, s.key, credential, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *CredentialStore) Remove(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
