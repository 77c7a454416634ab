package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore is a TTL-bounded deny list of token strings.
type RevocationStore interface {
	// Revoke denies token for ttl.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether token is currently denied.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Consume atomically denies token and reports whether this call was the
	// first to do so. Single-use tokens are redeemed through Consume.
	Consume(ctx context.Context, token string, ttl time.Duration) (bool, error)
}

type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "nexura:revoked"
	}
	return &RedisRevocationStore{client: client, prefix: prefix}
}

// key hashes the token so the deny list never holds usable credentials.
func (s *RedisRevocationStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := s.client.Get(ctx, s.key(token)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("checking revocation: %w", err)
	}
}

func (s *RedisRevocationStore) Consume(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	first, err := s.client.SetNX(ctx, s.key(token), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consuming token: %w", err)
	}
	return first, nil
}
