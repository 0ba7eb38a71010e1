package nonce

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/client"
	"recordkeeper-auth/internal/util"
)

const challengePrefix = "challenge:"

// RedisStore backs the challenge store with Redis for multi-instance
// deployments. Redis SET/GETDEL are linearizable per key, which is
// exactly the ordering guarantee the protocol needs, and key TTLs give
// unconsumed challenges a bounded lifetime.
type RedisStore struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewRedisStore(client *client.RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context, email string) (string, error) {
	value, err := Generate()
	if err != nil {
		return "", err
	}

	key := challengePrefix + email
	if err := s.client.Set(ctx, key, value, s.ttl); err != nil {
		util.Error("Failed to store challenge",
			zap.String("email", email),
			zap.Error(err))
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	util.Debug("Challenge issued",
		zap.String("email", email),
		zap.Duration("ttl", s.ttl))
	return value, nil
}

func (s *RedisStore) Consume(ctx context.Context, email string) (string, bool, error) {
	key := challengePrefix + email

	value, found, err := s.client.GetDel(ctx, key)
	if err != nil {
		util.Error("Failed to consume challenge",
			zap.String("email", email),
			zap.Error(err))
		return "", false, fmt.Errorf("failed to consume challenge: %w", err)
	}
	return value, found, nil
}
