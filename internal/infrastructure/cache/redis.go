package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/escrow-engine/internal/application/port"
)

const (
	keyPrefix    = "escrow:idempotency:"
	pendingValue = "pending"
)

// RedisConfig holds the redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a redis client. It does not connect until first use.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// IdempotencyStore implements port.IdempotencyStore on redis.
// A reserved key holds a pending marker until the response is saved.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotencyStore creates a store whose keys expire after ttl
func NewIdempotencyStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Reserve claims key, returning false if another request already holds it
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingValue, s.ttl).Result()
	if err != nil {
		s.logger.Error("Failed to reserve idempotency key", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Get returns the stored response, or nil when the key is unknown or still pending
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*port.StoredResponse, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get idempotency key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	if val == pendingValue {
		return nil, nil
	}

	var resp port.StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode stored response: %w", err)
	}
	return &resp, nil
}

// Save stores the response under key for the configured ttl
func (s *IdempotencyStore) Save(ctx context.Context, key string, resp *port.StoredResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode stored response: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to save idempotency key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}

// Release drops the key so the request can be retried
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// HealthCheck pings redis
func (s *IdempotencyStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *IdempotencyStore) Close() error {
	return s.client.Close()
}

var _ port.IdempotencyStore = (*IdempotencyStore)(nil)
