package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/config"
	"github.com/weiawesome/wes-io-live/ticket-scanner/internal/domain"
)

// RedisStateStore is a Redis-backed implementation of StateStore. Keys
// expire after the configured TTL so a crashed station does not leave
// a live-looking state behind.
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStateStore creates a new Redis-backed state store.
func NewRedisStateStore(cfg config.StateRedisConfig) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStateStoreWithClient(client, cfg.KeyPrefix, time.Duration(cfg.TTL)*time.Second), nil
}

// NewRedisStateStoreWithClient wraps an existing client.
func NewRedisStateStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// key returns the Redis key for a station's state.
func (s *RedisStateStore) key(stationID string) string {
	return s.keyPrefix + stationID
}

// Save stores or replaces a state.
func (s *RedisStateStore) Save(ctx context.Context, state domain.ScannerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.client.Set(ctx, s.key(state.StationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state to redis: %w", err)
	}
	return nil
}

// Get returns the stored state, or nil if there is none.
func (s *RedisStateStore) Get(ctx context.Context, stationID string) (*domain.ScannerState, error) {
	data, err := s.client.Get(ctx, s.key(stationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state from redis: %w", err)
	}

	var state domain.ScannerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes a state.
func (s *RedisStateStore) Delete(ctx context.Context, stationID string) error {
	if err := s.client.Del(ctx, s.key(stationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state from redis: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

var _ StateStore = (*RedisStateStore)(nil)
