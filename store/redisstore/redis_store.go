// Package redisstore persists the session record in Redis, letting
// several processes share one session the way sibling browser tabs
// share one persisted store.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/authflow/domain"
)

// RedisStore implements store.SessionStore using Redis. The record is
// one JSON value under one key, so SET and DEL keep it atomic.
type RedisStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewRedisStore creates a new [RedisStore] instance.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key holding the session record.
func (r *RedisStore) redisKey() string {
	return fmt.Sprintf("%s:session:current", r.prefix)
}

// Save implements store.SessionStore.Save.
func (r *RedisStore) Save(ctx context.Context, record *domain.SessionRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := r.client.Set(ctx, r.redisKey(), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

// Load implements store.SessionStore.Load.
func (r *RedisStore) Load(ctx context.Context) (*domain.SessionRecord, error) {
	raw, err := r.client.Get(ctx, r.redisKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// Clear implements store.SessionStore.Clear.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.redisKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return nil
}
