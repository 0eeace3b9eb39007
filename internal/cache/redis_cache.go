package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache namespaces keys with prefix. A zero ttl keeps keys forever.
func NewRedisCache[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (rc *RedisCache[T]) key(k string) string {
	return rc.prefix + ":" + k
}

func (rc *RedisCache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		return zero, false
	}
	var entry CacheEntry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return zero, false
	}
	if entry.Checksum != calculateChecksum(entry.Data) {
		return zero, false
	}
	return entry.Data, true
}

func (rc *RedisCache[T]) Set(ctx context.Context, key string, data T) error {
	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: time.Now(),
		Checksum:  calculateChecksum(data),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := rc.client.Set(ctx, rc.key(key), raw, rc.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write redis cache entry: %w", err)
	}
	return nil
}

// Ping reports whether the redis server is reachable.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
