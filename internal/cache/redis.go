package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces agent state keys.
const KeyPrefix = "kulti:state:"

// RedisBackend stores each agent's state under kulti:state:<id> with a TTL.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBackend parses a redis:// URL.
func NewRedisBackend(rawURL string, ttl time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBackend{client: redis.NewClient(opts), ttl: ttl}, nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Save(ctx context.Context, agentID string, data []byte) error {
	if err := b.client.Set(ctx, KeyPrefix+agentID, data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", agentID, err)
	}
	return nil
}

// LoadAll scans every state key. Keys that expire mid-scan are skipped.
func (b *RedisBackend) LoadAll(ctx context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte)
	iter := b.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := b.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("redis get %s: %w", key, err)
		}
		out[strings.TrimPrefix(key, KeyPrefix)] = data
	}
	if err := iter.Err(); err != nil {
		return out, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
