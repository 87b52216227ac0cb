package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper remembers processed keys in Redis so every instance skips
// webhook deliveries and queued events it has already handled.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDeduper) key(key string) string {
	return r.prefix + ":" + key
}

// Add records key and reports whether it was new. Without a client every key
// is new.
func (r *RedisDeduper) Add(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}
	return r.client.SetNX(ctx, r.key(key), 1, r.ttl).Result()
}

// Remove forgets key so a failed attempt can be retried.
func (r *RedisDeduper) Remove(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.key(key)).Err()
}
