package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/mizuki-commits/dashboard-template/domain"
)

// Cache wraps a DashboardStore with a Redis read-through cache. Redis
// failures never fail a request; reads fall back to the backing store.
type Cache struct {
	base  DashboardStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(base DashboardStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) LoadDashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	if d, ok := c.load(ctx, userID); ok {
		return d, nil
	}
	d, err := c.base.LoadDashboard(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	c.Store(ctx, d)
	return d, nil
}

// SaveDashboard writes through to the backing store and refreshes the entry.
func (c *Cache) SaveDashboard(ctx context.Context, d domain.Dashboard) error {
	if err := c.base.SaveDashboard(ctx, d); err != nil {
		c.Evict(ctx, d.UserID)
		return err
	}
	c.Store(ctx, d)
	return nil
}

func (c *Cache) load(ctx context.Context, userID string) (domain.Dashboard, bool) {
	if c.redis == nil {
		return domain.Dashboard{}, false
	}
	data, err := c.redis.Get(ctx, dashboardCacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.redis.Del(ctx, dashboardCacheKey(userID)).Err()
		}
		return domain.Dashboard{}, false
	}
	var d domain.Dashboard
	if err := sonic.Unmarshal(data, &d); err != nil {
		_ = c.redis.Del(ctx, dashboardCacheKey(userID)).Err()
		return domain.Dashboard{}, false
	}
	return d, true
}

// Store puts d into the cache.
func (c *Cache) Store(ctx context.Context, d domain.Dashboard) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(d)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, dashboardCacheKey(d.UserID), data, c.ttl).Err()
}

func (c *Cache) Evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, dashboardCacheKey(userID)).Err()
}

func dashboardCacheKey(userID string) string {
	return "dashboard:" + userID
}
