package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache TTLs. Version rows are immutable once archived, so they can live
// longer than history listings, which change on every mutation.
const (
	TTLVersion = 10 * time.Minute
	TTLHistory = 2 * time.Minute
	TTLDefault = 5 * time.Minute
)

// Cache key prefixes
const (
	PrefixVersion     = "version:"
	PrefixItemVersion = "itemversion:"
	PrefixHistory     = "history:"
)

// ErrCacheMiss is returned when a key is absent or the cache is unavailable.
var ErrCacheMiss = errors.New("cache miss")

// Service is a read-side cache for version and history lookups.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	GetVersion(ctx context.Context, versionID uint64, dest interface{}) error
	SetVersion(ctx context.Context, versionID uint64, value interface{}) error
	InvalidateVersion(ctx context.Context, versionID uint64) error

	GetHistory(ctx context.Context, historyID uint64, dest interface{}) error
	SetHistory(ctx context.Context, historyID uint64, value interface{}) error
	InvalidateHistory(ctx context.Context, historyID uint64) error

	IsAvailable() bool
	Ping(ctx context.Context) error
}

// redisCache Redis-backed cache implementation
type redisCache struct {
	client *redis.Client
}

// NewService creates a new cache service. A nil client degrades to a no-op
// cache: every Get misses and every Set succeeds silently.
func NewService(client *redis.Client) Service {
	return &redisCache{client: client}
}

func (c *redisCache) IsAvailable() bool {
	return c.client != nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *redisCache) GetVersion(ctx context.Context, versionID uint64, dest interface{}) error {
	return c.Get(ctx, versionKey(versionID), dest)
}

func (c *redisCache) SetVersion(ctx context.Context, versionID uint64, value interface{}) error {
	return c.Set(ctx, versionKey(versionID), value, TTLVersion)
}

func (c *redisCache) InvalidateVersion(ctx context.Context, versionID uint64) error {
	return c.Delete(ctx, versionKey(versionID))
}

func (c *redisCache) GetHistory(ctx context.Context, historyID uint64, dest interface{}) error {
	return c.Get(ctx, historyKey(historyID), dest)
}

func (c *redisCache) SetHistory(ctx context.Context, historyID uint64, value interface{}) error {
	return c.Set(ctx, historyKey(historyID), value, TTLHistory)
}

func (c *redisCache) InvalidateHistory(ctx context.Context, historyID uint64) error {
	return c.Delete(ctx, historyKey(historyID))
}

func versionKey(versionID uint64) string {
	return fmt.Sprintf("%s%d", PrefixVersion, versionID)
}

func historyKey(historyID uint64) string {
	return fmt.Sprintf("%s%d", PrefixHistory, historyID)
}
