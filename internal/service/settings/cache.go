package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cachePrefix  = "settings:"
	absentMarker = "__absent__"
)

// CacheClient is the subset of redis.Cmdable the cache uses.
type CacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached is a read-through Redis cache in front of another Provider. Redis
// failures are logged and the source is consulted directly.
type Cached struct {
	source Provider
	rdb    CacheClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCached wraps source with a Redis cache.
func NewCached(source Provider, rdb CacheClient, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

// Get returns the cached value for key or loads and caches it.
func (c *Cached) Get(ctx context.Context, key string, dest any) (bool, error) {
	cacheKey := cachePrefix + key

	val, err := c.rdb.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		if val == absentMarker {
			return false, nil
		}
		if jsonErr := json.Unmarshal([]byte(val), dest); jsonErr == nil {
			return true, nil
		}
		c.logger.Warn("discarding undecodable cached setting", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("settings cache read failed", zap.String("key", key), zap.Error(err))
	}

	found, err := c.source.Get(ctx, key, dest)
	if err != nil {
		return false, err
	}

	payload := absentMarker
	if found {
		raw, mErr := json.Marshal(dest)
		if mErr != nil {
			return found, nil
		}
		payload = string(raw)
	}
	if err := c.rdb.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", zap.String("key", key), zap.Error(err))
	}
	return found, nil
}

// Invalidate drops the cached value for key.
func (c *Cached) Invalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, cachePrefix+key).Err()
}
