package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// DefaultCacheTTL is how long a successful import is remembered.
const DefaultCacheTTL = 24 * time.Hour

// Cache is a byte-valued key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedRegistry remembers successful imports. Failures always reach the
// wrapped registry so a transient outage is not pinned for the TTL.
// A cache that errors is bypassed.
type CachedRegistry struct {
	next   Registry
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

var _ Registry = (*CachedRegistry)(nil)

// NewCachedRegistry wraps next. A non-positive ttl uses DefaultCacheTTL.
func NewCachedRegistry(next Registry, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedRegistry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRegistry{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("registry-cache"),
	}
}

// CacheKey is the cache key for srid.
func CacheKey(srid int) string {
	return fmt.Sprintf("projection_import:%d", srid)
}

func (r *CachedRegistry) Import(ctx context.Context, srid int) (*models.ImportResult, error) {
	key := CacheKey(srid)

	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		r.logger.Warn("Cache read failed, importing uncached",
			zap.String("key", key),
			zap.Error(err))
	} else if ok {
		var cached models.ImportResult
		if err := json.Unmarshal(data, &cached); err == nil {
			r.logger.Debug("Import served from cache", zap.Int("srid", srid))
			return &cached, nil
		}
		r.logger.Warn("Discarding unreadable cache entry", zap.String("key", key))
	}

	result, err := r.next.Import(ctx, srid)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Warn("Failed to encode import for cache", zap.Error(err))
		return result, nil
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("Cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return result, nil
}
