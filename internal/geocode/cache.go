package geocode

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/metrics"
)

// Resolver источник адресов
type Resolver interface {
	GetReverseGeocode(ctx context.Context, latitude, longitude string) (string, error)
}

// Cache хранилище найденных адресов. Get возвращает found=false при промахе.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache кеш адресов в Redis
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache создает кеш
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "geocode:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// CachedClient кеширует успешные ответы. Ошибки кеша не мешают запросу к источнику.
type CachedClient struct {
	upstream Resolver
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewCachedClient создает клиент с кешем
func NewCachedClient(upstream Resolver, cache Cache, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *CachedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClient{upstream: upstream, cache: cache, ttl: ttl, logger: logger.Named("geocode-cache"), metrics: m}
}

func cacheKey(latitude, longitude string) string {
	return latitude + "," + longitude
}

// GetReverseGeocode реализует Resolver
func (c *CachedClient) GetReverseGeocode(ctx context.Context, latitude, longitude string) (string, error) {
	key := cacheKey(latitude, longitude)

	cached, found, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	case found:
		c.metrics.RecordCacheLookup(ctx, true)
		return cached, nil
	default:
		c.metrics.RecordCacheLookup(ctx, false)
	}

	addr, err := c.upstream.GetReverseGeocode(ctx, latitude, longitude)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, addr, c.ttl); err != nil {
		c.logger.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return addr, nil
}
