package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/retry"
)

const (
	defaultKeyPrefix = "marketgw:"
	pingTimeout      = 5 * time.Second
)

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError reports whether err is a connection problem worth retrying.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// redisCache implements a Redis-based cache.
type redisCache struct {
	logger     observability.Logger
	metrics    *Metrics
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration

	hits   int64
	misses int64
}

func newRedisCache(cfg *config.CacheConfig, logger observability.Logger, metrics *Metrics) (*redisCache, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrInvalidConfig)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %w", ErrInvalidConfig, err)
	}
	applyRedisPoolOptions(opts, cfg.Redis)

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &redisCache{
		logger:     logger,
		metrics:    metrics,
		client:     client,
		keyPrefix:  resolveKeyPrefix(cfg.Redis.KeyPrefix),
		defaultTTL: cfg.TTL.Duration(),
	}

	logger.Info("redis cache initialized",
		observability.String("addr", opts.Addr),
		observability.String("keyPrefix", c.keyPrefix),
		observability.Duration("defaultTTL", c.defaultTTL))

	return c, nil
}

func applyRedisPoolOptions(opts *redis.Options, redisCfg *config.RedisCacheConfig) {
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.DialTimeout > 0 {
		opts.DialTimeout = redisCfg.DialTimeout.Duration()
	}
	if redisCfg.ReadTimeout > 0 {
		opts.ReadTimeout = redisCfg.ReadTimeout.Duration()
	}
	if redisCfg.WriteTimeout > 0 {
		opts.WriteTimeout = redisCfg.WriteTimeout.Duration()
	}
}

func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return defaultKeyPrefix
	}
	return prefix
}

func (c *redisCache) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return otel.Tracer(cacheTracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
}

func (c *redisCache) observe(op string, start time.Time) {
	c.metrics.operationDuration.WithLabelValues("redis", op).Observe(time.Since(start).Seconds())
}

func (c *redisCache) fail(span trace.Span, op, key string, err error) error {
	c.metrics.errorsTotal.WithLabelValues("redis", op).Inc()
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis "+op+" failed",
		observability.String("key", key),
		observability.Error(err))
	return fmt.Errorf("redis %s: %w", op, err)
}

func (c *redisCache) withRetry(ctx context.Context, op, key string, fn retry.Func) error {
	return retry.Do(ctx, redisRetryConfig(), fn,
		retry.WithShouldRetry(isRetryableRedisError),
		retry.WithOnRetry(func(attempt int, _ error, _ time.Duration) {
			c.logger.Debug("retrying redis "+op,
				observability.String("key", key),
				observability.Int("attempt", attempt))
		}),
	)
}

// Get retrieves a value from the cache.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "Get", key)
	defer span.End()
	defer c.observe("get", time.Now())

	var result []byte
	err := c.withRetry(ctx, "get", key, func(ctx context.Context) error {
		val, getErr := c.client.Get(ctx, c.keyPrefix+key).Bytes()
		if getErr == nil {
			result = val
		}
		return getErr
	})

	switch {
	case err == nil:
		atomic.AddInt64(&c.hits, 1)
		c.metrics.hitsTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return result, nil
	case errors.Is(err, redis.Nil):
		atomic.AddInt64(&c.misses, 1)
		c.metrics.missesTotal.WithLabelValues("redis").Inc()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		return nil, c.fail(span, "get", key, err)
	}
}

// Set stores a value in the cache.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set", key)
	defer span.End()
	defer c.observe("set", time.Now())

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	err := c.withRetry(ctx, "set", key, func(ctx context.Context) error {
		return c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err()
	})
	if err != nil {
		return c.fail(span, "set", key, err)
	}
	return nil
}

// Delete removes a value from the cache.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "Delete", key)
	defer span.End()
	defer c.observe("delete", time.Now())

	err := c.withRetry(ctx, "delete", key, func(ctx context.Context) error {
		return c.client.Del(ctx, c.keyPrefix+key).Err()
	})
	if err != nil {
		return c.fail(span, "delete", key, err)
	}
	return nil
}

// Exists checks if a key exists in the cache.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := c.startSpan(ctx, "Exists", key)
	defer span.End()
	defer c.observe("exists", time.Now())

	var n int64
	err := c.withRetry(ctx, "exists", key, func(ctx context.Context) error {
		var existsErr error
		n, existsErr = c.client.Exists(ctx, c.keyPrefix+key).Result()
		return existsErr
	})
	if err != nil {
		return false, c.fail(span, "exists", key, err)
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	return c.client.Close()
}

// Stats returns cache statistics. Size is not tracked for Redis.
func (c *redisCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}
