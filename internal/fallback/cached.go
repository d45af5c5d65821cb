package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Codec converts values to and from their cached form.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// JSONCodec stores values as JSON.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(value T) ([]byte, error) {
	return json.Marshal(value)
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var value T
	err := json.Unmarshal(data, &value)
	return value, err
}

// Cached serves the last known-good value for a key while it is fresh.
type Cached[T any] struct {
	store  cache.Cache
	codec  Codec[T]
	ttl    time.Duration
	logger observability.Logger
}

// CachedOption configures a Cached strategy.
type CachedOption[T any] func(*Cached[T])

// WithCodec overrides the JSON codec.
func WithCodec[T any](codec Codec[T]) CachedOption[T] {
	return func(c *Cached[T]) {
		c.codec = codec
	}
}

// WithTTL sets the freshness window. Zero uses the store's default TTL.
func WithTTL[T any](ttl time.Duration) CachedOption[T] {
	return func(c *Cached[T]) {
		c.ttl = ttl
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger[T any](logger observability.Logger) CachedOption[T] {
	return func(c *Cached[T]) {
		c.logger = logger
	}
}

// NewCached creates a cached strategy over store.
func NewCached[T any](store cache.Cache, opts ...CachedOption[T]) *Cached[T] {
	c := &Cached[T]{
		store:  store,
		codec:  JSONCodec[T]{},
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Remember records value as the latest good result for key.
func (c *Cached[T]) Remember(ctx context.Context, key string, value T) error {
	data, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode cached value: %w", err)
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("failed to store cached value: %w", err)
	}
	return nil
}

// Execute returns the remembered value. A miss, stale entry or store
// error yields ErrNoFallback.
func (c *Cached[T]) Execute(ctx context.Context, key string, _ error) (T, error) {
	var zero T

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("fallback cache read failed",
				observability.String("key", key),
				observability.Error(err))
		}
		return zero, fmt.Errorf("%w: %w", ErrNoFallback, err)
	}

	value, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("fallback cache entry is corrupt",
			observability.String("key", key),
			observability.Error(err))
		return zero, fmt.Errorf("%w: %w", ErrNoFallback, err)
	}

	c.logger.Debug("serving cached fallback", observability.String("key", key))
	return value, nil
}
