package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultJitterFactor   = 0.25
	MaxJitterFactor       = 1.0
)

// Config contains retry configuration parameters. Zero values select
// the defaults, except MaxRetries where a negative value disables retries.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// InitialBackoff is the wait before the first retry; it doubles per attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// JitterFactor adds up to this fraction of random delay to each wait.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c Config) normalized() Config {
	switch {
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > MaxJitterFactor {
		c.JitterFactor = MaxJitterFactor
	}
	return c
}

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

type options struct {
	shouldRetry func(error) bool
	onRetry     func(attempt int, err error, backoff time.Duration)
}

// Option customizes Do.
type Option func(*options)

// WithShouldRetry limits retries to errors for which fn returns true.
// Without it every error is retried.
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) {
		o.shouldRetry = fn
	}
}

// WithOnRetry registers a callback invoked before each retry wait.
func WithOnRetry(fn func(attempt int, err error, backoff time.Duration)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do executes fn until it succeeds or retries are exhausted, returning
// the last error. A done context stops retrying with the context error.
func Do(ctx context.Context, cfg Config, fn Func, opts ...Option) error {
	cfg = cfg.normalized()
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if o.shouldRetry != nil && !o.shouldRetry(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxRetries {
			break
		}

		backoff := CalculateBackoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff, cfg.JitterFactor)
		if o.onRetry != nil {
			o.onRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// CalculateBackoff returns the wait before retry number attempt+1.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))

	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	backoff += backoff * jitterFactor * rand.Float64()

	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
