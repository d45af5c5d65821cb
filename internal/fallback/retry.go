package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/retry"
)

// Retry re-runs the operation with backoff after an attempted call
// failed. The failed call counts as the first attempt, so at most
// cfg.MaxRetries re-runs happen. Rejected calls are never retried, and
// a re-run that fails with circuitbreaker.ErrCircuitOpen ends the loop.
// Pass an operation built with circuitbreaker.Guarded so re-runs are
// counted by the circuit.
type Retry[T any] struct {
	op          circuitbreaker.Operation[T]
	cfg         retry.Config
	shouldRetry func(error) bool
}

// NewRetry creates a retrying strategy for op.
func NewRetry[T any](op circuitbreaker.Operation[T], cfg retry.Config) *Retry[T] {
	return &Retry[T]{op: op, cfg: cfg}
}

// OnlyIf restricts retries to errors accepted by fn.
func (r *Retry[T]) OnlyIf(fn func(error) bool) *Retry[T] {
	r.shouldRetry = fn
	return r
}

// Execute runs op again unless cause says the circuit is open.
func (r *Retry[T]) Execute(ctx context.Context, _ string, cause error) (T, error) {
	var zero T
	if !r.retryable(cause) {
		return zero, ErrNoFallback
	}

	cfg := r.cfg
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = retry.DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		return zero, ErrNoFallback
	}
	cfg.MaxRetries--
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = -1
	}

	if err := wait(ctx, cfg.InitialBackoff); err != nil {
		return zero, err
	}

	var value T
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		v, err := r.op(ctx)
		if err == nil {
			value = v
		}
		return err
	}, retry.WithShouldRetry(r.retryable))
	if err != nil {
		return zero, err
	}
	return value, nil
}

func (r *Retry[T]) retryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return false
	}
	return r.shouldRetry == nil || r.shouldRetry(err)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = retry.DefaultInitialBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
