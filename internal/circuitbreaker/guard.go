package circuitbreaker

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Guard runs op under the circuit identified by key.
//
// A closed circuit runs op. An open circuit rejects the call until its
// cool-down elapses, then admits exactly one probe while concurrent
// callers are rejected. Failed or rejected calls are handed to fb when
// it is non-nil; an error from fb never replaces the original failure.
// A call abandoned because ctx was cancelled is not counted.
func Guard[T any](
	ctx context.Context,
	e *Engine,
	key string,
	op Operation[T],
	opts Options,
	fb Fallback[T],
) Outcome[T] {
	opts = opts.normalized()
	c := e.circuit(key)

	allowed, probe, tr := c.admit(e.now())
	e.report(key, tr)

	if !allowed {
		e.metrics.recordRejected(key)
		e.logger.Debug("circuit breaker rejected call",
			observability.String("name", key),
		)
		return finish(e, key, recoverWith(ctx, e, key, fb, ErrCircuitOpen))
	}

	value, err := op(ctx)
	if err == nil {
		e.report(key, c.onSuccess(probe))
		return finish(e, key, Outcome[T]{Kind: OutcomeSuccess, Value: value})
	}

	if abandoned(ctx, err) {
		c.release(probe)
		return finish(e, key, Outcome[T]{Kind: OutcomeFailed, Err: err})
	}

	e.metrics.recordFailure(key)
	e.report(key, c.onFailure(e.now(), opts, probe))
	return finish(e, key, recoverWith(ctx, e, key, fb, err))
}

func recoverWith[T any](ctx context.Context, e *Engine, key string, fb Fallback[T], cause error) Outcome[T] {
	if fb == nil {
		return Outcome[T]{Kind: OutcomeFailed, Err: cause}
	}

	value, err := fb.Execute(ctx, key, cause)
	if err != nil {
		e.metrics.recordFallback(key, false)
		e.logger.Debug("fallback unavailable",
			observability.String("name", key),
			observability.Error(err),
		)
		return Outcome[T]{Kind: OutcomeFailed, Err: cause}
	}

	e.metrics.recordFallback(key, true)
	return Outcome[T]{Kind: OutcomeFallbackUsed, Value: value, Cause: cause}
}

func finish[T any](e *Engine, key string, out Outcome[T]) Outcome[T] {
	e.metrics.recordOutcome(key, out.Kind)
	return out
}

// abandoned reports whether err stems from the caller giving up rather
// than from the protected operation.
func abandoned(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled)
}

// Guarded wraps op so that every invocation runs under the circuit
// identified by key, without a fallback. A rejected invocation returns
// ErrCircuitOpen. Use it for re-runs of op issued from a fallback.
func Guarded[T any](e *Engine, key string, op Operation[T], opts Options) Operation[T] {
	return func(ctx context.Context) (T, error) {
		out := Guard(ctx, e, key, op, opts, nil)
		if out.Kind != OutcomeSuccess {
			var zero T
			return zero, out.Err
		}
		return out.Value, nil
	}
}
