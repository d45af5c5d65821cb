// Package fallback provides substitute-result strategies used when a
// guarded call fails or is rejected by its circuit.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
)

// ErrNoFallback indicates that a strategy had nothing to offer.
var ErrNoFallback = errors.New("no fallback available")

// Strategy produces a substitute value for key. cause is the failure
// being replaced, circuitbreaker.ErrCircuitOpen for rejected calls.
type Strategy[T any] interface {
	Execute(ctx context.Context, key string, cause error) (T, error)
}

// Every strategy can be handed to circuitbreaker.Guard directly.
var _ circuitbreaker.Fallback[string] = Strategy[string](nil)

// Func adapts a function to the Strategy interface.
type Func[T any] func(ctx context.Context, key string, cause error) (T, error)

// Execute calls f.
func (f Func[T]) Execute(ctx context.Context, key string, cause error) (T, error) {
	return f(ctx, key, cause)
}

// Default returns a fixed placeholder value.
type Default[T any] struct {
	value T
}

// NewDefault creates a strategy that always yields value.
func NewDefault[T any](value T) *Default[T] {
	return &Default[T]{value: value}
}

// Execute returns the placeholder.
func (d *Default[T]) Execute(context.Context, string, error) (T, error) {
	return d.value, nil
}

// UnavailableError reports that a named service cannot serve the call.
type UnavailableError struct {
	Name  string
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s is temporarily unavailable", e.Name)
}

// Unwrap returns the failure that made the service unavailable.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Is matches ErrNoFallback so callers treat the signal as "no substitute".
func (e *UnavailableError) Is(target error) bool {
	return target == ErrNoFallback
}

// Unavailable signals a typed unavailability error instead of a value.
type Unavailable[T any] struct {
	name string
}

// NewUnavailable creates a strategy that reports name as unavailable.
func NewUnavailable[T any](name string) *Unavailable[T] {
	return &Unavailable[T]{name: name}
}

// Execute always fails with *UnavailableError.
func (u *Unavailable[T]) Execute(_ context.Context, _ string, cause error) (T, error) {
	var zero T
	return zero, &UnavailableError{Name: u.name, Cause: cause}
}

// Chain tries strategies in order and returns the first value produced.
type Chain[T any] struct {
	strategies []Strategy[T]
}

// NewChain creates a chain. Nil strategies are skipped.
func NewChain[T any](strategies ...Strategy[T]) *Chain[T] {
	c := &Chain[T]{strategies: make([]Strategy[T], 0, len(strategies))}
	for _, s := range strategies {
		if s != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	return c
}

// Execute runs the strategies until one succeeds. When all fail the
// last strategy's error is returned.
func (c *Chain[T]) Execute(ctx context.Context, key string, cause error) (T, error) {
	var zero T
	lastErr := ErrNoFallback
	for _, s := range c.strategies {
		value, err := s.Execute(ctx, key, cause)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return zero, lastErr
}
