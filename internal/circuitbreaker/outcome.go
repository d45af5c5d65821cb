package circuitbreaker

import "context"

// OutcomeKind tells how a guarded call was resolved.
type OutcomeKind int

const (
	// OutcomeSuccess means the operation ran and succeeded.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeFallbackUsed means the fallback produced the value.
	OutcomeFallbackUsed

	// OutcomeFailed means neither the operation nor a fallback produced a value.
	OutcomeFailed
)

// String returns the string representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFallbackUsed:
		return "fallback"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a guarded call.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T

	// Err is the failure that surfaced. It is nil unless Kind is OutcomeFailed.
	Err error

	// Cause is the failure the fallback replaced when Kind is OutcomeFallbackUsed.
	Cause error
}

// Succeeded reports whether a value is available.
func (o Outcome[T]) Succeeded() bool {
	return o.Kind != OutcomeFailed
}

// FallbackUsed reports whether the value came from a fallback.
func (o Outcome[T]) FallbackUsed() bool {
	return o.Kind == OutcomeFallbackUsed
}

// Result unpacks the outcome into the usual value, error pair.
func (o Outcome[T]) Result() (T, error) {
	return o.Value, o.Err
}

// Operation is the work a circuit protects.
type Operation[T any] func(ctx context.Context) (T, error)

// Fallback produces a substitute value when the operation failed or was
// not attempted. cause is ErrCircuitOpen for rejected calls. Returning
// an error means no substitute is available.
type Fallback[T any] interface {
	Execute(ctx context.Context, key string, cause error) (T, error)
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc[T any] func(ctx context.Context, key string, cause error) (T, error)

// Execute calls f.
func (f FallbackFunc[T]) Execute(ctx context.Context, key string, cause error) (T, error) {
	return f(ctx, key, cause)
}
