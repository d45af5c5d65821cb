package proxy

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/fallback"
)

// Sentinel errors for proxy operations.
var (
	// ErrUnknownBackend indicates that the backend name is not configured.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUpstreamTimeout indicates that the upstream request timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamUnavailable indicates that the upstream could not be reached
	// or, when configured, answered with a server error.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrResponseTooLarge indicates that the upstream body exceeded the limit.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// Error represents a dispatch failure with details.
type Error struct {
	Op      string // Operation that failed
	Backend string // Backend name
	Target  string // Target URL if known
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("proxy error [%s] backend=%s", e.Op, e.Backend)
	if e.Target != "" {
		prefix += " target=" + e.Target
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return prefix + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *Error) Is(target error) bool {
	_, ok := target.(*Error)
	return ok
}

func newUnknownBackendError(backend string) *Error {
	return &Error{
		Op:      "lookup",
		Backend: backend,
		Message: fmt.Sprintf("backend %q is not configured", backend),
		Cause:   ErrUnknownBackend,
	}
}

func newUnavailableError(backend string, cause error) *Error {
	return &Error{
		Op:      "dispatch",
		Backend: backend,
		Message: (&fallback.UnavailableError{Name: backend}).Error(),
		Cause:   cause,
	}
}

// IsUnavailable reports whether err means the backend cannot serve the
// call right now: the circuit is open or the upstream is unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrResponseTooLarge)
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout)
}

// IsUnknownBackend reports whether err names an unconfigured backend.
func IsUnknownBackend(err error) bool {
	return errors.Is(err, ErrUnknownBackend)
}
