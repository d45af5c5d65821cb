package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
)

// Sentinel errors for gateway operations.
var (
	// ErrGatewayNotStopped indicates that the gateway is not in
	// stopped state when a start operation is attempted.
	ErrGatewayNotStopped = errors.New("gateway is not in stopped state")

	// ErrGatewayNotRunning indicates that the gateway is not
	// running when a stop operation is attempted.
	ErrGatewayNotRunning = errors.New("gateway is not running")

	// ErrNilConfig indicates that a nil configuration was provided.
	ErrNilConfig = errors.New("configuration is required")
)

// HeaderFallback marks responses served by a fallback.
const HeaderFallback = "X-Gateway-Fallback"

// errorResponse is the JSON body of every gateway-generated error.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Error:   errorCode(status),
		Message: message,
	})
}

func errorCode(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request entity too large"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusGatewayTimeout:
		return "gateway timeout"
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusBadGateway:
		return "bad gateway"
	default:
		return "internal server error"
	}
}

// statusFor maps a dispatch or identity error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrRegistrationConflict):
		return http.StatusConflict
	case proxy.IsUnknownBackend(err):
		return http.StatusNotFound
	case proxy.IsTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), proxy.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// publicMessage returns the message safe to show callers for err.
func publicMessage(err error) string {
	var pe *proxy.Error
	switch {
	case errors.Is(err, auth.ErrAuthInvalid):
		return auth.ErrAuthInvalid.Error()
	case errors.As(err, &pe):
		return pe.Message
	default:
		return http.StatusText(statusFor(err))
	}
}
