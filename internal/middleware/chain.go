package middleware

import (
	"net/http"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// ChainConfig holds the dependencies of the standard chain.
type ChainConfig struct {
	Logger       observability.Logger
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
	MaxBodyBytes int64
}

// Chain wraps h in the standard middleware chain.
func Chain(h http.Handler, cfg ChainConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	h = BodyLimit(cfg.MaxBodyBytes, logger)(h)
	if cfg.Metrics != nil {
		h = Metrics(cfg.Metrics)(h)
	}
	if cfg.Tracer != nil {
		h = Tracing(cfg.Tracer)(h)
	}
	h = Logging(logger)(h)
	h = RequestID()(h)
	h = Recovery(logger)(h)
	return h
}
