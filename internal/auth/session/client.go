// Package session talks to the identity backend: it validates opaque
// session tokens and forwards login and registration requests.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Defaults for identity backend calls.
const (
	DefaultTimeout          = 5 * time.Second
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
	maxResponseBytes        = 1 << 20
)

// errBackend marks failures that count against the identity backend
// breaker; answers the backend gave deliberately do not.
var errBackend = errors.New("identity backend failure")

// Config configures the identity backend client.
type Config struct {
	// BaseURL is the identity backend root, e.g. http://users:3001.
	BaseURL string

	// Timeout bounds each call.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive backend failures
	// that opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
}

// Option configures a client.
type Option func(*client)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

// client is the breaker-guarded HTTP client shared by the resolver and
// the account client.
type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

func newClient(name string, cfg Config, opts ...Option) *client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}

	c := &client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	threshold := cfg.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, errBackend)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("identity backend breaker state changed",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})

	return c
}

// reply is a completed exchange with the identity backend.
type reply struct {
	status int
	body   []byte
}

// do performs one guarded call. Transport errors, timeouts and 5xx
// answers are wrapped with errBackend.
func (c *client) do(ctx context.Context, method, path string, body []byte) (*reply, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, path, body)
	})
	if err != nil {
		return nil, err
	}
	return result.(*reply), nil
}

func (c *client) send(ctx context.Context, method, path string, body []byte) (*reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBackend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", errBackend, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", errBackend, resp.StatusCode)
	}

	return &reply{status: resp.StatusCode, body: data}, nil
}

// State reports the identity backend breaker state.
func (c *client) State() gobreaker.State {
	return c.breaker.State()
}
