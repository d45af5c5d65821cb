package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/fallback"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/retry"
)

// Identity headers attached to outbound calls.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// DefaultMaxResponseBytes bounds buffered upstream bodies.
const DefaultMaxResponseBytes = 10 << 20

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Request is one call to a backend.
type Request struct {
	Backend string
	Method  string
	Path    string

	// Query is the raw query string without the leading "?".
	Query  string
	Body   []byte
	Header http.Header

	// Identity is attached as X-User-* headers when non-nil.
	Identity *auth.Identity

	// Fallback overrides the dispatcher's default fallback.
	Fallback fallback.Strategy[*Response]

	// CacheKey enables the cached fallback for this call when set.
	CacheKey string

	// Retries re-runs failed safe (GET, HEAD) calls before falling back.
	Retries int
}

// Response is a buffered upstream answer.
type Response struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// Dispatcher forwards requests to backends under circuit protection.
type Dispatcher struct {
	table   *RouteTable
	engine  *circuitbreaker.Engine
	client  *http.Client
	logger  observability.Logger
	metrics *Metrics

	breakerOpts            circuitbreaker.Options
	serverErrorsAsFailures bool
	maxResponseBytes       int64
	healthTimeout          time.Duration
	retryBackoff           time.Duration

	responseStore cache.Cache
	responseTTL   time.Duration
	responses     *fallback.Cached[*Response]

	registerer prometheus.Registerer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHTTPClient replaces the outbound HTTP client. Its Timeout should
// be zero; per-backend timeouts are applied through the context.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

// WithBreakerOptions sets the circuit options for backend calls.
func WithBreakerOptions(opts circuitbreaker.Options) Option {
	return func(d *Dispatcher) {
		d.breakerOpts = opts
	}
}

// WithServerErrorsAsFailures makes 5xx answers count as circuit failures.
func WithServerErrorsAsFailures(enabled bool) Option {
	return func(d *Dispatcher) {
		d.serverErrorsAsFailures = enabled
	}
}

// WithResponseCache remembers successful responses of calls that carry
// a CacheKey and serves them while the backend is failing.
func WithResponseCache(store cache.Cache, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.responseStore = store
		d.responseTTL = ttl
	}
}

// WithRegisterer sets the Prometheus registerer for dispatch metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		d.registerer = reg
	}
}

// WithHealthTimeout sets the health probe timeout.
func WithHealthTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.healthTimeout = timeout
	}
}

// WithMaxResponseBytes bounds buffered upstream bodies.
func WithMaxResponseBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxResponseBytes = n
	}
}

// WithRetryBackoff sets the initial wait between retries.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.retryBackoff = backoff
	}
}

// NewDispatcher creates a dispatcher over table using engine for circuit state.
func NewDispatcher(table *RouteTable, engine *circuitbreaker.Engine, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		table:            table,
		engine:           engine,
		logger:           observability.NopLogger(),
		breakerOpts:      circuitbreaker.DefaultOptions(),
		maxResponseBytes: DefaultMaxResponseBytes,
		healthTimeout:    DefaultHealthTimeout,
		retryBackoff:     retry.DefaultInitialBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = newHTTPClient()
	}
	if d.responseStore != nil {
		d.responses = fallback.NewCached[*Response](d.responseStore,
			fallback.WithTTL[*Response](d.responseTTL),
			fallback.WithCacheLogger[*Response](d.logger))
	}
	d.metrics = NewMetrics(d.registerer)
	return d
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Table returns the dispatcher's route table.
func (d *Dispatcher) Table() *RouteTable {
	return d.table
}

// Dispatch forwards req to its backend. The outcome is Success for any
// completed exchange, FallbackUsed when a fallback answered for a
// failing or open circuit, and Failed otherwise with an error that
// matches ErrUnknownBackend, ErrUpstreamTimeout, ErrUpstreamUnavailable
// or circuitbreaker.ErrCircuitOpen.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) circuitbreaker.Outcome[*Response] {
	backend, ok := d.table.Lookup(req.Backend)
	if !ok {
		err := newUnknownBackendError(req.Backend)
		d.metrics.errorsTotal.WithLabelValues(req.Backend, errorType(err)).Inc()
		return circuitbreaker.Outcome[*Response]{Kind: circuitbreaker.OutcomeFailed, Err: err}
	}

	op := func(ctx context.Context) (*Response, error) {
		return d.send(ctx, backend, req)
	}

	out := circuitbreaker.Guard(ctx, d.engine, BreakerKey(backend.Name), op, d.breakerOpts, d.fallbackFor(req, backend, op))

	switch out.Kind {
	case circuitbreaker.OutcomeSuccess:
		d.remember(ctx, req, out.Value)
	case circuitbreaker.OutcomeFallbackUsed:
		d.logger.Info("fallback served",
			observability.String("backend", backend.Name),
			observability.Error(out.Cause))
	case circuitbreaker.OutcomeFailed:
		out.Err = d.describeFailure(backend, out.Err)
		d.metrics.errorsTotal.WithLabelValues(backend.Name, errorType(out.Err)).Inc()
		d.logger.Warn("dispatch failed",
			observability.String("backend", backend.Name),
			observability.String("method", req.Method),
			observability.String("path", req.Path),
			observability.Error(out.Err))
	}

	d.metrics.dispatchTotal.WithLabelValues(backend.Name, out.Kind.String()).Inc()
	return out
}

// fallbackFor picks the request's fallback or builds the default one:
// retries for safe methods, then the cached response, then an
// unavailability error. Each retry is a guarded call, so retries stop
// as soon as the circuit opens.
func (d *Dispatcher) fallbackFor(req Request, backend Backend, op circuitbreaker.Operation[*Response]) fallback.Strategy[*Response] {
	if req.Fallback != nil {
		return req.Fallback
	}

	var chain []fallback.Strategy[*Response]
	if req.Retries > 0 && isSafeMethod(req.Method) {
		guarded := circuitbreaker.Guarded(d.engine, BreakerKey(backend.Name), op, d.breakerOpts)
		chain = append(chain, fallback.NewRetry(guarded, retry.Config{
			MaxRetries:     req.Retries,
			InitialBackoff: d.retryBackoff,
			MaxBackoff:     backend.Timeout,
		}).OnlyIf(isTransient))
	}
	if d.responses != nil && req.CacheKey != "" {
		cacheKey := req.CacheKey
		chain = append(chain, fallback.Func[*Response](func(ctx context.Context, _ string, cause error) (*Response, error) {
			return d.responses.Execute(ctx, cacheKey, cause)
		}))
	}
	chain = append(chain, fallback.NewUnavailable[*Response](backend.Name))

	return fallback.NewChain(chain...)
}

func (d *Dispatcher) remember(ctx context.Context, req Request, resp *Response) {
	if d.responses == nil || req.CacheKey == "" || resp == nil {
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}
	if err := d.responses.Remember(ctx, req.CacheKey, resp); err != nil {
		d.logger.Warn("failed to cache response",
			observability.String("backend", req.Backend),
			observability.Error(err))
	}
}

func (d *Dispatcher) send(ctx context.Context, backend Backend, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.Timeout)
	defer cancel()

	target := backend.URL + req.Path
	if req.Query != "" {
		target += "?" + req.Query
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Op: "build_request", Backend: backend.Name, Target: target, Message: "invalid request", Cause: err}
	}
	httpReq.Header = OutboundHeader(req.Header, req.Identity)

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	d.metrics.backendDuration.WithLabelValues(backend.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, classify(ctx, backend, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxResponseBytes+1))
	if err != nil {
		return nil, classify(ctx, backend, target, err)
	}
	if int64(len(data)) > d.maxResponseBytes {
		return nil, &Error{
			Op: "read_response", Backend: backend.Name, Target: target,
			Message: fmt.Sprintf("body exceeds %d bytes", d.maxResponseBytes),
			Cause:   ErrResponseTooLarge,
		}
	}

	if d.serverErrorsAsFailures && resp.StatusCode >= http.StatusInternalServerError {
		return nil, &Error{
			Op: "dispatch", Backend: backend.Name, Target: target,
			Message: fmt.Sprintf("backend answered %d", resp.StatusCode),
			Cause:   ErrUpstreamUnavailable,
		}
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	return &Response{StatusCode: resp.StatusCode, Header: header, Body: data}, nil
}

// classify maps a transport error to the proxy sentinels. A cancelled
// caller context is passed through so the circuit does not count it.
func classify(ctx context.Context, backend Backend, target string, err error) error {
	e := &Error{Op: "dispatch", Backend: backend.Name, Target: target}
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		e.Message = "request cancelled"
		e.Cause = context.Canceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		e.Message = fmt.Sprintf("no answer within %s", backend.Timeout)
		e.Cause = ErrUpstreamTimeout
	default:
		e.Message = "backend unreachable"
		e.Cause = fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return e
}

// describeFailure gives circuit and unavailability failures the
// "<backend> is temporarily unavailable" message.
func (d *Dispatcher) describeFailure(backend Backend, err error) error {
	if IsUnavailable(err) && !IsTimeout(err) {
		return newUnavailableError(backend.Name, err)
	}
	return err
}

// OutboundHeader copies h without hop-by-hop headers and sets the
// identity headers when id is non-nil. Without an identity any
// caller-supplied X-User-* headers are removed.
func OutboundHeader(h http.Header, id *auth.Identity) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	removeHopHeaders(out)
	out.Del("Host")

	out.Del(HeaderUserID)
	out.Del(HeaderUserEmail)
	out.Del(HeaderUserRole)
	if id != nil {
		out.Set(HeaderUserID, id.UserID)
		out.Set(HeaderUserEmail, id.Email)
		out.Set(HeaderUserRole, id.Role)
	}
	return out
}

func removeHopHeaders(h http.Header) {
	for _, name := range h.Values("Connection") {
		h.Del(name)
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func isSafeMethod(method string) bool {
	return method == "" || method == http.MethodGet || method == http.MethodHead
}

func isTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamTimeout)
}
