package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/middleware"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
)

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// AdminRole is the role allowed to inspect and reset circuits.
const AdminRole = "admin"

// AccountService forwards login and registration to the identity backend.
type AccountService interface {
	Login(ctx context.Context, credentials json.RawMessage) (json.RawMessage, error)
	Register(ctx context.Context, account json.RawMessage) (json.RawMessage, error)
}

// Gateway is the HTTP front of the dispatch core.
type Gateway struct {
	config     *config.GatewayConfig
	logger     observability.Logger
	engine     *gin.Engine
	handler    http.Handler
	listener   *Listener
	state      atomic.Int32
	startTime  time.Time
	routes     *routeTable
	dispatcher *proxy.Dispatcher
	circuits   *circuitbreaker.Engine
	resolver   auth.Resolver
	accounts   AccountService
	metrics    *observability.Metrics
	tracer     *observability.Tracer

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithDispatcher sets the dispatcher serving prefix routes and health checks.
func WithDispatcher(d *proxy.Dispatcher) Option {
	return func(g *Gateway) {
		g.dispatcher = d
	}
}

// WithCircuits sets the circuit engine exposed by the admin endpoints.
func WithCircuits(e *circuitbreaker.Engine) Option {
	return func(g *Gateway) {
		g.circuits = e
	}
}

// WithResolver sets the identity resolver for protected routes.
func WithResolver(r auth.Resolver) Option {
	return func(g *Gateway) {
		g.resolver = r
	}
}

// WithAccounts sets the login and registration service.
func WithAccounts(a AccountService) Option {
	return func(g *Gateway) {
		g.accounts = a
	}
}

// WithMetrics sets the metrics served on /metrics and recorded per request.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTracer enables request spans.
func WithTracer(t *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

// New creates a gateway and builds its routes.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		shutdownTimeout: 30 * time.Second,
		routes:          newRouteTable(cfg.Routes),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.dispatcher == nil {
		return nil, fmt.Errorf("gateway requires a dispatcher")
	}
	if g.circuits == nil {
		g.circuits = circuitbreaker.NewEngine(circuitbreaker.WithLogger(g.logger))
	}
	if cfg.Server.ShutdownTimeout > 0 {
		g.shutdownTimeout = cfg.Server.ShutdownTimeout.Duration()
	}

	g.engine = gin.New()
	g.engine.HandleMethodNotAllowed = false
	g.setupRoutes()

	g.handler = middleware.Chain(g.engine, middleware.ChainConfig{
		Logger:       g.logger,
		Metrics:      g.metrics,
		Tracer:       g.tracer,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	g.state.Store(int32(StateStopped))

	return g, nil
}

// setupRoutes registers the fixed endpoints. Configured prefix routes
// are matched in the NoRoute handler so overlapping prefixes never
// conflict in the router tree.
func (g *Gateway) setupRoutes() {
	authGroup := g.engine.Group("/auth")
	authGroup.POST("/login", g.handleLogin)
	authGroup.POST("/register", g.handleRegister)

	g.engine.GET("/health", g.handleHealthAll)
	g.engine.GET("/health/:backend", g.handleHealth)

	if g.metrics != nil {
		g.engine.GET("/metrics", labelled("/metrics"), gin.WrapH(g.metrics.Handler()))
	}

	admin := g.engine.Group("/admin", labelled("/admin"), g.RequireIdentity(), RequireRoles(AdminRole))
	admin.GET("/circuits", g.handleListCircuits)
	admin.DELETE("/circuits", g.handleResetAllCircuits)
	admin.GET("/circuits/:key", g.handleGetCircuit)
	admin.DELETE("/circuits/:key", g.handleResetCircuit)

	g.engine.NoRoute(g.handleProxy)
}

// labelled records a fixed route label for logs and metrics.
func labelled(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetRoute(c.Request.Context(), name)
		c.Next()
	}
}

// Handler returns the gateway's HTTP handler including the middleware chain.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Engine returns the gin engine.
func (g *Gateway) Engine() *gin.Engine {
	return g.engine
}

// Start starts listening on the configured address.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	g.logger.Info("starting gateway",
		observability.Int("routes", len(g.config.Routes)),
		observability.Int("backends", len(g.config.Backends)),
	)

	listener := NewListener(g.config.Server, g.handler, WithListenerLogger(g.logger))
	if err := listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener: %w", err)
	}
	g.listener = listener

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started", observability.String("address", listener.Address()))

	return nil
}

// Stop stops the gateway gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	err := g.listener.Stop(ctx)

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped")

	return err
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Addr returns the bound listener address once started.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Address()
}
