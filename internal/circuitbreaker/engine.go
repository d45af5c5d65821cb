package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Engine defaults.
const (
	DefaultMaxKeys = 10000
	DefaultIdleTTL = 10 * time.Minute
)

// Engine owns the per-key circuit records. Records are created on first
// use and evicted when idle or when the store is full. Idle records are
// dropped lazily on access, so an Engine owns no background goroutines.
type Engine struct {
	mu      sync.Mutex
	store   *lru.Cache[string, *circuit]
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	maxKeys    int
	idleTTL    time.Duration
	registerer prometheus.Registerer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegisterer sets the Prometheus registerer for engine metrics.
func WithRegisterer(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithMaxKeys bounds the number of tracked circuits.
func WithMaxKeys(n int) EngineOption {
	return func(e *Engine) {
		e.maxKeys = n
	}
}

// WithIdleTTL sets how long an unused circuit is kept.
func WithIdleTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.idleTTL = ttl
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new circuit breaker engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		logger:  observability.NopLogger(),
		now:     time.Now,
		maxKeys: DefaultMaxKeys,
		idleTTL: DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxKeys <= 0 {
		e.maxKeys = DefaultMaxKeys
	}
	if e.idleTTL <= 0 {
		e.idleTTL = DefaultIdleTTL
	}

	e.metrics = NewMetrics(e.registerer)
	// maxKeys is positive, the only precondition NewWithEvict checks.
	e.store, _ = lru.NewWithEvict[string, *circuit](e.maxKeys, e.onEvict)
	return e
}

func (e *Engine) onEvict(key string, _ *circuit) {
	e.metrics.forget(key)
}

// circuit returns the record for key, creating it when absent, and
// marks it as recently used.
func (e *Engine) circuit(key string) *circuit {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.expireLocked(now)

	c, ok := e.store.Get(key)
	if !ok {
		c = newCircuit(key)
		e.store.Add(key, c)
	}
	c.lastUsed = now
	return c
}

func (e *Engine) lookup(key string) (*circuit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireLocked(e.now())
	return e.store.Peek(key)
}

// expireLocked drops records idle for longer than idleTTL. The store is
// ordered by use, so the scan stops at the first live record.
func (e *Engine) expireLocked(now time.Time) {
	for {
		key, c, ok := e.store.GetOldest()
		if !ok || now.Sub(c.lastUsed) <= e.idleTTL {
			return
		}
		e.store.Remove(key)
	}
}

// State returns the state of the circuit for key. Unknown keys are closed.
func (e *Engine) State(key string) State {
	c, ok := e.lookup(key)
	if !ok {
		return StateClosed
	}
	return c.currentState()
}

// Snapshot returns a copy of the record for key.
func (e *Engine) Snapshot(key string) (Snapshot, bool) {
	c, ok := e.lookup(key)
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// Snapshots returns copies of all tracked records ordered by key.
func (e *Engine) Snapshots() []Snapshot {
	e.mu.Lock()
	e.expireLocked(e.now())
	circuits := e.store.Values()
	e.mu.Unlock()

	out := make([]Snapshot, 0, len(circuits))
	for _, c := range circuits {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of tracked circuits.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireLocked(e.now())
	return e.store.Len()
}

// Reset forgets the circuit for key. It reports whether a record existed.
func (e *Engine) Reset(key string) bool {
	e.mu.Lock()
	removed := e.store.Remove(key)
	e.mu.Unlock()

	if removed {
		e.logger.Info("circuit breaker reset", observability.String("name", key))
	}
	return removed
}

// ResetAll forgets every circuit.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	e.store.Purge()
	e.mu.Unlock()

	e.logger.Info("all circuit breakers reset")
}

func (e *Engine) report(key string, tr transition) {
	if !tr.changed() {
		return
	}
	e.metrics.recordStateChange(key, tr.from, tr.to)

	fields := []observability.Field{
		observability.String("name", key),
		observability.String("from", tr.from.String()),
		observability.String("to", tr.to.String()),
	}
	if tr.to == StateOpen {
		e.logger.Warn("circuit breaker state changed", fields...)
		return
	}
	e.logger.Info("circuit breaker state changed", fields...)
}
