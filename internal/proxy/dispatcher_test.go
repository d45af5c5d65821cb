package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/fallback"
)

func newTable(t *testing.T, backends map[string]string) *RouteTable {
	t.Helper()
	cfg := make(map[string]config.BackendConfig, len(backends))
	for name, url := range backends {
		cfg[name] = config.BackendConfig{URL: url, Timeout: config.Duration(time.Second)}
	}
	table, err := NewRouteTable(cfg)
	require.NoError(t, err)
	return table
}

func breakerOpts() circuitbreaker.Options {
	return circuitbreaker.Options{
		FailureThreshold:   3,
		OpenDuration:       time.Minute,
		ProbeResetDuration: 30 * time.Second,
	}
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestDispatch_ForwardsWithIdentityHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), circuitbreaker.NewEngine())

	out := d.Dispatch(context.Background(), Request{
		Backend:  "catalog",
		Method:   http.MethodGet,
		Path:     "/products/42",
		Identity: &auth.Identity{UserID: "u1", Email: "u1@example.com", Role: "seller"},
	})

	require.True(t, out.Succeeded())
	assert.Equal(t, http.StatusOK, out.Value.StatusCode)
	assert.JSONEq(t, `{"id":"42"}`, string(out.Value.Body))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/products/42", got.URL.Path)
	assert.Equal(t, "u1", got.Header.Get("x-user-id"))
	assert.Equal(t, "u1@example.com", got.Header.Get("x-user-email"))
	assert.Equal(t, "seller", got.Header.Get("x-user-role"))
}

func TestDispatch_AnonymousCallCarriesNoIdentityHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), circuitbreaker.NewEngine())

	spoofed := http.Header{}
	spoofed.Set("X-User-Id", "admin")
	spoofed.Set("X-User-Role", "admin")

	out := d.Dispatch(context.Background(), Request{
		Backend: "catalog",
		Method:  http.MethodGet,
		Path:    "/products",
		Header:  spoofed,
	})

	require.True(t, out.Succeeded())
	assert.Empty(t, got.Values(HeaderUserID))
	assert.Empty(t, got.Values(HeaderUserEmail))
	assert.Empty(t, got.Values(HeaderUserRole))
}

func TestDispatch_ForwardsQueryAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "page=2", r.URL.RawQuery)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), circuitbreaker.NewEngine())

	out := d.Dispatch(context.Background(), Request{
		Backend: "orders",
		Method:  http.MethodPost,
		Path:    "/orders",
		Query:   "page=2",
		Body:    []byte(`{"sku":"a"}`),
	})

	require.True(t, out.Succeeded())
	assert.Equal(t, http.StatusCreated, out.Value.StatusCode)
	assert.Equal(t, "created", string(out.Value.Body))
}

func TestDispatch_UnknownBackend(t *testing.T) {
	d := NewDispatcher(newTable(t, map[string]string{}), circuitbreaker.NewEngine())

	out := d.Dispatch(context.Background(), Request{Backend: "ghost", Path: "/"})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.True(t, IsUnknownBackend(out.Err))
	assert.ErrorIs(t, out.Err, ErrUnknownBackend)
}

func TestDispatch_OpensCircuitAfterTransportFailures(t *testing.T) {
	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"orders": deadURL(t)}), engine,
		WithBreakerOptions(breakerOpts()))

	for i := 0; i < 3; i++ {
		out := d.Dispatch(context.Background(), Request{Backend: "orders", Path: "/orders"})
		require.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
		assert.True(t, IsUnavailable(out.Err))
	}
	assert.Equal(t, circuitbreaker.StateOpen, engine.State(BreakerKey("orders")))

	out := d.Dispatch(context.Background(), Request{Backend: "orders", Path: "/orders"})
	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, circuitbreaker.ErrCircuitOpen)
	assert.Contains(t, out.Err.Error(), "orders is temporarily unavailable")
}

func TestDispatch_OpenCircuitDoesNotReachBackend(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), engine,
		WithBreakerOptions(breakerOpts()))

	// Trip the circuit directly through the engine.
	for i := 0; i < 3; i++ {
		circuitbreaker.Guard(context.Background(), engine, BreakerKey("orders"),
			func(context.Context) (*Response, error) { return nil, ErrUpstreamUnavailable },
			breakerOpts(), nil)
	}

	out := d.Dispatch(context.Background(), Request{Backend: "orders", Path: "/orders"})
	assert.ErrorIs(t, out.Err, circuitbreaker.ErrCircuitOpen)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDispatch_ServerErrorsPassThroughByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), engine,
		WithBreakerOptions(breakerOpts()))

	for i := 0; i < 5; i++ {
		out := d.Dispatch(context.Background(), Request{Backend: "orders", Path: "/orders"})
		require.True(t, out.Succeeded())
		assert.Equal(t, http.StatusInternalServerError, out.Value.StatusCode)
	}
	assert.Equal(t, circuitbreaker.StateClosed, engine.State(BreakerKey("orders")))
}

func TestDispatch_ServerErrorsCountWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), engine,
		WithBreakerOptions(breakerOpts()),
		WithServerErrorsAsFailures(true))

	for i := 0; i < 3; i++ {
		out := d.Dispatch(context.Background(), Request{Backend: "orders", Path: "/orders"})
		require.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
		assert.ErrorIs(t, out.Err, ErrUpstreamUnavailable)
	}
	assert.Equal(t, circuitbreaker.StateOpen, engine.State(BreakerKey("orders")))
}

func TestDispatch_TimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	table, err := NewRouteTable(map[string]config.BackendConfig{
		"slow": {URL: srv.URL, Timeout: config.Duration(50 * time.Millisecond)},
	})
	require.NoError(t, err)

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(table, engine)

	out := d.Dispatch(context.Background(), Request{Backend: "slow", Path: "/"})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.True(t, IsTimeout(out.Err))
	snap, ok := engine.Snapshot(BreakerKey("slow"))
	require.True(t, ok)
	assert.Equal(t, 1, snap.FailureCount)
}

func TestDispatch_CallerCancellationIsNotCounted(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), engine)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	out := d.Dispatch(ctx, Request{Backend: "orders", Path: "/"})

	assert.ErrorIs(t, out.Err, context.Canceled)
	snap, ok := engine.Snapshot(BreakerKey("orders"))
	require.True(t, ok)
	assert.Zero(t, snap.FailureCount)
}

func TestDispatch_RequestFallbackServesPlaceholder(t *testing.T) {
	d := NewDispatcher(newTable(t, map[string]string{"orders": deadURL(t)}), circuitbreaker.NewEngine(),
		WithBreakerOptions(breakerOpts()))

	placeholder := &Response{StatusCode: http.StatusOK, Body: []byte(`[]`)}
	out := d.Dispatch(context.Background(), Request{
		Backend:  "orders",
		Path:     "/orders",
		Fallback: fallback.NewDefault(placeholder),
	})

	assert.True(t, out.FallbackUsed())
	assert.Equal(t, placeholder, out.Value)
	assert.ErrorIs(t, out.Cause, ErrUpstreamUnavailable)
}

func TestDispatch_CachedResponseServedWhileBackendFails(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[1,2]}`))
	}))
	defer srv.Close()

	store, err := cache.New(&config.CacheConfig{Enabled: true, Type: config.CacheTypeMemory, MaxEntries: 10}, nil)
	require.NoError(t, err)
	defer store.Close()

	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), circuitbreaker.NewEngine(),
		WithServerErrorsAsFailures(true),
		WithResponseCache(store, time.Minute))

	req := Request{Backend: "catalog", Method: http.MethodGet, Path: "/products", CacheKey: "catalog:GET:/products"}

	first := d.Dispatch(context.Background(), req)
	require.True(t, first.Succeeded())

	healthy.Store(false)
	second := d.Dispatch(context.Background(), req)

	require.True(t, second.FallbackUsed())
	assert.JSONEq(t, `{"items":[1,2]}`, string(second.Value.Body))
}

func TestDispatch_RetriesSafeMethods(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), circuitbreaker.NewEngine(),
		WithServerErrorsAsFailures(true),
		WithRetryBackoff(time.Millisecond))

	out := d.Dispatch(context.Background(), Request{Backend: "catalog", Method: http.MethodGet, Path: "/", Retries: 2})

	require.True(t, out.FallbackUsed())
	assert.Equal(t, "ok", string(out.Value.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// droppingServer accepts connections and closes them without answering.
func droppingServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(hits, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch_RetriesStopOnceCircuitOpens(t *testing.T) {
	var hits int32
	srv := droppingServer(t, &hits)

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), engine,
		WithBreakerOptions(circuitbreaker.Options{FailureThreshold: 1, OpenDuration: time.Minute}),
		WithRetryBackoff(time.Millisecond))

	out := d.Dispatch(context.Background(), Request{Backend: "catalog", Method: http.MethodGet, Path: "/", Retries: 2})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	snap, ok := engine.Snapshot(BreakerKey("catalog"))
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateOpen, snap.State)
	assert.Equal(t, 1, snap.FailureCount)
}

func TestDispatch_RetriesCountAgainstCircuit(t *testing.T) {
	var hits int32
	srv := droppingServer(t, &hits)

	engine := circuitbreaker.NewEngine()
	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), engine,
		WithBreakerOptions(breakerOpts()),
		WithRetryBackoff(time.Millisecond))

	out := d.Dispatch(context.Background(), Request{Backend: "catalog", Method: http.MethodGet, Path: "/", Retries: 2})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, circuitbreaker.StateOpen, engine.State(BreakerKey("catalog")))

	d.Dispatch(context.Background(), Request{Backend: "catalog", Method: http.MethodGet, Path: "/", Retries: 2})
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestDispatch_DoesNotRetryUnsafeMethods(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"orders": srv.URL}), circuitbreaker.NewEngine(),
		WithServerErrorsAsFailures(true),
		WithRetryBackoff(time.Millisecond))

	out := d.Dispatch(context.Background(), Request{Backend: "orders", Method: http.MethodPost, Path: "/", Retries: 3})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatch_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	d := NewDispatcher(newTable(t, map[string]string{"files": srv.URL}), circuitbreaker.NewEngine(),
		WithMaxResponseBytes(16))

	out := d.Dispatch(context.Background(), Request{Backend: "files", Path: "/"})

	assert.Equal(t, circuitbreaker.OutcomeFailed, out.Kind)
	assert.ErrorIs(t, out.Err, ErrResponseTooLarge)
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	d := NewDispatcher(newTable(t, map[string]string{"catalog": srv.URL}), circuitbreaker.NewEngine(),
		WithRegisterer(reg))

	d.Dispatch(context.Background(), Request{Backend: "catalog", Path: "/"})
	d.Dispatch(context.Background(), Request{Backend: "ghost", Path: "/"})

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.dispatchTotal.WithLabelValues("catalog", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.errorsTotal.WithLabelValues("ghost", "unknown_backend")))
}

func TestOutboundHeader_StripsHopHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Connection", "X-Custom")
	in.Set("X-Custom", "1")
	in.Set("Keep-Alive", "timeout=5")
	in.Set("Accept", "application/json")

	out := OutboundHeader(in, nil)

	assert.Empty(t, out.Get("Connection"))
	assert.Empty(t, out.Get("X-Custom"))
	assert.Empty(t, out.Get("Keep-Alive"))
	assert.Equal(t, "application/json", out.Get("Accept"))
	assert.Equal(t, "1", in.Get("X-Custom"), "input must not be modified")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &Error{Cause: ErrUpstreamTimeout}, "timeout"},
		{"unknown", newUnknownBackendError("x"), "unknown_backend"},
		{"open", newUnavailableError("x", circuitbreaker.ErrCircuitOpen), "unavailable"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorType(tt.err))
		})
	}
}
