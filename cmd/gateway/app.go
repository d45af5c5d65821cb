package main

import (
	"context"

	"github.com/vyrodovalexey/marketgw/internal/auth/provider"
	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/gateway"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
)

// application holds all application components.
type application struct {
	gateway  *gateway.Gateway
	cache    cache.Cache
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	config   *config.GatewayConfig
	circuits *circuitbreaker.Engine
}

// initApplication builds every component or exits.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) *application {
	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}
	return app
}

// buildApplication wires the components described by cfg. Components
// created before a failing step are released before it returns.
func buildApplication(cfg *config.GatewayConfig, logger observability.Logger) (_ *application, err error) {
	var release []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
	}()

	metrics := observability.NewMetrics("gateway")
	metrics.SetBuildInfo(version, gitCommit)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, err
	}
	release = append(release, func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	})

	circuits := circuitbreaker.NewEngine(
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithRegisterer(metrics.Registry()),
		circuitbreaker.WithMaxKeys(cfg.CircuitBreaker.MaxKeys),
		circuitbreaker.WithIdleTTL(cfg.CircuitBreaker.IdleTTL.Duration()),
	)

	store, err := cache.New(&cfg.Cache, logger, cache.WithRegisterer(metrics.Registry()))
	if err != nil {
		return nil, err
	}
	release = append(release, func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close cache", observability.Error(err))
		}
	})

	table, err := proxy.NewRouteTable(cfg.Backends)
	if err != nil {
		return nil, err
	}

	dispatchOpts := []proxy.Option{
		proxy.WithLogger(logger),
		proxy.WithRegisterer(metrics.Registry()),
		proxy.WithBreakerOptions(breakerOptions(cfg.CircuitBreaker.Proxy)),
		proxy.WithServerErrorsAsFailures(cfg.CircuitBreaker.ServerErrorsAsFailures),
	}
	if cfg.Cache.Enabled {
		dispatchOpts = append(dispatchOpts, proxy.WithResponseCache(store, cfg.Cache.TTL.Duration()))
	}
	dispatcher := proxy.NewDispatcher(table, circuits, dispatchOpts...)

	resolver, err := provider.NewResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithDispatcher(dispatcher),
		gateway.WithCircuits(circuits),
		gateway.WithResolver(resolver),
		gateway.WithMetrics(metrics),
		gateway.WithTracer(tracer),
	}
	if accounts, err := provider.NewAccountClient(cfg, logger); err == nil {
		gwOpts = append(gwOpts, gateway.WithAccounts(accounts))
	} else {
		logger.Warn("login and registration disabled", observability.Error(err))
	}

	gw, err := gateway.New(cfg, gwOpts...)
	if err != nil {
		return nil, err
	}

	return &application{
		gateway:  gw,
		cache:    store,
		metrics:  metrics,
		tracer:   tracer,
		config:   cfg,
		circuits: circuits,
	}, nil
}

func breakerOptions(c config.CircuitOptionsConfig) circuitbreaker.Options {
	return circuitbreaker.DefaultOptions().
		WithFailureThreshold(c.FailureThreshold).
		WithOpenDuration(c.OpenDuration.Duration()).
		WithProbeResetDuration(c.ProbeResetDuration.Duration())
}
