// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns a Prometheus registry. Component metrics (circuit
// breaker, proxy) register into it so a single /metrics endpoint
// exposes everything:
//
//	metrics := observability.NewMetrics("gateway")
//	engine := circuitbreaker.NewEngine(circuitbreaker.WithRegisterer(metrics.Registry()))
//	http.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry tracing with OTLP gRPC export, or stdout export when
// the endpoint is "stdout".
package observability
