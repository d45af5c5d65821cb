package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// defaultShutdownTimeout bounds the drain when the configuration does not.
const defaultShutdownTimeout = 30 * time.Second

// runGateway runs the gateway until a shutdown signal arrives.
func runGateway(app *application, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.gateway.Start(ctx); err != nil {
		logger.Fatal("failed to start gateway", observability.Error(err))
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdown(app, logger)
}

// shutdown stops the gateway and releases its resources.
func shutdown(app *application, logger observability.Logger) {
	timeout := app.config.Server.ShutdownTimeout.OrDefault(defaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if app.gateway.IsRunning() {
		if err := app.gateway.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop gateway gracefully", observability.Error(err))
		}
	}

	if err := app.cache.Close(); err != nil {
		logger.Error("failed to close cache", observability.Error(err))
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}
