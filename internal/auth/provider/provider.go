// Package provider builds the identity resolver selected by configuration.
package provider

import (
	"fmt"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/auth/jwt"
	"github.com/vyrodovalexey/marketgw/internal/auth/session"
	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// NewResolver returns the local JWT resolver or the remote session
// resolver depending on cfg.Auth.Mode.
func NewResolver(cfg *config.GatewayConfig, logger observability.Logger) (auth.Resolver, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeLocal, "":
		jwtCfg := cfg.Auth.JWT
		r, err := jwt.NewLocalResolver(jwt.Config{
			Secret:    jwtCfg.Secret,
			Algorithm: jwtCfg.Algorithm,
			Issuer:    jwtCfg.Issuer,
			Audience:  jwtCfg.Audience,
			ClockSkew: jwtCfg.ClockSkew.Duration(),
		}, jwt.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create local resolver: %w", err)
		}
		logger.Info("identity resolver selected", observability.String("mode", config.AuthModeLocal))
		return r, nil

	case config.AuthModeRemote:
		sessionCfg, err := IdentityBackend(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("identity resolver selected",
			observability.String("mode", config.AuthModeRemote),
			observability.String("backend", cfg.Auth.IdentityBackend))
		return session.NewRemoteResolver(sessionCfg, session.WithLogger(logger)), nil

	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// NewAccountClient returns the client used for login and registration.
func NewAccountClient(cfg *config.GatewayConfig, logger observability.Logger) (*session.AccountClient, error) {
	sessionCfg, err := IdentityBackend(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return session.NewAccountClient(sessionCfg, session.WithLogger(logger)), nil
}

// IdentityBackend resolves the identity backend's connection settings.
// Its breaker follows circuitBreaker.defaults.
func IdentityBackend(cfg *config.GatewayConfig) (session.Config, error) {
	backend, ok := cfg.Backends[cfg.Auth.IdentityBackend]
	if !ok {
		return session.Config{}, fmt.Errorf("identity backend %q is not configured", cfg.Auth.IdentityBackend)
	}

	var threshold uint32
	if n := cfg.CircuitBreaker.Defaults.FailureThreshold; n > 0 {
		threshold = uint32(n)
	}

	return session.Config{
		BaseURL:          backend.URL,
		Timeout:          cfg.Auth.Timeout.OrDefault(backend.Timeout.OrDefault(config.DefaultIdentityTimeout)),
		FailureThreshold: threshold,
		OpenTimeout:      cfg.CircuitBreaker.Defaults.OpenDuration.Duration(),
	}, nil
}
