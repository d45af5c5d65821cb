package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError collects configuration problems.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and cross-references between
// sections (routes must name configured backends, and so on).
func Validate(cfg *GatewayConfig) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"configuration is nil"}}
	}

	var problems []string

	if err := structValidator().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	problems = append(problems, validateReferences(cfg)...)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateReferences(cfg *GatewayConfig) []string {
	var problems []string

	seenPrefixes := make(map[string]bool, len(cfg.Routes))
	for i, route := range cfg.Routes {
		if _, ok := cfg.Backends[route.Backend]; !ok {
			problems = append(problems,
				fmt.Sprintf("routes[%d] references unknown backend %q", i, route.Backend))
		}
		if seenPrefixes[route.Prefix] {
			problems = append(problems,
				fmt.Sprintf("routes[%d] duplicates prefix %q", i, route.Prefix))
		}
		seenPrefixes[route.Prefix] = true
	}

	switch cfg.Auth.Mode {
	case AuthModeLocal:
		if cfg.Auth.JWT.Secret == "" {
			problems = append(problems, "auth.jwt.secret is required in local mode")
		}
	case AuthModeRemote:
		if _, ok := cfg.Backends[cfg.Auth.IdentityBackend]; !ok {
			problems = append(problems,
				fmt.Sprintf("auth.identityBackend %q is not a configured backend", cfg.Auth.IdentityBackend))
		}
	}

	if cfg.Cache.Enabled && cfg.Cache.Type == CacheTypeRedis {
		if cfg.Cache.Redis == nil || cfg.Cache.Redis.URL == "" {
			problems = append(problems, "cache.redis.url is required for redis cache")
		}
	}

	return problems
}
