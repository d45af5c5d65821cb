// Package config provides configuration types and loading for the gateway.
package config

import (
	"time"
)

// Auth modes.
const (
	// AuthModeLocal verifies signed tokens in-process.
	AuthModeLocal = "local"

	// AuthModeRemote exchanges session tokens with the identity backend.
	AuthModeRemote = "remote"
)

// Cache types.
const (
	// CacheTypeMemory selects the in-process LRU cache.
	CacheTypeMemory = "memory"

	// CacheTypeRedis selects the Redis cache.
	CacheTypeRedis = "redis"
)

// Default values applied by Loader.
const (
	DefaultPort               = 3000
	DefaultBackendTimeout     = 5 * time.Second
	DefaultFailureThreshold   = 5
	DefaultOpenDuration       = 60 * time.Second
	DefaultProbeResetDuration = 30 * time.Second
	DefaultProxyThreshold     = 3
	DefaultProxyOpenDuration  = 30 * time.Second
	DefaultCircuitMaxKeys     = 10000
	DefaultCircuitIdleTTL     = 10 * time.Minute
	DefaultHealthTimeout      = 3 * time.Second
	DefaultIdentityTimeout    = 5 * time.Second
	DefaultCacheTTL           = 5 * time.Minute
	DefaultJWTAlgorithm       = "HS256"
	DefaultIdentityBackend    = "users"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	Server         ServerConfig             `yaml:"server" json:"server"`
	Logging        LoggingConfig            `yaml:"logging" json:"logging"`
	Tracing        TracingConfig            `yaml:"tracing" json:"tracing"`
	Auth           AuthConfig               `yaml:"auth" json:"auth"`
	CircuitBreaker CircuitBreakerConfig     `yaml:"circuitBreaker" json:"circuitBreaker"`
	Cache          CacheConfig              `yaml:"cache" json:"cache"`
	Backends       map[string]BackendConfig `yaml:"backends" json:"backends" validate:"required,min=1,dive"`
	Routes         []RouteConfig            `yaml:"routes" json:"routes" validate:"dive"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" json:"maxBodyBytes" validate:"gte=0"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
	Output string `yaml:"output" json:"output" validate:"omitempty,oneof=stdout stderr"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate" validate:"gte=0,lte=1"`
}

// AuthConfig selects and configures the identity resolver.
type AuthConfig struct {
	Mode            string    `yaml:"mode" json:"mode" validate:"omitempty,oneof=local remote"`
	JWT             JWTConfig `yaml:"jwt" json:"jwt"`
	IdentityBackend string    `yaml:"identityBackend" json:"identityBackend"`
	Timeout         Duration  `yaml:"timeout" json:"timeout"`
}

// JWTConfig configures local token verification.
type JWTConfig struct {
	Secret    string   `yaml:"secret" json:"-"`
	Algorithm string   `yaml:"algorithm" json:"algorithm" validate:"omitempty,oneof=HS256 HS384 HS512"`
	Issuer    string   `yaml:"issuer" json:"issuer"`
	Audience  string   `yaml:"audience" json:"audience"`
	ClockSkew Duration `yaml:"clockSkew" json:"clockSkew"`
}

// CircuitOptionsConfig mirrors circuitbreaker.Options.
type CircuitOptionsConfig struct {
	FailureThreshold   int      `yaml:"failureThreshold" json:"failureThreshold" validate:"gte=0"`
	OpenDuration       Duration `yaml:"openDuration" json:"openDuration"`
	ProbeResetDuration Duration `yaml:"probeResetDuration" json:"probeResetDuration"`
}

// CircuitBreakerConfig configures the circuit breaker engine.
type CircuitBreakerConfig struct {
	Defaults CircuitOptionsConfig `yaml:"defaults" json:"defaults"`
	Proxy    CircuitOptionsConfig `yaml:"proxy" json:"proxy"`

	// ServerErrorsAsFailures counts 5xx responses against the breaker.
	// By default only transport failures and timeouts do.
	ServerErrorsAsFailures bool `yaml:"serverErrorsAsFailures" json:"serverErrorsAsFailures"`

	MaxKeys int      `yaml:"maxKeys" json:"maxKeys" validate:"gte=0"`
	IdleTTL Duration `yaml:"idleTTL" json:"idleTTL"`
}

// CacheConfig configures the response cache used by the cached fallback.
type CacheConfig struct {
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Type       string            `yaml:"type" json:"type" validate:"omitempty,oneof=memory redis"`
	TTL        Duration          `yaml:"ttl" json:"ttl"`
	MaxEntries int               `yaml:"maxEntries" json:"maxEntries" validate:"gte=0"`
	Redis      *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig configures the Redis cache.
type RedisCacheConfig struct {
	URL          string   `yaml:"url" json:"-"`
	KeyPrefix    string   `yaml:"keyPrefix" json:"keyPrefix"`
	PoolSize     int      `yaml:"poolSize" json:"poolSize" validate:"gte=0"`
	DialTimeout  Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// BackendConfig is a named upstream service.
type BackendConfig struct {
	// Name is filled from the map key by the loader.
	Name    string   `yaml:"-" json:"name"`
	URL     string   `yaml:"url" json:"url" validate:"required,url"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// RouteConfig maps an inbound path prefix to a backend.
type RouteConfig struct {
	Prefix      string   `yaml:"prefix" json:"prefix" validate:"required,startswith=/"`
	Backend     string   `yaml:"backend" json:"backend" validate:"required"`
	StripPrefix string   `yaml:"stripPrefix" json:"stripPrefix"`
	Public      bool     `yaml:"public" json:"public"`
	Roles       []string `yaml:"roles" json:"roles"`
	Cache       bool     `yaml:"cache" json:"cache"`

	// Retries re-runs failed GET and HEAD calls before other fallbacks.
	Retries int `yaml:"retries" json:"retries" validate:"gte=0,lte=10"`
}
