package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Loader handles configuration loading from files and readers.
type Loader struct {
	envFiles []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvFiles sets dotenv files loaded into the process environment
// before substitution. Missing files are ignored.
func WithEnvFiles(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.envFiles = paths
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadConfig loads, defaults and validates configuration from a file path.
func LoadConfig(path string, opts ...LoaderOption) (*GatewayConfig, error) {
	return NewLoader(opts...).Load(path)
}

// Load loads configuration from a file path.
func (l *Loader) Load(path string) (*GatewayConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return l.parseConfig(data)
}

// LoadFromReader loads configuration from an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return l.parseConfig(data)
}

// parseConfig parses YAML data into a GatewayConfig.
func (l *Loader) parseConfig(data []byte) (*GatewayConfig, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	content := substituteEnvVars(string(data))

	var cfg GatewayConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadEnvFiles loads dotenv files without overriding variables that
// are already set.
func (l *Loader) loadEnvFiles() error {
	for _, path := range l.envFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment variable values.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *GatewayConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeLocal
	}
	if cfg.Auth.JWT.Algorithm == "" {
		cfg.Auth.JWT.Algorithm = DefaultJWTAlgorithm
	}
	if cfg.Auth.JWT.Secret == "" {
		cfg.Auth.JWT.Secret = os.Getenv("JWT_SECRET")
	}
	if cfg.Auth.IdentityBackend == "" {
		cfg.Auth.IdentityBackend = DefaultIdentityBackend
	}

	applyCircuitDefaults(&cfg.CircuitBreaker.Defaults,
		DefaultFailureThreshold, DefaultOpenDuration, DefaultProbeResetDuration)
	applyCircuitDefaults(&cfg.CircuitBreaker.Proxy,
		DefaultProxyThreshold, DefaultProxyOpenDuration, DefaultProbeResetDuration)
	if cfg.CircuitBreaker.MaxKeys == 0 {
		cfg.CircuitBreaker.MaxKeys = DefaultCircuitMaxKeys
	}
	if cfg.CircuitBreaker.IdleTTL == 0 {
		cfg.CircuitBreaker.IdleTTL = Duration(DefaultCircuitIdleTTL)
	}

	if cfg.Cache.Type == "" {
		cfg.Cache.Type = CacheTypeMemory
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(DefaultCacheTTL)
	}

	for name, backend := range cfg.Backends {
		backend.Name = name
		backend.URL = strings.TrimRight(backend.URL, "/")
		if backend.Timeout == 0 {
			backend.Timeout = Duration(DefaultBackendTimeout)
		}
		cfg.Backends[name] = backend
	}
}

func applyCircuitDefaults(c *CircuitOptionsConfig, threshold int, open, reset time.Duration) {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = threshold
	}
	if c.OpenDuration == 0 {
		c.OpenDuration = Duration(open)
	}
	if c.ProbeResetDuration == 0 {
		c.ProbeResetDuration = Duration(reset)
	}
}
