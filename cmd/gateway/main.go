// Package main is the entry point for the marketplace gateway.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	envFile     string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags, logger)
	logger = configureLogger(cfg, logger)
	app := initApplication(cfg, logger)

	runGateway(app, logger)
}

// parseFlags parses command line flags with environment defaults.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	envFile := fs.String("env-file", getEnvOrDefault("GATEWAY_ENV_FILE", ".env"),
		"Optional dotenv file loaded before configuration")
	logLevel := fs.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	logFormat := fs.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		envFile:     *envFile,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("marketgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the bootstrap logger from flags.
func initLogger(flags cliFlags) observability.Logger {
	cfg := observability.DefaultLogConfig()
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads and validates the configuration or exits.
func loadConfig(flags cliFlags, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting marketgw",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	cfg, err := config.LoadConfig(flags.configPath, config.WithEnvFiles(flags.envFile))
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	logger.Info("configuration loaded",
		observability.String("auth_mode", cfg.Auth.Mode),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("backends", len(cfg.Backends)),
		observability.Bool("cache", cfg.Cache.Enabled),
	)

	return cfg
}

// configureLogger replaces the bootstrap logger with one built from the
// logging section. On error the bootstrap logger is kept.
func configureLogger(cfg *config.GatewayConfig, bootstrap observability.Logger) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		bootstrap.Warn("keeping bootstrap logger", observability.Error(err))
		return bootstrap
	}

	_ = bootstrap.Sync()
	observability.SetGlobalLogger(logger)
	return logger
}
