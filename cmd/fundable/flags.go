package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigPath      string
	SecretsPath     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FUNDABLE_CONFIG", "configs/fundable.yaml"),
		"Path to configuration file (env: FUNDABLE_CONFIG)")

	flag.StringVar(&cfg.SecretsPath, "auth-secrets",
		getEnv("FUNDABLE_AUTH_SECRETS", ""),
		"Path to YAML file of principal->secret pairs; empty disables proof checks (env: FUNDABLE_AUTH_SECRETS)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("FUNDABLE_LOG_LEVEL", ""),
		"Log level override: debug, info, warn, error (env: FUNDABLE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("FUNDABLE_LOG_FORMAT", ""),
		"Log format override: json, text (env: FUNDABLE_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FUNDABLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FUNDABLE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, `%s - payment streaming engine

Usage: %s [options]

Options:
`, appName, os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion {
		return nil
	}
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if cfg.SecretsPath != "" {
		if _, err := os.Stat(cfg.SecretsPath); err != nil {
			return fmt.Errorf("auth secrets file not found: %s", cfg.SecretsPath)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
