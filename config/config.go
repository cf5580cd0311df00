// Package config defines the application configuration for the Fundable
// streaming service. The configuration is loaded once at startup, validated,
// and passed explicitly into the engine; after initialization the only
// mutation path for protocol parameters is the admin-gated setters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Config represents the complete application configuration.
type Config struct {
	Protocol ProtocolConfig `yaml:"protocol"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// ProtocolConfig holds the init-once protocol parameters.
type ProtocolConfig struct {
	// Admin may invoke SetProtocolFeeRate and SetFeeCollector.
	Admin stream.Address `yaml:"admin"`
	// FeeCollector receives withdrawal fees.
	FeeCollector stream.Address `yaml:"fee_collector"`
	// FeeRateBps is the withdrawal fee in basis points, capped at 500.
	FeeRateBps stream.FeeRate `yaml:"fee_rate_bps"`
	// EscrowAccount is the address holding escrowed stream balances.
	EscrowAccount stream.Address `yaml:"escrow_account"`
	// DelegatePolicy selects delegate-additive (default) or
	// delegate-exclusive withdrawal authorization.
	DelegatePolicy auth.DelegatePolicy `yaml:"delegate_policy"`
}

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig holds the HTTP API settings.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns a configuration with sensible defaults; protocol addresses
// must still be provided.
func Default() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			DelegatePolicy: auth.DelegateAdditive,
		},
		NATS: NATSConfig{URL: "nats://localhost:4222"},
		HTTP: HTTPConfig{ListenAddr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
}

// LoadFile reads and validates a YAML configuration file, applying defaults
// for unset fields.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", "read file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "LoadFile", "parse yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	if c.Protocol.Admin == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "protocol.admin required")
	}
	if c.Protocol.FeeCollector == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "protocol.fee_collector required")
	}
	if c.Protocol.EscrowAccount == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "protocol.escrow_account required")
	}
	if !c.Protocol.FeeRateBps.Valid() {
		return errors.WrapInvalid(errors.ErrFeeTooHigh, "config", "Validate",
			fmt.Sprintf("protocol.fee_rate_bps %d exceeds cap %d", c.Protocol.FeeRateBps, stream.MaxFeeRateBps))
	}
	if c.Protocol.DelegatePolicy != "" && !c.Protocol.DelegatePolicy.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown delegate policy %q", c.Protocol.DelegatePolicy))
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "nats.url required")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	return nil
}
