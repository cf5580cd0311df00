package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Protocol.Admin = "admin"
	cfg.Protocol.FeeCollector = "collector"
	cfg.Protocol.EscrowAccount = "escrow"
	cfg.Protocol.FeeRateBps = 250
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"missing admin", func(c *Config) { c.Protocol.Admin = "" }, errors.ErrMissingConfig},
		{"missing collector", func(c *Config) { c.Protocol.FeeCollector = "" }, errors.ErrMissingConfig},
		{"missing escrow", func(c *Config) { c.Protocol.EscrowAccount = "" }, errors.ErrMissingConfig},
		{"fee above cap", func(c *Config) { c.Protocol.FeeRateBps = 501 }, errors.ErrFeeTooHigh},
		{"bad policy", func(c *Config) { c.Protocol.DelegatePolicy = "sometimes" }, errors.ErrInvalidConfig},
		{"missing nats url", func(c *Config) { c.NATS.URL = "" }, errors.ErrMissingConfig},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, errors.ErrInvalidConfig},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
protocol:
  admin: GADMIN
  fee_collector: GCOLLECT
  escrow_account: GESCROW
  fee_rate_bps: 250
  delegate_policy: delegate_exclusive
nats:
  url: nats://nats:4222
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "GADMIN", string(cfg.Protocol.Admin))
	assert.Equal(t, auth.DelegateExclusive, cfg.Protocol.DelegatePolicy)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults fill unset fields.
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFile_Invalid(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protocol: [not a map"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "incomplete.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: nats://x:4222\n"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}
