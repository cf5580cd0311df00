// Package main implements the entry point for the Fundable payment
// streaming service: time-vested token streams between senders and
// recipients with escrow accounting, withdrawal delegation, consensual
// cancellation, and batch distributions, served over a JSON HTTP API with
// NATS JetStream persistence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/config"
	"github.com/Fundable-Protocol/stellar-client/distributor"
	"github.com/Fundable-Protocol/stellar-client/engine"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/metric"
	"github.com/Fundable-Protocol/stellar-client/natsclient"
	"github.com/Fundable-Protocol/stellar-client/pkg/timestamp"
	"github.com/Fundable-Protocol/stellar-client/service"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/streamstore"
	"github.com/Fundable-Protocol/stellar-client/token"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "fundable"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("starting fundable",
		"config_path", cliCfg.ConfigPath,
		"nats_url", cfg.NATS.URL,
		"listen_addr", cfg.HTTP.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := buildVerifier(cliCfg.SecretsPath, logger)
	if err != nil {
		return err
	}
	gate, err := auth.NewGate(verifier, cfg.Protocol.DelegatePolicy)
	if err != nil {
		return fmt.Errorf("build auth gate: %w", err)
	}

	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(appName),
		natsclient.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("build nats client: %w", err)
	}
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer func() {
		if err := natsClient.Close(); err != nil {
			logger.Warn("nats close failed", "error", err)
		}
	}()

	store, err := streamstore.NewNATSStore(ctx, natsClient)
	if err != nil {
		return fmt.Errorf("build stream store: %w", err)
	}
	distStore, err := distributor.NewKVStore(ctx, natsClient)
	if err != nil {
		return fmt.Errorf("build distributor store: %w", err)
	}

	registry := metric.NewRegistry()
	sink := event.NewNATSSink(natsClient, logger)

	// The in-memory ledger is a development backend: balances reset on
	// restart. A production deployment supplies its own token.Service.
	ledger := token.NewLedger()
	logger.Warn("using in-memory token ledger; balances are not persisted")

	eng, err := engine.New(engine.Options{
		Store:   store,
		Tokens:  ledger,
		Clock:   timestamp.SystemClock{},
		Gate:    gate,
		Sink:    sink,
		Escrow:  cfg.Protocol.EscrowAccount,
		Metrics: registry.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	dist, err := distributor.New(distributor.Options{
		Store:  distStore,
		Tokens: ledger,
		Clock:  timestamp.SystemClock{},
		Gate:   gate,
		Sink:   sink,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("build distributor: %w", err)
	}

	srv, err := service.NewServer(service.Options{
		Engine:          eng,
		Distributor:     dist,
		Registry:        registry,
		Logger:          logger,
		ShutdownTimeout: cliCfg.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	return srv.Run(ctx, cfg.HTTP.ListenAddr)
}

// buildVerifier loads the per-principal secrets file. Without one, proofs
// are not checked and callers are trusted on their principal header alone;
// that mode is for development only.
func buildVerifier(path string, logger *slog.Logger) (auth.Verifier, error) {
	if path == "" {
		logger.Warn("no auth secrets file configured; accepting all callers")
		return auth.AcceptAll{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth secrets: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse auth secrets: %w", err)
	}

	secrets := make(map[stream.Address][]byte, len(raw))
	for principal, secret := range raw {
		secrets[stream.Address(principal)] = []byte(secret)
	}
	logger.Info("loaded auth secrets", "principals", len(secrets))
	return auth.NewSharedSecretVerifier(secrets), nil
}
