package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/safeproducts/stockd/internal/config"
	"github.com/safeproducts/stockd/internal/engine"
	"github.com/safeproducts/stockd/internal/logging"
	"github.com/safeproducts/stockd/internal/remote"
	"github.com/safeproducts/stockd/internal/store"
)

var (
	flagConfig    string
	flagDB        string
	flagRemoteURL string
	flagAPIKey    string
	flagJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "stockd",
	Short: "Offline-first inventory tracker",
	Long: `stockd manages a product inventory that works without a network.

All reads and writes go to a local SQLite database first; changes are
mirrored to the remote store when it is reachable and reconciled
bidirectionally when connectivity returns. Nothing is ever lost to a
network outage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default: ./stockd.yaml, ~/.stockd/stockd.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagRemoteURL, "remote-url", "",
		"remote store base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "",
		"remote store API key (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "inventory", Title: "Inventory Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
}

// app bundles everything a command needs after setup.
type app struct {
	cfg     *config.Config
	viper   *viper.Viper
	logger  *zap.Logger
	store   *store.Store
	adapter remote.Adapter
	engine  *engine.Engine
}

// openApp loads configuration, applies flag overrides, opens the local
// store, and assembles the engine. Callers must defer a.close().
func openApp() (*app, error) {
	cfg, v, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagRemoteURL != "" {
		cfg.Remote.URL = flagRemoteURL
	}
	if flagAPIKey != "" {
		cfg.Remote.APIKey = flagAPIKey
	}

	logger := logging.New(cfg.Log)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	adapter := buildAdapter(cfg)
	eng := engine.New(st, adapter, logger, engine.Config{
		LowStockThreshold: cfg.Sync.LowStockThreshold,
	})

	return &app{
		cfg:     cfg,
		viper:   v,
		logger:  logger,
		store:   st,
		adapter: adapter,
		engine:  eng,
	}, nil
}

// buildAdapter picks the remote implementation: the HTTP client when a URL
// is configured, otherwise an in-process adapter so the engine runs
// standalone.
func buildAdapter(cfg *config.Config) remote.Adapter {
	if cfg.Remote.URL == "" {
		mem := remote.NewMemoryAdapter()
		mem.SetOnline(false)
		return mem
	}
	opts := []remote.ClientOption{}
	if cfg.Remote.APIKey != "" {
		opts = append(opts, remote.WithAPIKey(cfg.Remote.APIKey))
	}
	if cfg.Remote.Timeout > 0 {
		opts = append(opts, remote.WithTimeout(cfg.Remote.Timeout))
	}
	return remote.NewClient(cfg.Remote.URL, opts...)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
