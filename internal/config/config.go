// Package config loads the stockd configuration from file, environment,
// and flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	Remote  Remote  `mapstructure:"remote"`
	Sync    Sync    `mapstructure:"sync"`
	Monitor Monitor `mapstructure:"monitor"`
	Log     Log     `mapstructure:"log"`
}

// Remote configures the connection to the canonical document store.
type Remote struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Sync configures reconciliation behavior.
type Sync struct {
	// Schedule is a cron expression for the daemon's periodic full
	// reconciliation.
	Schedule string `mapstructure:"schedule"`
	// LowStockThreshold marks products counted as low stock.
	LowStockThreshold int64 `mapstructure:"low_stock_threshold"`
	// WatchChanges enables the remote change feed in the daemon.
	WatchChanges bool `mapstructure:"watch_changes"`
}

// Monitor configures the connectivity probes.
type Monitor struct {
	ProbeInterval        time.Duration `mapstructure:"probe_interval"`
	OfflineProbeInterval time.Duration `mapstructure:"offline_probe_interval"`
	SettleDelay          time.Duration `mapstructure:"settle_delay"`
}

// Log configures structured logging output.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// File receives JSON logs with rotation; empty logs to stderr only.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.timeout", 5*time.Second)
	v.SetDefault("sync.schedule", "@every 5m")
	v.SetDefault("sync.low_stock_threshold", 10)
	v.SetDefault("sync.watch_changes", true)
	v.SetDefault("monitor.probe_interval", 30*time.Second)
	v.SetDefault("monitor.offline_probe_interval", 5*time.Second)
	v.SetDefault("monitor.settle_delay", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "stockd.db"
	}
	return filepath.Join(home, ".stockd", "stockd.db")
}

// Load reads configuration. An explicit path must exist; otherwise the
// usual locations are searched and a missing file means defaults.
// Environment variables with the STOCKD_ prefix override file values,
// e.g. STOCKD_REMOTE_URL.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("stockd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("stockd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".stockd"))
			v.AddConfigPath(filepath.Join(home, ".config", "stockd"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Watch re-reads the config when its file changes and delivers the new
// value to onChange. No-op when no config file is in use.
func Watch(v *viper.Viper, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
