package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safeproducts/stockd/internal/config"
	"github.com/safeproducts/stockd/internal/monitor"
	"github.com/safeproducts/stockd/internal/remote"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon keeps the local store converged with the remote one:
  - probes connectivity and reconciles when it returns
  - subscribes to the remote change feed and pulls changes as they happen
  - runs a periodic full reconciliation on the configured schedule

Press Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.close()
		return runDaemon(a)
	},
}

func runDaemon(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := EventBus.New()
	_ = bus.Subscribe(monitor.TopicOnline, func() {
		fmt.Println("Remote store reachable, reconciling")
	})
	_ = bus.Subscribe(monitor.TopicOffline, func() {
		fmt.Println("Remote store unreachable, operating offline")
	})

	monCfg := monitor.DefaultConfig()
	if a.cfg.Monitor.ProbeInterval > 0 {
		monCfg.ProbeInterval = a.cfg.Monitor.ProbeInterval
	}
	if a.cfg.Monitor.OfflineProbeInterval > 0 {
		monCfg.OfflineProbeInterval = a.cfg.Monitor.OfflineProbeInterval
	}
	if a.cfg.Monitor.SettleDelay > 0 {
		monCfg.SettleDelay = a.cfg.Monitor.SettleDelay
	}
	mon := monitor.New(a.adapter, a.engine.Target(), bus, a.logger, monCfg)
	a.engine.SetOnlineFunc(mon.Online)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx)
	}()

	if a.cfg.Sync.WatchChanges {
		if client, ok := a.adapter.(*remote.Client); ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				watchChanges(ctx, client, mon, a.logger)
			}()
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(a.cfg.Sync.Schedule, func() {
		if !mon.Online() {
			return
		}
		if _, _, err := a.engine.SyncFull(ctx); err != nil {
			a.logger.Warn("scheduled reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", a.cfg.Sync.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Live reload covers the daemon tunables; connection settings (remote
	// URL, database path) still need a restart.
	config.Watch(a.viper, func(cfg *config.Config) {
		a.engine.SetLowStockThreshold(cfg.Sync.LowStockThreshold)
		mon.UpdateConfig(monitor.Config{
			ProbeInterval:        cfg.Monitor.ProbeInterval,
			OfflineProbeInterval: cfg.Monitor.OfflineProbeInterval,
			SettleDelay:          cfg.Monitor.SettleDelay,
		})
		a.logger.Info("configuration reloaded",
			zap.String("file", a.viper.ConfigFileUsed()),
			zap.Int64("low_stock_threshold", cfg.Sync.LowStockThreshold),
			zap.Duration("probe_interval", cfg.Monitor.ProbeInterval))
	})

	fmt.Printf("stockd daemon started\n")
	fmt.Printf("  Database: %s\n", a.store.Path())
	if a.cfg.Remote.URL != "" {
		fmt.Printf("  Remote:   %s\n", a.cfg.Remote.URL)
	} else {
		fmt.Printf("  Remote:   not configured (local only)\n")
	}
	fmt.Printf("  Schedule: %s\n", a.cfg.Sync.Schedule)

	<-ctx.Done()
	fmt.Println("\nShutting down")
	wg.Wait()
	return nil
}

// watchChanges maintains the change-feed subscription, redialing with
// backoff while the feed is unavailable. Feed events accelerate sync-down;
// losing the feed only means falling back to the periodic schedule.
func watchChanges(ctx context.Context, client *remote.Client, mon *monitor.Monitor, logger *zap.Logger) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		events, err := client.Watch(ctx, logger)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		logger.Info("change feed connected")

		for ev := range events {
			if ev.Kind != "products" {
				continue
			}
			mon.RequestSyncDown(ctx)
		}
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
