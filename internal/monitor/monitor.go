// Package monitor observes connectivity to the remote store and triggers
// reconciliation when it returns.
//
// The monitor is a two-state machine, online and offline, driven by
// periodic health probes. The offline-to-online transition runs, after a
// short settling delay so a connection that immediately drops again does
// not trigger work, an ordered sequence: sync-up, sync-down, then a
// best-effort retry of movements recorded while offline. Overlapping
// reconciliation runs are collapsed; repeated online events are absorbed
// by the run already pending.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/safeproducts/stockd/internal/remote"
)

// EventBus topics published on state transitions.
const (
	TopicOnline  = "network.online"
	TopicOffline = "network.offline"
)

// Target is the reconciliation surface the monitor drives on reconnect.
type Target interface {
	SyncUp(ctx context.Context) error
	SyncDown(ctx context.Context) error
	RetryUnpushed(ctx context.Context) error
}

// Degrader is implemented by adapters that shorten their request timeout
// while connectivity is known to be absent.
type Degrader interface {
	SetDegraded(bool)
}

// Config holds monitor tunables.
type Config struct {
	// ProbeInterval is how often to probe while online.
	ProbeInterval time.Duration
	// OfflineProbeInterval is how often to probe while offline; shorter,
	// so recovery is noticed quickly.
	OfflineProbeInterval time.Duration
	// SettleDelay is how long to wait after a reconnect before
	// reconciling.
	SettleDelay time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
	// SyncDownDebounce batches change-feed notifications before running
	// a sync-down.
	SyncDownDebounce time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:        30 * time.Second,
		OfflineProbeInterval: 5 * time.Second,
		SettleDelay:          2 * time.Second,
		ProbeTimeout:         3 * time.Second,
		SyncDownDebounce:     500 * time.Millisecond,
	}
}

// Monitor drives the online/offline state machine.
type Monitor struct {
	adapter remote.Adapter
	target  Target
	bus     EventBus.Bus
	logger  *zap.Logger
	config  Config

	group singleflight.Group

	mu      sync.Mutex
	online  bool
	started bool

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// New creates a Monitor. The bus may be nil when nobody subscribes to
// transition events.
func New(adapter remote.Adapter, target Target, bus EventBus.Bus, logger *zap.Logger, config Config) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		adapter: adapter,
		target:  target,
		bus:     bus,
		logger:  logger,
		config:  config,
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// UpdateConfig replaces the monitor tunables. Called when the
// configuration is reloaded; the new intervals take effect from the next
// probe cycle. Zero fields keep their current value.
func (m *Monitor) UpdateConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config.ProbeInterval > 0 {
		m.config.ProbeInterval = config.ProbeInterval
	}
	if config.OfflineProbeInterval > 0 {
		m.config.OfflineProbeInterval = config.OfflineProbeInterval
	}
	if config.SettleDelay > 0 {
		m.config.SettleDelay = config.SettleDelay
	}
	if config.ProbeTimeout > 0 {
		m.config.ProbeTimeout = config.ProbeTimeout
	}
	if config.SyncDownDebounce > 0 {
		m.config.SyncDownDebounce = config.SyncDownDebounce
	}
}

// configSnapshot returns the current tunables under the lock.
func (m *Monitor) configSnapshot() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Run probes connectivity until ctx is cancelled. It blocks; callers run
// it in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	// Probe immediately so the initial state is known before the first
	// interval elapses.
	m.probe(ctx)

	for {
		config := m.configSnapshot()
		interval := config.ProbeInterval
		if !m.Online() {
			interval = config.OfflineProbeInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			m.probe(ctx)
		}
	}
}

// probe checks reachability once and applies any state transition.
func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.configSnapshot().ProbeTimeout)
	err := m.adapter.Ping(probeCtx)
	cancel()

	m.setOnline(ctx, err == nil)
}

// setOnline applies a connectivity observation. Exposed to the change-feed
// consumer, which learns about reachability from its own connection.
func (m *Monitor) setOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if degrader, ok := m.adapter.(Degrader); ok {
		degrader.SetDegraded(!online)
	}

	if online {
		m.logger.Info("connectivity restored")
		if m.bus != nil {
			m.bus.Publish(TopicOnline)
		}
		go m.reconcile(ctx)
	} else {
		m.logger.Warn("connectivity lost, operating offline")
		if m.bus != nil {
			m.bus.Publish(TopicOffline)
		}
	}
}

// reconcile runs the ordered reconnect sequence. Concurrent calls collapse
// into the in-flight run.
func (m *Monitor) reconcile(ctx context.Context) {
	_, _, _ = m.group.Do("reconcile", func() (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.configSnapshot().SettleDelay):
		}

		if err := m.target.SyncUp(ctx); err != nil {
			m.logger.Warn("sync-up after reconnect failed", zap.Error(err))
		}
		if err := m.target.SyncDown(ctx); err != nil {
			m.logger.Warn("sync-down after reconnect failed", zap.Error(err))
		}
		if err := m.target.RetryUnpushed(ctx); err != nil {
			m.logger.Warn("movement retry after reconnect failed", zap.Error(err))
		}
		return nil, nil
	})
}

// RequestSyncDown schedules a debounced sync-down. Change-feed events call
// this; a burst of notifications results in one pass.
func (m *Monitor) RequestSyncDown(ctx context.Context) {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.configSnapshot().SyncDownDebounce, func() {
		if ctx.Err() != nil {
			return
		}
		if err := m.target.SyncDown(ctx); err != nil {
			m.logger.Warn("change-feed sync-down failed", zap.Error(err))
		}
	})
}
