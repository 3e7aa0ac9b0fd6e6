package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatsell/agency_dash/backend/internal/config"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gauge receives the outcome of each sweep.
type Gauge interface {
	SetStoreUp(up bool)
}

// Monitor periodically pings the document store and records its availability.
type Monitor struct {
	store     Pinger
	gauge     Gauge
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration
	up        atomic.Bool
	checked   atomic.Bool
	startOnce sync.Once
}

// NewMonitor constructs a monitor using the health configuration.
func NewMonitor(store Pinger, gauge Gauge, cfg config.HealthConfig, logger *slog.Logger) *Monitor {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > interval {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		store:    store,
		gauge:    gauge,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// Start begins the monitoring loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil || m.store == nil {
		return
	}
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

// Up reports the result of the latest sweep. Before the first sweep it is false.
func (m *Monitor) Up() bool {
	return m != nil && m.up.Load()
}

// Checked reports whether at least one sweep has completed.
func (m *Monitor) Checked() bool {
	return m != nil && m.checked.Load()
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial sweep
	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs one sweep synchronously.
func (m *Monitor) Check(ctx context.Context) bool {
	timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.store.Ping(timeoutCtx)
	up := err == nil
	if prev := m.up.Swap(up); prev != up || !m.checked.Load() {
		if up {
			m.logger.Info("document store reachable")
		} else {
			m.logger.Warn("document store unreachable", slog.String("error", err.Error()))
		}
	}
	m.checked.Store(true)
	if m.gauge != nil {
		m.gauge.SetStoreUp(up)
	}
	return up
}
