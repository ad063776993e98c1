// Package health runs a background liveness probe against the primary
// upstream. Status is an optimization hint for callers deciding whether an
// expensive aggregate fetch is worth attempting; it is never an absolute
// veto, a direct attempt with fallback remains correct while unhealthy.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"librarium/contentservice/internal/timeout"
)

type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

const (
	defaultInterval = 45 * time.Second
)

// Prober is the probe surface of the upstream client.
type Prober interface {
	Probe(ctx context.Context) error
}

type Monitor struct {
	prober   Prober
	interval time.Duration
	deadline time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	status    Status
	lastCheck time.Time
	started   bool
}

type Option func(*Monitor)

func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

func WithProbeDeadline(deadline time.Duration) Option {
	return func(m *Monitor) {
		if deadline > 0 {
			m.deadline = deadline
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: defaultInterval,
		deadline: timeout.ProbeDeadline,
		logger:   slog.Default(),
		status:   StatusUnknown,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the probe loop. Safe to call once; subsequent calls are
// ignored. The loop stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	m.probeOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.deadline)
	defer cancel()

	err := m.prober.Probe(probeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCheck = time.Now()
	if err != nil {
		if m.status != StatusUnhealthy {
			m.logger.Warn("upstream probe failed", slog.String("error", err.Error()))
		}
		m.status = StatusUnhealthy
		return
	}
	if m.status == StatusUnhealthy {
		m.logger.Info("upstream probe recovered")
	}
	m.status = StatusHealthy
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastCheck returns when the probe last completed, zero before the first run.
func (m *Monitor) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}
