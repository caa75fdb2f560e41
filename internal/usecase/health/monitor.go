// Package health periodically probes backing providers so that gateway
// status queries can report liveness without blocking on probes.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"roleroute/internal/domain"
)

const defaultProbeTimeout = 5 * time.Second

// ProviderLister exposes the configured providers for probing.
type ProviderLister interface {
	List() []domain.Provider
}

// ProviderHealth is the last observed probe result for one provider.
type ProviderHealth struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor sweeps providers on a cron schedule and caches the results.
type Monitor struct {
	providers    ProviderLister
	probeTimeout time.Duration
	logger       *slog.Logger

	cron    *cron.Cron
	mu      sync.RWMutex
	results map[string]ProviderHealth
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMonitor creates a health monitor. probeTimeout bounds each individual
// provider probe; zero means the default.
func NewMonitor(providers ProviderLister, probeTimeout time.Duration, logger *slog.Logger) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Monitor{
		providers:    providers,
		probeTimeout: probeTimeout,
		logger:       logger,
		cron:         cron.New(),
		results:      make(map[string]ProviderHealth),
	}
}

// Start schedules the sweep and runs one immediately so the first status
// query has data. The schedule is a standard 5-field cron expression.
func (m *Monitor) Start(ctx context.Context, schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("health: invalid schedule %q: %w", schedule, err)
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	runCtx := m.ctx
	m.mu.Unlock()

	m.cron.Schedule(sched, cron.FuncJob(func() {
		m.Sweep(runCtx)
	}))
	m.cron.Start()

	m.Sweep(runCtx)
	return nil
}

// Stop halts the sweep schedule and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	stopCtx := m.cron.Stop()
	<-stopCtx.Done()
	m.started = false
}

// Sweep probes every provider once and updates the cached results.
// Providers without a liveness probe are reported healthy.
func (m *Monitor) Sweep(ctx context.Context) {
	now := time.Now()
	for _, p := range m.providers.List() {
		healthy := true
		if hc, ok := p.(domain.HealthChecker); ok {
			probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
			healthy = hc.IsHealthy(probeCtx)
			cancel()
		}

		m.mu.Lock()
		prev, known := m.results[p.Name()]
		m.results[p.Name()] = ProviderHealth{
			Name:      p.Name(),
			Healthy:   healthy,
			CheckedAt: now,
		}
		m.mu.Unlock()

		if known && prev.Healthy != healthy {
			m.logger.Warn("provider health changed",
				"provider", p.Name(),
				"healthy", healthy,
			)
		}
	}
}

// Snapshot returns the last probe result per provider.
func (m *Monitor) Snapshot() map[string]ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ProviderHealth, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}
	return out
}
