package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"roleroute/internal/domain"
	"roleroute/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerProvider wraps a domain.Provider with circuit breaker
// protection. When the wrapped provider fails repeatedly, the circuit opens
// and subsequent calls fail fast without reaching the provider, so the
// fallback chain moves on to the next provider immediately.
type CircuitBreakerProvider struct {
	inner   domain.Provider
	breaker *gobreaker.CircuitBreaker[*domain.ProviderResult]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker.
// Zero-valued cfg fields fall back to defaults.
func NewCircuitBreakerProvider(inner domain.Provider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[*domain.ProviderResult](gobreaker.Settings{
		Name:        "provider:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes must not trip the breaker.
			return err == nil || domain.CallerError(err)
		},
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Execute implements domain.Provider. Calls route through the circuit breaker.
func (p *CircuitBreakerProvider) Execute(ctx context.Context, req domain.ProviderRequest) (*domain.ProviderResult, error) {
	resp, err := p.breaker.Execute(func() (*domain.ProviderResult, error) {
		return p.inner.Execute(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: provider %q: %v", domain.ErrCircuitOpen, p.inner.Name(), err)
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.Provider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// IsHealthy delegates to the inner provider's probe when it has one, and
// reports unhealthy while the circuit is open.
func (p *CircuitBreakerProvider) IsHealthy(ctx context.Context) bool {
	if p.breaker.State() == gobreaker.StateOpen {
		return false
	}
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.IsHealthy(ctx)
	}
	return true
}

// Warmup delegates to the wrapped provider when it supports warmup.
func (p *CircuitBreakerProvider) Warmup(ctx context.Context) error {
	if w, ok := p.inner.(Warmer); ok {
		return w.Warmup(ctx)
	}
	return nil
}

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

var (
	_ domain.Provider      = (*CircuitBreakerProvider)(nil)
	_ domain.HealthChecker = (*CircuitBreakerProvider)(nil)
)
