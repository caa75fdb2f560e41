package provider

import (
	"context"
	"fmt"
	"log/slog"

	"roleroute/internal/domain"
	"roleroute/internal/infra/config"
)

// Warmer is implemented by providers that can pre-load their model
// before the first real request.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// New builds a provider client from its config entry.
func New(cfg config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	case "bedrock":
		return NewBedrockProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// BuildRegistry constructs the provider registry from config, wrapping every
// client in a circuit breaker.
func BuildRegistry(cfgs []config.ProviderConfig, cb config.CircuitBreakerConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range cfgs {
		p, err := New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", cfg.Name, err)
		}
		if err := reg.Register(NewCircuitBreakerProvider(p, cb, logger)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WarmupAll warms every provider in the registry that supports it.
// Failures are logged, not returned: a cold model is a latency problem,
// not a startup error.
func WarmupAll(ctx context.Context, reg *Registry, logger *slog.Logger) {
	for _, p := range reg.List() {
		w, ok := p.(Warmer)
		if !ok {
			continue
		}
		if err := w.Warmup(ctx); err != nil {
			logger.Warn("provider warmup failed", "provider", p.Name(), "error", err)
		}
	}
}
