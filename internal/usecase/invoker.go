package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"roleroute/internal/catalog"
	"roleroute/internal/domain"
	"roleroute/internal/infra/tracer"
)

const defaultAttemptTimeout = 60 * time.Second

// InvokerConfig tunes the fallback chain execution.
type InvokerConfig struct {
	// AttemptTimeout bounds each individual provider attempt.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// MaxTokens is forwarded to providers; 0 means provider default.
	MaxTokens int `yaml:"max_tokens"`
}

// Invoker executes a tool against its provider fallback chain. Attempts
// are strictly sequential in declared order, each with an independent
// timeout; a provider is never retried within one call.
type Invoker struct {
	providers      domain.ProviderResolver
	attemptTimeout time.Duration
	maxTokens      int
	logger         *slog.Logger
}

// NewInvoker creates an invoker resolving providers by name.
func NewInvoker(providers domain.ProviderResolver, cfg InvokerConfig, logger *slog.Logger) *Invoker {
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	return &Invoker{
		providers:      providers,
		attemptTimeout: timeout,
		maxTokens:      cfg.MaxTokens,
		logger:         logger,
	}
}

// Invocation is the invoker's successful outcome.
type Invocation struct {
	Provider string
	Output   string
	Model    string
	Usage    domain.Usage
	// Fallback is true when any provider other than the primary answered.
	Fallback bool
	// Attempts lists the failed attempts that preceded the answer.
	Attempts []domain.ProviderAttempt
}

// Invoke validates params against the tool's schema and then walks the
// provider chain. A schema violation fails before any provider is
// contacted. Caller cancellation aborts the in-flight attempt and the
// rest of the chain; completed attempts are never replayed.
func (inv *Invoker) Invoke(ctx context.Context, tool *catalog.Tool, query domain.Query) (*Invocation, error) {
	ctx, span := tracer.StartSpan(ctx, "invoker.invoke",
		trace.WithAttributes(
			tracer.StringAttr("route.role", tool.RoleID),
			tracer.StringAttr("route.tool", tool.ID),
		),
	)
	defer span.End()

	if err := tool.ValidateParams(query.Params); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var params json.RawMessage
	if len(query.Params) > 0 {
		raw, err := json.Marshal(query.Params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		params = raw
	}

	req := domain.ProviderRequest{
		Role:         tool.RoleID,
		Tool:         tool.ID,
		Instructions: tool.Description,
		Input:        query.Text,
		Params:       params,
		Context:      query.Context,
		Shape:        tool.Output,
		MaxTokens:    inv.maxTokens,
	}

	var trail []domain.ProviderAttempt
	for i, name := range tool.Chain() {
		provider, err := inv.providers.Get(name)
		if err != nil {
			// Validated at catalog build; can only happen if the provider
			// set changed underneath a stale catalog snapshot.
			trail = append(trail, domain.ProviderAttempt{Provider: name, Reason: err.Error()})
			continue
		}

		result, elapsed, err := inv.attempt(ctx, provider, req)
		if err == nil {
			if i > 0 {
				inv.logger.Info("fallback provider answered",
					"tool", tool.ID, "provider", name, "failed_attempts", len(trail))
			}
			tracer.SetOK(span)
			return &Invocation{
				Provider: name,
				Output:   result.Output,
				Model:    result.Model,
				Usage:    result.Usage,
				Fallback: i > 0,
				Attempts: trail,
			}, nil
		}

		// The caller abandoned the query: stop the chain, do not mask
		// the cancellation as provider exhaustion.
		if ctx.Err() != nil {
			tracer.RecordError(span, ctx.Err())
			return nil, ctx.Err()
		}

		inv.logger.Warn("provider attempt failed",
			"tool", tool.ID, "provider", name, "elapsed", elapsed, "error", err)
		trail = append(trail, domain.ProviderAttempt{
			Provider: name,
			Reason:   err.Error(),
			Elapsed:  elapsed,
		})
	}

	exhausted := &domain.ExhaustionError{Role: tool.RoleID, Tool: tool.ID, Attempts: trail}
	tracer.RecordError(span, exhausted)
	return nil, exhausted
}

// attempt runs one provider call under its own timeout. A deadline hit
// is reported as a provider timeout so the trail distinguishes slow
// providers from broken ones.
func (inv *Invoker) attempt(ctx context.Context, provider domain.Provider, req domain.ProviderRequest) (*domain.ProviderResult, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, inv.attemptTimeout)
	defer cancel()

	start := time.Now()
	result, err := provider.Execute(attemptCtx, req)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", domain.ErrProviderTimeout, inv.attemptTimeout)
		}
		return nil, elapsed, err
	}
	return result, elapsed, nil
}
