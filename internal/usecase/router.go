// Package usecase contains the routing core: detection, selection,
// invocation, and the Router composition root that ties them together.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"roleroute/internal/catalog"
	"roleroute/internal/domain"
	"roleroute/internal/infra/tracer"
)

// Router is the only entry point for query execution: it resolves the
// role (hint or detector), the tool (hint or selector), validates
// parameters, and invokes the provider chain. The router never retries
// a failed resolution; retries live only in the invoker's fallback layer.
type Router struct {
	registry *catalog.Registry
	detector *Detector
	selector *Selector
	invoker  *Invoker
	sink     domain.TelemetrySink
	logger   *slog.Logger
}

// NewRouter wires the routing pipeline. sink may be nil.
func NewRouter(registry *catalog.Registry, detector *Detector, selector *Selector, invoker *Invoker, sink domain.TelemetrySink, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		detector: detector,
		selector: selector,
		invoker:  invoker,
		sink:     sink,
		logger:   logger,
	}
}

// Route executes one query. It always returns a non-nil result carrying
// whatever was resolved before the failure; the error is non-nil exactly
// when result.Status is failed. Each call runs against a single catalog
// snapshot, so a concurrent reload never shows a half-swapped catalog.
func (r *Router) Route(ctx context.Context, q domain.Query) (*domain.InvocationResult, error) {
	start := time.Now()
	result := &domain.InvocationResult{RequestID: newRequestID()}

	ctx, span := tracer.StartSpan(ctx, "router.route",
		trace.WithAttributes(tracer.StringAttr("route.request_id", result.RequestID)),
	)
	defer span.End()

	snap := r.registry.Snapshot()

	role, err := r.resolveRole(snap, q, result)
	if err != nil {
		return r.fail(ctx, span, q, result, start, err)
	}
	result.Role = role.ID

	tool, err := r.resolveTool(snap, role, q)
	if err != nil {
		return r.fail(ctx, span, q, result, start, err)
	}
	result.Tool = tool.ID

	inv, err := r.invoker.Invoke(ctx, tool, q)
	if err != nil {
		var ex *domain.ExhaustionError
		if errors.As(err, &ex) {
			result.Attempts = ex.Attempts
		}
		return r.fail(ctx, span, q, result, start, err)
	}

	result.Provider = inv.Provider
	result.Output = inv.Output
	result.Shape = tool.Output
	result.Usage = inv.Usage
	result.Attempts = inv.Attempts
	result.Elapsed = time.Since(start)

	switch {
	case inv.Fallback:
		// Degraded answers outrank the low-confidence flag; the flag
		// itself stays visible on the result.
		result.Status = domain.StatusPartial
	case result.LowConfidence:
		result.Status = domain.StatusLowConfidence
	default:
		result.Status = domain.StatusOK
	}

	span.SetAttributes(
		tracer.StringAttr("route.role", result.Role),
		tracer.StringAttr("route.tool", result.Tool),
		tracer.StringAttr("route.provider", result.Provider),
		tracer.StringAttr("route.status", string(result.Status)),
	)
	tracer.SetOK(span)
	r.emit(ctx, q, result, "")
	return result, nil
}

func (r *Router) resolveRole(snap *catalog.Catalog, q domain.Query, result *domain.InvocationResult) (*catalog.Role, error) {
	if q.RoleHint != "" {
		// An explicit hint skips detection entirely.
		return snap.LookupRole(q.RoleHint)
	}
	role, low := r.detector.Resolve(snap, q.Text)
	result.LowConfidence = low
	if low {
		r.logger.Debug("no capability tag matched, using default role",
			"role", role.ID, "text_len", len(q.Text))
	}
	return role, nil
}

func (r *Router) resolveTool(snap *catalog.Catalog, role *catalog.Role, q domain.Query) (*catalog.Tool, error) {
	if q.ToolHint != "" {
		return r.selector.Validate(snap, role, q.ToolHint)
	}
	return r.selector.Select(role, q.Text), nil
}

// fail finalizes a failed result, emits telemetry, and returns the error.
func (r *Router) fail(ctx context.Context, span trace.Span, q domain.Query, result *domain.InvocationResult, start time.Time, err error) (*domain.InvocationResult, error) {
	result.Status = domain.StatusFailed
	result.Elapsed = time.Since(start)
	tracer.RecordError(span, err)
	r.emit(ctx, q, result, err.Error())
	return result, err
}

// emit hands the telemetry tuple to the sink. Sink failures are logged
// and swallowed: telemetry never fails a call.
func (r *Router) emit(ctx context.Context, q domain.Query, result *domain.InvocationResult, errMsg string) {
	if r.sink == nil {
		return
	}
	t := domain.Telemetry{
		RequestID: result.RequestID,
		UserID:    q.UserID,
		Role:      result.Role,
		Tool:      result.Tool,
		Provider:  result.Provider,
		Status:    result.Status,
		Elapsed:   result.Elapsed,
		Err:       errMsg,
		At:        time.Now(),
	}
	if err := r.sink.Record(ctx, t); err != nil {
		r.logger.Warn("telemetry sink failed", "request_id", result.RequestID, "error", err)
	}
}

// newRequestID returns a ULID for result tagging and audit correlation.
func newRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
