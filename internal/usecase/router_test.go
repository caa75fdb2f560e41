package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"roleroute/internal/catalog"
	"roleroute/internal/domain"
)

type memorySink struct {
	mu      sync.Mutex
	records []domain.Telemetry
	err     error
}

func (s *memorySink) Record(ctx context.Context, t domain.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, t)
	return nil
}

func (s *memorySink) all() []domain.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Telemetry, len(s.records))
	copy(out, s.records)
	return out
}

func newTestRouter(t *testing.T, resolver domain.ProviderResolver, sink domain.TelemetrySink) *Router {
	t.Helper()
	return NewRouter(
		catalog.NewRegistry(testCatalog(t)),
		NewDetector(1),
		NewSelector(),
		NewInvoker(resolver, InvokerConfig{}, slog.Default()),
		sink,
		slog.Default(),
	)
}

func TestRouteDetectsRoleAndTool(t *testing.T) {
	local := &scriptProvider{name: "local"}
	sink := &memorySink{}
	r := newTestRouter(t, newScriptResolver(local, &scriptProvider{name: "cloud"}, &scriptProvider{name: "backup"}), sink)

	result, err := r.Route(context.Background(), qaQuery())
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if result.Role != "qa_engineer" || result.Tool != "generate_scenarios" {
		t.Errorf("routed to %s/%s, want qa_engineer/generate_scenarios", result.Role, result.Tool)
	}
	if result.Status != domain.StatusOK {
		t.Errorf("status = %q, want ok", result.Status)
	}
	if result.Provider != "local" {
		t.Errorf("provider = %q, want local", result.Provider)
	}
	if result.Shape != domain.OutputDocument {
		t.Errorf("shape = %q, want document", result.Shape)
	}
	if result.RequestID == "" {
		t.Error("missing request id")
	}

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("telemetry records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Role != "qa_engineer" || rec.Tool != "generate_scenarios" || rec.Provider != "local" || rec.Status != domain.StatusOK {
		t.Errorf("telemetry tuple = %+v", rec)
	}
}

func TestRouteHintBypassesDetection(t *testing.T) {
	local := &scriptProvider{name: "local"}
	cloud := &scriptProvider{name: "cloud"}
	r := newTestRouter(t, newScriptResolver(local, cloud), nil)

	// Detection would pick qa_engineer for this text; the hint wins.
	result, err := r.Route(context.Background(), domain.Query{
		Text:     "generate BDD scenarios for the auth module",
		RoleHint: "developer",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Role != "developer" {
		t.Errorf("role = %q, hint must bypass detection", result.Role)
	}
	if result.LowConfidence {
		t.Error("a hinted route is never low confidence")
	}
}

func TestRouteToolHintValidated(t *testing.T) {
	r := newTestRouter(t, newScriptResolver(&scriptProvider{name: "local"}, &scriptProvider{name: "cloud"}), nil)

	result, err := r.Route(context.Background(), domain.Query{
		RoleHint: "developer",
		ToolHint: "generate_scenarios",
	})
	if !errors.Is(err, domain.ErrToolRoleMismatch) {
		t.Fatalf("error = %v, want ErrToolRoleMismatch", err)
	}
	if result == nil || result.Status != domain.StatusFailed {
		t.Error("failed route must still return a failed result")
	}
}

func TestRouteLowConfidenceStatus(t *testing.T) {
	sink := &memorySink{}
	r := newTestRouter(t, newScriptResolver(&scriptProvider{name: "local"}, &scriptProvider{name: "cloud"}), sink)

	result, err := r.Route(context.Background(), domain.Query{Text: "hello"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	if result.Role != "developer" {
		t.Errorf("role = %q, want default developer", result.Role)
	}
	if result.Status != domain.StatusLowConfidence {
		t.Errorf("status = %q, want low_confidence", result.Status)
	}
	if !result.LowConfidence {
		t.Error("low confidence flag must be set")
	}
}

func TestRoutePartialOutranksLowConfidence(t *testing.T) {
	// Detector falls back to the default role and the primary provider
	// fails, so a fallback provider answers a low-confidence query.
	local := &scriptProvider{name: "local", err: fmt.Errorf("%w: down", domain.ErrProviderFailure)}
	cloud := &scriptProvider{name: "cloud"}
	r := newTestRouter(t, newScriptResolver(local, cloud, &scriptProvider{name: "backup"}), nil)

	result, err := r.Route(context.Background(), domain.Query{Text: "hello"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Status != domain.StatusPartial {
		t.Errorf("status = %q, want partial (degraded outranks low confidence)", result.Status)
	}
	if !result.LowConfidence {
		t.Error("low confidence flag must survive the partial status")
	}
}

func TestRouteInvalidRoleHint(t *testing.T) {
	sink := &memorySink{}
	r := newTestRouter(t, newScriptResolver(&scriptProvider{name: "local"}, &scriptProvider{name: "cloud"}), sink)

	result, err := r.Route(context.Background(), domain.Query{Text: "x", RoleHint: "wizard"})
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("error = %v, want ErrInvalidRole", err)
	}
	if result.Status != domain.StatusFailed {
		t.Errorf("status = %q, want failed", result.Status)
	}

	records := sink.all()
	if len(records) != 1 || records[0].Err == "" {
		t.Error("failed routes must still emit telemetry with the error")
	}
}

func TestRouteExhaustionCarriesTrail(t *testing.T) {
	local := &scriptProvider{name: "local", err: fmt.Errorf("%w: a", domain.ErrProviderFailure)}
	cloud := &scriptProvider{name: "cloud", err: fmt.Errorf("%w: b", domain.ErrProviderFailure)}
	backup := &scriptProvider{name: "backup", err: fmt.Errorf("%w: c", domain.ErrProviderFailure)}
	r := newTestRouter(t, newScriptResolver(local, cloud, backup), nil)

	result, err := r.Route(context.Background(), qaQuery())
	if !errors.Is(err, domain.ErrProvidersExhausted) {
		t.Fatalf("error = %v, want ErrProvidersExhausted", err)
	}
	if result.Status != domain.StatusFailed {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if len(result.Attempts) != 3 {
		t.Errorf("attempts = %d, want the full ordered trail", len(result.Attempts))
	}
}

func TestRouteSinkFailureDoesNotFailCall(t *testing.T) {
	sink := &memorySink{err: errors.New("sink down")}
	r := newTestRouter(t, newScriptResolver(&scriptProvider{name: "local"}, &scriptProvider{name: "cloud"}), sink)

	result, err := r.Route(context.Background(), domain.Query{Text: "implement a function"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Status != domain.StatusOK {
		t.Errorf("status = %q, want ok despite sink failure", result.Status)
	}
}

func TestRouteDeterministicResolution(t *testing.T) {
	r := newTestRouter(t, newScriptResolver(&scriptProvider{name: "local"}, &scriptProvider{name: "cloud"}, &scriptProvider{name: "backup"}), nil)

	var wantRole, wantTool string
	for i := 0; i < 10; i++ {
		result, err := r.Route(context.Background(), qaQuery())
		if err != nil {
			t.Fatalf("Route: %v", err)
		}
		if i == 0 {
			wantRole, wantTool = result.Role, result.Tool
			continue
		}
		if result.Role != wantRole || result.Tool != wantTool {
			t.Fatalf("run %d resolved %s/%s, first run %s/%s", i, result.Role, result.Tool, wantRole, wantTool)
		}
	}
}
