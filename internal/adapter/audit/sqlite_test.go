package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"roleroute/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndListByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []domain.Telemetry{
		{RequestID: "r1", UserID: "alice", Role: "developer", Tool: "generate_code", Provider: "local", Status: domain.StatusOK, Elapsed: 120 * time.Millisecond, At: base},
		{RequestID: "r2", UserID: "alice", Role: "qa_engineer", Tool: "generate_scenarios", Provider: "cloud", Status: domain.StatusPartial, Elapsed: 200 * time.Millisecond, At: base.Add(time.Minute)},
		{RequestID: "r3", UserID: "bob", Role: "developer", Tool: "review_code", Provider: "local", Status: domain.StatusFailed, Err: "all providers exhausted", Elapsed: 3 * time.Second, At: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.RequestID, err)
		}
	}

	got, err := store.ListByUser(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].RequestID != "r2" || got[1].RequestID != "r1" {
		t.Errorf("order = [%s, %s], want [r2, r1]", got[0].RequestID, got[1].RequestID)
	}
	if got[0].Status != domain.StatusPartial {
		t.Errorf("status = %q, want partial", got[0].Status)
	}
	if got[1].Elapsed != 120*time.Millisecond {
		t.Errorf("elapsed = %v, want 120ms", got[1].Elapsed)
	}
}

func TestListByUserLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.Record(ctx, domain.Telemetry{
			RequestID: string(rune('a' + i)),
			UserID:    "alice",
			Role:      "developer",
			Tool:      "generate_code",
			Provider:  "local",
			Status:    domain.StatusOK,
			At:        time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.ListByUser(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	statuses := []domain.Status{domain.StatusOK, domain.StatusOK, domain.StatusFailed, domain.StatusLowConfidence}
	for i, st := range statuses {
		err := store.Record(ctx, domain.Telemetry{
			RequestID: string(rune('a' + i)),
			Role:      "developer",
			Tool:      "generate_code",
			Provider:  "local",
			Status:    st,
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.StatusOK] != 2 {
		t.Errorf("ok count = %d, want 2", counts[domain.StatusOK])
	}
	if counts[domain.StatusFailed] != 1 {
		t.Errorf("failed count = %d, want 1", counts[domain.StatusFailed])
	}
	if counts[domain.StatusLowConfidence] != 1 {
		t.Errorf("low_confidence count = %d, want 1", counts[domain.StatusLowConfidence])
	}
}
