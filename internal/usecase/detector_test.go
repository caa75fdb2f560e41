package usecase

import (
	"encoding/json"
	"testing"

	"roleroute/internal/catalog"
	"roleroute/internal/domain"
)

var testProviders = map[string]bool{"local": true, "cloud": true, "backup": true}

func testRoles() []domain.Role {
	return []domain.Role{
		{
			ID:              "developer",
			Priority:        1,
			DefaultProvider: "local",
			Tools: []domain.Tool{
				{
					ID:        "generate_code",
					Output:    domain.OutputText,
					Tags:      []string{"write code", "implement", "function"},
					Providers: []string{"local", "cloud"},
				},
				{
					ID:        "review_code",
					Output:    domain.OutputText,
					Tags:      []string{"review", "code quality"},
					Providers: []string{"cloud", "local"},
				},
			},
		},
		{
			ID:              "qa_engineer",
			Priority:        2,
			DefaultProvider: "local",
			Tools: []domain.Tool{
				{
					ID:     "generate_scenarios",
					Output: domain.OutputDocument,
					Tags:   []string{"bdd", "scenarios", "test cases"},
					Params: json.RawMessage(`{
						"type": "object",
						"properties": {"module": {"type": "string"}},
						"required": ["module"]
					}`),
					Providers: []string{"local", "cloud", "backup"},
				},
			},
		},
		{
			ID:              "technical_writer",
			Priority:        3,
			DefaultProvider: "cloud",
			Tools: []domain.Tool{
				{
					ID:     "write_docs",
					Output: domain.OutputDocument,
					Tags:   []string{"documentation", "readme", "guide"},
				},
			},
		},
	}
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Build(testRoles(), "developer", testProviders)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestDetectRanksByScore(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(1)

	ranked := d.Detect(cat, "generate BDD scenarios for the auth module")
	if len(ranked) != 3 {
		t.Fatalf("len = %d, want 3", len(ranked))
	}
	if ranked[0].Role.ID != "qa_engineer" {
		t.Errorf("top role = %q, want qa_engineer", ranked[0].Role.ID)
	}
	if ranked[0].Score != 2 {
		t.Errorf("top score = %d, want 2 (bdd + scenarios)", ranked[0].Score)
	}
}

func TestDetectTieBreaksByPriority(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(1)

	// No tag matches anywhere: all score 0, priority order decides.
	ranked := d.Detect(cat, "completely unrelated text")
	if ranked[0].Role.ID != "developer" {
		t.Errorf("top role = %q, want developer (priority 1)", ranked[0].Role.ID)
	}
	if ranked[1].Role.ID != "qa_engineer" || ranked[2].Role.ID != "technical_writer" {
		t.Errorf("tie order = [%s %s], want priority order", ranked[1].Role.ID, ranked[2].Role.ID)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(1)
	text := "review the code quality of this function"

	first := d.Detect(cat, text)
	for i := 0; i < 10; i++ {
		again := d.Detect(cat, text)
		for j := range first {
			if first[j].Role.ID != again[j].Role.ID || first[j].Score != again[j].Score {
				t.Fatalf("run %d: ranking diverged at %d", i, j)
			}
		}
	}
}

func TestResolveLowConfidenceFallback(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(1)

	role, low := d.Resolve(cat, "hello")
	if !low {
		t.Error("expected low confidence for a greeting")
	}
	if role.ID != "developer" {
		t.Errorf("role = %q, want default developer", role.ID)
	}
}

func TestResolveConfident(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(1)

	role, low := d.Resolve(cat, "write documentation for the installer")
	if low {
		t.Error("unexpected low confidence")
	}
	if role.ID != "technical_writer" {
		t.Errorf("role = %q, want technical_writer", role.ID)
	}
}

func TestResolveThreshold(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(2)

	// One matching tag scores 1, below the threshold of 2.
	role, low := d.Resolve(cat, "please review this")
	if !low {
		t.Error("expected low confidence below the threshold")
	}
	if role.ID != "developer" {
		t.Errorf("role = %q, want default developer", role.ID)
	}
}

func TestNewDetectorClampsMinScore(t *testing.T) {
	cat := testCatalog(t)
	d := NewDetector(0)

	// A single match must count as confident when minScore clamps to 1.
	_, low := d.Resolve(cat, "review this change")
	if low {
		t.Error("single tag match should be confident with clamped threshold")
	}
}
