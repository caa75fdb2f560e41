package usecase

import (
	"errors"
	"testing"

	"roleroute/internal/domain"
)

func TestSelectHighestScore(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("developer")
	s := NewSelector()

	tool := s.Select(role, "review the code quality of this patch")
	if tool.ID != "review_code" {
		t.Errorf("tool = %q, want review_code", tool.ID)
	}
}

func TestSelectTieKeepsDeclaredOrder(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("developer")
	s := NewSelector()

	// No tags match: all tools score 0, first declared wins.
	tool := s.Select(role, "hello")
	if tool.ID != "generate_code" {
		t.Errorf("tool = %q, want generate_code (declared first)", tool.ID)
	}
}

func TestSelectNeverNil(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("qa_engineer")
	s := NewSelector()

	if tool := s.Select(role, ""); tool == nil {
		t.Fatal("Select returned nil for empty text")
	}
}

func TestValidateHintOK(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("developer")
	s := NewSelector()

	tool, err := s.Validate(cat, role, "review_code")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tool.ID != "review_code" {
		t.Errorf("tool = %q, want review_code", tool.ID)
	}
}

func TestValidateUnknownTool(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("developer")
	s := NewSelector()

	_, err := s.Validate(cat, role, "summon_demons")
	if !errors.Is(err, domain.ErrInvalidTool) {
		t.Errorf("error = %v, want ErrInvalidTool", err)
	}
}

func TestValidateToolRoleMismatch(t *testing.T) {
	cat := testCatalog(t)
	role, _ := cat.LookupRole("developer")
	s := NewSelector()

	_, err := s.Validate(cat, role, "generate_scenarios")
	if !errors.Is(err, domain.ErrToolRoleMismatch) {
		t.Errorf("error = %v, want ErrToolRoleMismatch", err)
	}

	var de *domain.DomainError
	if !errors.As(err, &de) {
		t.Fatal("expected a DomainError with the owning role")
	}
	if de.Detail == "" {
		t.Error("mismatch detail should name the owning role")
	}
}
