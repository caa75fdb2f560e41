package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Selector.Select", ErrInvalidTool, "make_coffee")
	if !errors.Is(err, ErrInvalidTool) {
		t.Error("DomainError should unwrap to ErrInvalidTool")
	}
	if !strings.Contains(err.Error(), "make_coffee") {
		t.Errorf("error should carry the offending value, got %q", err.Error())
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should return nil")
	}
	wrapped := WrapOp("Router.Route", ErrInvalidRole)
	if !errors.Is(wrapped, ErrInvalidRole) {
		t.Error("wrapped error should match sentinel")
	}
}

func TestCallerError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrInvalidRole, true},
		{ErrInvalidTool, true},
		{ErrToolRoleMismatch, true},
		{ErrInvalidParameters, true},
		{NewDomainError("op", ErrInvalidParameters, "missing field"), true},
		{ErrProviderFailure, false},
		{ErrProvidersExhausted, false},
		{errors.New("other"), false},
	}
	for _, tt := range tests {
		if got := CallerError(tt.err); got != tt.want {
			t.Errorf("CallerError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExhaustionErrorTrail(t *testing.T) {
	err := &ExhaustionError{
		Role: "qa_engineer",
		Tool: "generate_scenarios",
		Attempts: []ProviderAttempt{
			{Provider: "local", Reason: "provider timed out", Elapsed: time.Second},
			{Provider: "cloud", Reason: "API error 500", Elapsed: 2 * time.Second},
		},
	}
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Error("ExhaustionError should unwrap to ErrProvidersExhausted")
	}
	msg := err.Error()
	localIdx := strings.Index(msg, "local")
	cloudIdx := strings.Index(msg, "cloud")
	if localIdx < 0 || cloudIdx < 0 || localIdx > cloudIdx {
		t.Errorf("trail should list providers in chain order, got %q", msg)
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrInvalidRole, CodeInvalidRole},
		{ErrToolRoleMismatch, CodeToolRoleMismatch},
		{ErrInvalidParameters, CodeInvalidParameters},
		{ErrProviderTimeout, CodeProviderTimeout},
		{ErrGatewayAuthFailed, CodeGatewayAuth},
		{&ExhaustionError{}, CodeProvidersExhausted},
		{fmt.Errorf("wrapped: %w", ErrCatalogInvalid), CodeCatalogInvalid},
		{errors.New("mystery"), CodeUnknown},
	}
	for _, tt := range tests {
		if got := ErrorCodeOf(tt.err); got != tt.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
