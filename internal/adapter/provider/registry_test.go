package provider

import (
	"context"
	"errors"
	"testing"

	"roleroute/internal/domain"
)

type stubProvider struct {
	name string
	err  error
}

func (s *stubProvider) Execute(ctx context.Context, req domain.ProviderRequest) (*domain.ProviderResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ProviderResult{Output: "ok from " + s.name, Model: "stub"}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&stubProvider{name: "local"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&stubProvider{name: "cloud"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := reg.Get("local")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("name = %q, want local", p.Name())
	}
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&stubProvider{name: "local"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&stubProvider{name: "local"}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("ghost")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("error = %v, want ErrProviderNotFound", err)
	}
}

func TestRegistryListOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := reg.Register(&stubProvider{name: name}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].Name() != want {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Name(), want)
		}
	}
}
