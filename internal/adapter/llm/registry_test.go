package llm

import (
	"context"
	"errors"
	"slices"
	"testing"

	"conversa/internal/domain"
)

type staticProvider struct {
	name string
	resp *domain.ChatResponse
	err  error
}

func (p *staticProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.resp, p.err
}

func (p *staticProvider) Name() string { return p.name }

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&staticProvider{name: "groq"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := reg.Get("groq")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Name() != "groq" {
		t.Errorf("Name = %q, want %q", p.Name(), "groq")
	}
}

func TestRegistryDuplicateRegister(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&staticProvider{name: "groq"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&staticProvider{name: "groq"}); err == nil {
		t.Error("expected error registering duplicate name")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("missing")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("got %v, want ErrProviderNotFound", err)
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticProvider{name: "groq"})
	reg.Register(&staticProvider{name: "ollama"})

	names := reg.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	if !slices.Contains(names, "groq") || !slices.Contains(names, "ollama") {
		t.Errorf("List = %v, want groq and ollama", names)
	}
}
