package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"conversa/internal/domain"
	"conversa/internal/infra/config"
)

type countingProvider struct {
	name  string
	err   error
	calls int
}

func (p *countingProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{Provider: p.name, Content: "ok"}, nil
}

func (p *countingProvider) Name() string { return p.name }

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &countingProvider{
		name: "groq",
		err:  fmt.Errorf("%w: connection refused", domain.ErrBackendUnreachable),
	}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, newTestLogger())

	req := domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(context.Background(), req); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State = %v, want open", cb.State())
	}

	// With the circuit open the provider is no longer reached.
	before := inner.calls
	_, err := cb.Chat(context.Background(), req)
	if !errors.Is(err, domain.ErrBackendUnreachable) {
		t.Errorf("got %v, want ErrBackendUnreachable", err)
	}
	if inner.calls != before {
		t.Errorf("provider called %d times after open, want 0", inner.calls-before)
	}
}

func TestCircuitBreakerIgnoresCallerMistakes(t *testing.T) {
	inner := &countingProvider{
		name: "groq",
		err:  fmt.Errorf("%w: groq", domain.ErrMissingCredentials),
	}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	}, newTestLogger())

	req := domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	}

	for i := 0; i < 10; i++ {
		if _, err := cb.Chat(context.Background(), req); !errors.Is(err, domain.ErrMissingCredentials) {
			t.Fatalf("call %d: got %v, want ErrMissingCredentials", i, err)
		}
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("State = %v, want closed", cb.State())
	}
	if inner.calls != 10 {
		t.Errorf("provider called %d times, want 10", inner.calls)
	}
}

func TestCircuitBreakerPassesSuccess(t *testing.T) {
	inner := &countingProvider{name: "groq"}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want %q", resp.Content, "ok")
	}
	if cb.Name() != "groq" {
		t.Errorf("Name = %q, want %q", cb.Name(), "groq")
	}
}
