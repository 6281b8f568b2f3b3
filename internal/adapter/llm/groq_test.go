package llm

import (
	"context"
	"errors"
	"testing"

	"conversa/internal/domain"
	"conversa/internal/infra/config"
)

func TestGroqProviderMissingKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	provider := NewGroqProvider(config.ProviderConfig{Name: "groq"}, newTestLogger())

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if !errors.Is(err, domain.ErrMissingCredentials) {
		t.Errorf("got %v, want ErrMissingCredentials", err)
	}
}

func TestGroqProviderEnvKeyFallback(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-from-env")

	server := openaiTestServer(t, "Bearer gsk-from-env")
	defer server.Close()

	provider := NewGroqProvider(config.ProviderConfig{
		Name:    "groq",
		BaseURL: server.URL,
	}, newTestLogger())

	if _, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestGroqProviderIgnoresEndpointOverride(t *testing.T) {
	server := openaiTestServer(t, "Bearer gsk-test")
	defer server.Close()

	provider := NewGroqProvider(config.ProviderConfig{
		Name:    "groq",
		BaseURL: server.URL,
		APIKey:  "gsk-test",
	}, newTestLogger())

	// A hosted API never honors per-call endpoint overrides; the call
	// still lands on the configured base URL.
	if _, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
		BaseURL:  "http://127.0.0.1:1",
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}
