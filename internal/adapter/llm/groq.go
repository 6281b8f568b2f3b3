package llm

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"conversa/internal/domain"
	"conversa/internal/infra/config"
)

// Compile-time interface assertion.
var _ domain.LLMProvider = (*GroqProvider)(nil)

const groqDefaultBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider wraps OpenAIProvider to work with the Groq API, which is
// OpenAI-compatible. A key set in config (or GROQ_API_KEY) acts as the
// shared default tier; per-call keys from user settings take precedence.
type GroqProvider struct {
	inner *OpenAIProvider
}

// NewGroqProvider creates a Groq provider. The configured key falls back
// to the GROQ_API_KEY environment variable.
func NewGroqProvider(cfg config.ProviderConfig, logger *slog.Logger) *GroqProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = groqDefaultBaseURL
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = "llama-3.1-8b-instant"
	}

	return &GroqProvider{
		inner: &OpenAIProvider{
			name:       cfg.Name,
			model:      model,
			apiKey:     apiKey,
			baseURL:    baseURL,
			requireKey: true,
			client:     NewHTTPClient(cfg),
			logger:     logger,
		},
	}
}

// Chat implements domain.LLMProvider.
func (p *GroqProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	// Per-call endpoint overrides only apply to self-hosted backends.
	req.BaseURL = ""
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *GroqProvider) Name() string { return p.inner.Name() }
