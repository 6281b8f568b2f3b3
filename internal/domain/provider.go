package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "groq", "ollama").
	Name() string
}

// EmbeddingProvider is the interface for text embedding backends.
type EmbeddingProvider interface {
	// Embed generates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the dimensionality of the embedding vectors.
	Dimensions() int
	// Name returns the provider's identifier.
	Name() string
}

// KnowledgeSearcher performs scoped vector similarity search over a bot's
// knowledge chunks. Results are ranked by descending similarity.
type KnowledgeSearcher interface {
	Search(ctx context.Context, botID string, query []float32, limit int) ([]RetrievedChunk, error)
	// Count returns the number of chunks stored for a bot. A zero count
	// lets callers skip embedding and retrieval entirely.
	Count(ctx context.Context, botID string) (int, error)
}

// BotStore resolves bot configurations.
type BotStore interface {
	GetBot(ctx context.Context, id string) (*Bot, error)
}

// SettingsStore supplies a caller's provider preference and credentials.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*UserSettings, error)
}

// ProviderSelection is the resolved backend choice for one turn.
type ProviderSelection struct {
	Provider    string
	APIKey      string
	Endpoint    string
	Temperature float64
	MaxTokens   int
}

// UserSettings holds a user's stored LLM preferences. API keys arrive
// decrypted; encryption at rest is the settings store's concern.
type UserSettings struct {
	UserID       string
	Provider     string
	GroqAPIKey   string
	OpenAIAPIKey string
	OllamaURL    string
}

// Selection resolves the stored settings into a ProviderSelection,
// applying the per-request key if one is present. Precedence: explicit
// request key > stored key > provider default.
func (s *UserSettings) Selection(requestKey string, temperature float64, maxTokens int) ProviderSelection {
	sel := ProviderSelection{
		Provider:    s.Provider,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if sel.Provider == "" {
		sel.Provider = "groq"
	}

	switch sel.Provider {
	case "groq":
		sel.APIKey = s.GroqAPIKey
	case "openai":
		sel.APIKey = s.OpenAIAPIKey
	case "ollama":
		sel.Endpoint = s.OllamaURL
	}
	if requestKey != "" {
		sel.APIKey = requestKey
	}
	return sel
}
