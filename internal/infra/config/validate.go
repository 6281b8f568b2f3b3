package config

import (
	"fmt"
	"strings"
)

var knownProviderTypes = map[string]bool{
	"groq":   true,
	"openai": true,
	"ollama": true,
}

// Validate checks the configuration for inconsistencies that would only
// surface at request time otherwise.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("llm.providers must not be empty")
	}
	seen := make(map[string]bool, len(c.LLM.Providers))
	for _, p := range c.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate llm provider %q", p.Name)
		}
		seen[p.Name] = true
		if !knownProviderTypes[p.Type] {
			return fmt.Errorf("llm provider %q: unknown type %q", p.Name, p.Type)
		}
		if strings.HasPrefix(p.APIKey, encPrefix) {
			return fmt.Errorf("llm provider %q: encrypted api key but no CONVERSA_PASSPHRASE set", p.Name)
		}
	}
	if !seen[c.LLM.DefaultProvider] {
		return fmt.Errorf("llm.default_provider %q is not a configured provider", c.LLM.DefaultProvider)
	}

	switch c.Embedding.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	if c.Knowledge.MaxContextChars < 500 {
		return fmt.Errorf("knowledge.max_context_chars must be at least 500")
	}

	if c.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("rate_limit.requests_per_min must be positive")
	}
	if c.RateLimit.MaxKeys <= 0 {
		return fmt.Errorf("rate_limit.max_keys must be positive")
	}

	if c.Turn.EmbedTimeout <= 0 || c.Turn.ModelTimeout <= 0 {
		return fmt.Errorf("turn timeouts must be positive")
	}
	return nil
}
