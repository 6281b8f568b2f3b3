package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Settings  SettingsConfig  `yaml:"settings"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Turn      TurnConfig      `yaml:"turn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // groq, openai, ollama
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// KnowledgeConfig holds knowledge store settings.
type KnowledgeConfig struct {
	DBPath          string `yaml:"db_path"`
	MaxContextChars int    `yaml:"max_context_chars"`
}

// SettingsConfig holds user settings store configuration.
type SettingsConfig struct {
	DBPath string `yaml:"db_path"`
}

// RateLimitConfig holds request admission settings for the chat endpoint.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	Burst          int `yaml:"burst"`
	MaxKeys        int `yaml:"max_keys"`
}

// TurnConfig holds per-turn pipeline settings.
type TurnConfig struct {
	EmbedTimeout    time.Duration `yaml:"embed_timeout"`
	ModelTimeout    time.Duration `yaml:"model_timeout"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens"`
}

// Default returns a Config with sensible defaults for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		LLM: LLMConfig{
			DefaultProvider: "groq",
			Providers: []ProviderConfig{
				{Name: "groq", Type: "groq", Model: "llama-3.1-8b-instant"},
				{Name: "openai", Type: "openai", Model: "gpt-4o-mini"},
				{Name: "ollama", Type: "ollama", Model: "llama3.1:8b"},
			},
			CircuitBreaker: CircuitBreakerConfig{Enabled: true},
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			CacheSize:  512,
		},
		Knowledge: KnowledgeConfig{
			DBPath:          "data/knowledge.db",
			MaxContextChars: 8000,
		},
		Settings: SettingsConfig{DBPath: "data/settings.db"},
		RateLimit: RateLimitConfig{
			RequestsPerMin: 10,
			Burst:          5,
			MaxKeys:        10000,
		},
		Turn: TurnConfig{
			EmbedTimeout:    8 * time.Second,
			ModelTimeout:    30 * time.Second,
			Temperature:     0.7,
			MaxTokens:       1024,
			MaxPromptTokens: 6000,
		},
	}
}

// Load reads a YAML config file, overlays environment variables, decrypts
// any enc: values, and validates the result. A missing file is not an
// error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.decryptSecrets(os.Getenv("CONVERSA_PASSPHRASE")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays well-known environment variables onto the config.
// Environment wins over file values so deployments can keep keys out of
// config files entirely.
func (c *Config) applyEnv() {
	if addr := os.Getenv("CONVERSA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("CONVERSA_LOG_LEVEL"); level != "" {
		c.Logger.Level = level
	}
	for i := range c.LLM.Providers {
		p := &c.LLM.Providers[i]
		env := strings.ToUpper(p.Name) + "_API_KEY"
		if key := os.Getenv(env); key != "" {
			p.APIKey = key
		}
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		for i := range c.LLM.Providers {
			if c.LLM.Providers[i].Type == "ollama" {
				c.LLM.Providers[i].BaseURL = url
			}
		}
		if c.Embedding.Provider == "ollama" {
			c.Embedding.BaseURL = url
		}
	}
}

// decryptSecrets resolves enc:-prefixed API keys using the passphrase.
// Without a passphrase, enc: values are left untouched and validation
// will reject them.
func (c *Config) decryptSecrets(passphrase string) error {
	if passphrase == "" {
		return nil
	}
	for i := range c.LLM.Providers {
		p := &c.LLM.Providers[i]
		if strings.HasPrefix(p.APIKey, encPrefix) {
			plain, err := DecryptValue(strings.TrimPrefix(p.APIKey, encPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("decrypt api key for provider %s: %w", p.Name, err)
			}
			p.APIKey = plain
		}
	}
	if strings.HasPrefix(c.Embedding.APIKey, encPrefix) {
		plain, err := DecryptValue(strings.TrimPrefix(c.Embedding.APIKey, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("decrypt embedding api key: %w", err)
		}
		c.Embedding.APIKey = plain
	}
	return nil
}
