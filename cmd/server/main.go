package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conversa/internal/adapter/channel"
	"conversa/internal/adapter/embedding"
	"conversa/internal/adapter/knowledge"
	"conversa/internal/adapter/llm"
	"conversa/internal/adapter/settings"
	"conversa/internal/domain"
	"conversa/internal/infra/config"
	"conversa/internal/infra/logger"
	"conversa/internal/infra/middleware"
	"conversa/internal/infra/tracer"
	"conversa/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
	}()

	knowledgeStore, err := knowledge.New(cfg.Knowledge.DBPath, log)
	if err != nil {
		return fmt.Errorf("open knowledge store: %w", err)
	}
	defer knowledgeStore.Close()

	passphrase := os.Getenv("CONVERSA_PASSPHRASE")
	settingsStore, err := settings.New(cfg.Settings.DBPath, passphrase, log)
	if err != nil {
		return fmt.Errorf("open settings store (is CONVERSA_PASSPHRASE set?): %w", err)
	}
	defer settingsStore.Close()

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.LLM, log)
	if err != nil {
		return err
	}
	router := llm.NewSelectionRouter(registry, cfg.Turn.ModelTimeout, log)

	turn := usecase.NewTurn(usecase.TurnDeps{
		Bots:      knowledgeStore,
		Settings:  settingsStore,
		Embedder:  embedder,
		Searcher:  knowledgeStore,
		Router:    router,
		Sanitizer: usecase.NewSanitizer(),
		Tokens:    usecase.NewTokenCounter(),
		Logger:    log,

		EmbedTimeout:    cfg.Turn.EmbedTimeout,
		MaxContextChars: cfg.Knowledge.MaxContextChars,
		Temperature:     cfg.Turn.Temperature,
		MaxTokens:       cfg.Turn.MaxTokens,
		MaxPromptTokens: cfg.Turn.MaxPromptTokens,
	})

	limiter := middleware.NewLimiter(middleware.LimiterConfig{
		RequestsPerMin: cfg.RateLimit.RequestsPerMin,
		Burst:          cfg.RateLimit.Burst,
		MaxKeys:        cfg.RateLimit.MaxKeys,
		TrustedProxies: cfg.Server.TrustedProxies,
	})

	server := channel.NewHTTPServer(cfg.Server.Addr, turn, limiter, log)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	log.Info("server ready",
		"addr", server.Addr(),
		"providers", registry.List(),
		"embedder", embedder.Name(),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// buildEmbedder constructs the configured embedding provider, wrapped
// with the query LRU cache.
func buildEmbedder(cfg config.EmbeddingConfig) (domain.EmbeddingProvider, error) {
	var inner domain.EmbeddingProvider

	switch cfg.Provider {
	case "ollama":
		opts := []embedding.OllamaOption{}
		if cfg.Model != "" {
			opts = append(opts, embedding.WithOllamaModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embedding.WithOllamaBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embedding.WithOllamaDimensions(cfg.Dimensions))
		}
		inner = embedding.NewOllamaProvider(opts...)
	case "openai":
		opts := []embedding.OpenAIOption{}
		if cfg.Model != "" {
			opts = append(opts, embedding.WithOpenAIModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embedding.WithOpenAIBaseURL(cfg.BaseURL))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embedding.WithOpenAIDimensions(cfg.Dimensions))
		}
		inner = embedding.NewOpenAIProvider(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return embedding.NewCachedEmbedder(inner, cfg.CacheSize), nil
}

// buildRegistry constructs all configured LLM providers, each wrapped
// with a circuit breaker when enabled.
func buildRegistry(cfg config.LLMConfig, log *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	for _, pc := range cfg.Providers {
		var provider domain.LLMProvider

		switch pc.Type {
		case "groq":
			provider = llm.NewGroqProvider(pc, log)
		case "openai":
			provider = llm.NewOpenAIProvider(pc, log)
		case "ollama":
			provider = llm.NewOllamaProvider(pc, log)
		default:
			return nil, fmt.Errorf("unknown provider type %q for %q", pc.Type, pc.Name)
		}

		if cfg.CircuitBreaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cfg.CircuitBreaker, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
