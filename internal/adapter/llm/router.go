package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conversa/internal/domain"
	"conversa/internal/infra/tracer"
)

// SelectionRouter dispatches a chat call to the provider named by a
// ProviderSelection. It applies the per-turn timeout, carries the
// resolved credentials onto the request, and classifies failures into
// the domain error taxonomy. No retries: the caller decides whether a
// degraded answer is possible.
type SelectionRouter struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSelectionRouter creates a router over the given registry.
// timeout bounds each model call; zero means 30 seconds.
func NewSelectionRouter(registry *Registry, timeout time.Duration, logger *slog.Logger) *SelectionRouter {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SelectionRouter{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// Route sends messages to the selected provider and returns its response.
func (r *SelectionRouter) Route(ctx context.Context, sel domain.ProviderSelection, messages []domain.Message) (*domain.ChatResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.route",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", sel.Provider),
			tracer.IntAttr("llm.messages", len(messages)),
		),
	)
	defer span.End()

	provider, err := r.registry.Get(sel.Provider)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	req := domain.ChatRequest{
		Messages:    messages,
		MaxTokens:   sel.MaxTokens,
		Temperature: sel.Temperature,
		APIKey:      sel.APIKey,
		BaseURL:     sel.Endpoint,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Chat(callCtx, req)
	if err != nil {
		err = classifyChatError(err)
		tracer.RecordError(span, err)
		r.logger.Warn("llm route failed",
			"provider", sel.Provider,
			"elapsed", time.Since(start),
			"error", err,
		)
		return nil, err
	}

	tracer.SetOK(span)
	return resp, nil
}

// classifyChatError normalizes provider failures. Deadline expiry becomes
// ErrTimeout; errors already in the domain taxonomy pass through; anything
// else is reported as a backend error.
func classifyChatError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrMissingCredentials),
		errors.Is(err, domain.ErrBackendUnreachable),
		errors.Is(err, domain.ErrBackendError),
		errors.Is(err, domain.ErrAuthInvalid),
		errors.Is(err, domain.ErrRateLimit),
		errors.Is(err, domain.ErrProviderNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", domain.ErrBackendError, err)
	}
}
