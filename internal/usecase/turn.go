package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"conversa/internal/domain"
	"conversa/internal/infra/tracer"
)

// Default turn tuning.
const (
	defaultEmbedTimeout    = 8 * time.Second
	defaultMaxContextChars = 8000
	defaultTemperature     = 0.7
	defaultMaxTokens       = 1024

	sourcePreviewChars = 200
)

// softFailureMessage is shown in-conversation when the backend fails and
// no retrieved content can stand in for an answer. The conversational
// surface never breaks with a technical error.
const softFailureMessage = "I'm having a moment... could you try again?"

// ModelRouter dispatches one chat call to the selected backend.
type ModelRouter interface {
	Route(ctx context.Context, sel domain.ProviderSelection, messages []domain.Message) (*domain.ChatResponse, error)
}

// TurnDeps holds injected dependencies for the turn orchestrator.
type TurnDeps struct {
	Bots      domain.BotStore
	Settings  domain.SettingsStore
	Embedder  domain.EmbeddingProvider
	Searcher  domain.KnowledgeSearcher
	Router    ModelRouter
	Sanitizer *Sanitizer
	Tokens    *TokenCounter // optional, nil = no prompt budget trimming
	Logger    *slog.Logger

	EmbedTimeout    time.Duration // embedding call bound; default 8s
	MaxContextChars int           // context budget; default 8000
	Temperature     float64       // default 0.7
	MaxTokens       int           // completion cap; default 1024
	MaxPromptTokens int           // prompt estimate cap; 0 = no trimming
}

// Turn orchestrates one retrieval-augmented chat turn: sanitize, embed,
// retrieve, budget, route, parse. Retrieval failures degrade to an
// ungrounded answer; backend failures degrade to a context-only answer
// or a soft in-conversation message. The only hard failures are
// validation, unknown bot, and access denial.
type Turn struct {
	deps TurnDeps
}

// NewTurn creates a turn orchestrator, filling defaulted tuning.
func NewTurn(deps TurnDeps) *Turn {
	if deps.EmbedTimeout <= 0 {
		deps.EmbedTimeout = defaultEmbedTimeout
	}
	if deps.MaxContextChars <= 0 {
		deps.MaxContextChars = defaultMaxContextChars
	}
	if deps.Temperature == 0 {
		deps.Temperature = defaultTemperature
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = defaultMaxTokens
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = NewSanitizer()
	}
	return &Turn{deps: deps}
}

// Run executes one chat turn.
func (t *Turn) Run(ctx context.Context, req domain.TurnRequest) (*domain.ParsedAnswer, error) {
	ctx, span := tracer.StartSpan(ctx, "turn.run",
		trace.WithAttributes(
			tracer.StringAttr("turn.bot_id", req.BotID),
			tracer.IntAttr("turn.context_size", req.ContextSize),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	bot, err := t.deps.Bots.GetBot(ctx, req.BotID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if !bot.Accessible(req.UserID) {
		err := domain.NewDomainError("Turn.Run", domain.ErrAuthInvalid, "this bot is private")
		tracer.RecordError(span, err)
		return nil, err
	}

	selection := t.resolveSelection(ctx, req.UserID, bot)

	sysResult := t.deps.Sanitizer.Sanitize(KindSystemPrompt, bot.SystemPrompt)
	msgResult := t.deps.Sanitizer.Sanitize(KindUserMessage, req.Message)
	t.logWarnings(req.BotID, "system_prompt", sysResult)
	t.logWarnings(req.BotID, "message", msgResult)

	chunks := t.retrieve(ctx, req, msgResult.Sanitized)
	block := BuildContext(chunks, t.deps.MaxContextChars)
	sources := chunkSources(chunks)

	messages := t.buildMessages(bot, sysResult.Sanitized, msgResult.Sanitized, req.History, block)

	resp, err := t.deps.Router.Route(ctx, selection, messages)
	if err != nil {
		return t.degradeAnswer(span, err, sources)
	}

	answer := &domain.ParsedAnswer{
		Content:  resp.Content,
		Sources:  sources,
		Provider: resp.Provider,
		Model:    resp.Model,
	}
	if bot.Suggestions {
		answer.Content, answer.Suggestions = ParseSuggestions(resp.Content)
	}

	tracer.SetOK(span)
	t.deps.Logger.Info("turn completed",
		"bot_id", req.BotID,
		"provider", resp.Provider,
		"model", resp.Model,
		"sources", len(sources),
		"suggestions", len(answer.Suggestions),
	)
	return answer, nil
}

// resolveSelection loads the caller's settings and resolves the backend
// choice. Public bots fall back to the owner's settings so anonymous
// visitors ride the owner's configuration. A settings store failure
// degrades to defaults rather than failing the turn.
func (t *Turn) resolveSelection(ctx context.Context, userID string, bot *domain.Bot) domain.ProviderSelection {
	settingsUserID := userID
	if settingsUserID == "" {
		settingsUserID = bot.OwnerID
	}

	settings, err := t.deps.Settings.GetSettings(ctx, settingsUserID)
	if err != nil {
		t.deps.Logger.Warn("settings lookup failed, using defaults",
			"user_id", settingsUserID, "error", err)
		settings = &domain.UserSettings{UserID: settingsUserID}
	}
	return settings.Selection("", t.deps.Temperature, t.deps.MaxTokens)
}

// retrieve embeds the query and searches the bot's knowledge. Every
// failure path returns nil chunks: an ungrounded answer is more useful
// than no answer.
func (t *Turn) retrieve(ctx context.Context, req domain.TurnRequest, query string) []domain.RetrievedChunk {
	ctx, span := tracer.StartSpan(ctx, "turn.retrieve")
	defer span.End()

	count, err := t.deps.Searcher.Count(ctx, req.BotID)
	if err != nil {
		t.deps.Logger.Warn("knowledge count failed, skipping retrieval",
			"bot_id", req.BotID, "error", err)
		tracer.RecordError(span, err)
		return nil
	}
	if count == 0 {
		tracer.SetOK(span)
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, t.deps.EmbedTimeout)
	defer cancel()

	start := time.Now()
	vecs, err := t.deps.Embedder.Embed(embedCtx, []string{query})
	if err != nil || len(vecs) == 0 {
		t.deps.Logger.Warn("query embedding failed, degrading to ungrounded answer",
			"bot_id", req.BotID, "elapsed", time.Since(start), "error", err)
		tracer.RecordError(span, err)
		return nil
	}

	chunks, err := t.deps.Searcher.Search(ctx, req.BotID, vecs[0], req.ContextSize)
	if err != nil {
		t.deps.Logger.Warn("knowledge search failed, degrading to ungrounded answer",
			"bot_id", req.BotID, "error", err)
		tracer.RecordError(span, err)
		return nil
	}

	span.SetAttributes(tracer.IntAttr("turn.chunks", len(chunks)))
	tracer.SetOK(span)
	return chunks
}

// buildMessages assembles the final prompt: system prompt (plus the
// suggestion protocol when enabled), sanitized history, and the user
// message with the wrapped context block prepended when present. When a
// prompt token budget is set, oldest history entries are dropped first
// until the estimate fits.
func (t *Turn) buildMessages(bot *domain.Bot, systemPrompt, userMessage string, history []domain.Message, block domain.ContextBlock) []domain.Message {
	if bot.Suggestions {
		systemPrompt += suggestionInstruction
	}

	if !block.Empty() {
		wrapped := t.deps.Sanitizer.WrapContext(block.Text, "Bot Knowledge")
		userMessage = fmt.Sprintf("Relevant knowledge:\n\n%s\n\n---\n\nUser question: %s", wrapped, userMessage)
	}

	cleanHistory := t.deps.Sanitizer.SanitizeHistory(history)

	assemble := func(hist []domain.Message) []domain.Message {
		msgs := make([]domain.Message, 0, len(hist)+2)
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
		msgs = append(msgs, hist...)
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: userMessage})
		return msgs
	}

	messages := assemble(cleanHistory)
	if t.deps.Tokens == nil || t.deps.MaxPromptTokens <= 0 {
		return messages
	}

	for len(cleanHistory) > 0 && t.deps.Tokens.CountMessages(messages) > t.deps.MaxPromptTokens {
		cleanHistory = cleanHistory[1:]
		messages = assemble(cleanHistory)
	}
	return messages
}

// degradeAnswer turns a backend failure into the best still-useful
// answer. With retrieved sources and a credentials/reachability failure,
// the previews themselves become the answer. Otherwise the user gets a
// soft in-character message; the turn still succeeds.
func (t *Turn) degradeAnswer(span trace.Span, routeErr error, sources []domain.Source) (*domain.ParsedAnswer, error) {
	tracer.RecordError(span, routeErr)

	if len(sources) > 0 &&
		(errors.Is(routeErr, domain.ErrMissingCredentials) || errors.Is(routeErr, domain.ErrBackendUnreachable)) {
		t.deps.Logger.Warn("backend unavailable, serving context-only answer", "error", routeErr)
		return contextOnlyAnswer(sources), nil
	}

	if errors.Is(routeErr, domain.ErrMissingCredentials) ||
		errors.Is(routeErr, domain.ErrBackendUnreachable) ||
		errors.Is(routeErr, domain.ErrBackendError) ||
		errors.Is(routeErr, domain.ErrTimeout) ||
		errors.Is(routeErr, domain.ErrRateLimit) ||
		errors.Is(routeErr, domain.ErrAuthInvalid) {
		t.deps.Logger.Warn("backend failed, serving soft failure message", "error", routeErr)
		return &domain.ParsedAnswer{
			Content:  softFailureMessage,
			Sources:  sources,
			Provider: "fallback",
			Model:    "none",
		}, nil
	}

	return nil, routeErr
}

// contextOnlyAnswer synthesizes a response from source previews alone.
func contextOnlyAnswer(sources []domain.Source) *domain.ParsedAnswer {
	parts := make([]string, len(sources))
	for i, s := range sources {
		label := fmt.Sprintf("**[Source %d]**", i+1)
		if s.Topic != "" {
			label = fmt.Sprintf("**[%s]**", s.Topic)
		}
		parts[i] = label + "\n" + s.Preview
	}

	return &domain.ParsedAnswer{
		Content:  "Here's what I found:\n\n" + strings.Join(parts, "\n\n---\n\n"),
		Sources:  sources,
		Provider: "none",
		Model:    "context-only",
	}
}

// chunkSources builds the user-facing source list from retrieved chunks.
func chunkSources(chunks []domain.RetrievedChunk) []domain.Source {
	if len(chunks) == 0 {
		return nil
	}
	sources := make([]domain.Source, len(chunks))
	for i, c := range chunks {
		sources[i] = domain.Source{
			Topic:      c.Topic,
			Preview:    c.Preview(sourcePreviewChars),
			Similarity: c.Similarity,
		}
	}
	return sources
}

func (t *Turn) logWarnings(botID, field string, result domain.SanitizeResult) {
	if result.Modified() {
		t.deps.Logger.Warn("input sanitized", "bot_id", botID, "field", field, "warnings", result.Warnings)
	}
}
