package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"conversa/internal/domain"
	"conversa/internal/infra/middleware"
)

type fakeTurnRunner struct {
	answer  *domain.ParsedAnswer
	err     error
	lastReq domain.TurnRequest
}

func (f *fakeTurnRunner) Run(_ context.Context, req domain.TurnRequest) (*domain.ParsedAnswer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func startTestServer(t *testing.T, runner TurnRunner) string {
	t.Helper()

	limiter := middleware.NewLimiter(middleware.LimiterConfig{
		RequestsPerMin: 600,
		Burst:          100,
		MaxKeys:        100,
	})
	srv := NewHTTPServer("127.0.0.1:0", runner, limiter, slog.Default())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return "http://" + srv.Addr()
}

func postChat(t *testing.T, base, botID, userID string, body any) (*http.Response, envelope) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost,
		base+"/api/v1/bots/"+botID+"/chat", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func TestHandleChatSuccess(t *testing.T) {
	runner := &fakeTurnRunner{answer: &domain.ParsedAnswer{
		Content:     "You can return items within 30 days.",
		Suggestions: []string{"What about refunds?"},
		Sources:     []domain.Source{{Topic: "Policies", Preview: "Returns...", Similarity: 0.9}},
		Provider:    "groq",
		Model:       "llama-3.1-8b-instant",
	}}
	base := startTestServer(t, runner)

	resp, env := postChat(t, base, "bot-1", "user-1", map[string]any{
		"message": "What is your return policy?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	if !env.Success || env.Error != "" || env.Code != "" {
		t.Errorf("envelope = %+v", env)
	}

	data, err := json.Marshal(env.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	var answer domain.ParsedAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Content != "You can return items within 30 days." {
		t.Errorf("Content = %q", answer.Content)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].Topic != "Policies" {
		t.Errorf("Sources = %+v", answer.Sources)
	}

	// Path and header flow into the turn request.
	if runner.lastReq.BotID != "bot-1" {
		t.Errorf("BotID = %q, want %q", runner.lastReq.BotID, "bot-1")
	}
	if runner.lastReq.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", runner.lastReq.UserID, "user-1")
	}
}

func TestHandleChatErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", domain.NewDomainError("t", domain.ErrInvalidInput, "bad"), http.StatusBadRequest},
		{"not found", domain.NewDomainError("t", domain.ErrNotFound, "bot"), http.StatusNotFound},
		{"access denied", domain.NewDomainError("t", domain.ErrAuthInvalid, "private"), http.StatusUnauthorized},
		{"timeout", fmt.Errorf("%w: slow backend", domain.ErrTimeout), http.StatusServiceUnavailable},
		{"unreachable", fmt.Errorf("%w: down", domain.ErrBackendUnreachable), http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := startTestServer(t, &fakeTurnRunner{err: tt.err})

			resp, env := postChat(t, base, "bot-1", "", map[string]any{"message": "hi"})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if env.Success {
				t.Error("Success = true on error")
			}
			if env.Error == "" || env.Code == "" {
				t.Errorf("envelope missing error/code: %+v", env)
			}
			// Internal details never leak.
			if tt.name == "unexpected" && env.Error != "Internal server error" {
				t.Errorf("Error = %q, want generic message", env.Error)
			}
		})
	}
}

func TestHandleChatInvalidJSON(t *testing.T) {
	base := startTestServer(t, &fakeTurnRunner{})

	resp, err := http.Post(base+"/api/v1/bots/bot-1/chat", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestHandleChatBodyTooLarge(t *testing.T) {
	base := startTestServer(t, &fakeTurnRunner{})

	huge := map[string]string{"message": string(bytes.Repeat([]byte("x"), maxRequestBody+1))}
	resp, env := postChat(t, base, "bot-1", "", huge)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
	if env.Error != "Request body too large" {
		t.Errorf("Error = %q", env.Error)
	}
}

func TestHandleHealth(t *testing.T) {
	base := startTestServer(t, &fakeTurnRunner{})

	resp, err := http.Get(base + "/api/v1/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d, want 200", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success {
		t.Errorf("envelope = %+v", env)
	}
}

func TestChatRateLimited(t *testing.T) {
	limiter := middleware.NewLimiter(middleware.LimiterConfig{
		RequestsPerMin: 60,
		Burst:          1,
		MaxKeys:        100,
	})
	srv := NewHTTPServer("127.0.0.1:0",
		&fakeTurnRunner{answer: &domain.ParsedAnswer{Content: "ok"}},
		limiter, slog.Default())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	base := "http://" + srv.Addr()

	first, _ := postChat(t, base, "bot-1", "", map[string]any{"message": "hi"})
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first request: status %d", first.StatusCode)
	}

	second, env := postChat(t, base, "bot-1", "", map[string]any{"message": "hi"})
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d, want 429", second.StatusCode)
	}
	if env.Code != "RATE_LIMITED" {
		t.Errorf("Code = %q, want RATE_LIMITED", env.Code)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	base := startTestServer(t, &fakeTurnRunner{})

	resp, err := http.Get(base + "/api/v1/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
