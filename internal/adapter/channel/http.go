package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"conversa/internal/domain"
	"conversa/internal/infra/middleware"
	"conversa/internal/usecase"
)

// maxRequestBody bounds inbound request bodies.
const maxRequestBody = 1 << 20 // 1 MB

// TurnRunner executes one chat turn. Satisfied by *usecase.Turn.
type TurnRunner interface {
	Run(ctx context.Context, req domain.TurnRequest) (*domain.ParsedAnswer, error)
}

// HTTPServer exposes the chat-turn pipeline over an HTTP API.
//
// Routes:
//
//	POST /api/v1/bots/{id}/chat
//	GET  /api/v1/health
//
// Caller identity arrives in the X-User-ID header set by the fronting
// auth proxy; an absent header means an anonymous visitor, who can only
// reach public published bots.
type HTTPServer struct {
	server    *http.Server
	limiter   *middleware.Limiter
	turns     TurnRunner
	logger    *slog.Logger
	addr      string
	boundAddr string
}

// NewHTTPServer creates the API server.
func NewHTTPServer(addr string, turns TurnRunner, limiter *middleware.Limiter, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		turns:   turns,
		limiter: limiter,
		logger:  logger,
	}
}

// Start begins serving. Non-blocking (serves in a goroutine).
func (s *HTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/bots/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	handler := middleware.SecurityHeaders(
		middleware.RateLimit(s.limiter, "chat")(mux),
	)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the actual bound address (useful with ":0" in tests).
func (s *HTTPServer) Addr() string { return s.boundAddr }

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req domain.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, http.StatusBadRequest, "Request body too large", string(domain.CodeValidation))
			return
		}
		jsonError(w, http.StatusBadRequest, "Invalid JSON body", string(domain.CodeValidation))
		return
	}

	req.BotID = r.PathValue("id")
	req.UserID = strings.TrimSpace(r.Header.Get("X-User-ID"))

	answer, err := s.turns.Run(r.Context(), req)
	if err != nil {
		jsonDomainError(w, s.logger, err)
		return
	}

	jsonSuccess(w, answer)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonSuccess(w, map[string]string{"status": "ok"})
}

// Compile-time check that the orchestrator satisfies TurnRunner.
var _ TurnRunner = (*usecase.Turn)(nil)
