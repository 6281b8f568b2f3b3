package channel

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"conversa/internal/domain"
)

// envelope is the uniform response shape for every chat-turn endpoint:
// a top-level success flag, data on success, error plus code on failure.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// jsonSuccess writes a 200 envelope with data.
func jsonSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// jsonError writes a failure envelope with an explicit status and code.
func jsonError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, envelope{Success: false, Error: message, Code: code})
}

// jsonDomainError maps a domain error to its HTTP status, user-facing
// message, and machine code. Internal details never reach the client.
func jsonDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := domain.ErrorCodeOf(err)

	status := http.StatusInternalServerError
	message := "Internal server error"

	switch code {
	case domain.CodeValidation:
		status, message = http.StatusBadRequest, "Invalid request"
	case domain.CodeAuthInvalid:
		status, message = http.StatusUnauthorized, "Access denied"
	case domain.CodeNotFound:
		status, message = http.StatusNotFound, "Not found"
	case domain.CodeRateLimited:
		status, message = http.StatusTooManyRequests, "Too many requests"
	case domain.CodeTimeout:
		status, message = http.StatusServiceUnavailable, "The backend took too long to respond"
	case domain.CodeServiceUnavailable, domain.CodeEmbeddingFailed,
		domain.CodeProviderNotFound:
		status, message = http.StatusServiceUnavailable, "Service temporarily unavailable"
	}

	if status == http.StatusInternalServerError {
		logger.Error("unhandled error", "error", err)
	}
	jsonError(w, status, message, string(code))
}
