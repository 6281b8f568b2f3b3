package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrNotFound           = fmt.Errorf("not found")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrTimeout            = fmt.Errorf("operation timed out")
	ErrMissingCredentials = fmt.Errorf("provider credentials missing")
	ErrBackendUnreachable = fmt.Errorf("backend unreachable")
	ErrBackendError       = fmt.Errorf("backend returned an error")
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrEmbeddingFailed    = fmt.Errorf("embedding generation failed")
	ErrVectorSearch       = fmt.Errorf("vector search failed")
	ErrVectorStore        = fmt.Errorf("vector store operation failed")
	ErrSettingsStore      = fmt.Errorf("settings store operation failed")
	ErrEncryption         = fmt.Errorf("encryption operation failed")
	ErrDecryption         = fmt.Errorf("decryption failed")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Generate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category carried in the HTTP
// response envelope.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown             ErrorCode = "INTERNAL_ERROR"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeAuthInvalid         ErrorCode = "UNAUTHORIZED"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeEmbeddingFailed     ErrorCode = "EMBEDDING_FAILED"
	CodeVectorSearch        ErrorCode = "VECTOR_SEARCH"
	CodeVectorStore         ErrorCode = "VECTOR_STORE"
	CodeSettingsStore       ErrorCode = "SETTINGS_STORE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:       CodeValidation,
	ErrNotFound:           CodeNotFound,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrRateLimit:          CodeRateLimited,
	ErrTimeout:            CodeTimeout,
	ErrMissingCredentials: CodeServiceUnavailable,
	ErrBackendUnreachable: CodeServiceUnavailable,
	ErrBackendError:       CodeServiceUnavailable,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrEmbeddingFailed:    CodeEmbeddingFailed,
	ErrVectorSearch:       CodeVectorSearch,
	ErrVectorStore:        CodeVectorStore,
	ErrSettingsStore:      CodeSettingsStore,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
