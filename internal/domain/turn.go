package domain

// Limits for a single chat turn.
const (
	MaxMessageChars    = 5000
	MinContextSize     = 1
	MaxContextSize     = 10
	DefaultContextSize = 5
	MaxHistoryEntries  = 20
)

// TurnRequest is one inbound chat turn before any processing.
type TurnRequest struct {
	Message     string    `json:"message"`
	History     []Message `json:"history,omitempty"`
	BotID       string    `json:"-"`
	UserID      string    `json:"-"`
	ContextSize int       `json:"context_size,omitempty"`
}

// Validate checks the turn request invariants. It does not mutate the
// request except to default ContextSize.
func (r *TurnRequest) Validate() error {
	if r.Message == "" {
		return NewDomainError("TurnRequest.Validate", ErrInvalidInput, "message is required")
	}
	if len(r.Message) > MaxMessageChars {
		return NewDomainError("TurnRequest.Validate", ErrInvalidInput, "message too long")
	}
	if r.ContextSize == 0 {
		r.ContextSize = DefaultContextSize
	}
	if r.ContextSize < MinContextSize || r.ContextSize > MaxContextSize {
		return NewDomainError("TurnRequest.Validate", ErrInvalidInput, "context_size out of range")
	}
	return nil
}

// RetrievedChunk is a ranked knowledge fragment returned by vector search.
// Read-only input to the turn pipeline.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	BotID      string  `json:"bot_id"`
	Topic      string  `json:"topic,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Preview returns the first n characters of the chunk content with an
// ellipsis when truncated.
func (c RetrievedChunk) Preview(n int) string {
	if len(c.Content) <= n {
		return c.Content
	}
	return c.Content[:n] + "..."
}

// ContextBlock is the budgeted context assembled from retrieved chunks.
// Created once per turn and never mutated afterwards.
type ContextBlock struct {
	Text         string
	UsedChunkIDs []string
	Truncated    bool
}

// Empty reports whether the block contains no context.
func (b ContextBlock) Empty() bool { return b.Text == "" }

// Source describes one retrieved chunk as surfaced to the end user.
type Source struct {
	Topic      string  `json:"topic,omitempty"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// ParsedAnswer is the terminal artifact of one completed turn.
type ParsedAnswer struct {
	Content     string   `json:"content"`
	Suggestions []string `json:"suggestions,omitempty"`
	Sources     []Source `json:"sources"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
}

// SanitizeResult holds the outcome of one sanitization pass. Sanitization
// never fails; problems surface as warnings for the caller to log.
type SanitizeResult struct {
	Sanitized string
	Warnings  []string
}

// Modified reports whether sanitization warnings were produced.
func (r SanitizeResult) Modified() bool { return len(r.Warnings) > 0 }
