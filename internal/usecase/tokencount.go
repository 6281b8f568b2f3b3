package usecase

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"conversa/internal/domain"
)

// charsPerToken is the heuristic ratio used when no BPE encoding is
// available. Roughly right for English prose across current models.
const charsPerToken = 4

// perMessageOverhead approximates the per-message framing tokens added
// by chat completion APIs.
const perMessageOverhead = 4

// TokenCounter estimates prompt token counts. It tries a real BPE
// encoding (cl100k_base) once, lazily; if the encoding cannot be loaded
// (offline environments), it falls back to a character heuristic so the
// pipeline keeps working without network access.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a TokenCounter.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count estimates the tokens in a single text.
func (t *TokenCounter) Count(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})

	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// CountMessages estimates the total prompt tokens for a message list,
// including per-message framing overhead.
func (t *TokenCounter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, m := range messages {
		total += t.Count(m.Content) + perMessageOverhead
	}
	return total
}
