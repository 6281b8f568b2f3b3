package usecase

import (
	"strings"

	"conversa/internal/domain"
)

// Budgeting constants.
const (
	// minUsefulChars is the smallest partial chunk worth emitting. Below
	// this, a truncated fragment carries too little signal to help the
	// model and just burns budget.
	minUsefulChars = 200

	truncationSuffix = "... [truncated]"
	chunkSeparator   = "\n\n---\n\n"
	fallbackTopic    = "Knowledge"
)

// BuildContext assembles a bounded context block from ranked chunks.
//
// The walk is greedy and order-preserving: chunks arrive ranked by
// descending similarity and rank order is treated as a proxy for value.
// A chunk that fits whole is appended whole. The first chunk that would
// overflow is either truncated into the remaining budget (when at least
// minUsefulChars remain) or dropped, and the walk stops either way.
// No attempt is made to pack later, smaller chunks.
func BuildContext(chunks []domain.RetrievedChunk, budgetChars int) domain.ContextBlock {
	if len(chunks) == 0 || budgetChars <= 0 {
		return domain.ContextBlock{}
	}

	var (
		parts     []string
		usedIDs   []string
		usedChars int
		truncated bool
	)

	for _, chunk := range chunks {
		label := topicLabel(chunk.Topic)
		rendered := len(label) + 1 + len(chunk.Content) // label + newline + content

		if usedChars+rendered <= budgetChars {
			parts = append(parts, label+"\n"+chunk.Content)
			usedIDs = append(usedIDs, chunk.ID)
			usedChars += rendered
			continue
		}

		remaining := budgetChars - usedChars
		if remaining > minUsefulChars {
			keep := remaining - len(label) - 1
			if keep > 0 && keep < len(chunk.Content) {
				parts = append(parts, label+"\n"+chunk.Content[:keep]+truncationSuffix)
				usedIDs = append(usedIDs, chunk.ID)
				truncated = true
			}
		}
		break
	}

	return domain.ContextBlock{
		Text:         strings.Join(parts, chunkSeparator),
		UsedChunkIDs: usedIDs,
		Truncated:    truncated,
	}
}

func topicLabel(topic string) string {
	if topic == "" {
		return "[" + fallbackTopic + "]"
	}
	return "[" + topic + "]"
}
