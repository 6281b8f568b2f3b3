package usecase

import "strings"

// Suggestion protocol constants.
const (
	suggestionMarker = ">>>"
	maxSuggestions   = 3
	minSuggestionLen = 3
)

// suggestionInstruction is appended to the system prompt when the bot has
// follow-up suggestions enabled. The model emits marker-prefixed lines
// that ParseSuggestions later strips from the visible answer.
const suggestionInstruction = `

IMPORTANT: After your response, always include 2-3 contextually relevant follow-up questions the user might want to ask next. These should be specific to what was just discussed, not generic questions. Format them on separate lines at the very end of your response, each starting with ">>>" like this:
>>>Question 1 here?
>>>Question 2 here?
>>>Question 3 here?

Make the questions natural, conversational, and directly related to the current topic.`

// ParseSuggestions splits a generated response into display content and
// follow-up suggestions. Lines whose trimmed form starts with the marker
// become suggestions when the remainder is longer than three characters;
// shorter ones are discarded silently. At most three suggestions are
// kept, first seen first kept. Non-marker lines are joined in original
// order to form the content, with trailing blank lines trimmed.
//
// The parse is best-effort and never fails: with no marker lines the
// content is simply the trimmed input.
func ParseSuggestions(rawText string) (content string, suggestions []string) {
	var contentLines []string

	for _, line := range strings.Split(rawText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, suggestionMarker) {
			suggestion := strings.TrimSpace(trimmed[len(suggestionMarker):])
			if len(suggestion) > minSuggestionLen {
				suggestions = append(suggestions, suggestion)
			}
			continue
		}
		contentLines = append(contentLines, line)
	}

	for len(contentLines) > 0 && strings.TrimSpace(contentLines[len(contentLines)-1]) == "" {
		contentLines = contentLines[:len(contentLines)-1]
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return strings.TrimSpace(strings.Join(contentLines, "\n")), suggestions
}
