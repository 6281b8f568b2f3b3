package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSuggestionsNoMarkers(t *testing.T) {
	content, suggestions := ParseSuggestions("Just a plain answer.\nWith two lines.")
	assert.Equal(t, "Just a plain answer.\nWith two lines.", content)
	assert.Empty(t, suggestions)
}

func TestParseSuggestionsRoundTrip(t *testing.T) {
	body := "Our return window is 30 days.\nBring your receipt."
	raw := body + "\n>>>What about refunds?\n>>>Can I exchange items?"

	content, suggestions := ParseSuggestions(raw)
	assert.Equal(t, body, content)
	assert.Equal(t, []string{"What about refunds?", "Can I exchange items?"}, suggestions)
}

func TestParseSuggestionsBound(t *testing.T) {
	raw := "Answer.\n>>>One question?\n>>>Two question?\n>>>Three question?\n>>>Four question?\n>>>Five question?"
	_, suggestions := ParseSuggestions(raw)
	assert.Len(t, suggestions, maxSuggestions)
	assert.Equal(t, "One question?", suggestions[0])
}

func TestParseSuggestionsDiscardsShort(t *testing.T) {
	raw := "Answer.\n>>>ok\n>>>\n>>>A real follow-up question?"
	content, suggestions := ParseSuggestions(raw)
	assert.Equal(t, "Answer.", content)
	assert.Equal(t, []string{"A real follow-up question?"}, suggestions)
}

func TestParseSuggestionsIndentedMarker(t *testing.T) {
	raw := "Answer.\n   >>>Indented question here?"
	_, suggestions := ParseSuggestions(raw)
	assert.Equal(t, []string{"Indented question here?"}, suggestions)
}

func TestParseSuggestionsTrailingBlanksTrimmed(t *testing.T) {
	raw := "Answer.\n\n\n>>>Follow-up question?\n\n"
	content, suggestions := ParseSuggestions(raw)
	assert.Equal(t, "Answer.", content)
	assert.Len(t, suggestions, 1)
}

func TestParseSuggestionsMarkerMidText(t *testing.T) {
	// Markers anywhere in the input count, in order of appearance.
	raw := ">>>Early question here?\nThen the answer follows."
	content, suggestions := ParseSuggestions(raw)
	assert.Equal(t, "Then the answer follows.", content)
	assert.Equal(t, []string{"Early question here?"}, suggestions)
}

func TestParseSuggestionsEmptyInput(t *testing.T) {
	content, suggestions := ParseSuggestions("")
	assert.Empty(t, content)
	assert.Empty(t, suggestions)

	content, suggestions = ParseSuggestions(strings.Repeat("\n", 5))
	assert.Empty(t, content)
	assert.Empty(t, suggestions)
}
