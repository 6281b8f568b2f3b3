package domain

import "testing"

func TestBotAccessible(t *testing.T) {
	tests := []struct {
		name   string
		bot    Bot
		userID string
		want   bool
	}{
		{"owner always", Bot{OwnerID: "u1"}, "u1", true},
		{"public published stranger", Bot{OwnerID: "u1", Public: true, Published: true}, "u2", true},
		{"public published anonymous", Bot{OwnerID: "u1", Public: true, Published: true}, "", true},
		{"private stranger", Bot{OwnerID: "u1"}, "u2", false},
		{"private anonymous", Bot{OwnerID: "u1"}, "", false},
		{"public unpublished", Bot{OwnerID: "u1", Public: true}, "u2", false},
		{"published not public", Bot{OwnerID: "u1", Published: true}, "u2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bot.Accessible(tt.userID); got != tt.want {
				t.Errorf("Accessible(%q) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}

func TestUserSettingsSelection(t *testing.T) {
	s := UserSettings{
		UserID:       "u1",
		Provider:     "openai",
		GroqAPIKey:   "gsk-stored",
		OpenAIAPIKey: "sk-stored",
		OllamaURL:    "http://home:11434",
	}

	sel := s.Selection("", 0.7, 512)
	if sel.Provider != "openai" || sel.APIKey != "sk-stored" {
		t.Errorf("openai selection = %+v", sel)
	}
	if sel.Temperature != 0.7 || sel.MaxTokens != 512 {
		t.Errorf("tuning not carried: %+v", sel)
	}

	// An explicit request key beats the stored one.
	sel = s.Selection("sk-request", 0.7, 512)
	if sel.APIKey != "sk-request" {
		t.Errorf("APIKey = %q, want request key", sel.APIKey)
	}

	// Ollama routes via endpoint, not key.
	s.Provider = "ollama"
	sel = s.Selection("", 0.7, 512)
	if sel.Endpoint != "http://home:11434" || sel.APIKey != "" {
		t.Errorf("ollama selection = %+v", sel)
	}

	// Empty settings resolve to the shared default tier.
	empty := UserSettings{UserID: "u2"}
	if sel := empty.Selection("", 0.7, 512); sel.Provider != "groq" {
		t.Errorf("default provider = %q, want groq", sel.Provider)
	}
}
