package domain

import "time"

// Bot is a chat persona: either a curated professional or a user-authored
// custom bot with its own knowledge base.
type Bot struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Emoji        string    `json:"emoji,omitempty"`
	SystemPrompt string    `json:"-"`
	Public       bool      `json:"public"`
	Published    bool      `json:"published"`
	Suggestions  bool      `json:"suggestions"`
	CreatedAt    time.Time `json:"created_at"`
}

// Accessible reports whether userID may chat with this bot. Owners always
// have access; everyone else needs the bot to be both public and published.
func (b *Bot) Accessible(userID string) bool {
	if userID != "" && b.OwnerID == userID {
		return true
	}
	return b.Public && b.Published
}
