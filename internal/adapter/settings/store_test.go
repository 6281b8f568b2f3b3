package settings

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"conversa/internal/domain"
	"conversa/internal/infra/config"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "settings.db")
	store, err := New(dbPath, "test-passphrase", slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func TestStoreRequiresPassphrase(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "settings.db"), "", slog.Default())
	if !errors.Is(err, domain.ErrSettingsStore) {
		t.Errorf("got %v, want ErrSettingsStore", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := &domain.UserSettings{
		UserID:       "user-1",
		Provider:     "openai",
		GroqAPIKey:   "gsk-secret",
		OpenAIAPIKey: "sk-secret",
		OllamaURL:    "http://my-ollama:11434",
	}
	if err := store.SaveSettings(ctx, in); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := store.GetSettings(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", got.Provider, "openai")
	}
	if got.GroqAPIKey != "gsk-secret" || got.OpenAIAPIKey != "sk-secret" {
		t.Errorf("keys did not decrypt: %+v", got)
	}
	if got.OllamaURL != "http://my-ollama:11434" {
		t.Errorf("OllamaURL = %q", got.OllamaURL)
	}
}

func TestStoreKeysEncryptedAtRest(t *testing.T) {
	store, dbPath := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSettings(ctx, &domain.UserSettings{
		UserID:     "user-1",
		GroqAPIKey: "gsk-secret",
	}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	// Read the raw column: it must carry the encryption prefix and never
	// the plaintext key.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()

	var raw string
	if err := db.QueryRow(
		"SELECT groq_api_key FROM user_settings WHERE user_id = ?", "user-1").Scan(&raw); err != nil {
		t.Fatalf("raw query: %v", err)
	}
	if !strings.HasPrefix(raw, config.EncPrefix()) {
		t.Errorf("stored key %q lacks encryption prefix", raw)
	}
	if strings.Contains(raw, "gsk-secret") {
		t.Error("stored key contains plaintext")
	}
}

func TestStoreUnknownUserGetsZeroSettings(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.GetSettings(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.UserID != "never-seen" || got.Provider != "" || got.GroqAPIKey != "" {
		t.Errorf("got %+v, want zero settings", got)
	}

	// Zero settings resolve to the shared default tier.
	sel := got.Selection("", 0.7, 1024)
	if sel.Provider != "groq" {
		t.Errorf("default provider = %q, want %q", sel.Provider, "groq")
	}
}

func TestStoreUpsert(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSettings(ctx, &domain.UserSettings{
		UserID: "user-1", Provider: "groq", GroqAPIKey: "first",
	}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := store.SaveSettings(ctx, &domain.UserSettings{
		UserID: "user-1", Provider: "ollama", OllamaURL: "http://localhost:11434",
	}); err != nil {
		t.Fatalf("SaveSettings update: %v", err)
	}

	got, err := store.GetSettings(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if got.Provider != "ollama" {
		t.Errorf("Provider = %q, want %q", got.Provider, "ollama")
	}
	if got.GroqAPIKey != "" {
		t.Errorf("GroqAPIKey = %q, want cleared", got.GroqAPIKey)
	}
}
