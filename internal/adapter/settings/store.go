package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"conversa/internal/domain"
	"conversa/internal/infra/config"
)

// Store persists per-user provider preferences in SQLite. API keys are
// encrypted at rest with the store passphrase and decrypted on read, so
// a leaked database file does not leak credentials.
type Store struct {
	db         *sql.DB
	passphrase string
	logger     *slog.Logger
}

// New opens (or creates) the settings database at dbPath. passphrase
// protects stored API keys; it must stay stable across restarts or
// previously stored keys become unreadable.
func New(dbPath, passphrase string, logger *slog.Logger) (*Store, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: settings store passphrase is empty", domain.ErrSettingsStore)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrSettingsStore, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrSettingsStore, err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS user_settings (
			user_id        TEXT PRIMARY KEY,
			provider       TEXT NOT NULL DEFAULT '',
			groq_api_key   TEXT NOT NULL DEFAULT '',
			openai_api_key TEXT NOT NULL DEFAULT '',
			ollama_url     TEXT NOT NULL DEFAULT '',
			updated_at     TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrSettingsStore, err)
	}

	return &Store{db: db, passphrase: passphrase, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetSettings implements domain.SettingsStore. Unknown users get zero
// settings, not an error: the defaults (shared Groq tier) apply.
func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider, groq_api_key, openai_api_key, ollama_url
		FROM user_settings WHERE user_id = ?`, userID)

	us := domain.UserSettings{UserID: userID}
	err := row.Scan(&us.Provider, &us.GroqAPIKey, &us.OpenAIAPIKey, &us.OllamaURL)
	if errors.Is(err, sql.ErrNoRows) {
		return &us, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get settings: %v", domain.ErrSettingsStore, err)
	}

	if us.GroqAPIKey, err = s.reveal(us.GroqAPIKey); err != nil {
		return nil, err
	}
	if us.OpenAIAPIKey, err = s.reveal(us.OpenAIAPIKey); err != nil {
		return nil, err
	}
	return &us, nil
}

// SaveSettings upserts a user's settings, encrypting API keys.
func (s *Store) SaveSettings(ctx context.Context, us *domain.UserSettings) error {
	groqKey, err := s.conceal(us.GroqAPIKey)
	if err != nil {
		return err
	}
	openaiKey, err := s.conceal(us.OpenAIAPIKey)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, provider, groq_api_key, openai_api_key, ollama_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			provider       = excluded.provider,
			groq_api_key   = excluded.groq_api_key,
			openai_api_key = excluded.openai_api_key,
			ollama_url     = excluded.ollama_url,
			updated_at     = excluded.updated_at`,
		us.UserID, us.Provider, groqKey, openaiKey, us.OllamaURL,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: save settings: %v", domain.ErrSettingsStore, err)
	}
	return nil
}

// conceal encrypts a non-empty value for storage.
func (s *Store) conceal(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	enc, err := config.EncryptValue(value, s.passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	return config.EncPrefix() + enc, nil
}

// reveal decrypts a stored value. Values without the encryption prefix
// pass through unchanged (pre-encryption rows).
func (s *Store) reveal(stored string) (string, error) {
	if !strings.HasPrefix(stored, config.EncPrefix()) {
		return stored, nil
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(stored, config.EncPrefix()), s.passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return plain, nil
}

// Compile-time interface check.
var _ domain.SettingsStore = (*Store)(nil)
