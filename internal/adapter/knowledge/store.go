package knowledge

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"conversa/internal/domain"
)

// Store holds a bot's persona configuration and its knowledge chunks,
// backed by SQLite. Embeddings are stored as little-endian float32 blobs
// alongside the chunk text, and similarity search is an in-process
// cosine scan over the bot's own chunks.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string
}

// New opens (or creates) a SQLite database at dbPath, runs migrations,
// and returns a ready Store.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	return &Store{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetBot implements domain.BotStore.
func (s *Store) GetBot(ctx context.Context, id string) (*domain.Bot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, emoji, system_prompt, public, published, suggestions, created_at
		FROM bots WHERE id = ?`, id)

	var (
		bot       domain.Bot
		createdAt string
	)
	err := row.Scan(&bot.ID, &bot.OwnerID, &bot.Title, &bot.Emoji, &bot.SystemPrompt,
		&bot.Public, &bot.Published, &bot.Suggestions, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("Store.GetBot", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get bot: %v", domain.ErrVectorStore, err)
	}

	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		bot.CreatedAt = t
	}
	return &bot, nil
}

// SaveBot inserts or updates a bot.
func (s *Store) SaveBot(ctx context.Context, bot *domain.Bot) error {
	if bot.ID == "" {
		bot.ID = newID()
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bots (id, owner_id, title, emoji, system_prompt, public, published, suggestions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id      = excluded.owner_id,
			title         = excluded.title,
			emoji         = excluded.emoji,
			system_prompt = excluded.system_prompt,
			public        = excluded.public,
			published     = excluded.published,
			suggestions   = excluded.suggestions`,
		bot.ID, bot.OwnerID, bot.Title, bot.Emoji, bot.SystemPrompt,
		bot.Public, bot.Published, bot.Suggestions,
		bot.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("%w: save bot: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// DeleteBot removes a bot and, via the foreign key cascade, its chunks.
func (s *Store) DeleteBot(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM bots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: delete bot: %v", domain.ErrVectorStore, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NewDomainError("Store.DeleteBot", domain.ErrNotFound, id)
	}
	return nil
}

// AddChunk stores one knowledge chunk with its embedding. A missing ID
// gets a fresh ULID.
func (s *Store) AddChunk(ctx context.Context, chunk domain.RetrievedChunk, embedding []float32) (string, error) {
	if chunk.ID == "" {
		chunk.ID = newID()
	}
	if len(embedding) == 0 {
		return "", fmt.Errorf("%w: chunk %q has no embedding", domain.ErrVectorStore, chunk.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, bot_id, topic, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic     = excluded.topic,
			content   = excluded.content,
			embedding = excluded.embedding`,
		chunk.ID, chunk.BotID, chunk.Topic, chunk.Content,
		float32ToBytes(embedding),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("%w: add chunk: %v", domain.ErrVectorStore, err)
	}
	return chunk.ID, nil
}

// Count implements domain.KnowledgeSearcher.
func (s *Store) Count(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE bot_id = ?", botID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count chunks: %v", domain.ErrVectorStore, err)
	}
	return n, nil
}

// newID returns a lexicographically sortable unique ID.
func newID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Compile-time interface checks.
var (
	_ domain.BotStore          = (*Store)(nil)
	_ domain.KnowledgeSearcher = (*Store)(nil)
)
