package knowledge

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS bots (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			title         TEXT NOT NULL,
			emoji         TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL,
			public        INTEGER NOT NULL DEFAULT 0,
			published     INTEGER NOT NULL DEFAULT 0,
			suggestions   INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS bots_owner_idx ON bots(owner_id);

		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			bot_id     TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
			topic      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS chunks_bot_idx ON chunks(bot_id);
	`
	_, err := db.Exec(schema)
	return err
}
