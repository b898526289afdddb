package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS staff (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS borrowers (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL CHECK (role IN ('standard', 'privileged')),
    detail        TEXT,
    fine_balance  TEXT NOT NULL DEFAULT '0',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    title_fold  TEXT NOT NULL DEFAULT '',
    creator     TEXT,
    publisher   TEXT,
    available   INTEGER NOT NULL DEFAULT 1 CHECK (available IN (0, 1)),
    holder_id   TEXT REFERENCES borrowers(id),
    due_date    DATETIME,
    cover       BLOB,
    cover_mime  TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK ((available = 1 AND holder_id IS NULL AND due_date IS NULL)
        OR (available = 0 AND holder_id IS NOT NULL AND due_date IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_items_holder ON items(holder_id) WHERE holder_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// migrations are applied in order after schema creation. Each must be
// idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: catalog search matches against the lowercased title.
	`CREATE INDEX IF NOT EXISTS idx_items_title_fold ON items(title_fold)`,
}

// EnsureSchema creates all tables and indexes if they don't already exist
// and applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
