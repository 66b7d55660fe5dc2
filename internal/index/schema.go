// Package index provides the SQLite-backed note record store with optional
// FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id                   TEXT PRIMARY KEY,
	kind                 TEXT NOT NULL,
	title                TEXT NOT NULL,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL,
	duration_seconds     REAL NOT NULL DEFAULT 0,
	text_content         TEXT NOT NULL DEFAULT '',
	attachment_ref       TEXT NOT NULL DEFAULT '',
	attachment_size      INTEGER NOT NULL DEFAULT 0,
	attachment_sha256    TEXT NOT NULL DEFAULT '',
	attachment_file_name TEXT NOT NULL DEFAULT '',
	source_url           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_kind ON notes(kind);
`

// DB wraps a sql.DB with record store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
