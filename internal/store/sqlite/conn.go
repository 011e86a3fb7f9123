// Package sqlite persists vaults and messages in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS vaults (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	created_at TEXT NOT NULL,
	total      INTEGER NOT NULL DEFAULT 0,
	locked     INTEGER NOT NULL DEFAULT 0,
	unlocked   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	vault_id     TEXT NOT NULL REFERENCES vaults(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	content_kind TEXT NOT NULL,
	unlock_time  TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	created_by   TEXT NOT NULL,
	envelope     TEXT NOT NULL,
	revealed     BLOB,
	lock_state   TEXT NOT NULL CHECK (lock_state IN ('LOCKED', 'UNLOCKED'))
);

CREATE INDEX IF NOT EXISTS messages_vault_seq ON messages (vault_id, seq);
`

// Open opens (or creates) a SQLite database at the given path, enables WAL
// journal mode and applies the schema.
func Open(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "sqlite.Open.MkdirAll")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite.Open")
	}
	// One writer at a time; transactions serialize on this connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite.Open.Ping")
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "sqlite.EnsureSchema")
	}
	return nil
}
