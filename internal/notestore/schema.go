// Package notestore persists task notes in SQLite, either as one serialized
// string per task or as normalized text and checklist columns.
package notestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage modes.
const (
	ModeString = "string"
	ModeRecord = "record"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS task_notes (
	task_id         TEXT PRIMARY KEY,
	notes           TEXT,
	note_type       TEXT,
	notes_content   TEXT,
	checklist_items TEXT NOT NULL DEFAULT '[]',
	checksum        TEXT NOT NULL DEFAULT '',
	search_text     TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_task_notes_updated ON task_notes(updated_at);
`

// DB wraps a sql.DB with task-notes operations.
type DB struct {
	conn *sql.DB
	mode string
}

// Option configures a DB.
type Option func(*DB)

// WithMode selects the storage shape written by Upsert. Unknown modes fall
// back to ModeString.
func WithMode(mode string) Option {
	return func(db *DB) {
		if mode == ModeRecord {
			db.mode = ModeRecord
		} else {
			db.mode = ModeString
		}
	}
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("notestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: apply schema: %w", err)
	}
	added, err := addSearchColumn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: migrate: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notestore: init fts: %w", err)
	}
	db := &DB{conn: conn, mode: ModeString}
	for _, opt := range opts {
		opt(db)
	}
	if added {
		if err := db.reindexSearch(context.Background()); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return db, nil
}

// addSearchColumn adds search_text to tables created before it existed and
// reports whether it did.
func addSearchColumn(conn *sql.DB) (bool, error) {
	var n int
	if err := conn.QueryRow(`SELECT count(*) FROM pragma_table_info('task_notes') WHERE name = 'search_text'`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := conn.Exec(`ALTER TABLE task_notes ADD COLUMN search_text TEXT NOT NULL DEFAULT ''`); err != nil {
		return false, err
	}
	return true, nil
}

// reindexSearch rebuilds the search data of every stored note.
func (db *DB) reindexSearch(ctx context.Context) error {
	rows, err := db.All(ctx)
	if err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("notestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		if err := ftsUpsert(tx, r.TaskID, searchText(r.Note)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("notestore: commit: %w", err)
	}
	return nil
}

// Mode returns the storage shape this DB writes.
func (db *DB) Mode() string {
	return db.mode
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
