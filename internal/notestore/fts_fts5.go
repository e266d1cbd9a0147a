//go:build sqlite_fts5

package notestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS task_notes_fts USING fts5(
			task_id UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, taskID, body string) error {
	_, _ = tx.Exec(`DELETE FROM task_notes_fts WHERE task_id = ?`, taskID)
	_, err := tx.Exec(`INSERT INTO task_notes_fts (task_id, body) VALUES (?, ?)`, taskID, body)
	if err != nil {
		return fmt.Errorf("notestore: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, taskID string) {
	_, _ = tx.Exec(`DELETE FROM task_notes_fts WHERE task_id = ?`, taskID)
}

// ftsQuery turns free text into a prefix phrase query so punctuation in
// the input is never parsed as FTS5 syntax.
func ftsQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"*`
}

// Search performs an FTS5 full-text search over note text and checklist
// items, best matches first.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]NoteRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.task_id, n.notes, n.note_type, n.notes_content, n.checklist_items, n.updated_at
		FROM task_notes_fts f
		JOIN task_notes n ON n.task_id = f.task_id
		WHERE task_notes_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: search: %w", err)
	}
	return db.collect(rows)
}
