//go:build !sqlite_fts5

package notestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; Search scans the search_text column with LIKE.
	return nil
}

func ftsUpsert(tx *sql.Tx, taskID, body string) error {
	if _, err := tx.Exec(`UPDATE task_notes SET search_text = ? WHERE task_id = ?`, body, taskID); err != nil {
		return fmt.Errorf("notestore: update search text: %w", err)
	}
	return nil
}

// The row and its search_text go together.
func ftsDelete(_ *sql.Tx, _ string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search performs a case-insensitive substring search over note text and
// checklist items (fallback when FTS5 is not compiled in). A blank query
// matches nothing.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]NoteRow, error) {
	if limit <= 0 {
		limit = 20
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	like := "%" + likeEscaper.Replace(query) + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM task_notes
		WHERE search_text LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, task_id
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("notestore: search: %w", err)
	}
	return db.collect(rows)
}
