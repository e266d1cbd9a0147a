package notestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/checksum"
	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/parser"
	"github.com/starford/tasknotes/internal/record"
)

// NoteRow is a decoded row of the task_notes table.
type NoteRow struct {
	TaskID    string
	Note      models.Note
	Checksum  string
	UpdatedAt time.Time
}

// NoteStore defines the persistence operations used by the editing service.
type NoteStore interface {
	Get(ctx context.Context, taskID string) (*NoteRow, error)
	Upsert(ctx context.Context, taskID string, note models.Note) (*NoteRow, error)
	PutRaw(ctx context.Context, taskID string, raw *string) error
	Delete(ctx context.Context, taskID string) error
	List(ctx context.Context, limit, offset int) ([]NoteRow, int, error)
	Search(ctx context.Context, query string, limit int) ([]NoteRow, error)
	All(ctx context.Context) ([]NoteRow, error)
	Close() error
}

// Verify *DB satisfies NoteStore at compile time.
var _ NoteStore = (*DB)(nil)

const selectColumns = `task_id, notes, note_type, notes_content, checklist_items, updated_at`

// Get returns the stored note for a task, or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, taskID string) (*NoteRow, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM task_notes WHERE task_id = ?`, taskID)
	r, err := db.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notestore: get %s: %w", taskID, err)
	}
	return r, nil
}

// Upsert stores note for taskID in the DB's storage mode and returns the
// resulting row.
func (db *DB) Upsert(ctx context.Context, taskID string, note models.Note) (*NoteRow, error) {
	serialized := parser.Stringify(note)
	cs := checksum.OfNote(serialized)
	now := time.Now().UTC()

	var (
		raw, noteType, content sql.NullString
		items                  = "[]"
	)
	if db.mode == ModeRecord {
		rec := record.ToRecord(note)
		noteType = sql.NullString{String: string(rec.NoteType), Valid: true}
		if rec.Notes != nil {
			content = sql.NullString{String: rec.Notes.Content, Valid: true}
		}
		data, err := json.Marshal(rec.ChecklistItems)
		if err != nil {
			return nil, fmt.Errorf("notestore: encode items: %w", err)
		}
		items = string(data)
	} else {
		raw = sql.NullString{String: serialized, Valid: true}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("notestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_notes (task_id, notes, note_type, notes_content, checklist_items, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			notes           = excluded.notes,
			note_type       = excluded.note_type,
			notes_content   = excluded.notes_content,
			checklist_items = excluded.checklist_items,
			checksum        = excluded.checksum,
			updated_at      = excluded.updated_at
	`, taskID, raw, noteType, content, items, cs, now)
	if err != nil {
		return nil, fmt.Errorf("notestore: upsert %s: %w", taskID, err)
	}
	if err := ftsUpsert(tx, taskID, searchText(note)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("notestore: commit: %w", err)
	}
	return &NoteRow{TaskID: taskID, Note: note, Checksum: cs, UpdatedAt: now}, nil
}

// PutRaw writes a raw notes string exactly as given, bypassing encoding.
// A nil raw stores NULL. It is used by imports of legacy data.
func (db *DB) PutRaw(ctx context.Context, taskID string, raw *string) error {
	var v sql.NullString
	if raw != nil {
		v = sql.NullString{String: *raw, Valid: true}
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("notestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_notes (task_id, notes, note_type, notes_content, checklist_items, updated_at)
		VALUES (?, ?, NULL, NULL, '[]', ?)
		ON CONFLICT(task_id) DO UPDATE SET
			notes           = excluded.notes,
			note_type       = NULL,
			notes_content   = NULL,
			checklist_items = '[]',
			updated_at      = excluded.updated_at
	`, taskID, v, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("notestore: put raw %s: %w", taskID, err)
	}
	if err := ftsUpsert(tx, taskID, searchText(parser.ParseNullable(raw))); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("notestore: commit: %w", err)
	}
	return nil
}

// Delete removes the notes of a task. Deleting a missing task is not an error.
func (db *DB) Delete(ctx context.Context, taskID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("notestore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_notes WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("notestore: delete %s: %w", taskID, err)
	}
	ftsDelete(tx, taskID)
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("notestore: commit: %w", err)
	}
	return nil
}

// List returns a page of notes, most recently updated first, and the total count.
func (db *DB) List(ctx context.Context, limit, offset int) ([]NoteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM task_notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("notestore: count: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM task_notes
		ORDER BY updated_at DESC, task_id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("notestore: list: %w", err)
	}
	out, err := db.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// All returns every stored note ordered by task id.
func (db *DB) All(ctx context.Context) ([]NoteRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+selectColumns+` FROM task_notes ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("notestore: all: %w", err)
	}
	return db.collect(rows)
}

// searchText is the text indexed for search: the note content followed by
// one line per checklist item.
func searchText(n models.Note) string {
	var b strings.Builder
	b.WriteString(models.ContentOf(n))
	for _, it := range models.ItemsOf(n) {
		b.WriteByte('\n')
		b.WriteString(it.Text)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func (db *DB) scan(s scanner) (*NoteRow, error) {
	var (
		taskID                 string
		raw, noteType, content sql.NullString
		items                  string
		updatedAt              time.Time
	)
	if err := s.Scan(&taskID, &raw, &noteType, &content, &items, &updatedAt); err != nil {
		return nil, err
	}
	note := db.decode(raw, noteType, content, items)
	return &NoteRow{
		TaskID:    taskID,
		Note:      note,
		Checksum:  checksum.OfNote(parser.Stringify(note)),
		UpdatedAt: updatedAt,
	}, nil
}

func (db *DB) collect(rows *sql.Rows) ([]NoteRow, error) {
	defer rows.Close()
	var out []NoteRow
	for rows.Next() {
		r, err := db.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// decode prefers the column set of the DB's mode and falls back to the other
// one, so rows written before a mode switch stay readable.
func (db *DB) decode(raw, noteType, content sql.NullString, items string) models.Note {
	if noteType.Valid && (db.mode == ModeRecord || !raw.Valid) {
		rec := record.Record{NoteType: record.NoteType(noteType.String)}
		if content.Valid {
			rec.Notes = &record.Notes{Content: content.String}
		}
		var decoded []models.ChecklistItem
		if err := json.Unmarshal([]byte(items), &decoded); err == nil {
			rec.ChecklistItems = decoded
		}
		return record.FromRecord(rec)
	}
	if !raw.Valid {
		return parser.ParseNullable(nil)
	}
	return parser.Parse(raw.String)
}
