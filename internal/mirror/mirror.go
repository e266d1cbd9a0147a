// Package mirror keeps a directory of <taskID>.note files in step with the
// note store, in both directions: note changes are written out as files and
// edits to the files are read back in as notes.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/checksum"
	"github.com/starford/tasknotes/internal/noteservice"
	"github.com/starford/tasknotes/internal/parser"
	"github.com/starford/tasknotes/internal/storage"
)

// Notes is the part of the note service the mirror drives.
type Notes interface {
	Get(ctx context.Context, taskID string) (*noteservice.NoteDetail, error)
	All(ctx context.Context) ([]noteservice.NoteDetail, error)
	SaveRaw(ctx context.Context, taskID, raw, ifMatch string) (*noteservice.NoteDetail, error)
	Delete(ctx context.Context, taskID string) error
}

type noteEvent struct {
	kind   noteservice.EventKind
	taskID string
}

// Mirror implements noteservice.Notifier. Register it on the service, then
// call Run with the same service.
type Mirror struct {
	root    string
	archive storage.Provider
	logger  *slog.Logger
	events  chan noteEvent
	dropped atomic.Bool
}

// New creates a mirror of the directory root, which must exist.
func New(root string, logger *slog.Logger) (*Mirror, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("mirror: resolve root: %w", err)
	}
	archive, err := storage.NewFS(abs)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		root:    abs,
		archive: archive,
		logger:  logger,
		events:  make(chan noteEvent, 256),
	}, nil
}

// PublishNoteEvent queues a note change for the Run loop. It never blocks:
// when the queue is full the event is dropped and the loop resyncs instead.
func (m *Mirror) PublishNoteEvent(kind noteservice.EventKind, taskID string) {
	select {
	case m.events <- noteEvent{kind: kind, taskID: taskID}:
	default:
		m.dropped.Store(true)
		m.logger.Warn("mirror: event queue full", slog.String("task_id", taskID))
	}
}

// apply writes the current state of one task's notes to its file.
func (m *Mirror) apply(ctx context.Context, notes Notes, ev noteEvent) {
	if ev.kind == noteservice.EventDeleted {
		m.removeFile(ev.taskID)
		return
	}
	d, err := notes.Get(ctx, ev.taskID)
	if errors.Is(err, apperr.ErrNotFound) {
		m.removeFile(ev.taskID)
		return
	}
	if err != nil {
		m.logger.Warn("mirror: load failed", slog.String("task_id", ev.taskID), slog.String("error", err.Error()))
		return
	}
	m.writeFile(d)
}

// writeFile stores d in canonical form unless the file already holds it.
func (m *Mirror) writeFile(d *noteservice.NoteDetail) {
	if data, err := m.archive.Read(d.TaskID); err == nil && checksum.Sum(data) == d.Checksum {
		return
	}
	if err := m.archive.Write(d.TaskID, []byte(parser.Stringify(d.Note))); err != nil {
		m.logger.Warn("mirror: write failed", slog.String("task_id", d.TaskID), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("mirror: wrote", slog.String("task_id", d.TaskID))
}

func (m *Mirror) removeFile(taskID string) {
	if err := m.archive.Delete(taskID); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("mirror: delete failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("mirror: removed", slog.String("task_id", taskID))
}

// importFile saves the file of taskID as its notes. A file whose parsed
// content already matches the stored note is left alone, which also stops
// the mirror from re-importing its own writes.
func (m *Mirror) importFile(ctx context.Context, notes Notes, taskID string) {
	data, err := m.archive.Read(taskID)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		m.logger.Warn("mirror: read failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	raw := string(data)

	cur, err := notes.Get(ctx, taskID)
	switch {
	case err == nil:
		if checksum.OfNote(parser.Stringify(parser.Parse(raw))) == cur.Checksum {
			return
		}
	case errors.Is(err, apperr.ErrNotFound):
	default:
		m.logger.Warn("mirror: load failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}

	if _, err := notes.SaveRaw(ctx, taskID, raw, ""); err != nil {
		m.logger.Warn("mirror: import failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("mirror: imported", slog.String("task_id", taskID))
}

// removeTask deletes the notes of a task whose file disappeared.
func (m *Mirror) removeTask(ctx context.Context, notes Notes, taskID string) {
	err := notes.Delete(ctx, taskID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		m.logger.Warn("mirror: delete task failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	m.logger.Debug("mirror: task removed", slog.String("task_id", taskID))
}
