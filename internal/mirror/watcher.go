package mirror

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tasknotes/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Run syncs the directory once and then keeps both sides in step until ctx
// is cancelled: queued note events are written out and fsnotify events on
// .note files are read back in.
//
// Renames delete the old task immediately and schedule a debounced Sync to
// pick up the new name.
func (m *Mirror) Run(ctx context.Context, notes Notes) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(m.root); err != nil {
		return err
	}
	if err := m.Sync(ctx, notes); err != nil {
		return err
	}

	m.logger.Info("mirror: started", slog.String("root", m.root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		if m.dropped.Swap(false) {
			scheduleReconcile()
		}

		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			m.logger.Info("mirror: stopped")
			return nil

		case <-reconcileCh:
			if err := m.Sync(ctx, notes); err != nil {
				m.logger.Warn("mirror: reconcile failed", slog.String("error", err.Error()))
			}

		case ev := <-m.events:
			m.apply(ctx, notes, ev)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			taskID, ok := taskIDOf(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				m.importFile(ctx, notes, taskID)

			case ev.Op&fsnotify.Remove != 0:
				m.removeTask(ctx, notes, taskID)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports only the old name; the new one arrives
				// as a Create if it stays inside the directory.
				m.removeTask(ctx, notes, taskID)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("mirror: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// taskIDOf maps a watched path to its task id. Hidden files, including the
// temp files of atomic writes, are ignored.
func taskIDOf(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, storage.Ext) {
		return "", false
	}
	id := strings.TrimSuffix(name, storage.Ext)
	return id, id != ""
}
