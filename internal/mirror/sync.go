package mirror

import (
	"context"
	"log/slog"
)

// Sync reconciles the directory with the store:
//   - files without notes are imported
//   - notes without files are written out
//   - when both exist and differ, the more recently modified side wins
//
// Notes are never deleted by Sync, so an empty directory is simply filled.
func (m *Mirror) Sync(ctx context.Context, notes Notes) error {
	entries, err := m.archive.List()
	if err != nil {
		return err
	}
	all, err := notes.All(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]int, len(all))
	for i, d := range all {
		byID[d.TaskID] = i
	}

	var imported, exported int
	onDisk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		onDisk[e.TaskID] = struct{}{}

		i, ok := byID[e.TaskID]
		if !ok {
			m.importFile(ctx, notes, e.TaskID)
			imported++
			continue
		}
		d := &all[i]
		if e.Checksum == d.Checksum {
			continue
		}
		if e.UpdatedAt.After(d.UpdatedAt) {
			m.importFile(ctx, notes, e.TaskID)
			imported++
		} else {
			m.writeFile(d)
			exported++
		}
	}

	for i := range all {
		if _, ok := onDisk[all[i].TaskID]; ok {
			continue
		}
		m.writeFile(&all[i])
		exported++
	}

	m.logger.Info("mirror: synced",
		slog.String("root", m.root),
		slog.Int("imported", imported),
		slog.Int("exported", exported))
	return nil
}
