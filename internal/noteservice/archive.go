package noteservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/parser"
	"github.com/starford/tasknotes/internal/storage"
)

// ImportResult summarises an Import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Export writes every stored note to p in its canonical serialized form and
// returns the number of notes written.
func (s *Service) Export(ctx context.Context, p storage.Provider) (int, error) {
	notes, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	for i, d := range notes {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := p.Write(d.TaskID, []byte(parser.Stringify(d.Note))); err != nil {
			return i, fmt.Errorf("noteservice: export %s: %w", d.TaskID, err)
		}
	}
	return len(notes), nil
}

// Import reads every archived note from p through the parser, so plain-text
// files become text notes. Tasks that already have notes are skipped unless
// overwrite is set.
func (s *Service) Import(ctx context.Context, p storage.Provider, overwrite bool) (ImportResult, error) {
	var res ImportResult
	entries, err := p.List()
	if err != nil {
		return res, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !overwrite {
			_, err := s.store.Get(ctx, e.TaskID)
			if err == nil {
				res.Skipped++
				continue
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return res, err
			}
		}
		data, err := p.Read(e.TaskID)
		if err != nil {
			return res, err
		}
		if _, err := s.SaveRaw(ctx, e.TaskID, string(data), ""); err != nil {
			return res, fmt.Errorf("noteservice: import %s: %w", e.TaskID, err)
		}
		res.Imported++
	}
	return res, nil
}
