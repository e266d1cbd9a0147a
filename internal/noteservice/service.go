// Package noteservice is the editing session layer for task notes: it loads a
// task's note, applies checklist edits and format switches, and saves it back.
package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/checklist"
	"github.com/starford/tasknotes/internal/checksum"
	"github.com/starford/tasknotes/internal/convert"
	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/notestore"
	"github.com/starford/tasknotes/internal/parser"
)

// EventKind names the change passed to a Notifier.
type EventKind string

// Event kinds passed to a Notifier.
const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventConverted EventKind = "converted"
	EventDeleted   EventKind = "deleted"
)

// Policy supplies the preserve-content setting.
type Policy interface {
	PreserveContent() bool
}

// Notifier receives a callback after every successful change.
type Notifier interface {
	PublishNoteEvent(kind EventKind, taskID string)
}

// NoteDetail is the full representation of a task's notes.
type NoteDetail struct {
	TaskID    string
	Note      models.Note
	Checksum  string
	UpdatedAt time.Time
}

// MarshalJSON encodes the note in its canonical persisted form.
func (d NoteDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TaskID    string          `json:"taskId"`
		Format    models.Format   `json:"format"`
		Note      json.RawMessage `json:"note"`
		Checksum  string          `json:"checksum"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}{
		TaskID:    d.TaskID,
		Format:    d.Note.Format(),
		Note:      json.RawMessage(parser.Stringify(d.Note)),
		Checksum:  d.Checksum,
		UpdatedAt: d.UpdatedAt,
	})
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	TaskID    string        `json:"taskId"`
	Format    models.Format `json:"format"`
	Preview   string        `json:"preview"`
	Items     int           `json:"items"`
	Completed int           `json:"completed"`
	Checksum  string        `json:"checksum"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Service coordinates the note store, the note model and change notifications.
type Service struct {
	store     notestore.NoteStore
	policy    Policy
	notifiers []Notifier
	itemOpts  []checklist.Option

	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers a change notifier. Every registered notifier sees
// every change, in registration order.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

// WithChecklistOptions passes options to every checklist.Store the service builds.
func WithChecklistOptions(opts ...checklist.Option) Option {
	return func(s *Service) { s.itemOpts = append(s.itemOpts, opts...) }
}

// NewService creates a new note service. A nil policy preserves content.
func NewService(store notestore.NoteStore, policy Policy, opts ...Option) *Service {
	s := &Service{store: store, policy: policy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PreserveContent returns the current preserve-content setting.
func (s *Service) PreserveContent() bool {
	if s.policy == nil {
		return true
	}
	return s.policy.PreserveContent()
}

// Create initialises the notes of a new task with the default empty checklist.
func (s *Service) Create(ctx context.Context, taskID string) (*NoteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Get(ctx, taskID); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	row, err := s.store.Upsert(ctx, taskID, models.NewDefault())
	if err != nil {
		return nil, err
	}
	s.notify(EventCreated, taskID)
	return detail(row), nil
}

// Get loads and decodes the notes of a task.
func (s *Service) Get(ctx context.Context, taskID string) (*NoteDetail, error) {
	row, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return detail(row), nil
}

// Save replaces the note of a task. A non-empty ifMatch must equal the
// current checksum; saving over a missing task creates it.
func (s *Service) Save(ctx context.Context, taskID string, note models.Note, ifMatch string) (*NoteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Get(ctx, taskID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if ifMatch != "" {
			return nil, apperr.ErrConflict
		}
	case err != nil:
		return nil, err
	case !checksum.Matches(ifMatch, current.Checksum):
		return nil, apperr.ErrConflict
	}

	row, err := s.store.Upsert(ctx, taskID, note)
	if err != nil {
		return nil, err
	}
	s.notify(EventUpdated, taskID)
	return detail(row), nil
}

// SaveRaw parses raw (structured or legacy plain text) and saves the result.
func (s *Service) SaveRaw(ctx context.Context, taskID, raw, ifMatch string) (*NoteDetail, error) {
	return s.Save(ctx, taskID, parser.Parse(raw), ifMatch)
}

// Convert switches a task's note to target using the current preserve-content
// setting. The bool reports whether the switch discarded content.
func (s *Service) Convert(ctx context.Context, taskID string, target models.Format) (*NoteDetail, bool, error) {
	if !target.Valid() {
		return nil, false, apperr.ErrUnsupportedFormat
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if row.Note.Format() == target {
		return detail(row), false, nil
	}
	preserve := s.PreserveContent()
	lossy := convert.IsLossy(row.Note, target, preserve)
	out, err := s.store.Upsert(ctx, taskID, convert.Convert(row.Note, target, preserve))
	if err != nil {
		return nil, false, err
	}
	s.notify(EventConverted, taskID)
	return detail(out), lossy, nil
}

// AddItem appends a checklist item. Blank text is ignored and the returned
// item is nil.
func (s *Service) AddItem(ctx context.Context, taskID, text string) (*NoteDetail, *models.ChecklistItem, error) {
	var added *models.ChecklistItem
	d, err := s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		item, ok := st.Add(text)
		if ok {
			added = &item
		}
		return ok
	})
	if err != nil {
		return nil, nil, err
	}
	return d, added, nil
}

// RemoveItem deletes a checklist item.
func (s *Service) RemoveItem(ctx context.Context, taskID, itemID string) (*NoteDetail, error) {
	return s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		return st.Remove(itemID)
	})
}

// ToggleItem flips the completion flag of a checklist item.
func (s *Service) ToggleItem(ctx context.Context, taskID, itemID string) (*NoteDetail, error) {
	return s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		return st.ToggleCompleted(itemID)
	})
}

// SetItemCompleted sets the completion flag of a checklist item.
func (s *Service) SetItemCompleted(ctx context.Context, taskID, itemID string, completed bool) (*NoteDetail, error) {
	return s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		return st.SetCompleted(itemID, completed)
	})
}

// UpdateItemText replaces the text of a checklist item.
func (s *Service) UpdateItemText(ctx context.Context, taskID, itemID, text string) (*NoteDetail, error) {
	return s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		return st.UpdateText(itemID, text)
	})
}

// MoveItem moves a checklist item to toIndex.
func (s *Service) MoveItem(ctx context.Context, taskID, itemID string, toIndex int) (*NoteDetail, error) {
	return s.editItems(ctx, taskID, func(st *checklist.Store) bool {
		return st.Move(itemID, toIndex)
	})
}

// Delete removes the notes of a task.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Get(ctx, taskID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}
	s.notify(EventDeleted, taskID)
	return nil
}

// List returns a page of task notes.
func (s *Service) List(ctx context.Context, limit, offset int) ([]NoteListItem, int, error) {
	rows, total, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return listItems(rows), total, nil
}

// All returns the notes of every task ordered by task id.
func (s *Service) All(ctx context.Context) ([]NoteDetail, error) {
	rows, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NoteDetail, 0, len(rows))
	for i := range rows {
		out = append(out, *detail(&rows[i]))
	}
	return out, nil
}

// Search finds task notes whose text or checklist items contain query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]NoteListItem, error) {
	rows, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return listItems(rows), nil
}

// editItems runs fn against the task's checklist and saves the result when
// fn reports a change. Text notes have no checklist.
func (s *Service) editItems(ctx context.Context, taskID string, fn func(*checklist.Store) bool) (*NoteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var st *checklist.Store
	switch n := row.Note.(type) {
	case models.ListNote:
		st = checklist.New(n.Items, s.itemOpts...)
	case models.CombinedNote:
		st = checklist.New(n.Items, s.itemOpts...)
	default:
		return nil, apperr.ErrUnsupportedFormat
	}
	if !fn(st) {
		return detail(row), nil
	}

	var next models.Note
	switch n := row.Note.(type) {
	case models.CombinedNote:
		next = models.CombinedNote{Content: n.Content, Items: st.SortedItems()}
	default:
		next = models.ListNote{Items: st.SortedItems()}
	}
	out, err := s.store.Upsert(ctx, taskID, next)
	if err != nil {
		return nil, err
	}
	s.notify(EventUpdated, taskID)
	return detail(out), nil
}

// notify runs with s.mu held; notifiers must not call back into the service.
func (s *Service) notify(kind EventKind, taskID string) {
	for _, n := range s.notifiers {
		n.PublishNoteEvent(kind, taskID)
	}
}

func detail(r *notestore.NoteRow) *NoteDetail {
	return &NoteDetail{
		TaskID:    r.TaskID,
		Note:      r.Note,
		Checksum:  r.Checksum,
		UpdatedAt: r.UpdatedAt,
	}
}

const previewLen = 80

func listItems(rows []notestore.NoteRow) []NoteListItem {
	out := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items := models.ItemsOf(r.Note)
		done := 0
		for _, it := range items {
			if it.Completed {
				done++
			}
		}
		out[i] = NoteListItem{
			TaskID:    r.TaskID,
			Format:    r.Note.Format(),
			Preview:   preview(r.Note),
			Items:     len(items),
			Completed: done,
			Checksum:  r.Checksum,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out
}

// preview returns the start of the note text, or of the first checklist item
// when there is no text.
func preview(n models.Note) string {
	text := models.ContentOf(n)
	if text == "" {
		if items := models.ItemsOf(n); len(items) > 0 {
			text = items[0].Text
		}
	}
	r := []rune(text)
	if len(r) > previewLen {
		return string(r[:previewLen]) + "…"
	}
	return text
}
