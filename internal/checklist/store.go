// Package checklist maintains ordered checklist items and their dense 0..n-1 ordering.
package checklist

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tasknotes/internal/models"
)

// Store is a mutable, ordered collection of checklist items. Every mutation
// leaves Order values as a dense permutation of 0..n-1. Operations on unknown
// ids are no-ops; each mutator reports whether it changed anything.
type Store struct {
	items []models.ChecklistItem // always kept sorted by Order
	newID func() string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDFunc overrides item id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// New creates a Store seeded with a copy of items, normalised to the
// ordering invariant.
func New(items []models.ChecklistItem, opts ...Option) *Store {
	s := &Store{
		items: Normalize(items),
		newID: newItemID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Len returns the number of items.
func (s *Store) Len() int {
	return len(s.items)
}

// SortedItems returns a copy of the items ordered by Order ascending.
func (s *Store) SortedItems() []models.ChecklistItem {
	return models.CloneItems(s.items)
}

// Get returns the item with the given id.
func (s *Store) Get(id string) (models.ChecklistItem, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return models.ChecklistItem{}, false
}

// Add appends a new incomplete item. Blank text is rejected.
func (s *Store) Add(text string) (models.ChecklistItem, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChecklistItem{}, false
	}
	created := s.now().UTC()
	item := models.ChecklistItem{
		ID:        s.newID(),
		Text:      text,
		Completed: false,
		Order:     len(s.items),
		CreatedAt: &created,
	}
	s.items = append(s.items, item)
	return item, true
}

// Remove deletes the item and reindexes the rest.
func (s *Store) Remove(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	Reindex(s.items)
	return true
}

// ToggleCompleted flips the completion flag of the item.
func (s *Store) ToggleCompleted(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i].Completed = !s.items[i].Completed
	return true
}

// SetCompleted sets the completion flag of the item.
func (s *Store) SetCompleted(id string, completed bool) bool {
	i := s.indexOf(id)
	if i < 0 || s.items[i].Completed == completed {
		return false
	}
	s.items[i].Completed = completed
	return true
}

// UpdateText replaces the text of the item. Empty text is allowed.
func (s *Store) UpdateText(id, text string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items[i].Text = text
	return true
}

// Move reinserts the item at toIndex, clamped to [0, Len()-1], and reindexes.
func (s *Store) Move(id string, toIndex int) bool {
	from := s.indexOf(id)
	if from < 0 {
		return false
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(s.items)-1 {
		toIndex = len(s.items) - 1
	}
	if toIndex == from {
		return false
	}
	moved := s.items[from]
	rest := append(s.items[:from:from], s.items[from+1:]...)
	out := make([]models.ChecklistItem, 0, len(s.items))
	out = append(out, rest[:toIndex]...)
	out = append(out, moved)
	out = append(out, rest[toIndex:]...)
	s.items = out
	Reindex(s.items)
	return true
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Sort orders items in place by Order, keeping the relative position of ties.
func Sort(items []models.ChecklistItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Order < items[j].Order
	})
}

// Reindex assigns each item its positional index as Order.
func Reindex(items []models.ChecklistItem) {
	for i := range items {
		items[i].Order = i
	}
}

// Normalize returns a sorted, reindexed copy of items that is never nil.
func Normalize(items []models.ChecklistItem) []models.ChecklistItem {
	out := models.CloneItems(items)
	Sort(out)
	Reindex(out)
	return out
}
