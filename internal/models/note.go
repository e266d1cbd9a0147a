// Package models defines the domain types for task notes.
package models

import "time"

// Format is the discriminator selecting which Note shape is active.
type Format string

// Note formats.
const (
	FormatText Format = "text"
	FormatList Format = "list"
	FormatBoth Format = "both"
)

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	switch f {
	case FormatText, FormatList, FormatBoth:
		return true
	}
	return false
}

// ChecklistItem is one line of a structured list note.
type ChecklistItem struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Completed bool       `json:"completed"`
	Order     int        `json:"order"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Note is the in-memory representation of a task's notes. The set of
// implementations is closed: TextNote, ListNote and CombinedNote.
type Note interface {
	Format() Format
	isNote()
}

// TextNote holds free text only.
type TextNote struct {
	Content string
}

// ListNote holds a checklist only.
type ListNote struct {
	Items []ChecklistItem
}

// CombinedNote holds free text and a checklist side by side.
type CombinedNote struct {
	Content string
	Items   []ChecklistItem
}

func (TextNote) Format() Format     { return FormatText }
func (ListNote) Format() Format     { return FormatList }
func (CombinedNote) Format() Format { return FormatBoth }

func (TextNote) isNote()     {}
func (ListNote) isNote()     {}
func (CombinedNote) isNote() {}

// NewDefault returns the note a freshly created task starts with: an empty checklist.
func NewDefault() Note {
	return ListNote{Items: []ChecklistItem{}}
}

// Empty returns a brand-new empty note of the given format. Unknown formats
// yield an empty TextNote.
func Empty(f Format) Note {
	switch f {
	case FormatList:
		return ListNote{Items: []ChecklistItem{}}
	case FormatBoth:
		return CombinedNote{Items: []ChecklistItem{}}
	default:
		return TextNote{}
	}
}

// ItemsOf returns the checklist of n, or nil for text notes.
func ItemsOf(n Note) []ChecklistItem {
	switch v := n.(type) {
	case ListNote:
		return v.Items
	case CombinedNote:
		return v.Items
	default:
		return nil
	}
}

// ContentOf returns the free text of n, or "" for list notes.
func ContentOf(n Note) string {
	switch v := n.(type) {
	case TextNote:
		return v.Content
	case CombinedNote:
		return v.Content
	default:
		return ""
	}
}

// CloneItems returns a deep copy of items that is never nil.
func CloneItems(items []ChecklistItem) []ChecklistItem {
	out := make([]ChecklistItem, len(items))
	for i, it := range items {
		if it.CreatedAt != nil {
			ts := *it.CreatedAt
			it.CreatedAt = &ts
		}
		out[i] = it
	}
	return out
}
