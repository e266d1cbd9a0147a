// Package record maps notes to and from the normalized storage shape, where
// text and checklist items live in separate fields.
package record

import (
	"github.com/starford/tasknotes/internal/checklist"
	"github.com/starford/tasknotes/internal/models"
)

// NoteType is the storage-side discriminator.
type NoteType string

// Storage note types.
const (
	NoteTypeText      NoteType = "text"
	NoteTypeChecklist NoteType = "checklist"
	NoteTypeBoth      NoteType = "both"
)

// Notes is the text part of a record.
type Notes struct {
	Content string `json:"content"`
}

// Record is the normalized storage projection of a note.
type Record struct {
	NoteType       NoteType               `json:"noteType"`
	Notes          *Notes                 `json:"notes"`
	ChecklistItems []models.ChecklistItem `json:"checklistItems"`
}

// ToRecord projects n onto the storage shape. Fields that do not belong to
// the note's format are left empty: Notes is nil for checklists and
// ChecklistItems is empty for text.
func ToRecord(n models.Note) Record {
	switch v := n.(type) {
	case models.ListNote:
		return Record{
			NoteType:       NoteTypeChecklist,
			ChecklistItems: models.CloneItems(v.Items),
		}
	case models.CombinedNote:
		return Record{
			NoteType:       NoteTypeBoth,
			Notes:          &Notes{Content: v.Content},
			ChecklistItems: models.CloneItems(v.Items),
		}
	case models.TextNote:
		return Record{
			NoteType:       NoteTypeText,
			Notes:          &Notes{Content: v.Content},
			ChecklistItems: []models.ChecklistItem{},
		}
	default:
		return Record{
			NoteType:       NoteTypeText,
			Notes:          &Notes{},
			ChecklistItems: []models.ChecklistItem{},
		}
	}
}

// FromRecord rebuilds a note from its storage shape. A missing or unknown
// NoteType yields an empty TextNote. Items are sorted and reindexed.
func FromRecord(r Record) models.Note {
	switch r.NoteType {
	case NoteTypeText:
		return models.TextNote{Content: r.content()}
	case NoteTypeChecklist:
		return models.ListNote{Items: checklist.Normalize(r.ChecklistItems)}
	case NoteTypeBoth:
		return models.CombinedNote{Content: r.content(), Items: checklist.Normalize(r.ChecklistItems)}
	default:
		return models.TextNote{}
	}
}

func (r Record) content() string {
	if r.Notes == nil {
		return ""
	}
	return r.Notes.Content
}
