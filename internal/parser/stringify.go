package parser

import (
	"encoding/json"

	"github.com/starford/tasknotes/internal/models"
)

type textDoc struct {
	Format  models.Format `json:"format"`
	Content string        `json:"content"`
}

type listDoc struct {
	Format models.Format          `json:"format"`
	Items  []models.ChecklistItem `json:"items"`
}

type bothDoc struct {
	Format  models.Format          `json:"format"`
	Content string                 `json:"content"`
	Items   []models.ChecklistItem `json:"items"`
}

// Stringify encodes n in the canonical structured form, carrying only the
// fields of its format. A nil note encodes as an empty text note.
func Stringify(n models.Note) string {
	var doc any
	switch v := n.(type) {
	case models.TextNote:
		doc = textDoc{Format: models.FormatText, Content: v.Content}
	case models.ListNote:
		doc = listDoc{Format: models.FormatList, Items: nonNilItems(v.Items)}
	case models.CombinedNote:
		doc = bothDoc{Format: models.FormatBoth, Content: v.Content, Items: nonNilItems(v.Items)}
	default:
		return emptyText
	}
	data, err := json.Marshal(doc)
	if err != nil {
		// Only out-of-range item timestamps can fail; keep the content and
		// drop them.
		return Stringify(withoutTimestamps(n))
	}
	return string(data)
}

// emptyText is the encoding of an empty text note.
const emptyText = `{"format":"text","content":""}`

func withoutTimestamps(n models.Note) models.Note {
	strip := func(items []models.ChecklistItem) []models.ChecklistItem {
		out := models.CloneItems(items)
		for i := range out {
			out[i].CreatedAt = nil
		}
		return out
	}
	switch v := n.(type) {
	case models.ListNote:
		return models.ListNote{Items: strip(v.Items)}
	case models.CombinedNote:
		return models.CombinedNote{Content: v.Content, Items: strip(v.Items)}
	default:
		return nil
	}
}

func nonNilItems(items []models.ChecklistItem) []models.ChecklistItem {
	if items == nil {
		return []models.ChecklistItem{}
	}
	return items
}
