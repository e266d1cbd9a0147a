// Package convert switches notes between formats under a preserve-content policy.
package convert

import "github.com/starford/tasknotes/internal/models"

// Convert returns note switched to target. When preserveContent is false the
// result is always a brand-new empty note of the target format. When it is
// true, content and items are carried over wherever the target can hold them;
// leaving CombinedNote drops whichever side the target cannot represent.
//
// The result never aliases note's item slice. A note already in target
// format, or an unknown target, is returned unchanged.
func Convert(note models.Note, target models.Format, preserveContent bool) models.Note {
	if note == nil {
		note = models.TextNote{}
	}
	if note.Format() == target || !target.Valid() {
		return note
	}
	if !preserveContent {
		return models.Empty(target)
	}

	switch src := note.(type) {
	case models.TextNote:
		switch target {
		case models.FormatBoth:
			return models.CombinedNote{Content: src.Content, Items: []models.ChecklistItem{}}
		default:
			// Text is not split into checklist items.
			return models.Empty(models.FormatList)
		}
	case models.ListNote:
		switch target {
		case models.FormatBoth:
			return models.CombinedNote{Content: "", Items: models.CloneItems(src.Items)}
		default:
			return models.Empty(models.FormatText)
		}
	case models.CombinedNote:
		switch target {
		case models.FormatText:
			return models.TextNote{Content: src.Content}
		default:
			return models.ListNote{Items: models.CloneItems(src.Items)}
		}
	default:
		return models.Empty(target)
	}
}

// IsLossy reports whether converting note to target would discard any
// non-empty content or checklist items.
func IsLossy(note models.Note, target models.Format, preserveContent bool) bool {
	if note == nil || note.Format() == target || !target.Valid() {
		return false
	}
	hadContent := models.ContentOf(note) != ""
	hadItems := len(models.ItemsOf(note)) > 0

	out := Convert(note, target, preserveContent)
	lostContent := hadContent && models.ContentOf(out) == ""
	lostItems := hadItems && len(models.ItemsOf(out)) == 0
	return lostContent || lostItems
}
