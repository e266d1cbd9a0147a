// Package parser decodes persisted note strings into notes and encodes them back.
//
// The canonical encoding is a JSON object with a "format" discriminator. Any
// string that does not decode to a valid object of that shape is a legacy
// plain-text note.
package parser

import (
	_ "embed"
	"encoding/json"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starford/tasknotes/internal/checklist"
	"github.com/starford/tasknotes/internal/models"
)

//go:embed note.schema.json
var noteSchemaJSON string

var noteSchema = jsonschema.MustCompileString("note.schema.json", noteSchemaJSON)

// Parse turns a persisted note string into a Note. It never fails: input that
// is not a valid structured note comes back as a TextNote holding raw.
// Checklist items of a structured note are sorted by order and renumbered
// 0..n-1, so a note that is already dense comes back unchanged.
func Parse(raw string) models.Note {
	if raw == "" {
		return models.TextNote{}
	}
	if n, ok := decode(raw); ok {
		return n
	}
	return legacy(raw)
}

// ParseNullable is Parse for columns that may be NULL. A nil input is an
// empty TextNote.
func ParseNullable(raw *string) models.Note {
	if raw == nil {
		return models.TextNote{}
	}
	return Parse(*raw)
}

// IsStructured reports whether raw is in the canonical structured encoding
// rather than a legacy plain-text note.
func IsStructured(raw string) bool {
	_, ok := decode(raw)
	return ok
}

// decode runs the decode, validate, bind pipeline. The bool is false when
// raw is not a structured note.
func decode(raw string) (models.Note, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	if err := noteSchema.Validate(doc); err != nil {
		return nil, false
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, false
	}
	return bind(obj)
}

// bind builds the note from the validated document itself, so only the
// exact keys the schema checked are read.
func bind(obj map[string]any) (models.Note, bool) {
	format, _ := obj["format"].(string)
	content, _ := obj["content"].(string)

	switch models.Format(format) {
	case models.FormatText:
		return models.TextNote{Content: content}, true
	case models.FormatList:
		items, ok := bindItems(obj["items"])
		if !ok {
			return nil, false
		}
		return models.ListNote{Items: checklist.Normalize(items)}, true
	case models.FormatBoth:
		items, ok := bindItems(obj["items"])
		if !ok {
			return nil, false
		}
		return models.CombinedNote{Content: content, Items: checklist.Normalize(items)}, true
	default:
		return nil, false
	}
}

func bindItems(v any) ([]models.ChecklistItem, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	items := make([]models.ChecklistItem, 0, len(raw))
	for _, r := range raw {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, false
		}
		it := models.ChecklistItem{}
		it.ID, _ = obj["id"].(string)
		it.Text, _ = obj["text"].(string)
		it.Completed, _ = obj["completed"].(bool)
		num, _ := obj["order"].(json.Number)
		if it.Order, ok = intOf(num); !ok {
			return nil, false
		}
		if ts, isString := obj["createdAt"].(string); isString {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return nil, false
			}
			it.CreatedAt = &t
		}
		items = append(items, it)
	}
	return items, true
}

// intOf accepts any integral JSON number, including exponent forms such as
// 1e2, as long as it fits in an int.
func intOf(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		return int(i), int64(int(i)) == i
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// legacy wraps raw as plain text. Invalid UTF-8 is replaced so the note
// survives a Stringify/Parse round trip unchanged.
func legacy(raw string) models.Note {
	if !utf8.ValidString(raw) {
		raw = strings.ToValidUTF8(raw, string(utf8.RuneError))
	}
	return models.TextNote{Content: raw}
}
