//go:build sqlite_fts5

package notestore

import (
	"context"
	"testing"

	"github.com/starford/tasknotes/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t, ModeString)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM task_notes_fts`).Scan(&count); err != nil {
		t.Fatalf("task_notes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchItemsAndContent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t, ModeRecord)
	_, _ = db.Upsert(ctx, "t1", models.CombinedNote{
		Content: "Kitchen renovation",
		Items:   []models.ChecklistItem{{ID: "a", Text: "order tiles", Order: 0}},
	})
	_, _ = db.Upsert(ctx, "t2", models.TextNote{Content: "unrelated"})

	for _, q := range []string{"renovation", "tiles", "til"} {
		hits, err := db.Search(ctx, q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(hits) != 1 || hits[0].TaskID != "t1" {
			t.Errorf("Search(%q) = %+v, want t1", q, hits)
		}
	}
}

func TestFTS5_QuotesInQuery(t *testing.T) {
	db := testDB(t, ModeString)
	if _, err := db.Search(context.Background(), `say "hi" OR`, 10); err != nil {
		t.Errorf("Search with quotes: %v", err)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	ctx := context.Background()
	db := testDB(t, ModeString)
	_, _ = db.Upsert(ctx, "gone", models.TextNote{Content: "vanishing content"})
	_ = db.Delete(ctx, "gone")

	hits, _ := db.Search(ctx, "vanishing", 10)
	if len(hits) != 0 {
		t.Errorf("deleted note still in FTS index: %+v", hits)
	}
}

func TestFTS5_PutRawIndexesLegacyText(t *testing.T) {
	ctx := context.Background()
	db := testDB(t, ModeString)
	raw := "legacy plain words"
	if err := db.PutRaw(ctx, "old", &raw); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	_, _ = db.Upsert(ctx, "old", models.TextNote{Content: "replacement text"})

	if hits, _ := db.Search(ctx, "legacy", 10); len(hits) != 0 {
		t.Error("old FTS content should be gone")
	}
	hits, _ := db.Search(ctx, "replacement", 10)
	if len(hits) != 1 || hits[0].TaskID != "old" {
		t.Errorf("FTS not updated: %+v", hits)
	}
}
