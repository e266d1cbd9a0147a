package noteservice

import (
	"context"
	"reflect"
	"testing"

	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/parser"
	"github.com/starford/tasknotes/internal/testutil"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newTestService(t, true)
	_, _ = src.Save(ctx, "a", models.TextNote{Content: "alpha"}, "")
	_, _ = src.Create(ctx, "b")
	_, _, _ = src.AddItem(ctx, "b", "one")

	_, archive := testutil.TestArchive(t)
	n, err := src.Export(ctx, archive)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Errorf("exported = %d, want 2", n)
	}
	raw, _ := archive.Read("a")
	if string(raw) != `{"format":"text","content":"alpha"}` {
		t.Errorf("archived a = %s", raw)
	}

	dst, _, _ := newTestService(t, true)
	res, err := dst.Import(ctx, archive, false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, id := range []string{"a", "b"} {
		want, _ := src.Get(ctx, id)
		got, err := dst.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if !reflect.DeepEqual(got.Note, want.Note) {
			t.Errorf("%s = %#v, want %#v", id, got.Note, want.Note)
		}
	}
}

func TestImport_LegacyFilesAndSkip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, true)
	_, archive := testutil.TestArchive(t)
	_ = archive.Write("legacy", []byte("remember the milk"))
	_ = archive.Write("existing", []byte(parser.Stringify(models.TextNote{Content: "from archive"})))
	_, _ = svc.Save(ctx, "existing", models.TextNote{Content: "local"}, "")

	res, err := svc.Import(ctx, archive, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	d, _ := svc.Get(ctx, "legacy")
	if !reflect.DeepEqual(d.Note, models.TextNote{Content: "remember the milk"}) {
		t.Errorf("legacy = %#v", d.Note)
	}
	d, _ = svc.Get(ctx, "existing")
	if models.ContentOf(d.Note) != "local" {
		t.Errorf("existing was overwritten without overwrite flag")
	}

	if _, err := svc.Import(ctx, archive, true); err != nil {
		t.Fatal(err)
	}
	d, _ = svc.Get(ctx, "existing")
	if models.ContentOf(d.Note) != "from archive" {
		t.Errorf("existing = %q, want from archive", models.ContentOf(d.Note))
	}
}
