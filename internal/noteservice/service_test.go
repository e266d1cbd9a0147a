package noteservice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/checklist"
	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/notestore"
	"github.com/starford/tasknotes/internal/settings"
	"github.com/starford/tasknotes/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishNoteEvent(kind EventKind, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(kind)+":"+taskID)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newTestService(t *testing.T, preserve bool) (*Service, *settings.Provider, *recorder) {
	t.Helper()
	n := 0
	ids := checklist.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("item-%d", n)
	})
	policy := settings.New(preserve)
	rec := &recorder{}
	svc := NewService(testutil.TestDB(t), policy, WithNotifier(rec), WithChecklistOptions(ids))
	return svc, policy, rec
}

func TestCreate_DefaultsToEmptyList(t *testing.T) {
	svc, _, rec := newTestService(t, true)
	ctx := context.Background()

	d, err := svc.Create(ctx, "task-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !reflect.DeepEqual(d.Note, models.NewDefault()) {
		t.Errorf("note = %#v, want empty list", d.Note)
	}
	if d.Checksum == "" {
		t.Error("checksum should be set")
	}
	if _, err := svc.Create(ctx, "task-1"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second Create err = %v, want ErrAlreadyExists", err)
	}
	if got := rec.list(); len(got) != 1 || got[0] != "created:task-1" {
		t.Errorf("events = %v", got)
	}
}

func TestSave_IfMatch(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()

	d, err := svc.Save(ctx, "t", models.TextNote{Content: "v1"}, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.Save(ctx, "t", models.TextNote{Content: "v2"}, "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale save err = %v, want ErrConflict", err)
	}
	d2, err := svc.Save(ctx, "t", models.TextNote{Content: "v2"}, `"`+d.Checksum+`"`)
	if err != nil {
		t.Fatalf("Save with quoted etag: %v", err)
	}
	if d2.Checksum == d.Checksum {
		t.Error("checksum should change")
	}
	if _, err := svc.Save(ctx, "missing", models.TextNote{}, "abc"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("save on missing with if-match err = %v, want ErrConflict", err)
	}
}

func TestSaveRaw_LegacyText(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	d, err := svc.SaveRaw(context.Background(), "t", "plain old note", "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d.Note, models.TextNote{Content: "plain old note"}) {
		t.Errorf("note = %#v", d.Note)
	}
}

func TestConvert_FollowsPreserveSetting(t *testing.T) {
	svc, policy, rec := newTestService(t, true)
	ctx := context.Background()

	if _, err := svc.Save(ctx, "t", models.TextNote{Content: "keep me"}, ""); err != nil {
		t.Fatal(err)
	}
	d, lossy, err := svc.Convert(ctx, "t", models.FormatBoth)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if lossy {
		t.Error("text -> both should not be lossy")
	}
	if !reflect.DeepEqual(d.Note, models.CombinedNote{Content: "keep me", Items: []models.ChecklistItem{}}) {
		t.Errorf("note = %#v", d.Note)
	}

	policy.SetPreserveContent(false)
	d, lossy, err = svc.Convert(ctx, "t", models.FormatText)
	if err != nil {
		t.Fatal(err)
	}
	if !lossy {
		t.Error("switch without preserve should report loss")
	}
	if !reflect.DeepEqual(d.Note, models.TextNote{}) {
		t.Errorf("note = %#v, want empty text", d.Note)
	}

	if _, _, err := svc.Convert(ctx, "t", models.Format("kanban")); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Errorf("unknown target err = %v", err)
	}

	converted := 0
	for _, e := range rec.list() {
		if strings.HasPrefix(e, string(EventConverted)) {
			converted++
		}
	}
	if converted != 2 {
		t.Errorf("converted events = %d, want 2", converted)
	}
}

func TestConvert_SameFormatIsNoop(t *testing.T) {
	svc, _, rec := newTestService(t, true)
	ctx := context.Background()
	before, _ := svc.Create(ctx, "t")
	after, lossy, err := svc.Convert(ctx, "t", models.FormatList)
	if err != nil {
		t.Fatal(err)
	}
	if lossy || after.Checksum != before.Checksum {
		t.Errorf("same-format convert changed the note")
	}
	if got := rec.list(); len(got) != 1 {
		t.Errorf("events = %v, want only created", got)
	}
}

func TestItemOps(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	if _, err := svc.Create(ctx, "t"); err != nil {
		t.Fatal(err)
	}

	_, milk, err := svc.AddItem(ctx, "t", "Buy milk")
	if err != nil || milk == nil {
		t.Fatalf("AddItem: %v, %v", milk, err)
	}
	_, dog, _ := svc.AddItem(ctx, "t", "Walk dog")
	if _, blank, _ := svc.AddItem(ctx, "t", "   "); blank != nil {
		t.Errorf("blank add returned %+v", blank)
	}

	d, err := svc.MoveItem(ctx, "t", dog.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	items := models.ItemsOf(d.Note)
	if len(items) != 2 || items[0].Text != "Walk dog" || items[1].Order != 1 {
		t.Errorf("after move = %+v", items)
	}

	d, _ = svc.ToggleItem(ctx, "t", milk.ID)
	if !models.ItemsOf(d.Note)[1].Completed {
		t.Error("toggle should complete milk")
	}
	d, _ = svc.SetItemCompleted(ctx, "t", milk.ID, false)
	if models.ItemsOf(d.Note)[1].Completed {
		t.Error("SetItemCompleted(false) should clear milk")
	}
	d, _ = svc.UpdateItemText(ctx, "t", milk.ID, "Buy oat milk")
	if models.ItemsOf(d.Note)[1].Text != "Buy oat milk" {
		t.Errorf("text = %q", models.ItemsOf(d.Note)[1].Text)
	}

	d, _ = svc.RemoveItem(ctx, "t", dog.ID)
	items = models.ItemsOf(d.Note)
	if len(items) != 1 || items[0].ID != milk.ID || items[0].Order != 0 {
		t.Errorf("after remove = %+v", items)
	}
}

func TestItemOps_KeepCombinedContent(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	if _, err := svc.Save(ctx, "t", models.CombinedNote{Content: "intro"}, ""); err != nil {
		t.Fatal(err)
	}
	d, _, err := svc.AddItem(ctx, "t", "step one")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := d.Note.(models.CombinedNote)
	if !ok || c.Content != "intro" || len(c.Items) != 1 {
		t.Errorf("note = %#v", d.Note)
	}
}

func TestItemOps_TextNoteUnsupported(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	_, _ = svc.Save(ctx, "t", models.TextNote{Content: "x"}, "")
	if _, _, err := svc.AddItem(ctx, "t", "nope"); !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestItemOps_UnknownItemIsNoop(t *testing.T) {
	svc, _, rec := newTestService(t, true)
	ctx := context.Background()
	before, _ := svc.Create(ctx, "t")
	after, err := svc.ToggleItem(ctx, "t", "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if after.Checksum != before.Checksum {
		t.Error("no-op edit should not change checksum")
	}
	if len(rec.list()) != 1 {
		t.Errorf("events = %v", rec.list())
	}
}

func TestDeleteListSearch(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	_, _ = svc.Save(ctx, "a", models.TextNote{Content: "call the plumber"}, "")
	_, _ = svc.Create(ctx, "b")
	_, _, _ = svc.AddItem(ctx, "b", "buy plumbing tape")
	_, _, _ = svc.AddItem(ctx, "b", "done thing")
	_, _ = svc.ToggleItem(ctx, "b", "item-2")

	items, total, err := svc.List(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total = %d, len = %d", total, len(items))
	}
	for _, it := range items {
		if it.TaskID == "b" && (it.Items != 2 || it.Completed != 1 || it.Preview != "buy plumbing tape") {
			t.Errorf("list item b = %+v", it)
		}
	}

	hits, err := svc.Search(ctx, "plumb", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestNoteDetailJSON(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	d, _ := svc.Save(context.Background(), "t", models.TextNote{Content: "hi"}, "")
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"note":{"format":"text","content":"hi"}`) {
		t.Errorf("json = %s", data)
	}
}

func TestRecordModeService(t *testing.T) {
	db := testutil.TestDB(t, notestore.WithMode(notestore.ModeRecord))
	svc := NewService(db, nil)
	ctx := context.Background()
	if !svc.PreserveContent() {
		t.Error("nil policy should preserve content")
	}
	_, _ = svc.Save(ctx, "t", models.CombinedNote{Content: "c"}, "")
	if _, _, err := svc.AddItem(ctx, "t", "one"); err != nil {
		t.Fatal(err)
	}
	d, err := svc.Get(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := d.Note.(models.CombinedNote)
	if !ok || c.Content != "c" || len(c.Items) != 1 || c.Items[0].Text != "one" {
		t.Errorf("note = %#v", d.Note)
	}
}

func TestNotifiers_FanOut(t *testing.T) {
	first, second := &recorder{}, &recorder{}
	svc := NewService(testutil.TestDB(t), nil, WithNotifier(first), WithNotifier(nil), WithNotifier(second))
	ctx := context.Background()

	if _, err := svc.Create(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	want := []string{"created:t1", "deleted:t1"}
	for name, r := range map[string]*recorder{"first": first, "second": second} {
		if got := r.list(); !reflect.DeepEqual(got, want) {
			t.Errorf("%s events = %v, want %v", name, got, want)
		}
	}
}

func TestAll_OrderedByTaskID(t *testing.T) {
	svc, _, _ := newTestService(t, true)
	ctx := context.Background()
	for _, id := range []string{"b", "a", "c"} {
		if _, err := svc.Create(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	all, err := svc.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	var ids []string
	for _, d := range all {
		ids = append(ids, d.TaskID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Errorf("ids = %v, want [a b c]", ids)
	}
}
