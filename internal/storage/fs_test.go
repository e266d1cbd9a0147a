package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempArchive(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempArchive(t)
	content := []byte(`{"format":"text","content":"hello"}`)
	if err := s.Write("task-1", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("task-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	if _, err := os.Stat(filepath.Join(s.root, "task-1"+Ext)); err != nil {
		t.Errorf("expected %s file: %v", Ext, err)
	}
}

func TestDelete(t *testing.T) {
	s := tempArchive(t)
	_ = s.Write("del", []byte("bye"))
	if err := s.Delete("del"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del"); err == nil {
		t.Error("expected error reading deleted note")
	}
}

func TestList(t *testing.T) {
	s := tempArchive(t)
	_ = s.Write("b", []byte("b"))
	_ = s.Write("a", []byte("a"))
	_ = os.WriteFile(filepath.Join(s.root, "readme.txt"), []byte("not a note"), 0o644)
	_ = os.Mkdir(filepath.Join(s.root, "sub.note"), 0o755)

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[0].TaskID != "a" || items[1].TaskID != "b" {
		t.Errorf("task ids = %q, %q, want a, b", items[0].TaskID, items[1].TaskID)
	}
	if items[0].Checksum == "" {
		t.Error("checksum should be set")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempArchive(t)

	cases := []string{
		"../../etc/passwd",
		"../outside",
		"/etc/shadow",
		"a/b",
		"..",
		"",
	}
	for _, id := range cases {
		if _, err := s.Read(id); err == nil {
			t.Errorf("expected error for id %q", id)
		}
		if err := s.Write(id, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", id)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempArchive(t)
	_ = s.Write("atomic", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".tasknotes-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "tasknotes-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
