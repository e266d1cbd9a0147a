// Package testutil provides shared test helpers for setting up note stores and archives.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/tasknotes/internal/notestore"
	"github.com/starford/tasknotes/internal/storage"
)

// TestDB creates a temporary SQLite note store that is automatically cleaned up.
func TestDB(t *testing.T, opts ...notestore.Option) *notestore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tasknotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := notestore.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArchive creates a temporary archive directory with a storage.Provider.
func TestArchive(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
