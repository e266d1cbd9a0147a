package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/tasknotes/internal/checksum"
)

// FS implements Provider backed by a flat local directory.
type FS struct {
	root string // absolute path to archive directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// safePath maps a task id to its file and rejects ids that would leave the
// archive root or nest into subdirectories.
func (f *FS) safePath(taskID string) (string, error) {
	if taskID == "" || taskID == "." || taskID == ".." {
		return "", fmt.Errorf("storage: invalid task id %q", taskID)
	}
	if strings.ContainsAny(taskID, `/\`) || strings.ContainsRune(taskID, 0) {
		return "", fmt.Errorf("storage: task id contains a path separator: %q", taskID)
	}
	abs := filepath.Join(f.root, taskID+Ext)
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: path escapes archive root: %q", taskID)
	}
	return abs, nil
}

// List returns metadata for every .note file directly under the root, sorted
// by task id.
func (f *FS) List() ([]Entry, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []Entry
	for _, d := range entries {
		if d.IsDir() || !strings.HasSuffix(d.Name(), Ext) || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, Entry{
			TaskID:    strings.TrimSuffix(d.Name(), Ext),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

// Read returns the raw bytes archived for taskID.
func (f *FS) Read(taskID string) ([]byte, error) {
	abs, err := f.safePath(taskID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", taskID, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(taskID string, content []byte) error {
	abs, err := f.safePath(taskID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".tasknotes-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the archived note for taskID.
func (f *FS) Delete(taskID string) error {
	abs, err := f.safePath(taskID)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", taskID, err)
	}
	return nil
}
