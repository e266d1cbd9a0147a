// Package storage defines the note archive abstraction: a directory holding
// one serialized note per task.
package storage

import "time"

// Ext is the file extension of archived notes.
const Ext = ".note"

// Entry describes one archived note.
type Entry struct {
	TaskID    string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for archive operations. Notes are addressed by
// task id; the file layout is up to the implementation.
type Provider interface {
	// List returns metadata for every archived note.
	List() ([]Entry, error)
	// Read returns the raw bytes archived for taskID.
	Read(taskID string) ([]byte, error)
	// Write atomically stores content for taskID.
	Write(taskID string, content []byte) error
	// Delete removes the archived note for taskID.
	Delete(taskID string) error
}
