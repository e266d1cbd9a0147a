// Package checksum computes the version tags used for optimistic concurrency on notes.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// OfNote returns the version tag of a serialized note.
func OfNote(serialized string) string {
	return Sum([]byte(serialized))
}

// Matches reports whether ifMatch allows a write over a note whose current
// tag is current. An empty ifMatch always matches; surrounding quotes, as in
// an HTTP ETag, are ignored.
func Matches(ifMatch, current string) bool {
	if n := len(ifMatch); n >= 2 && ifMatch[0] == '"' && ifMatch[n-1] == '"' {
		ifMatch = ifMatch[1 : n-1]
	}
	return ifMatch == "" || ifMatch == current
}
