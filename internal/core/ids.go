package core

import "github.com/google/uuid"

// NewID returns a fresh opaque identifier, prefixed for readability in logs
// and file names (e.g. "exec_3f9b1a2c...").
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
