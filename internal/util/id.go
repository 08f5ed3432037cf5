package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 128-bit random hex id, optionally prefixed ("note_...",
// "jti_..."). Ids are opaque: nothing orders or parses them.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
