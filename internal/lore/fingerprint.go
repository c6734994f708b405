package lore

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint computes the idempotency key for a chunk's content: the
// SHA-256 digest of the UTF-8 bytes, base64 encoded. It is a pure function
// of the text — source path and position never contribute, so identical text
// in two documents collapses to one stored chunk.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:])
}
