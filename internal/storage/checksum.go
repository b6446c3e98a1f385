package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum fingerprints a serialized draft. Record.Checksum holds this value
// so callers can tell whether a body changed without reading it.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
