package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"mn-go/internal/mn"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Checksum returns the SHA-256 checksum of data in descriptor form.
func Checksum(data []byte) mn.Checksum {
	return mn.Checksum{Algorithm: "SHA-256", Value: SHA256Hex(data)}
}
