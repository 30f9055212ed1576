package mn

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"mn-go/internal/fault"
)

// DefaultChecksumAlgorithm is used when a caller does not name one.
const DefaultChecksumAlgorithm = "SHA-256"

// NewHasher returns a hash for a checksum algorithm name. Names are
// matched case-insensitively and with or without the dash.
func NewHasher(algorithm string) (hash.Hash, error) {
	switch normalizeAlgorithm(algorithm) {
	case "MD5":
		return md5.New(), nil
	case "SHA1":
		return sha1.New(), nil
	case "SHA256":
		return sha256.New(), nil
	case "SHA512":
		return sha512.New(), nil
	case "BLAKE3":
		return blake3.New(), nil
	default:
		return nil, fault.NewInvalidSystemMetadata("unsupported checksum algorithm. algorithm=%q", algorithm)
	}
}

// Digest reads r to the end and returns its checksum and size.
func Digest(algorithm string, r io.Reader) (Checksum, int64, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return Checksum{}, 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return Checksum{}, 0, fmt.Errorf("reading content: %w", err)
	}
	return Checksum{Algorithm: algorithm, Value: hex.EncodeToString(h.Sum(nil))}, n, nil
}

// Matches reports whether c and other name the same algorithm and digest.
func (c Checksum) Matches(other Checksum) bool {
	return normalizeAlgorithm(c.Algorithm) == normalizeAlgorithm(other.Algorithm) &&
		strings.EqualFold(c.Value, other.Value)
}

func normalizeAlgorithm(a string) string {
	return strings.ReplaceAll(strings.ToUpper(a), "-", "")
}
