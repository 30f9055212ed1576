// Package bytestore persists object bytes in memory, on a local filesystem
// or in S3, optionally sealed with age.
//
// Every store returns a url from Put that only the same kind of store can
// open. Puts are idempotent with respect to key and harmless when orphaned:
// the service writes bytes before committing the object that references
// them and deletes them if the commit fails.
package bytestore

import (
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned when a url names no stored bytes.
var ErrNotFound = errors.New("stored bytes not found")

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// checkSize reports a mismatch between written and expected unless
// expected is negative.
func checkSize(expected, written int64) error {
	if expected >= 0 && written != expected {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, written)
	}
	return nil
}

// readCloser joins a reader with the closer of its underlying source.
type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }
