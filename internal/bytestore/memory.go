package bytestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"mn-go/internal/mn"
)

const memoryScheme = "mem:"

// MemoryStore keeps object bytes in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	content map[string][]byte // key -> bytes
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

// Put stores the bytes of r under key.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if err := checkSize(size, int64(len(data))); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[key] = data
	return memoryScheme + key, nil
}

// Open returns a reader over the bytes stored at url.
func (m *MemoryStore) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	key, err := m.key(url)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether url names stored bytes.
func (m *MemoryStore) Exists(ctx context.Context, url string) (bool, error) {
	key, err := m.key(url)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.content[key]
	return ok, nil
}

// Delete removes the bytes stored at url. Deleting missing bytes is not an error.
func (m *MemoryStore) Delete(ctx context.Context, url string) error {
	key, err := m.key(url)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.content, key)
	return nil
}

// Len returns the number of stored items.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

func (m *MemoryStore) key(url string) (string, error) {
	if !strings.HasPrefix(url, memoryScheme) {
		return "", fmt.Errorf("not a memory store url: %q", url)
	}
	return strings.TrimPrefix(url, memoryScheme), nil
}

// Compile-time check that MemoryStore implements mn.ByteStore
var _ mn.ByteStore = (*MemoryStore)(nil)
