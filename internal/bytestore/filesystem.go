package bytestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"mn-go/internal/mn"
)

const (
	fileScheme = "file:"
	zstdSuffix = ".zst"
)

// FileSystemStore keeps object bytes as files in a directory structure:
//
//	<root>/
//	  content/
//	    <shard>/         (first byte of the BLAKE3 hash of the key, in hex)
//	      <hash>[.zst]   (BLAKE3 hash of the key in hex, zstd-compressed when enabled)
//
// Filenames have a fixed length whatever the key, so long identifiers stay
// under NAME_MAX.
//
// Urls are relative to root, so the tree can be moved as a whole.
type FileSystemStore struct {
	root       string
	contentDir string
	compress   bool
}

// NewFileSystemStore creates a filesystem store rooted at the given path.
func NewFileSystemStore(root string, compress bool) (*FileSystemStore, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemStore{root: root, contentDir: contentDir, compress: compress}, nil
}

// Put writes the bytes of r under key using an atomic write (temp file + rename).
func (v *FileSystemStore) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	rel := v.relPath(key)
	destPath := filepath.Join(v.root, rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := v.writeFile(destPath, r, size); err != nil {
		return "", err
	}
	return fileScheme + filepath.ToSlash(rel), nil
}

// Open returns a reader over the bytes stored at u.
func (v *FileSystemStore) Open(ctx context.Context, u string) (io.ReadCloser, error) {
	path, err := v.path(u)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	if !strings.HasSuffix(path, zstdSuffix) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return readCloser{Reader: dec, close: func() error {
		dec.Close()
		return f.Close()
	}}, nil
}

// Exists reports whether u names stored bytes.
func (v *FileSystemStore) Exists(ctx context.Context, u string) (bool, error) {
	path, err := v.path(u)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return true, nil
}

// Delete removes the bytes stored at u. Deleting missing bytes is not an error.
func (v *FileSystemStore) Delete(ctx context.Context, u string) error {
	path, err := v.path(u)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the store directories are accessible.
func (v *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{v.root, v.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", dir)
		}
	}
	return nil
}

func (v *FileSystemStore) relPath(key string) string {
	sum := blake3.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	if v.compress {
		name += zstdSuffix
	}
	return filepath.Join("content", hex.EncodeToString(sum[:1]), name)
}

// path resolves u under root, rejecting urls that escape it.
func (v *FileSystemStore) path(u string) (string, error) {
	if !strings.HasPrefix(u, fileScheme) {
		return "", fmt.Errorf("not a filesystem store url: %q", u)
	}
	rel := filepath.FromSlash(strings.TrimPrefix(u, fileScheme))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("filesystem store url escapes root: %q", u)
	}
	return filepath.Join(v.root, rel), nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	counted := &countingReader{r: r}
	if err := v.copyTo(tmpFile, counted); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := checkSize(expectedSize, counted.n); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (v *FileSystemStore) copyTo(w io.Writer, r io.Reader) error {
	if !v.compress {
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
		return nil
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish compression: %w", err)
	}
	return nil
}

// Compile-time check that FileSystemStore implements mn.ByteStore
var _ mn.ByteStore = (*FileSystemStore)(nil)
