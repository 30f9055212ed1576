package bytestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "objects")

		s, err := NewFileSystemStore(root, false)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(root, "content")); err != nil {
			t.Errorf("content directory not created: %v", err)
		}
		if err := s.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemStore(t.TempDir(), false); err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
	})
}

func TestFileSystemStore(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	testStoreContract(t, s)
}

func TestFileSystemStore_Compressed(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStore(root, true)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	testStoreContract(t, s)

	data := strings.Repeat("compressible ", 1000)
	u, err := s.Put(context.Background(), "big.a", strings.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasSuffix(u, zstdSuffix) {
		t.Errorf("url = %q, want %s suffix", u, zstdSuffix)
	}
	info, err := os.Stat(filepath.Join(root, strings.TrimPrefix(u, fileScheme)))
	if err != nil {
		t.Fatalf("stat stored file: %v", err)
	}
	if info.Size() >= int64(len(data)) {
		t.Errorf("stored size = %d, want less than %d", info.Size(), len(data))
	}

	// A store opened without compression still reads compressed files.
	plain, err := NewFileSystemStore(root, false)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if got := readAll(t, plain, u); got != data {
		t.Error("uncompressing store returned different content")
	}
}

func TestFileSystemStore_RejectsEscapingURL(t *testing.T) {
	s, err := NewFileSystemStore(t.TempDir(), false)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	for _, u := range []string{"file:../outside", "file:/etc/passwd", "mem:x"} {
		if _, err := s.Open(context.Background(), u); err == nil {
			t.Errorf("Open(%q) should fail", u)
		}
	}
}

func TestFileSystemStore_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileSystemStore(root, false)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if _, err := s.Put(context.Background(), "short.a", strings.NewReader("abc"), 10); err == nil {
		t.Fatal("Put() with wrong size should fail")
	}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			t.Errorf("unexpected file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir() error = %v", err)
	}
}

func TestFileSystemStore_LongKey(t *testing.T) {
	for _, compress := range []bool{false, true} {
		s, err := NewFileSystemStore(t.TempDir(), compress)
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		// Escaping alone would turn this into a name far beyond 255 bytes.
		key := strings.Repeat("doi:10.5063/F1/é?", 30) + ".0b6b2a0c"

		u, err := s.Put(context.Background(), key, strings.NewReader("data"), 4)
		if err != nil {
			t.Fatalf("Put(compress=%t) error = %v", compress, err)
		}
		if name := filepath.Base(strings.TrimPrefix(u, fileScheme)); len(name) > 64+len(zstdSuffix) {
			t.Errorf("filename %q is %d bytes, want a fixed-length digest", name, len(name))
		}
		if got := readAll(t, s, u); got != "data" {
			t.Errorf("readAll() = %q, want %q", got, "data")
		}

		other, err := s.Put(context.Background(), key+"x", strings.NewReader("other"), 5)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if other == u {
			t.Errorf("distinct keys share url %q", u)
		}
	}
}
