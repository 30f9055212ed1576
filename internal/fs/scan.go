// Package fs finds the local files to ingest as new objects.
package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
)

// File is a regular file found by Scan.
type File struct {
	Path    string // absolute
	RelPath string // slash separated, relative to the scan root
	Size    int64
}

// Scan returns the regular files under root in lexical order. Files and
// directories matching patterns, or the patterns of the ignore file at
// root, are skipped, as are symlinks and special files. Without recursive
// only the files directly in root are returned.
func Scan(root string, recursive bool, patterns []string) ([]File, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", abs)
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(abs, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(patterns)+len(fromFile)+1)
	all = append(all, patterns...)
	all = append(all, fromFile...)
	all = append(all, "/"+IgnoreFileName)
	ignore := NewIgnoreMatcher(all)

	var files []File
	err = filepath.WalkDir(abs, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == abs {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Match(rel, false) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, File{Path: p, RelPath: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}
