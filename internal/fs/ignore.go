package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName names the ignore file read from the root of a scan.
const IgnoreFileName = ".mnignore"

// rule is one parsed ignore pattern.
type rule struct {
	pattern  string
	anchored bool // match against the relative path instead of the basename
	negate   bool // "!pattern" re-includes what earlier rules ignored
	dirOnly  bool // "pattern/" only matches directories
}

// IgnoreMatcher checks relative paths against gitignore-style patterns.
// Patterns without '/' match the basename; patterns containing '/' match
// the whole path relative to the scan root. The last matching rule wins.
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines, comments and malformed patterns are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var r rule
		line, r.negate = strings.CutPrefix(line, "!")
		line, r.dirOnly = strings.CutSuffix(line, "/")
		r.anchored = strings.Contains(line, "/")
		r.pattern = strings.TrimPrefix(line, "/")
		if _, err := path.Match(r.pattern, ""); err != nil || r.pattern == "" {
			continue
		}
		m.rules = append(m.rules, r)
	}
	return m
}

// Match reports whether rel, relative to the scan root, is ignored.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	if rel == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)

	ignored := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		name := base
		if r.anchored {
			name = rel
		}
		if ok, _ := path.Match(r.pattern, name); ok {
			ignored = !r.negate
		}
	}
	return ignored
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
