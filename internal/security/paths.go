// Package security confines file names handed in from configuration or
// flags to a known directory.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesDirectory is returned when a path resolves outside its root.
var ErrEscapesDirectory = errors.New("path escapes directory")

// ResolveWithin joins name onto dir and returns the result if it stays
// inside dir. Absolute names are rejected. The returned path is not
// canonicalised, so callers see the same prefix they passed in.
func ResolveWithin(dir, name string) (string, error) {
	if name == "" {
		return "", errors.New("empty file name")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s is absolute", ErrEscapesDirectory, name)
	}
	path := filepath.Join(dir, name)
	if err := CheckWithin(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// CheckWithin reports whether path lies inside dir. Symlinks are followed
// for whatever prefix of either path already exists, so a link pointing
// out of dir is caught even when the final file has not been created yet.
func CheckWithin(path, dir string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(canonical(absDir), canonical(absPath))
	if err != nil || escapes(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrEscapesDirectory, path, dir)
	}
	return nil
}

// canonical resolves symlinks in the longest existing prefix of p and
// reattaches the rest.
func canonical(p string) string {
	rest := ""
	for cur := p; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest)
		} else if !errors.Is(err, os.ErrNotExist) {
			return p
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func escapes(rel string) bool {
	return rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) ||
		filepath.IsAbs(rel)
}
