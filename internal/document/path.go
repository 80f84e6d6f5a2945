package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Canonicalize returns the absolute, symlink-resolved form of path. For a
// file that does not exist yet the parent directory must exist and is
// resolved instead.
func Canonicalize(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrPath)
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPath, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %w", ErrPath, err)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", fmt.Errorf("%w: parent of %s: %w", ErrPath, path, err)
	}
	info, err := os.Stat(parent)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: parent of %s is not a directory", ErrPath, path)
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}

// ValidatePath reports whether path can be canonicalized.
func ValidatePath(path string) bool {
	_, err := Canonicalize(path)
	return err == nil
}
