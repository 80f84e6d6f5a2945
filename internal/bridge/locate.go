package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// BinaryEnv overrides the PATH scan with an explicit executable path.
const BinaryEnv = "GEMINI_BIN"

// Locator finds the tool executable.
type Locator struct {
	Tool       string // base name, e.g. "gemini"
	Binary     string // explicit path; skips the scan when set
	SearchPath string // PATH-style list; empty means $PATH
	GOOS       string // empty means runtime.GOOS
}

// CandidateNames lists the file names tried in each search directory.
func CandidateNames(goos, tool string) []string {
	if goos == "windows" {
		return []string{tool + ".cmd", tool + ".exe", tool + ".bat", tool}
	}
	return []string{tool}
}

func (l Locator) goos() string {
	if l.GOOS == "" {
		return runtime.GOOS
	}
	return l.GOOS
}

// Locate returns the first existing regular file among the candidate names,
// scanning search directories in listed order.
func (l Locator) Locate() (string, error) {
	if l.Binary != "" {
		if isRegularFile(l.Binary) {
			return l.Binary, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, l.Binary)
	}

	goos := l.goos()
	search := l.SearchPath
	if search == "" {
		search = os.Getenv("PATH")
	}

	names := CandidateNames(goos, l.Tool)
	for _, dir := range filepath.SplitList(search) {
		if dir == "" {
			continue
		}
		for _, name := range names {
			p := filepath.Join(dir, name)
			if isRegularFile(p) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s not found in PATH", ErrNotFound, l.Tool)
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
