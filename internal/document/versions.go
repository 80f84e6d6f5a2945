package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// VersionsDirName holds per-file version directories next to documents.
const VersionsDirName = ".clareza_versions"

const (
	versionExt = ".txt"
	hashPrefix = 16 // hex digits of the content hash kept in version ids
)

// Version is one stored snapshot of a document's content.
type Version struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
	Hash      string    `json:"hash"` // content hash prefix
}

// Hash returns the hex blake2b-256 digest of content.
func Hash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// VersionsDir returns the directory holding versions of the file at abs.
func VersionsDir(abs string) string {
	return filepath.Join(filepath.Dir(abs), VersionsDirName, filepath.Base(abs))
}

// saveVersion stores content unless an identical snapshot exists, then
// prunes beyond the retention limit.
func (s *Store) saveVersion(abs, content string) (*Version, error) {
	dir := VersionsDir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating versions directory: %w", err)
	}

	existing, err := listVersions(dir)
	if err != nil {
		return nil, err
	}
	hash := Hash(content)[:hashPrefix]
	for _, v := range existing {
		if v.Hash == hash {
			return &v, nil
		}
	}

	created := s.now()
	id := strconv.FormatInt(created.UnixNano(), 10) + "_" + hash
	if err := atomicWrite(filepath.Join(dir, id+versionExt), []byte(content)); err != nil {
		return nil, err
	}
	v := Version{ID: id, CreatedAt: created, SizeBytes: int64(len(content)), Hash: hash}

	all := append([]Version{v}, existing...)
	for _, old := range all[min(len(all), s.retention):] {
		if err := os.Remove(filepath.Join(dir, old.ID+versionExt)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to prune version", map[string]any{"id": old.ID, "error": err.Error()})
		}
	}
	return &v, nil
}

// ListVersions returns stored versions of path, newest first.
func (s *Store) ListVersions(path string) ([]Version, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	return listVersions(VersionsDir(abs))
}

// ReadVersion returns the content of one version.
func (s *Store) ReadVersion(path, id string) (string, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return "", err
	}
	if id == "" || filepath.Base(id) != id {
		return "", fmt.Errorf("%w: version %q", ErrNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(VersionsDir(abs), id+versionExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: version %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("reading version: %w", err)
	}
	return string(data), nil
}

func listVersions(dir string) ([]Version, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Version{}, nil
		}
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	versions := make([]Version, 0, len(entries))
	for _, e := range entries {
		v, ok := parseVersion(e)
		if ok {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// parseVersion reads "<unix nanos>_<hash prefix>.txt".
func parseVersion(e os.DirEntry) (Version, bool) {
	if e.IsDir() || !strings.HasSuffix(e.Name(), versionExt) {
		return Version{}, false
	}
	id := strings.TrimSuffix(e.Name(), versionExt)
	nanos, prefix, ok := strings.Cut(id, "_")
	if !ok {
		return Version{}, false
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Version{}, false
	}
	info, err := e.Info()
	if err != nil {
		return Version{}, false
	}
	return Version{
		ID:        id,
		CreatedAt: time.Unix(0, n).UTC(),
		SizeBytes: info.Size(),
		Hash:      prefix,
	}, true
}
