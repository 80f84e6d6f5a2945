// Package document reads and writes editor documents, keeps content
// versions next to them and manages timestamped backups.
//
// Files with the .clareza extension hold a JSON envelope with metadata;
// every other file is plain UTF-8 text.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clareza/clareza/internal/logging"
)

// Errors returned by the store. Wrapped errors are matched with errors.Is.
var (
	ErrNotFound = errors.New("file not found")
	ErrDecode   = errors.New("invalid document format")
	ErrPath     = errors.New("invalid path")
	ErrExport   = errors.New("export failed")
)

const (
	// Ext marks files stored as a JSON envelope.
	Ext = ".clareza"
	// FormatVersion is written into every envelope.
	FormatVersion = "1.0"
	// DefaultLanguage tags new documents.
	DefaultLanguage = "pt-BR"

	untitled = "Untitled"
)

// Metadata describes a document.
type Metadata struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	WordCount      int       `json:"word_count"`
	CharacterCount int       `json:"character_count"`
	Language       string    `json:"language"`
	Tags           []string  `json:"tags"`
	Version        int       `json:"version"`
}

// Document is the on-disk envelope of a .clareza file.
type Document struct {
	Metadata      Metadata `json:"metadata"`
	Content       string   `json:"content"`
	FormatVersion string   `json:"format_version"`
}

// File is the result of opening or saving a document.
type File struct {
	Path     string    `json:"path,omitempty"`
	Content  string    `json:"content"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Config configures a Store.
type Config struct {
	Dir               string // target of SaveAs
	Language          string
	VersionsRetention int
	Log               *logging.Logger
}

// Store performs document file operations.
type Store struct {
	dir       string
	language  string
	retention int
	log       *logging.Logger
	now       func() time.Time
}

// NewStore creates a document store.
func NewStore(cfg Config) *Store {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.VersionsRetention <= 0 {
		cfg.VersionsRetention = 20
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	return &Store{
		dir:       cfg.Dir,
		language:  cfg.Language,
		retention: cfg.VersionsRetention,
		log:       cfg.Log.Named("documents"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewMetadata returns metadata for an empty document.
func (s *Store) NewMetadata(title string) Metadata {
	now := s.now()
	return Metadata{
		ID:         uuid.New().String(),
		Title:      title,
		CreatedAt:  now,
		ModifiedAt: now,
		Language:   s.language,
		Tags:       []string{},
		Version:    1,
	}
}

// UpdateStats refreshes counts and the modification time from content.
func UpdateStats(m *Metadata, content string, now time.Time) {
	m.CharacterCount = utf8.RuneCountInString(content)
	m.WordCount = len(strings.Fields(content))
	m.ModifiedAt = now
}

// Create returns a new empty document. Nothing is written.
func (s *Store) Create(title string) *Document {
	if strings.TrimSpace(title) == "" {
		title = untitled
	}
	return &Document{Metadata: s.NewMetadata(title), FormatVersion: FormatVersion}
}

// Open reads a document. Plain text files get fresh metadata titled after
// the file name.
func (s *Store) Open(path string) (*File, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrDecode, abs)
	}

	if isEnvelope(abs) {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDecode, abs, err)
		}
		return &File{Path: abs, Content: doc.Content, Metadata: &doc.Metadata}, nil
	}

	content := string(data)
	meta := s.NewMetadata(stem(abs))
	UpdateStats(&meta, content, s.now())
	return &File{Path: abs, Content: content, Metadata: &meta}, nil
}

// Save writes content to path. The previous content is kept as a version
// when it differs from the new one. A nil meta starts fresh metadata;
// otherwise its version is incremented.
func (s *Store) Save(path, content string, meta *Metadata) (*File, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}

	var m Metadata
	if meta == nil {
		m = s.NewMetadata(stem(abs))
	} else {
		m = *meta
		m.Version++
		if m.Tags == nil {
			m.Tags = []string{}
		}
	}
	UpdateStats(&m, content, s.now())

	payload := []byte(content)
	if isEnvelope(abs) {
		payload, err = json.MarshalIndent(Document{Metadata: m, Content: content, FormatVersion: FormatVersion}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
	}

	if err := s.snapshotPrevious(abs, content); err != nil {
		s.log.Warn("failed to keep previous version", map[string]any{"path": abs, "error": err.Error()})
	}
	if err := atomicWrite(abs, payload); err != nil {
		return nil, err
	}
	s.log.Info("document saved", map[string]any{"path": abs, "version": m.Version, "words": m.WordCount})
	return &File{Path: abs, Metadata: &m}, nil
}

// SaveAs saves into the store directory under name, or under a timestamped
// name when name is empty.
func (s *Store) SaveAs(content, name string, meta *Metadata) (*File, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("%w: no documents directory configured", ErrPath)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	if name == "" {
		name = "document_" + s.now().Format("20060102_150405") + Ext
	}
	if filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q is not a plain file name", ErrPath, name)
	}
	return s.Save(filepath.Join(s.dir, name), content, meta)
}

// snapshotPrevious keeps the content currently on disk as a version.
func (s *Store) snapshotPrevious(abs, next string) error {
	prev, err := s.readContent(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev == next {
		return nil
	}
	_, err = s.saveVersion(abs, prev)
	return err
}

// readContent returns the document text of the file, unwrapping envelopes.
func (s *Store) readContent(abs string) (string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	if isEnvelope(abs) {
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrDecode, abs, err)
		}
		return doc.Content, nil
	}
	return string(data), nil
}

func isEnvelope(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

func stem(path string) string {
	base := filepath.Base(path)
	s := strings.TrimSuffix(base, filepath.Ext(base))
	if s == "" {
		return untitled
	}
	return s
}

// atomicWrite writes data to a temporary file in the target directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
