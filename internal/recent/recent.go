// Package recent keeps the list of recently opened documents in sqlite.
package recent

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 10

// File is one recently used document.
type File struct {
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	LastOpened time.Time `json:"last_opened"`
	Exists     bool      `json:"exists"`
}

// Store handles recent file persistence
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recent_files (
		path TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		last_opened INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recent_last_opened ON recent_files(last_opened);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Touch records that path was opened or saved now.
func (s *Store) Touch(ctx context.Context, path, title string) error {
	return s.touchAt(ctx, path, title, time.Now().UTC())
}

func (s *Store) touchAt(ctx context.Context, path, title string, at time.Time) error {
	if title == "" {
		base := filepath.Base(path)
		title = base[:len(base)-len(filepath.Ext(base))]
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_files (path, title, last_opened) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET title = excluded.title, last_opened = excluded.last_opened`,
		path, title, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record recent file: %w", err)
	}
	return nil
}

// List returns up to limit files, most recently opened first.
func (s *Store) List(ctx context.Context, limit int) ([]File, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, title, last_opened FROM recent_files
		ORDER BY last_opened DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent files: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var f File
		var nanos int64
		if err := rows.Scan(&f.Path, &f.Title, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan recent file: %w", err)
		}
		f.LastOpened = time.Unix(0, nanos).UTC()
		_, statErr := os.Stat(f.Path)
		f.Exists = statErr == nil
		files = append(files, f)
	}
	return files, rows.Err()
}

// Remove forgets path. Removing an unknown path is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recent_files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to remove recent file: %w", err)
	}
	return nil
}
