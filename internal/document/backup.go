package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const backupMarker = ".backup."

// BackupInfo describes one backup file.
type BackupInfo struct {
	ID           string    `json:"id"`
	OriginalPath string    `json:"original_path"`
	BackupPath   string    `json:"backup_path"`
	CreatedAt    time.Time `json:"created_at"`
	SizeBytes    int64     `json:"size_bytes"`
}

// backupPath returns <stem>.backup.<timestamp>[.ext] next to abs, adding a
// counter when that name is taken.
func (s *Store) backupPath(abs string) string {
	dir := filepath.Dir(abs)
	ext := filepath.Ext(abs)
	base := strings.TrimSuffix(filepath.Base(abs), ext) + backupMarker + s.now().Format("20060102_150405")
	candidate := filepath.Join(dir, base+ext)
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(i)+ext)
	}
}

// CreateBackup copies the file at path to a timestamped sibling.
func (s *Store) CreateBackup(path string) (*BackupInfo, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("checking %s: %w", abs, err)
	}

	dst := s.backupPath(abs)
	size, err := copyFile(abs, dst)
	if err != nil {
		return nil, err
	}
	s.log.Info("backup created", map[string]any{"path": abs, "backup": dst})
	return &BackupInfo{
		ID:           uuid.New().String(),
		OriginalPath: abs,
		BackupPath:   dst,
		CreatedAt:    s.now(),
		SizeBytes:    size,
	}, nil
}

// ListBackups returns backups of path, newest first.
func (s *Store) ListBackups(path string) ([]BackupInfo, error) {
	abs, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	prefix := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)) + backupMarker
	backups := []BackupInfo{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			ID:           uuid.New().String(),
			OriginalPath: abs,
			BackupPath:   filepath.Join(filepath.Dir(abs), e.Name()),
			CreatedAt:    info.ModTime().UTC(),
			SizeBytes:    info.Size(),
		})
	}
	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].BackupPath > backups[j].BackupPath
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup copies backup over target. An existing target is backed up
// first.
func (s *Store) RestoreBackup(backup, target string) (*File, error) {
	src, err := Canonicalize(backup)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, backup)
	}
	dst, err := Canonicalize(target)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(dst); err == nil {
		if _, err := copyFile(dst, s.backupPath(dst)); err != nil {
			return nil, fmt.Errorf("backing up current file: %w", err)
		}
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}
	if err := atomicWrite(dst, data); err != nil {
		return nil, err
	}
	s.log.Info("backup restored", map[string]any{"backup": src, "path": dst})
	return &File{Path: dst}, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, fmt.Errorf("copying to %s: %w", dst, err)
	}
	return n, nil
}
