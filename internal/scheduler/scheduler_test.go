package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareza/clareza/internal/document"
	"github.com/clareza/clareza/internal/recent"
)

type fakeRecent struct {
	files []recent.File
	err   error
}

func (f *fakeRecent) List(_ context.Context, limit int) ([]recent.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[:min(limit, len(f.files))], nil
}

type fakeBackupper struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	block chan struct{}
}

func (f *fakeBackupper) CreateBackup(path string) (*document.BackupInfo, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[path] {
		return nil, errors.New("disk full")
	}
	f.paths = append(f.paths, path)
	return &document.BackupInfo{OriginalPath: path, BackupPath: path + ".bak"}, nil
}

func (f *fakeBackupper) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func writeDocs(t *testing.T, names ...string) []recent.File {
	t.Helper()
	dir := t.TempDir()
	var files []recent.File
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("conteúdo de "+n), 0o644))
		files = append(files, recent.File{Path: p, Title: n})
	}
	return files
}

func TestNewValidatesSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		schedule string
		wantErr  bool
	}{
		{"@every 15m", false},
		{"*/5 * * * *", false},
		{"0 3 * * 1-5", false},
		{"not a schedule", true},
		{"61 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			_, err := New(Config{Schedule: tt.schedule}, &fakeBackupper{}, &fakeRecent{})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunOnceBacksUpChangedDocuments(t *testing.T) {
	t.Parallel()

	files := writeDocs(t, "a.txt", "b.txt", "c.txt")
	files = append(files, recent.File{Path: filepath.Join(t.TempDir(), "gone.txt")})
	docs := &fakeBackupper{}
	s, err := New(Config{Schedule: "@every 1h", Batch: 10}, docs, &fakeRecent{files: files})
	require.NoError(t, err)

	res := s.RunOnce(context.Background(), TriggerManual)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, res.Backups, 3)
	assert.Equal(t, 1, res.Skipped)

	// Nothing changed, nothing backed up.
	res = s.RunOnce(context.Background(), TriggerManual)
	assert.Empty(t, res.Backups)
	assert.Equal(t, 4, res.Skipped)

	require.NoError(t, os.WriteFile(files[1].Path, []byte("editado"), 0o644))
	res = s.RunOnce(context.Background(), TriggerManual)
	require.Len(t, res.Backups, 1)
	assert.Equal(t, files[1].Path, res.Backups[0].OriginalPath)
	assert.Len(t, docs.calls(), 4)

	st := s.Status()
	assert.Equal(t, StatusCompleted, st.LastStatus)
	assert.NotNil(t, st.LastRun)
	assert.False(t, st.Running)
	assert.Nil(t, st.NextRun)
}

func TestRunOnceRespectsBatch(t *testing.T) {
	t.Parallel()

	files := writeDocs(t, "1.txt", "2.txt", "3.txt")
	docs := &fakeBackupper{}
	s, err := New(Config{Schedule: "@every 1h", Batch: 2}, docs, &fakeRecent{files: files})
	require.NoError(t, err)

	res := s.RunOnce(context.Background(), TriggerManual)
	assert.Len(t, res.Backups, 2)
	assert.Equal(t, []string{files[0].Path, files[1].Path}, docs.calls())
}

func TestRunOncePartialFailure(t *testing.T) {
	t.Parallel()

	files := writeDocs(t, "ok.txt", "bad.txt")
	docs := &fakeBackupper{fail: map[string]bool{files[1].Path: true}}
	s, err := New(Config{Schedule: "@every 1h"}, docs, &fakeRecent{files: files})
	require.NoError(t, err)

	res := s.RunOnce(context.Background(), TriggerManual)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Len(t, res.Errors, 1)

	// The failed document is retried on the next run.
	docs.mu.Lock()
	docs.fail = nil
	docs.mu.Unlock()
	res = s.RunOnce(context.Background(), TriggerManual)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Backups, 1)
	assert.Equal(t, files[1].Path, res.Backups[0].OriginalPath)
}

func TestRunOnceListFailure(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Schedule: "@every 1h"}, &fakeBackupper{}, &fakeRecent{err: errors.New("db locked")})
	require.NoError(t, err)

	res := s.RunOnce(context.Background(), TriggerManual)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Errors[0], "db locked")
}

func TestRunOnceSkipsWhenBusy(t *testing.T) {
	t.Parallel()

	files := writeDocs(t, "a.txt")
	docs := &fakeBackupper{block: make(chan struct{})}
	s, err := New(Config{Schedule: "@every 1h"}, docs, &fakeRecent{files: files})
	require.NoError(t, err)

	done := make(chan Result, 1)
	go func() { done <- s.RunOnce(context.Background(), TriggerSchedule) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.isRunning
	}, 2*time.Second, 10*time.Millisecond)

	res := s.RunOnce(context.Background(), TriggerManual)
	assert.Equal(t, StatusSkippedBusy, res.Status)

	close(docs.block)
	assert.Equal(t, StatusCompleted, (<-done).Status)
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	files := writeDocs(t, "a.txt")
	docs := &fakeBackupper{}
	s, err := New(Config{Schedule: "@every 1s"}, docs, &fakeRecent{files: files})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	st := s.Status()
	assert.True(t, st.Running)
	require.NotNil(t, st.NextRun)

	require.Eventually(t, func() bool { return len(docs.calls()) == 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status().Running)
}
