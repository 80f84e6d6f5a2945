package document

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestStore returns a store whose clock advances one second per call.
func newTestStore(t *testing.T, retention int) *Store {
	t.Helper()
	s := NewStore(Config{Dir: filepath.Join(t.TempDir(), "documents"), VersionsRetention: retention})
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestCreate(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	doc := s.Create("  ")
	require.Equal(t, "Untitled", doc.Metadata.Title)
	require.Equal(t, "pt-BR", doc.Metadata.Language)
	require.Equal(t, 1, doc.Metadata.Version)
	require.Equal(t, FormatVersion, doc.FormatVersion)
	require.NotEmpty(t, doc.Metadata.ID)
	require.Empty(t, doc.Content)
}

func TestUpdateStats(t *testing.T) {
	t.Parallel()

	var m Metadata
	now := time.Now()
	UpdateStats(&m, "  Olá,  mundo\ncruel ", now)
	require.Equal(t, 3, m.WordCount)
	require.Equal(t, 20, m.CharacterCount)
	require.Equal(t, now, m.ModifiedAt)
}

func TestOpenPlainText(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	path := filepath.Join(t.TempDir(), "notas.txt")
	require.NoError(t, os.WriteFile(path, []byte("uma duas três"), 0o644))

	f, err := s.Open(path)
	require.NoError(t, err)
	require.Equal(t, "uma duas três", f.Content)
	require.Equal(t, "notas", f.Metadata.Title)
	require.Equal(t, 3, f.Metadata.WordCount)
	require.True(t, filepath.IsAbs(f.Path))
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	dir := t.TempDir()

	_, err := s.Open(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open(filepath.Join(dir, "nope", "missing.txt"))
	require.ErrorIs(t, err, ErrPath)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte{0xff, 0xfe}, 0o644))
	_, err = s.Open(bad)
	require.ErrorIs(t, err, ErrDecode)

	broken := filepath.Join(dir, "broken.clareza")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o644))
	_, err = s.Open(broken)
	require.ErrorIs(t, err, ErrDecode)
}

func TestSaveEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	path := filepath.Join(t.TempDir(), "texto.clareza")

	saved, err := s.Save(path, "primeira versão", nil)
	require.NoError(t, err)
	require.Equal(t, 1, saved.Metadata.Version)
	require.Equal(t, "texto", saved.Metadata.Title)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "primeira versão", doc.Content)
	require.Equal(t, FormatVersion, doc.FormatVersion)

	again, err := s.Save(path, "segunda versão", saved.Metadata)
	require.NoError(t, err)
	require.Equal(t, 2, again.Metadata.Version)
	require.Equal(t, saved.Metadata.ID, again.Metadata.ID)

	opened, err := s.Open(path)
	require.NoError(t, err)
	require.Equal(t, "segunda versão", opened.Content)
	require.Equal(t, 2, opened.Metadata.Version)
}

func TestSavePlainTextKeepsRawContent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	path := filepath.Join(t.TempDir(), "plain.md")

	_, err := s.Save(path, "# Título", nil)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "# Título", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestVersions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	path := filepath.Join(t.TempDir(), "doc.clareza")

	_, err := s.Save(path, "v1", nil)
	require.NoError(t, err)
	versions, err := s.ListVersions(path)
	require.NoError(t, err)
	require.Empty(t, versions)

	_, err = s.Save(path, "v2", nil)
	require.NoError(t, err)
	_, err = s.Save(path, "v2", nil)
	require.NoError(t, err)
	_, err = s.Save(path, "v3", nil)
	require.NoError(t, err)
	_, err = s.Save(path, "v1", nil)
	require.NoError(t, err)
	// The snapshot of v1 already exists.
	_, err = s.Save(path, "v2", nil)
	require.NoError(t, err)

	versions, err = s.ListVersions(path)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	var contents []string
	for _, v := range versions {
		c, err := s.ReadVersion(path, v.ID)
		require.NoError(t, err)
		contents = append(contents, c)
	}
	require.Equal(t, []string{"v3", "v2", "v1"}, contents)

	_, err = s.ReadVersion(path, "../doc.clareza")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReadVersion(path, "123_abc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVersionRetention(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 2)
	path := filepath.Join(t.TempDir(), "doc.txt")
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Save(path, c, nil)
		require.NoError(t, err)
	}

	versions, err := s.ListVersions(path)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	newest, err := s.ReadVersion(path, versions[0].ID)
	require.NoError(t, err)
	require.Equal(t, "d", newest)
}

func TestSaveAs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)

	f, err := s.SaveAs("conteúdo", "", nil)
	require.NoError(t, err)
	require.Equal(t, "document_20250301_120001.clareza", filepath.Base(f.Path))
	require.FileExists(t, f.Path)

	named, err := s.SaveAs("x", "capitulo.txt", nil)
	require.NoError(t, err)
	require.Equal(t, "capitulo.txt", filepath.Base(named.Path))

	_, err = s.SaveAs("x", "../escape.txt", nil)
	require.ErrorIs(t, err, ErrPath)
}

func TestBackups(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "livro.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	first, err := s.CreateBackup(path)
	require.NoError(t, err)
	require.Equal(t, "livro.backup.20250301_120001.txt", filepath.Base(first.BackupPath))
	require.Equal(t, int64(len("original")), first.SizeBytes)

	require.NoError(t, os.WriteFile(path, []byte("editado"), 0o644))
	second, err := s.CreateBackup(path)
	require.NoError(t, err)
	require.NotEqual(t, first.BackupPath, second.BackupPath)

	backups, err := s.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 2)

	_, err = s.RestoreBackup(first.BackupPath, path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "original", string(data))

	// The edited content was backed up before the restore.
	backups, err = s.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 3)

	_, err = s.CreateBackup(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBackupNameCollision(t *testing.T) {
	t.Parallel()

	s := NewStore(Config{})
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	path := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	b1, err := s.CreateBackup(path)
	require.NoError(t, err)
	b2, err := s.CreateBackup(path)
	require.NoError(t, err)
	require.Equal(t, "a.backup.20250102_030405", filepath.Base(b1.BackupPath))
	require.Equal(t, "a.backup.20250102_030405_1", filepath.Base(b2.BackupPath))
}

func TestExport(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 0)
	dir := t.TempDir()

	f, err := s.Export("<p>Olá <strong>mundo</strong></p>", ExportOptions{Format: "html"}, filepath.Join(dir, "out.html"))
	require.NoError(t, err)
	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	require.Contains(t, string(data), `<html lang="pt-BR">`)
	require.Contains(t, string(data), "<strong>mundo</strong>")

	f, err = s.Export("<p>Olá <strong>mundo</strong><br><em>fim</em></p>", ExportOptions{Format: "md"}, filepath.Join(dir, "out.md"))
	require.NoError(t, err)
	data, err = os.ReadFile(f.Path)
	require.NoError(t, err)
	require.Equal(t, "Olá **mundo**\n_fim_\n\n", string(data))

	_, err = s.Export("x", ExportOptions{Format: "pdf"}, filepath.Join(dir, "out.pdf"))
	require.ErrorIs(t, err, ErrExport)

	_, err = s.Export("x", ExportOptions{Format: "md"}, filepath.Join(dir, "doc.clareza"))
	require.ErrorIs(t, err, ErrExport)
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	resolvedReal, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)

	got, err := Canonicalize(filepath.Join(link, "novo.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(resolvedReal, "novo.txt"), got)

	_, err = Canonicalize("")
	require.ErrorIs(t, err, ErrPath)
	_, err = Canonicalize(filepath.Join(dir, "missing", "x.txt"))
	require.ErrorIs(t, err, ErrPath)

	require.True(t, ValidatePath(filepath.Join(dir, "new.txt")))
	require.False(t, ValidatePath(filepath.Join(dir, "a", "b", "c")))
}
