package checks

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clareza/clareza/internal/testutil"
)

func TestExtractVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0.1.18", "0.1.18"},
		{"v1.2.3\n", "1.2.3"},
		{"version 2.0.0 (build abc)", "2.0.0"},
		{"Version 3.1", "3.1"},
		{"1.4.0 linux-x64\nextra", "1.4.0"},
		{"  0.9\r\n", "0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVersion(tt.in))
		})
	}
}

func TestCheckUnknownTool(t *testing.T) {
	t.Parallel()

	_, err := Checker{}.Check(context.Background(), "rm")
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestCheckInstalled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteScript(t, dir, "gemini", `[ "$1" = "--version" ] && echo "0.1.18" && exit 0
exit 1
`)

	res, err := Checker{SearchPath: dir}.Check(context.Background(), "gemini")
	require.NoError(t, err)
	assert.True(t, res.Installed)
	assert.Equal(t, "Gemini CLI", res.Name)
	require.NotNil(t, res.Version)
	assert.Equal(t, "0.1.18", *res.Version)
	assert.Nil(t, res.Error)
}

func TestCheckFallsBackToShortFlag(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteScript(t, dir, "bun", `[ "$1" = "-v" ] && echo "v1.1.0" && exit 0
echo "unknown flag" >&2
exit 2
`)

	res, err := Checker{SearchPath: dir}.Check(context.Background(), "bun")
	require.NoError(t, err)
	assert.True(t, res.Installed)
	assert.Equal(t, "1.1.0", *res.Version)
}

func TestCheckMissing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	t.Parallel()

	res, err := Checker{SearchPath: t.TempDir()}.Check(context.Background(), "gemini")
	require.NoError(t, err)
	assert.False(t, res.Installed)
	assert.Nil(t, res.Version)
	require.NotNil(t, res.Error)
}
