package readme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCreates(t *testing.T) {
	dir := t.TempDir()

	change, err := Write(dir, "README.md", "# Title\n\nBody\n")
	require.NoError(t, err)
	assert.True(t, change.Created)
	assert.Equal(t, 3, change.LinesAdded)
	assert.Equal(t, filepath.Join(dir, "README.md"), change.Path)

	data, err := os.ReadFile(change.Path)
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody\n", string(data))

	info, err := os.Stat(change.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("# Old\nline a\nline b\n"), 0644))

	change, err := Write(dir, "README.md", "# New\nline a\nline b\nline c\n")
	require.NoError(t, err)
	assert.False(t, change.Created)
	assert.False(t, change.Unchanged)
	assert.Equal(t, 2, change.LinesAdded)
	assert.Equal(t, 1, change.LinesRemoved)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# New\nline a\nline b\nline c\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteUnchanged(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("same\n"), 0644))

	change, err := Write(dir, "README.md", "same\n")
	require.NoError(t, err)
	assert.True(t, change.Unchanged)
	assert.Equal(t, "unchanged", change.String())
}

func TestWriteMissingDir(t *testing.T) {
	_, err := Write(filepath.Join(t.TempDir(), "missing"), "README.md", "x")
	assert.Error(t, err)
}

func TestPreviewDoesNotWrite(t *testing.T) {
	dir := t.TempDir()

	change, err := Preview(dir, "README.md", "# Title\n")
	require.NoError(t, err)
	assert.True(t, change.Created)

	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestChangeString(t *testing.T) {
	assert.Equal(t, "created (+4 lines)", Change{Created: true, LinesAdded: 4}.String())
	assert.Equal(t, "updated (+2 -1 lines)", Change{LinesAdded: 2, LinesRemoved: 1}.String())
}

func TestUnifiedPreview(t *testing.T) {
	old := "a\nb\nc\nd\ne\nf\ng\n"
	updated := "a\nb\nc\nd\ne\nf\nG\n"

	out := UnifiedPreview(old, updated, 1)
	assert.Contains(t, out, "- g\n")
	assert.Contains(t, out, "+ G\n")
	assert.Contains(t, out, "unchanged lines")
	assert.False(t, strings.Contains(out, "  c\n"), "middle of a long equal run is collapsed")
}
