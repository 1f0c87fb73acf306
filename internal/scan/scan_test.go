package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root; a trailing "/" creates a directory.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			require.NoError(t, os.MkdirAll(path, 0755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func names(folders []Folder) []string {
	var out []string
	for _, f := range folders {
		out = append(out, f.Name)
	}
	return out
}

func TestEnumerateTargets(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"calculator/main.py":          "print(1)",
		"webapp/index.html":           "<html></html>",
		"frozen/.stopautomation":      "",
		"frozendir/.stopautomation/":  "",
		"frozendir/app.js":            "x",
		".git/HEAD":                   "ref",
		".hidden/notes.txt":           "n",
		"automation/generate.go":      "package main",
		"node_modules/x/index.js":     "x",
		"extra/thing.txt":             "t",
		"top-level-file.txt":          "not a folder",
		"empty/":                      "",
		"nested/deep/.stopautomation": "",
	})

	targets, skipped, err := EnumerateTargets(context.Background(), root, Options{IgnoreDirs: []string{"extra"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"calculator", "empty", "nested", "webapp"}, names(targets))

	reasons := map[string]SkipReason{}
	for _, s := range skipped {
		reasons[s.Name] = s.Reason
	}
	assert.Equal(t, SkipMarker, reasons["frozen"])
	assert.Equal(t, SkipMarker, reasons["frozendir"], "a marker directory counts too")
	assert.Equal(t, SkipIgnored, reasons[".git"])
	assert.Equal(t, SkipHidden, reasons[".hidden"])
	assert.Equal(t, SkipIgnored, reasons["automation"])
	assert.Equal(t, SkipIgnored, reasons["node_modules"])
	assert.Equal(t, SkipIgnored, reasons["extra"])

	for _, f := range targets {
		assert.True(t, filepath.IsAbs(f.Path))
	}
}

func TestEnumerateTargetsCustomMarker(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/.noreadme":       "",
		"b/.stopautomation": "",
	})

	targets, _, err := EnumerateTargets(context.Background(), root, Options{MarkerName: ".noreadme"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(targets))
}

func TestEnumerateTargetsMissingRoot(t *testing.T) {
	_, _, err := EnumerateTargets(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)
}

func TestEnumerateTargetsCanceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/x.py": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := EnumerateTargets(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasMarker(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasMarker(dir, ".stopautomation"))
	writeTree(t, dir, map[string]string{".stopautomation": ""})
	assert.True(t, HasMarker(dir, ".stopautomation"))
}
