package scan

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// TruncationNote is appended to a file whose content was cut at MaxFileChars.
const TruncationNote = "\n... (content truncated due to length)"

// TextExtensions are the file extensions read into a prompt.
var TextExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".go": true, ".rs": true, ".java": true, ".kt": true, ".c": true, ".h": true, ".cpp": true,
	".hpp": true, ".cs": true, ".rb": true, ".php": true, ".swift": true, ".scala": true, ".lua": true,
	".html": true, ".htm": true, ".css": true, ".scss": true, ".vue": true, ".svelte": true,
	".md": true, ".txt": true, ".rst": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".sh": true, ".bash": true, ".bat": true, ".ps1": true, ".sql": true, ".mod": true,
}

// TextBasenames are extension-less or special files that are still text.
var TextBasenames = map[string]bool{
	"Makefile":   true,
	"Dockerfile": true,
	"Procfile":   true,
	"LICENSE":    true,
	"Gemfile":    true,
	".gitignore": true,
}

// ReadPolicy bounds what ReadFolderContents returns.
type ReadPolicy struct {
	Options

	// OutputFile is never read, so a previous README does not feed the next one
	OutputFile string

	// MaxFileSize skips files larger than this many bytes
	MaxFileSize int64

	// MaxFileChars truncates content longer than this many bytes
	MaxFileChars int
}

// File is one text file of a folder.
type File struct {
	// RelPath is relative to the folder, slash-separated
	RelPath   string
	Content   string
	Truncated bool
}

// SkippedFile records a file that was left out and why.
type SkippedFile struct {
	RelPath string
	Reason  string
}

// ReadFolderContents walks folder and returns its text files sorted by path.
// Unreadable, oversized and binary files are reported in skipped instead of
// failing the folder; only an unreadable folder root is an error.
func ReadFolderContents(ctx context.Context, folder Folder, policy ReadPolicy) (files []File, skipped []SkippedFile, err error) {
	if _, err := os.Stat(folder.Path); err != nil {
		return nil, nil, fmt.Errorf("reading folder %s: %w", folder.Name, err)
	}
	// WalkDir does not descend into a symlinked root
	root, err := filepath.EvalSymlinks(folder.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving folder %s: %w", folder.Name, err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if walkErr != nil {
			if path == root {
				return walkErr
			}
			skipped = append(skipped, SkippedFile{RelPath: relPath, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && (policy.ignored(d.Name()) || d.Name() == policy.marker() || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if skip := policy.skipName(relPath, d.Name()); skip != "" {
			if skip != "excluded" {
				skipped = append(skipped, SkippedFile{RelPath: relPath, Reason: skip})
			}
			return nil
		}

		file, reason := policy.readFile(path, relPath)
		if reason != "" {
			skipped = append(skipped, SkippedFile{RelPath: relPath, Reason: reason})
			return nil
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking folder %s: %w", folder.Name, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, skipped, nil
}

// skipName returns "" when the file may be read, "excluded" for files that are
// silently ignored, or a reason worth reporting.
func (p ReadPolicy) skipName(relPath, name string) string {
	if name == p.marker() || name == ".env" || strings.HasPrefix(name, ".env.") {
		return "excluded"
	}
	// Only the README at the folder root is generated output
	if p.OutputFile != "" && relPath == p.OutputFile {
		return "excluded"
	}
	if !IsTextFile(name) {
		return "not a supported text file"
	}
	return ""
}

func (p ReadPolicy) readFile(path, relPath string) (File, string) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err.Error()
	}
	if p.MaxFileSize > 0 && info.Size() > p.MaxFileSize {
		return File{}, fmt.Sprintf("too large (%d bytes)", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err.Error()
	}
	if isBinary(data) {
		return File{}, "binary content"
	}

	content, truncated := truncate(string(data), p.MaxFileChars)
	if truncated {
		content += TruncationNote
	}
	return File{RelPath: relPath, Content: content, Truncated: truncated}, ""
}

// IsTextFile reports whether name has a supported text extension or is a
// known text basename.
func IsTextFile(name string) bool {
	if TextBasenames[name] {
		return true
	}
	return TextExtensions[strings.ToLower(filepath.Ext(name))]
}

// isBinary treats NUL bytes or invalid UTF-8 as binary.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data)
}

// truncate cuts s to at most maxLen bytes on a UTF-8 boundary.
func truncate(s string, maxLen int) (string, bool) {
	if maxLen <= 0 || len(s) <= maxLen {
		return s, false
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
