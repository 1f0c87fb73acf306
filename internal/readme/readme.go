// Package readme writes generated documentation into a project folder and
// reports how it differs from what was there before.
package readme

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Change describes one write (or, for Preview, a write that would happen).
type Change struct {
	// Path is the output file path
	Path string

	// Created is true when no file existed before
	Created bool

	// Unchanged is true when the new text equals the old one byte for byte
	Unchanged bool

	// LinesAdded and LinesRemoved are line-level diff counts
	LinesAdded   int
	LinesRemoved int
}

func (c Change) String() string {
	switch {
	case c.Created:
		return fmt.Sprintf("created (+%d lines)", c.LinesAdded)
	case c.Unchanged:
		return "unchanged"
	default:
		return fmt.Sprintf("updated (+%d -%d lines)", c.LinesAdded, c.LinesRemoved)
	}
}

// Write overwrites (or creates) dir/name with text. The whole file is
// replaced on every call; the Change only reports the difference.
// The write goes through a temp file and rename so a failed write leaves the
// previous README in place.
func Write(dir, name, text string) (*Change, error) {
	change, err := Preview(dir, name, text)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("writing %s: %w", change.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", change.Path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return nil, fmt.Errorf("setting mode on %s: %w", change.Path, err)
	}
	if err := os.Rename(tmpName, change.Path); err != nil {
		return nil, fmt.Errorf("replacing %s: %w", change.Path, err)
	}

	return change, nil
}

// Preview computes the Change that Write would make, without writing.
func Preview(dir, name, text string) (*Change, error) {
	path := filepath.Join(dir, name)
	change := &Change{Path: path}

	old, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		change.Created = true
		change.LinesAdded = countLines(text)
		return change, nil
	case err != nil:
		return nil, fmt.Errorf("reading existing %s: %w", path, err)
	}

	if string(old) == text {
		change.Unchanged = true
		return change, nil
	}

	change.LinesAdded, change.LinesRemoved = LineDiff(string(old), text)
	return change, nil
}

// LineDiff counts added and removed lines between old and updated.
func LineDiff(old, updated string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, updated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

// UnifiedPreview renders the line diff with +/- prefixes for dry runs.
// Unchanged runs longer than context lines are collapsed.
func UnifiedPreview(old, updated string, context int) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(old, updated)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		chunk := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, l := range chunk {
				out.WriteString("+ " + l + "\n")
			}
		case diffmatchpatch.DiffDelete:
			for _, l := range chunk {
				out.WriteString("- " + l + "\n")
			}
		case diffmatchpatch.DiffEqual:
			if len(chunk) > 2*context {
				for _, l := range chunk[:context] {
					out.WriteString("  " + l + "\n")
				}
				fmt.Fprintf(&out, "  ... (%d unchanged lines)\n", len(chunk)-2*context)
				chunk = chunk[len(chunk)-context:]
			}
			for _, l := range chunk {
				out.WriteString("  " + l + "\n")
			}
		}
	}
	return out.String()
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func countLines(s string) int {
	return len(splitLines(s))
}
