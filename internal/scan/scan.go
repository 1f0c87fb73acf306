// Package scan finds the folders that get a generated README and reads
// their text files.
//
// Only immediate subfolders of the repository root are targets. Inside a
// target the walk is recursive, minus ignored directories. A folder holding
// the skip marker (a file or directory, default ".stopautomation") is never
// a target.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultIgnoreDirs are administrative or generated directories that are never
// documented and never read.
var DefaultIgnoreDirs = []string{
	".git",
	".github",
	"automation",
	"__pycache__",
	"node_modules",
	"vendor",
	".venv",
	"venv",
}

// Folder is a candidate Project Folder.
type Folder struct {
	// Name is the directory name, e.g. "calculator"
	Name string

	// Path is the absolute directory path
	Path string
}

// SkipReason says why a subfolder was not selected.
type SkipReason string

const (
	SkipMarker  SkipReason = "marker"
	SkipIgnored SkipReason = "ignored"
	SkipHidden  SkipReason = "hidden"
)

// Skipped is a subfolder that EnumerateTargets left out.
type Skipped struct {
	Folder
	Reason SkipReason
}

// Options configures enumeration and reading.
type Options struct {
	// MarkerName is the skip marker (default: .stopautomation)
	MarkerName string

	// IgnoreDirs are directory names excluded at every depth.
	// DefaultIgnoreDirs is always included.
	IgnoreDirs []string
}

func (o Options) marker() string {
	if o.MarkerName == "" {
		return ".stopautomation"
	}
	return o.MarkerName
}

func (o Options) ignored(name string) bool {
	for _, d := range DefaultIgnoreDirs {
		if name == d {
			return true
		}
	}
	for _, d := range o.IgnoreDirs {
		if name == d {
			return true
		}
	}
	return false
}

// EnumerateTargets lists the immediate subfolders of root that should get a
// README. Hidden, ignored and marker-carrying folders are returned separately
// in skipped. Both slices are sorted by name.
func EnumerateTargets(ctx context.Context, root string, opts Options) (targets []Folder, skipped []Skipped, err error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid root path %q: %w", root, err)
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("reading root %s: %w", absRoot, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if !isDir(absRoot, entry) {
			continue
		}

		f := Folder{Name: entry.Name(), Path: filepath.Join(absRoot, entry.Name())}

		switch {
		case opts.ignored(f.Name):
			skipped = append(skipped, Skipped{Folder: f, Reason: SkipIgnored})
		case strings.HasPrefix(f.Name, "."):
			skipped = append(skipped, Skipped{Folder: f, Reason: SkipHidden})
		case HasMarker(f.Path, opts.marker()):
			skipped = append(skipped, Skipped{Folder: f, Reason: SkipMarker})
		default:
			targets = append(targets, f)
		}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Name < skipped[j].Name })
	return targets, skipped, nil
}

// HasMarker reports whether dir directly contains a file or directory named marker.
func HasMarker(dir, marker string) bool {
	_, err := os.Lstat(filepath.Join(dir, marker))
	return err == nil
}

// isDir follows symlinks so a linked project folder is still a target.
func isDir(root string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, entry.Name()))
	return err == nil && info.IsDir()
}
