package git

import (
	"context"
)

// GitOperations is the subset of git the generator needs.
// It is an interface so tests can substitute a fake.
type GitOperations interface {
	// IsRepository reports whether repoPath is inside a git work tree.
	IsRepository(ctx context.Context, repoPath string) bool

	// GetStatus returns detailed git status information.
	GetStatus(ctx context.Context, repoPath string) (*Status, error)

	// CommitChanges creates a commit with the given message.
	// Returns the commit hash, or "" when there was nothing to commit.
	CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error)
}

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// Changed returns modified, added and untracked paths.
func (s *Status) Changed() []string {
	var out []string
	out = append(out, s.Modified...)
	out = append(out, s.Added...)
	out = append(out, s.Untracked...)
	return out
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// Author specifies the author (optional, uses git config if empty)
	Author string

	// Paths limits staging and the commit to these paths, relative to the
	// repository. Empty means nothing is staged by CommitChanges.
	Paths []string
}
