package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git implements GitOperations using the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// IsRepository reports whether repoPath is inside a git work tree.
func (g *Git) IsRepository(ctx context.Context, repoPath string) bool {
	out, err := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "--is-inside-work-tree").Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// GetStatus returns the git status of the repository.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) GetStatus(ctx context.Context, repoPath string) (*Status, error) {
	return g.status(ctx, repoPath)
}

func (g *Git) status(ctx context.Context, repoPath string, paths ...string) (*Status, error) {
	args := []string{"-C", repoPath, "status", "--porcelain", "--untracked-files=all"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}
	output, err := exec.CommandContext(ctx, g.gitPath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return parseStatus(output)
}

// parseStatus parses `git status --porcelain` output.
func parseStatus(output []byte) (*Status, error) {
	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		// XY PATH, where X=index and Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		statusCode := line[0:2]
		filePath := line[3:]

		switch {
		case statusCode == "??":
			status.Untracked = append(status.Untracked, filePath)
		case statusCode[0] == 'A':
			status.Added = append(status.Added, filePath)
		case statusCode[0] == 'D' || statusCode[1] == 'D':
			status.Deleted = append(status.Deleted, filePath)
		case statusCode[0] == 'R':
			status.Renamed = append(status.Renamed, filePath)
		default:
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// CommitChanges stages opts.Paths and commits only those paths, leaving any
// other staged or unstaged work alone. If none of the paths changed it
// returns "" and no error.
// SECURITY: repoPath must be a validated, trusted path.
func (g *Git) CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}
	if len(opts.Paths) == 0 {
		return "", nil
	}

	status, err := g.status(ctx, repoPath, opts.Paths...)
	if err != nil {
		return "", err
	}
	if !status.HasChanges {
		return "", nil
	}

	addArgs := append([]string{"-C", repoPath, "add", "--"}, opts.Paths...)
	if out, err := exec.CommandContext(ctx, g.gitPath, addArgs...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add failed in %s: %w: %s", repoPath, err, strings.TrimSpace(string(out)))
	}

	args := []string{"-C", repoPath, "commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	args = append(args, "--")
	args = append(args, opts.Paths...)

	if out, err := exec.CommandContext(ctx, g.gitPath, args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit failed in %s: %w: %s", repoPath, err, strings.TrimSpace(string(out)))
	}

	hashOutput, err := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}

	return strings.TrimSpace(string(hashOutput)), nil
}
