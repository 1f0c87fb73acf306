package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// initRepo creates a repository with one commit so HEAD exists.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}

	writeFile(t, dir, "seed.txt", "seed")
	for _, args := range [][]string{{"add", "seed.txt"}, {"commit", "-q", "-m", "seed"}} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestGitOperations(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	g, err := NewGit(ctx)
	if err != nil {
		t.Fatalf("Failed to create Git instance: %v", err)
	}

	t.Run("IsRepository", func(t *testing.T) {
		if !g.IsRepository(ctx, dir) {
			t.Error("expected temp repo to be a repository")
		}
		if g.IsRepository(ctx, t.TempDir()) {
			t.Error("expected plain dir not to be a repository")
		}
	})

	t.Run("CleanStatus", func(t *testing.T) {
		status, err := g.GetStatus(ctx, dir)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if status.HasChanges {
			t.Errorf("expected clean tree, got %+v", status)
		}
	})

	t.Run("CommitOnlyListedPaths", func(t *testing.T) {
		writeFile(t, dir, "a/README.md", "# A\n")
		writeFile(t, dir, "b/README.md", "# B\n")
		writeFile(t, dir, "unrelated.txt", "keep me out")

		hash, err := g.CommitChanges(ctx, dir, CommitOptions{
			Message: "docs: regenerate README",
			Paths:   []string{"a/README.md", "b/README.md"},
		})
		if err != nil {
			t.Fatalf("CommitChanges failed: %v", err)
		}
		if len(hash) < 7 {
			t.Errorf("expected a commit hash, got %q", hash)
		}

		status, err := g.GetStatus(ctx, dir)
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if len(status.Untracked) != 1 || status.Untracked[0] != "unrelated.txt" {
			t.Errorf("expected only unrelated.txt left untracked, got %+v", status)
		}
	})

	t.Run("NothingToCommit", func(t *testing.T) {
		hash, err := g.CommitChanges(ctx, dir, CommitOptions{
			Message: "docs: regenerate README",
			Paths:   []string{"a/README.md"},
		})
		if err != nil {
			t.Fatalf("CommitChanges failed: %v", err)
		}
		if hash != "" {
			t.Errorf("expected no commit, got %s", hash)
		}
	})

	t.Run("RequiresMessage", func(t *testing.T) {
		if _, err := g.CommitChanges(ctx, dir, CommitOptions{Paths: []string{"a/README.md"}}); err == nil {
			t.Error("expected error for empty message")
		}
	})
}

func TestParseStatus(t *testing.T) {
	output := []byte(" M a/README.md\n?? b/README.md\nA  c/new.go\n D gone.txt\nR  old -> new\n")

	status, err := parseStatus(output)
	if err != nil {
		t.Fatalf("parseStatus failed: %v", err)
	}
	if !status.HasChanges {
		t.Error("expected HasChanges")
	}
	if len(status.Modified) != 1 || status.Modified[0] != "a/README.md" {
		t.Errorf("Modified = %v", status.Modified)
	}
	if len(status.Untracked) != 1 || len(status.Added) != 1 || len(status.Deleted) != 1 || len(status.Renamed) != 1 {
		t.Errorf("unexpected status %+v", status)
	}
	if got := len(status.Changed()); got != 3 {
		t.Errorf("Changed() returned %d paths, want 3", got)
	}
}
