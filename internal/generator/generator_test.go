package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/autoreadme/internal/ai"
	"github.com/steveyegge/autoreadme/internal/config"
	"github.com/steveyegge/autoreadme/internal/cost"
	"github.com/steveyegge/autoreadme/internal/git"
	"github.com/steveyegge/autoreadme/internal/report"
)

// fakeAI answers every prompt with a fixed README.
// Prompts containing failOn get an API error instead.
type fakeAI struct {
	mu      sync.Mutex
	prompts []string
	failOn  string
	reply   string
	tokens  int64

	onGenerate func(prompt string)
}

func (f *fakeAI) Generate(ctx context.Context, prompt string) (*ai.Response, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.onGenerate != nil {
		f.onGenerate(prompt)
	}
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return nil, fmt.Errorf("%w: gemini call failed: 503 unavailable", ai.ErrAPI)
	}
	reply := f.reply
	if reply == "" {
		reply = "# Generated\n\nSome docs.\n"
	}
	return &ai.Response{Text: reply, InputTokens: f.tokens, OutputTokens: f.tokens}, nil
}

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeGit struct {
	isRepo  bool
	commits []git.CommitOptions
	hash    string
	status  *git.Status
}

func (f *fakeGit) IsRepository(ctx context.Context, repoPath string) bool { return f.isRepo }

func (f *fakeGit) GetStatus(ctx context.Context, repoPath string) (*git.Status, error) {
	if f.status != nil {
		return f.status, nil
	}
	return &git.Status{}, nil
}

func (f *fakeGit) CommitChanges(ctx context.Context, repoPath string, opts git.CommitOptions) (string, error) {
	f.commits = append(f.commits, opts)
	return f.hash, nil
}

// unhealthyAI reports an open circuit until healthy is set.
type unhealthyAI struct {
	fakeAI
	healthy bool
}

func (u *unhealthyAI) HealthCheck() error {
	if u.healthy {
		return nil
	}
	return fmt.Errorf("%w: %w (failures=5, retry in 30s)", ai.ErrAPI, ai.ErrCircuitOpen)
}

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

func newGenerator(t *testing.T, root string, gen TextGenerator, mutate func(*Config)) (*Generator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := &Config{
		Settings: config.Default(root),
		AI:       gen,
		Out:      &out,
	}
	if mutate != nil {
		mutate(cfg)
	}
	g, err := New(cfg)
	require.NoError(t, err)
	return g, &out
}

func resultFor(run *report.Run, folder string) *report.FolderResult {
	for i := range run.Results {
		if run.Results[i].Folder == folder {
			return &run.Results[i]
		}
	}
	return nil
}

func TestRunWritesReadmesAndHonorsMarker(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A/main.py":         "print('hi')\n",
		"B/.stopautomation": "",
		"B/app.py":          "print('skip me')\n",
		"C/":                "",
		".git/config":       "[core]\n",
		"notes.txt":         "top-level files are not targets",
	})

	fake := &fakeAI{}
	g, out := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	// One API call: A only
	assert.Equal(t, 1, fake.calls())
	assert.Contains(t, fake.prompts[0], "File: main.py")
	assert.Contains(t, fake.prompts[0], "print('hi')")
	assert.NotContains(t, fake.prompts[0], "skip me")

	data, err := os.ReadFile(filepath.Join(root, "A", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Generated\n\nSome docs.\n", string(data))

	assert.NoFileExists(t, filepath.Join(root, "B", "README.md"))
	assert.NoFileExists(t, filepath.Join(root, "C", "README.md"))

	require.Len(t, run.Results, 3)
	assert.Equal(t, report.StatusGenerated, resultFor(run, "A").Status)
	assert.Equal(t, report.StatusSkippedMarker, resultFor(run, "B").Status)
	assert.Equal(t, report.StatusSkippedEmpty, resultFor(run, "C").Status)
	assert.Nil(t, resultFor(run, ".git"))

	assert.Contains(t, out.String(), "Skipping folder B due to .stopautomation marker.")
	assert.Contains(t, out.String(), "Processing folder: A")
}

func TestRunOverwritesExistingReadme(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A/main.go":   "package main\n",
		"A/README.md": "old content that must not reach the prompt\n",
	})

	fake := &fakeAI{reply: "```markdown\n# New\n```"}
	g, _ := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, fake.calls())
	assert.NotContains(t, fake.prompts[0], "old content")

	data, err := os.ReadFile(filepath.Join(root, "A", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# New\n", string(data))
	assert.Contains(t, resultFor(run, "A").Change, "updated")
}

func TestRunContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"bad/main.py":  "FAIL_ME\n",
		"good/main.py": "print('ok')\n",
	})

	fake := &fakeAI{failOn: "FAIL_ME"}
	g, _ := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFoldersFailed))

	assert.Equal(t, 2, fake.calls())
	assert.Equal(t, report.StatusFailed, resultFor(run, "bad").Status)
	assert.Contains(t, resultFor(run, "bad").Error, "AI API error")
	assert.Equal(t, report.StatusGenerated, resultFor(run, "good").Status)

	// No placeholder README for a failed folder
	assert.NoFileExists(t, filepath.Join(root, "bad", "README.md"))
	assert.FileExists(t, filepath.Join(root, "good", "README.md"))
}

func TestRunFailFast(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/main.py": "FAIL_ME\n",
		"b/main.py": "print('never reached')\n",
	})

	fake := &fakeAI{failOn: "FAIL_ME"}
	g, out := newGenerator(t, root, fake, func(c *Config) { c.FailFast = true })

	run, err := g.Run(context.Background())
	require.ErrorIs(t, err, ErrFoldersFailed)

	assert.Equal(t, 1, fake.calls())
	assert.Nil(t, resultFor(run, "b"))
	assert.Contains(t, out.String(), "--fail-fast")
}

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A/main.py":   "print('hi')\n",
		"A/README.md": "# Old\n",
	})

	fake := &fakeAI{reply: "# New\n"}
	g, out := newGenerator(t, root, fake, func(c *Config) { c.DryRun = true })

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "A", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Old\n", string(data))

	assert.True(t, run.DryRun)
	assert.Equal(t, report.StatusDryRun, resultFor(run, "A").Status)
	assert.Contains(t, out.String(), "[dry-run]")
	assert.Contains(t, out.String(), "+ # New")
	assert.Contains(t, out.String(), "- # Old")
}

func TestRunParallel(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 6; i++ {
		files[fmt.Sprintf("pkg%d/main.go", i)] = fmt.Sprintf("package pkg%d\n", i)
	}
	writeTree(t, root, files)

	fake := &fakeAI{}
	g, _ := newGenerator(t, root, fake, func(c *Config) { c.Settings.Jobs = 3 })

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, fake.calls())
	require.Len(t, run.Results, 6)
	for i, res := range run.Results {
		assert.Equal(t, fmt.Sprintf("pkg%d", i), res.Folder)
		assert.Equal(t, report.StatusGenerated, res.Status)
	}
}

func TestRunStopsAtTokenBudget(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/main.py": "print('a')\n",
		"b/main.py": "print('b')\n",
	})

	budgetCfg := cost.DefaultConfig(config.ProviderGemini)
	budgetCfg.MaxTokensPerRun = 100
	tracker, err := cost.NewTracker(budgetCfg)
	require.NoError(t, err)

	fake := &fakeAI{tokens: 60}
	g, _ := newGenerator(t, root, fake, func(c *Config) { c.Budget = tracker })

	run, err := g.Run(context.Background())
	require.ErrorIs(t, err, ErrFoldersFailed)

	assert.Equal(t, 1, fake.calls())
	assert.Equal(t, report.StatusGenerated, resultFor(run, "a").Status)
	assert.Equal(t, report.StatusFailed, resultFor(run, "b").Status)
	assert.Contains(t, resultFor(run, "b").Error, "token budget exceeded")
}

func TestRunCommitsWrittenFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A/main.py": "print('hi')\n",
		"B/main.py": "print('hi')\n",
	})

	fg := &fakeGit{isRepo: true, hash: "0123456789abcdef"}
	g, out := newGenerator(t, root, &fakeAI{}, func(c *Config) {
		c.Commit = true
		c.Git = fg
	})

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fg.commits, 1)
	assert.Equal(t, []string{"A/README.md", "B/README.md"}, fg.commits[0].Paths)
	assert.Equal(t, "docs: regenerate README.md for 2 folder(s)", fg.commits[0].Message)
	assert.Equal(t, "0123456789abcdef", run.CommitHash)
	assert.Contains(t, out.String(), "Committed 2 file(s) as 01234567")
}

func TestRunCommitRequiresRepository(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"A/main.py": "x = 1\n"})

	g, _ := newGenerator(t, root, &fakeAI{}, func(c *Config) {
		c.Commit = true
		c.Git = &fakeGit{isRepo: false}
	})

	_, err := g.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestRunNoTargets(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"only/.stopautomation": ""})

	fake := &fakeAI{}
	g, out := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fake.calls())
	assert.Contains(t, out.String(), "No valid project folders found.")
	assert.Equal(t, 1, run.Counts()[report.StatusSkippedMarker])
}

func TestRunCanceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"A/main.py": "x = 1\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeAI{}
	g, _ := newGenerator(t, root, fake, nil)

	_, err := g.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, fake.calls())
}

func TestNewValidation(t *testing.T) {
	root := t.TempDir()

	_, err := New(&Config{Settings: config.Default(root)})
	assert.Error(t, err, "AI is required")

	_, err = New(&Config{Settings: config.Default(root), AI: &fakeAI{}, Commit: true})
	assert.Error(t, err, "git is required with Commit")

	bad := config.Default(root)
	bad.Jobs = 0
	_, err = New(&Config{Settings: bad, AI: &fakeAI{}})
	assert.Error(t, err)
}

func TestRunMarkerAddedDuringGeneration(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"A/main.py":   "print('hi')\n",
		"A/README.md": "# Hand written\n",
	})

	fake := &fakeAI{onGenerate: func(string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "A", ".stopautomation"), nil, 0644))
	}}
	g, out := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls())
	assert.Equal(t, report.StatusSkippedMarker, resultFor(run, "A").Status)
	assert.Contains(t, out.String(), ".stopautomation appeared during generation")

	data, err := os.ReadFile(filepath.Join(root, "A", "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hand written\n", string(data))
}

func TestRunLeavesMarkedReadmeUntouched(t *testing.T) {
	tests := []struct {
		name   string
		dryRun bool
	}{
		{"write", false},
		{"dry run", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			original := "# Kept\r\n\nno trailing newline"
			writeTree(t, root, map[string]string{
				"A/.stopautomation": "",
				"A/main.py":         "print('a')\n",
				"A/README.md":       original,
				"B/main.py":         "print('b')\n",
			})
			before, err := os.Stat(filepath.Join(root, "A", "README.md"))
			require.NoError(t, err)

			fake := &fakeAI{}
			g, _ := newGenerator(t, root, fake, func(c *Config) { c.DryRun = tt.dryRun })

			run, err := g.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, fake.calls())
			assert.NotContains(t, fake.prompts[0], "print('a')")
			assert.Equal(t, report.StatusSkippedMarker, resultFor(run, "A").Status)

			data, err := os.ReadFile(filepath.Join(root, "A", "README.md"))
			require.NoError(t, err)
			assert.Equal(t, []byte(original), data)
			after, err := os.Stat(filepath.Join(root, "A", "README.md"))
			require.NoError(t, err)
			assert.Equal(t, before.ModTime(), after.ModTime())
		})
	}
}

func TestRunSkipsCallsWhileCircuitOpen(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/main.py": "print('a')\n",
		"b/main.py": "print('b')\n",
	})

	client := &unhealthyAI{}
	g, out := newGenerator(t, root, client, nil)

	run, err := g.Run(context.Background())
	require.ErrorIs(t, err, ErrFoldersFailed)

	assert.Equal(t, 0, client.calls())
	for _, name := range []string{"a", "b"} {
		res := resultFor(run, name)
		require.NotNil(t, res)
		assert.Equal(t, report.StatusFailed, res.Status)
		assert.Contains(t, res.Error, "circuit breaker is open")
	}
	assert.Equal(t, 1, strings.Count(out.String(), "AI API unavailable"))

	client.healthy = true
	g, _ = newGenerator(t, root, client, nil)
	run, err = g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls())
	assert.Equal(t, 2, run.Counts()[report.StatusGenerated])
}

func TestRunCommitReportsOtherChanges(t *testing.T) {
	tests := []struct {
		name   string
		status *git.Status
		want   string
	}{
		{"clean tree", &git.Status{}, ""},
		{"other work pending", &git.Status{Modified: []string{"main.go"}, Untracked: []string{"notes.txt"}}, "2 other changed file(s) left uncommitted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{"A/main.py": "print('hi')\n"})

			fg := &fakeGit{isRepo: true, hash: "abc", status: tt.status}
			g, out := newGenerator(t, root, &fakeAI{}, func(c *Config) {
				c.Commit = true
				c.Git = fg
			})

			_, err := g.Run(context.Background())
			require.NoError(t, err)
			require.Len(t, fg.commits, 1)
			assert.Equal(t, []string{"A/README.md"}, fg.commits[0].Paths)
			if tt.want == "" {
				assert.NotContains(t, out.String(), "left uncommitted")
			} else {
				assert.Contains(t, out.String(), tt.want)
			}
		})
	}
}

func TestRunFollowsSymlinkedFolder(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	writeTree(t, elsewhere, map[string]string{"main.py": "print('linked')\n"})
	if err := os.Symlink(elsewhere, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	fake := &fakeAI{}
	g, _ := newGenerator(t, root, fake, nil)

	run, err := g.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, fake.calls())
	assert.Contains(t, fake.prompts[0], "print('linked')")
	assert.Equal(t, report.StatusGenerated, resultFor(run, "linked").Status)
	assert.FileExists(t, filepath.Join(elsewhere, "README.md"))
}
