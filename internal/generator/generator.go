// Package generator runs the README pipeline over a repository:
// enumerate folders, skip marked ones, read files, build a prompt, call the
// model, write the output file, and optionally commit the result.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/autoreadme/internal/ai"
	"github.com/steveyegge/autoreadme/internal/config"
	"github.com/steveyegge/autoreadme/internal/cost"
	"github.com/steveyegge/autoreadme/internal/git"
	"github.com/steveyegge/autoreadme/internal/prompt"
	"github.com/steveyegge/autoreadme/internal/readme"
	"github.com/steveyegge/autoreadme/internal/report"
	"github.com/steveyegge/autoreadme/internal/scan"
)

// ErrFoldersFailed is returned by Run when at least one folder failed.
// The report still lists every folder that was processed.
var ErrFoldersFailed = errors.New("one or more folders failed")

// TextGenerator is the model call used for each folder.
// *ai.Client implements it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (*ai.Response, error)
}

// healthChecker is implemented by clients that can report an open circuit
// before a call is attempted. *ai.Client implements it.
type healthChecker interface {
	HealthCheck() error
}

// Config holds generator configuration
type Config struct {
	Settings config.Config     // Validated settings (root, limits, output name)
	AI       TextGenerator     // Required
	Budget   *cost.Tracker     // Optional token budget
	Git      git.GitOperations // Required when Commit is set
	DryRun   bool              // Generate but do not write; print a diff instead
	FailFast bool              // Stop at the first failed folder
	Commit   bool              // Commit written files after the run
	Out      io.Writer         // Progress output (default: os.Stdout)
}

// Generator produces README files for the target folders of one repository.
type Generator struct {
	settings config.Config
	ai       TextGenerator
	budget   *cost.Tracker
	git      git.GitOperations
	dryRun   bool
	failFast bool
	commit   bool
	out      io.Writer

	circuitNotice sync.Once
}

// New creates a Generator.
func New(cfg *Config) (*Generator, error) {
	if cfg.AI == nil {
		return nil, fmt.Errorf("AI client is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Commit && cfg.Git == nil {
		return nil, fmt.Errorf("git is required to commit")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	return &Generator{
		settings: cfg.Settings,
		ai:       cfg.AI,
		budget:   cfg.Budget,
		git:      cfg.Git,
		dryRun:   cfg.DryRun,
		failFast: cfg.FailFast,
		commit:   cfg.Commit,
		out:      out,
	}, nil
}

// Run processes every target folder and returns the report. The error is
// ErrFoldersFailed (wrapped) when some folder failed, or a fatal error when
// the run could not start or was canceled.
func (g *Generator) Run(ctx context.Context) (*report.Run, error) {
	run := report.NewRun(g.settings.Root, g.settings.Provider, g.settings.ModelName(), g.dryRun)

	targets, skipped, err := scan.EnumerateTargets(ctx, g.settings.Root, g.scanOptions())
	if err != nil {
		return nil, err
	}

	for _, s := range skipped {
		if s.Reason != scan.SkipMarker {
			continue
		}
		fmt.Fprintf(g.out, "Skipping folder %s due to %s marker.\n", s.Name, g.settings.MarkerName)
		run.Add(report.FolderResult{Folder: s.Name, Status: report.StatusSkippedMarker})
	}

	if len(targets) == 0 {
		fmt.Fprintln(g.out, "No valid project folders found.")
		run.Finish()
		return run, nil
	}

	if g.settings.Jobs > 1 {
		err = g.runParallel(ctx, targets, run)
	} else {
		err = g.runSequential(ctx, targets, run)
	}
	if err != nil {
		run.Finish()
		return run, err
	}

	if g.commit && !g.dryRun {
		if err := g.commitWritten(ctx, run); err != nil {
			run.Finish()
			return run, err
		}
	}

	run.Finish()

	if failed := run.Failed(); len(failed) > 0 {
		return run, fmt.Errorf("%w: %d of %d", ErrFoldersFailed, len(failed), len(targets))
	}
	return run, nil
}

func (g *Generator) runSequential(ctx context.Context, targets []scan.Folder, run *report.Run) error {
	for _, folder := range targets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}

		res := g.processFolder(ctx, folder)
		run.Add(res)

		if res.Status == report.StatusFailed && g.failFast {
			fmt.Fprintf(g.out, "Stopping after failure in %s (--fail-fast).\n", folder.Name)
			return nil
		}
	}
	return nil
}

// runParallel processes up to Jobs folders at once. Results land in the
// report in completion order; Finish sorts them.
func (g *Generator) runParallel(ctx context.Context, targets []scan.Folder, run *report.Run) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.settings.Jobs)

	for _, folder := range targets {
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			res := g.processFolder(egCtx, folder)
			run.Add(res)
			if res.Status == report.StatusFailed && g.failFast {
				return fmt.Errorf("%s: %s", folder.Name, res.Error)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		fmt.Fprintf(g.out, "Stopping after failure (--fail-fast): %v\n", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}
	return nil
}

// processFolder never returns an error; failures are recorded in the result.
func (g *Generator) processFolder(ctx context.Context, folder scan.Folder) report.FolderResult {
	start := time.Now()
	res := report.FolderResult{Folder: folder.Name}
	fail := func(err error) report.FolderResult {
		res.Status = report.StatusFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", folder.Name, err)
		return res
	}

	fmt.Fprintf(g.out, "Processing folder: %s\n", folder.Name)

	files, skippedFiles, err := scan.ReadFolderContents(ctx, folder, g.readPolicy())
	if err != nil {
		return fail(err)
	}
	for _, s := range skippedFiles {
		fmt.Fprintf(g.out, "  skipped %s: %s\n", s.RelPath, s.Reason)
	}
	res.FilesRead = len(files)

	if len(files) == 0 {
		fmt.Fprintf(g.out, "No relevant files found in %s. Skipping README generation.\n", folder.Name)
		res.Status = report.StatusSkippedEmpty
		res.Duration = time.Since(start)
		return res
	}

	p := prompt.Build(folder.Name, files, scan.DetectProject(folder.Path), prompt.Limits{MaxChars: g.settings.MaxPromptChars})
	res.PromptChars = len(p.Text)
	res.FilesDropped = len(p.Dropped)
	if len(p.Dropped) > 0 {
		fmt.Fprintf(os.Stderr, "warning: %s: %d file(s) left out of the prompt (length limit %d)\n",
			folder.Name, len(p.Dropped), g.settings.MaxPromptChars)
	}

	if g.budget != nil {
		if err := g.budget.Check(folder.Name); err != nil {
			return fail(err)
		}
	}

	if hc, ok := g.ai.(healthChecker); ok {
		if err := hc.HealthCheck(); err != nil {
			g.circuitNotice.Do(func() {
				fmt.Fprintf(g.out, "AI API unavailable, remaining folders fail until it recovers: %v\n", err)
			})
			return fail(err)
		}
	}

	resp, err := g.ai.Generate(ctx, p.Text)
	if err != nil {
		return fail(err)
	}
	res.InputTokens = resp.InputTokens
	res.OutputTokens = resp.OutputTokens
	if g.budget != nil {
		g.budget.RecordUsage(folder.Name, resp.InputTokens, resp.OutputTokens)
	}

	text := prompt.CleanResponse(resp.Text)

	// A marker added while the model was working still wins
	if scan.HasMarker(folder.Path, g.settings.MarkerName) {
		fmt.Fprintf(g.out, "Skipping folder %s: %s appeared during generation.\n", folder.Name, g.settings.MarkerName)
		res.Status = report.StatusSkippedMarker
		res.Duration = time.Since(start)
		return res
	}

	if g.dryRun {
		change, err := readme.Preview(folder.Path, g.settings.OutputFile, text)
		if err != nil {
			return fail(err)
		}
		g.printPreview(folder, change, text)
		res.Status = report.StatusDryRun
		res.OutputPath = change.Path
		res.Change = change.String()
		res.Duration = time.Since(start)
		return res
	}

	change, err := readme.Write(folder.Path, g.settings.OutputFile, text)
	if err != nil {
		return fail(err)
	}

	fmt.Fprintf(g.out, "%s %s in %s\n", g.settings.OutputFile, change, folder.Name)
	res.Status = report.StatusGenerated
	res.OutputPath = change.Path
	res.Change = change.String()
	res.Duration = time.Since(start)
	return res
}

func (g *Generator) printPreview(folder scan.Folder, change *readme.Change, text string) {
	fmt.Fprintf(g.out, "[dry-run] %s would be %s in %s\n", g.settings.OutputFile, change, folder.Name)
	if change.Unchanged {
		return
	}
	var old string
	if data, err := os.ReadFile(change.Path); err == nil {
		old = string(data)
	}
	fmt.Fprint(g.out, readme.UnifiedPreview(old, text, 2))
}

// commitWritten commits the files written this run, and nothing else.
func (g *Generator) commitWritten(ctx context.Context, run *report.Run) error {
	written := run.Written()
	if len(written) == 0 {
		return nil
	}
	if !g.git.IsRepository(ctx, g.settings.Root) {
		return fmt.Errorf("cannot commit: %s is not a git repository", g.settings.Root)
	}

	paths := make([]string, 0, len(written))
	for _, p := range written {
		rel, err := filepath.Rel(g.settings.Root, p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}

	hash, err := g.git.CommitChanges(ctx, g.settings.Root, git.CommitOptions{
		Message: fmt.Sprintf("docs: regenerate %s for %d folder(s)", g.settings.OutputFile, len(paths)),
		Paths:   paths,
	})
	if err != nil {
		return fmt.Errorf("committing generated files: %w", err)
	}
	if hash == "" {
		fmt.Fprintln(g.out, "No README changes to commit.")
		return nil
	}

	run.CommitHash = hash
	fmt.Fprintf(g.out, "Committed %d file(s) as %s\n", len(paths), shortHash(hash))

	// Other work in the tree is never committed; say so
	status, err := g.git.GetStatus(ctx, g.settings.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return nil
	}
	if left := status.Changed(); len(left) > 0 {
		fmt.Fprintf(g.out, "%d other changed file(s) left uncommitted\n", len(left))
	}
	return nil
}

func (g *Generator) scanOptions() scan.Options {
	return scan.Options{
		MarkerName: g.settings.MarkerName,
		IgnoreDirs: g.settings.Exclude,
	}
}

func (g *Generator) readPolicy() scan.ReadPolicy {
	return scan.ReadPolicy{
		Options:      g.scanOptions(),
		OutputFile:   g.settings.OutputFile,
		MaxFileSize:  g.settings.MaxFileSize,
		MaxFileChars: g.settings.MaxFileChars,
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
