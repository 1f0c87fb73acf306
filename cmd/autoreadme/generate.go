package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/autoreadme/internal/ai"
	"github.com/steveyegge/autoreadme/internal/config"
	"github.com/steveyegge/autoreadme/internal/cost"
	"github.com/steveyegge/autoreadme/internal/generator"
	"github.com/steveyegge/autoreadme/internal/git"
	"github.com/steveyegge/autoreadme/internal/report"
)

var (
	dryRun       bool
	failFast     bool
	commitResult bool
	jobs         int
	reportPath   string
	providerName string
	modelName    string
)

// newClient is replaced in tests.
var newClient = func(ctx context.Context, cfg *ai.Config) (generator.TextGenerator, error) {
	return ai.NewClient(ctx, cfg)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate README.md for every eligible project folder",
	Long: `Generate README.md for every immediate subfolder of --root that has no
.stopautomation marker. Existing README files are overwritten.

The API key comes from GOOGLE_API_KEY (or GOOGLEAPIKEY) for Gemini, or
ANTHROPIC_API_KEY for Anthropic. A missing key stops the run before any
folder is touched.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := runGenerate(ctx, cmd.OutOrStdout()); err != nil {
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
			os.Exit(1)
		}
	},
}

func addGenerateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&dryRun, "dry-run", false, "Generate READMEs and print a diff without writing files")
	f.BoolVar(&failFast, "fail-fast", false, "Stop at the first folder that fails")
	f.BoolVar(&commitResult, "commit", false, "Commit the written README files to git")
	f.IntVar(&jobs, "jobs", 0, "Folders processed at once (default from config: 1)")
	f.StringVar(&reportPath, "report", "", "Write a JSON run report to this path")
	f.StringVar(&providerName, "provider", "", "AI provider: gemini or anthropic")
	f.StringVar(&modelName, "model", "", "Model name (default depends on provider)")
}

func init() {
	addGenerateFlags(generateCmd)
	rootCmd.AddCommand(generateCmd)
}

// loadSettings resolves the root, loads the config and applies flag overrides.
func loadSettings() (config.Config, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolving root %s: %w", rootDir, err)
	}

	cfg, err := config.Load(root, configPath)
	if err != nil {
		return cfg, err
	}
	if providerName != "" {
		cfg.Provider = providerName
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runGenerate wires the configured pipeline and runs it once.
func runGenerate(ctx context.Context, out io.Writer) (*report.Run, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}

	// Fatal before any folder is processed
	if err := cfg.ResolveAPIKey(); err != nil {
		return nil, err
	}

	retry := ai.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	client, err := newClient(ctx, &ai.Config{
		Provider:          cfg.Provider,
		APIKey:            cfg.APIKey,
		Model:             cfg.ModelName(),
		MaxOutputTokens:   cfg.MaxOutputTokens,
		Retry:             retry,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Out:               out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	budgetCfg := cost.DefaultConfig(cfg.Provider)
	budgetCfg.MaxTokensPerRun = cfg.MaxTokensPerRun
	budgetCfg.MaxTokensPerFolder = cfg.MaxTokensPerFolder
	tracker, err := cost.NewTracker(budgetCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create token budget: %w", err)
	}

	var gitOps git.GitOperations
	if commitResult && !dryRun {
		g, err := git.NewGit(ctx)
		if err != nil {
			return nil, err
		}
		gitOps = g
	}

	gen, err := generator.New(&generator.Config{
		Settings: cfg,
		AI:       client,
		Budget:   tracker,
		Git:      gitOps,
		DryRun:   dryRun,
		FailFast: failFast,
		Commit:   commitResult && !dryRun,
		Out:      out,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Using %s model %s\n", cfg.Provider, cfg.ModelName())

	run, runErr := gen.Run(ctx)
	if run == nil {
		return nil, runErr
	}

	if reportPath != "" {
		if err := run.WriteJSON(reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	printSummary(out, run, tracker)

	return run, runErr
}

func printSummary(out io.Writer, run *report.Run, tracker *cost.Tracker) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "\n%s\n", cyan("=== README Generation Summary ==="))

	for _, res := range run.Results {
		switch res.Status {
		case report.StatusGenerated:
			fmt.Fprintf(out, "  %s %s: %s\n", green("✓"), res.Folder, res.Change)
		case report.StatusDryRun:
			fmt.Fprintf(out, "  %s %s: would be %s\n", yellow("~"), res.Folder, res.Change)
		case report.StatusFailed:
			fmt.Fprintf(out, "  %s %s: %s\n", red("✗"), res.Folder, res.Error)
		default:
			fmt.Fprintf(out, "  %s %s: %s\n", gray("-"), res.Folder, gray(string(res.Status)))
		}
	}

	counts := run.Counts()
	fmt.Fprintf(out, "\nGenerated: %d  Dry run: %d  Skipped: %d  Failed: %d\n",
		counts[report.StatusGenerated],
		counts[report.StatusDryRun],
		counts[report.StatusSkippedMarker]+counts[report.StatusSkippedEmpty],
		counts[report.StatusFailed])
	if in, outTok := run.Tokens(); in+outTok > 0 {
		fmt.Fprintf(out, "Tokens: %d in / %d out (~$%.4f)\n", in, outTok, tracker.GetStats().EstimatedUSD)
	}
	if status := tracker.Status(); status != cost.BudgetHealthy {
		fmt.Fprintf(out, "Token budget: %s\n", yellow(status.String()))
	}
	if run.CommitHash != "" {
		fmt.Fprintf(out, "Commit: %s\n", run.CommitHash)
	}
	fmt.Fprintf(out, "Run %s finished in %v\n", run.ID, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
}
