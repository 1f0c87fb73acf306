package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/autoreadme/internal/scan"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the folders a run would process",
	Long: `List the immediate subfolders of --root that would get a README, and the
ones that are skipped and why. No API key is needed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runList(context.Background(), cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context, out io.Writer) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	targets, skipped, err := scan.EnumerateTargets(ctx, cfg.Root, scan.Options{
		MarkerName: cfg.MarkerName,
		IgnoreDirs: cfg.Exclude,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(out, "%s\n", yellow(fmt.Sprintf("Targets (%d):", len(targets))))
	if len(targets) == 0 {
		fmt.Fprintf(out, "  %s\n", gray("none"))
	}
	for _, f := range targets {
		fmt.Fprintf(out, "  %s %s\n", green("●"), f.Name)
	}

	if len(skipped) > 0 {
		fmt.Fprintf(out, "\n%s\n", yellow(fmt.Sprintf("Skipped (%d):", len(skipped))))
		for _, s := range skipped {
			fmt.Fprintf(out, "  %s %s %s\n", gray("○"), s.Name, gray("("+string(s.Reason)+")"))
		}
	}
	return nil
}
