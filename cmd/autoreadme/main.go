package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDir    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "autoreadme",
	Short: "Generate README files for each project folder with an AI model",
	Long: `autoreadme documents every immediate subfolder of a repository.

For each folder without a .stopautomation marker it reads the text files,
asks the configured model for a README, and writes README.md into the folder.
Running autoreadme with no subcommand is the same as "autoreadme generate".`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		generateCmd.Run(cmd, args)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Repository root whose subfolders are documented")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <root>/.autoreadme.yaml if present)")
	addGenerateFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
