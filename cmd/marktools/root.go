package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	catalogPath string
	verbose     bool
	offline     bool
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "marktools",
	Short: "Workflow marketplace for AI agents",
	Long: `marktools matches natural language tasks to pre-solved workflows.

A task is first matched against the whole catalog. When no single workflow
fits well, it is decomposed into subtasks, each subtask is matched on its
own, and weak matches are refined recursively. The result is a priced
execution plan that agents can estimate and then buy.

Agents can reach the same operations over MCP with 'marktools serve'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/marktools/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Workflow catalog file (overrides catalog.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write debug logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the lexical scorer, heuristic decomposer and hash embedder")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
