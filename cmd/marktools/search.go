package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/search"
)

var (
	searchMaxDepth     int
	searchRequireClose bool
)

var searchCmd = &cobra.Command{
	Use:   "search <task>",
	Short: "Find the best workflows for a task",
	Long: `Search the catalog for the workflow, or combination of workflows, that
best covers a task. Nothing is priced or purchased.

Examples:
  marktools search "File my 2024 Ohio taxes with a W2"
  marktools search "Plan a product launch" --max-depth 1
  marktools search "Migrate a Postgres database" --json | jq '.workflows'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchMaxDepth, "max-depth", -1, "Maximum recursive refinement depth (default from config)")
	searchCmd.Flags().BoolVar(&searchRequireClose, "require-close-match", false, "Return nothing when the best match is below the minimum score")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	so := search.DefaultSearchOptions()
	so.MaxDepth = searchMaxDepth
	so.RequireCloseMatch = searchRequireClose

	plan, err := a.market.Search(ctx, args[0], so)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), plan)
	}
	writePlan(cmd.OutOrStdout(), plan)
	return nil
}

// commandContext returns ctx, or a background context when cobra was run
// without one.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
