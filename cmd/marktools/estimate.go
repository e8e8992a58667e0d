package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/marketplace"
	"github.com/akhaire21/marktools/internal/tui"
)

var (
	estimateTopK         int
	estimateMaxDepth     int
	estimateRequireClose bool
	estimateContext      string
	estimateInteractive  bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <task>",
	Short: "Price the solutions for a task",
	Long: `Search for a task and price the ranked solutions without revealing their
steps. The returned session ID is used with 'marktools buy'.

Personal data such as SSNs, emails and phone numbers is redacted from the
task before searching. Structured details can be passed with --context as
a JSON object; sensitive fields stay local and income is bucketed.

Examples:
  marktools estimate "File Ohio taxes with W2 and itemized deductions"
  marktools estimate "File taxes" --context '{"state":"ohio","income":85000}'
  marktools estimate "Plan a wedding" --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().IntVar(&estimateTopK, "top-k", 0, "Maximum number of solutions (default 5)")
	estimateCmd.Flags().IntVar(&estimateMaxDepth, "max-depth", -1, "Maximum recursive refinement depth (default from config)")
	estimateCmd.Flags().BoolVar(&estimateRequireClose, "require-close-match", false, "Return no solutions when nothing matches closely enough")
	estimateCmd.Flags().StringVar(&estimateContext, "context", "", "Task details as a JSON object")
	estimateCmd.Flags().BoolVarP(&estimateInteractive, "interactive", "i", false, "Choose and buy a solution interactively")
	estimateCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	req := marketplace.EstimateRequest{
		Query:             args[0],
		TopK:              estimateTopK,
		RequireCloseMatch: estimateRequireClose,
	}
	if estimateMaxDepth >= 0 {
		depth := estimateMaxDepth
		req.MaxDepth = &depth
	}
	if estimateContext != "" {
		if err := json.Unmarshal([]byte(estimateContext), &req.Context); err != nil {
			return fmt.Errorf("parse --context: %w", err)
		}
	}

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

	resp, err := a.market.Estimate(ctx, req)
	if err != nil {
		return err
	}

	if !estimateInteractive {
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), resp)
		}
		writeEstimate(cmd.OutOrStdout(), resp)
		return nil
	}

	if resp.NumSolutions == 0 {
		writeEstimate(cmd.OutOrStdout(), resp)
		return nil
	}

	solutionID, ok, err := tui.Pick(resp)
	if err != nil {
		return err
	}
	if !ok {
		printStatus("⚠", fmt.Sprintf("Cancelled. Session %s stays open for %s", resp.SessionID, cfg.Session.TTL), color.FgYellow)
		return nil
	}

	receipt, err := a.market.Buy(ctx, resp.SessionID, solutionID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), receipt)
	}
	writeReceipt(cmd.OutOrStdout(), receipt)
	return nil
}
