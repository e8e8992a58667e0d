package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akhaire21/marktools/internal/session"
)

var buyCmd = &cobra.Command{
	Use:   "buy <session_id> <solution_id>",
	Short: "Purchase a solution from an estimate",
	Long: `Buy one solution of a previous estimate and print its workflows in
execution order. The session is consumed by the purchase.

Examples:
  marktools buy session_3f2a9c1d0e4b5a67 sol_1
  marktools buy session_3f2a9c1d0e4b5a67 sol_2 --json > plan.json`,
	Args: cobra.ExactArgs(2),
	RunE: runBuy,
}

func init() {
	buyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func runBuy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd.Context())
	a, err := newPurchaseApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	receipt, err := a.market.Buy(ctx, args[0], args[1])
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return fmt.Errorf("session %s not found or expired, run 'marktools estimate' again", args[0])
	case err != nil:
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), receipt)
	}
	writeReceipt(cmd.OutOrStdout(), receipt)
	return nil
}
