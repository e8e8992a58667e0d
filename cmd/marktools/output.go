package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/akhaire21/marktools/internal/marketplace"
	"github.com/akhaire21/marktools/pkg/models"
)

// printStatus prints a colored status symbol followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// ensureParentDir creates the directory holding path if needed.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// writePlan prints a search plan in human-readable form.
func writePlan(w io.Writer, plan *models.SearchPlan) {
	bold := color.New(color.Bold)

	if plan.QualityControl != nil {
		qc := plan.QualityControl
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("⚠"), qc.Reason)
		fmt.Fprintf(w, "  Best score %.2f, minimum %.2f, depth %d\n", qc.BestScore, qc.MinRequiredScore, qc.FinalDepth)
		return
	}
	if plan.Empty() {
		fmt.Fprintln(w, "No matching workflows found.")
		return
	}

	fmt.Fprintf(w, "%s %s plan, score %.2f, coverage %.0f%%\n",
		bold.Sprint("Plan:"), plan.PlanType, plan.OverallScore, plan.Coverage()*100)
	if plan.MaxDepthReached {
		fmt.Fprintf(w, "  Refinement stopped at max depth %d\n", plan.FinalDepth)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, bold.Sprint("Workflows:"))
	for _, rw := range plan.RankedWorkflows() {
		fmt.Fprintf(w, "  %d. %s (%s) rating %.1f, %d tokens\n",
			rw.Rank, rw.Title, rw.WorkflowID, rw.Rating, rw.TotalCost())
	}
	p := plan.Pricing()
	fmt.Fprintf(w, "  Total %d tokens (download %d, execution %d)\n",
		p.TotalCost, p.TotalDownloadCost, p.TotalExecutionCost)

	if plan.PlanType == models.PlanTypeComposite {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold.Sprint("Subtasks:"))
		for _, b := range plan.Bindings {
			writeBinding(w, b, 1)
		}
		for _, st := range plan.Unmatched {
			fmt.Fprintf(w, "  %s %s\n", color.New(color.FgRed).Sprint("✗"), st.Text)
		}
	}

	if len(plan.Alternatives) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold.Sprint("Alternatives:"))
		for _, c := range plan.Alternatives {
			fmt.Fprintf(w, "  - %s (%.2f)\n", c.Workflow.WorkflowID, c.Score)
		}
	}
}

func writeBinding(w io.Writer, b models.Binding, level int) {
	indent := strings.Repeat("  ", level)
	id := ""
	if b.Workflow != nil {
		id = b.Workflow.WorkflowID
	}
	fmt.Fprintf(w, "%s%s %s -> %s (%.2f)\n", indent, color.New(color.FgGreen).Sprint("✓"), b.Subtask.Text, id, b.Score)
	for _, child := range b.Expansion {
		writeBinding(w, child, level+1)
	}
}

// writeEstimate prints the priced solutions of an estimate.
func writeEstimate(w io.Writer, resp *marketplace.EstimateResponse) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	if resp.Query.PrivacyProtected {
		s := resp.Query.Summary
		fmt.Fprintf(w, "%s %d fields kept local, %d anonymized\n",
			color.New(color.FgCyan).Sprint("🔒"), len(s.FieldsRemoved), len(s.FieldsAnonymized))
	}
	if resp.QualityControl != nil {
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("⚠"), resp.QualityControl.Reason)
		return
	}
	if resp.NumSolutions == 0 {
		fmt.Fprintln(w, "No solutions found.")
		return
	}

	fmt.Fprintf(w, "%s %d solutions for a %s plan over %d subtasks\n",
		bold.Sprint("Estimate:"), resp.NumSolutions, resp.PlanType, resp.Decomposition.NumSubtasks)
	for _, sol := range resp.Solutions {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s  %s, confidence %.2f, coverage %s\n",
			bold.Sprint(sol.SolutionID), sol.Strategy, sol.ConfidenceScore, sol.Structure.Coverage)
		p := sol.Pricing
		fmt.Fprintf(w, "  Cost %d tokens (download %d, execution %d), from scratch %d, %s\n",
			p.TotalCostTokens, p.DownloadCost, p.ExecutionCost, p.FromScratchEstimate,
			green.Sprintf("saves %d (%d%%)", p.SavingsTokens, p.SavingsPercentage))
		for i, ws := range sol.WorkflowsSummary {
			fmt.Fprintf(w, "  %d. %s (%s) %d tokens\n", i+1, ws.WorkflowTitle, ws.WorkflowID, ws.TokenCost)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session %s\n", resp.SessionID)
	fmt.Fprintf(w, "Buy with: marktools buy %s <solution_id>\n", resp.SessionID)
}

// writeReceipt prints a purchase receipt.
func writeReceipt(w io.Writer, r *marketplace.Receipt) {
	fmt.Fprintf(w, "%s Purchased %s from %s\n", color.New(color.FgGreen).Sprint("✓"), r.SolutionID, r.SessionID)
	fmt.Fprintf(w, "  Receipt %s, %d tokens charged, %d workflows\n", r.PurchaseID, r.TokensCharged, r.NumWorkflows)
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("Execution order:"))
	for i, pw := range r.ExecutionPlan.Workflows {
		deps := ""
		if len(pw.Dependencies) > 0 {
			deps = " after " + strings.Join(pw.Dependencies, ", ")
		}
		fmt.Fprintf(w, "  %d. [%s] %s using %s%s\n", i+1, pw.SubtaskID, pw.Description, pw.WorkflowID, deps)
	}
}
