package pricing

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/akhaire21/marktools/pkg/models"
)

var (
	tkm     *tiktoken.Tiktoken
	tkmOnce sync.Once
)

func tokenizer() *tiktoken.Tiktoken {
	tkmOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tkm = enc
		}
	})
	return tkm
}

// EstimateTokens counts the tokens of s with the cl100k_base encoding, or
// estimates one token per four characters when the encoding is
// unavailable.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	if t := tokenizer(); t != nil {
		return len(t.Encode(s, nil, nil))
	}
	return len(s) / 4
}

// scratchTextMultiplier scales a workflow's own token count into the cost
// of working the task out without it.
const scratchTextMultiplier = 3

// FromScratchCost estimates what the plan would cost an agent without the
// marketplace. Measured token comparisons are used when present; otherwise
// each node costs 3x to 5x its workflow price depending on step count.
// Workflows without steps are floored at three times their text's token
// count.
func FromScratchCost(dag *models.ExecutionDAG) int {
	total := 0
	for _, n := range dag.OrderedNodes() {
		total += nodeFromScratch(n)
	}
	return total
}

func nodeFromScratch(n *models.SubtaskNode) int {
	wf := n.Workflow
	if wf == nil {
		return 0
	}
	if tc := wf.TokenComparison; tc != nil && tc.FromScratch > 0 {
		return tc.FromScratch
	}

	steps := float64(len(wf.Steps))
	multiplier := 3 + min(2, steps/10)
	estimate := int(float64(wf.TotalCost()) * multiplier)

	if len(wf.Steps) == 0 {
		floor := EstimateTokens(wf.FullText) * scratchTextMultiplier
		estimate = max(estimate, floor)
	}
	return estimate
}
