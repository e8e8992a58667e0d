// Package pricing prices workflows by the tokens they save and estimates
// what a plan would cost to solve from scratch.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/akhaire21/marktools/pkg/models"
)

// Config holds the pricing parameters.
type Config struct {
	// MinPrice and MaxPrice bound every final price.
	MinPrice int
	MaxPrice int
	// BasePercentage is the share of saved tokens charged before the
	// quality adjustment.
	BasePercentage float64
	// MarketVariance is how far a price may drift from the median of
	// comparable workflows.
	MarketVariance float64
}

// DefaultConfig returns the standard marketplace pricing.
func DefaultConfig() Config {
	return Config{
		MinPrice:       50,
		MaxPrice:       2000,
		BasePercentage: 0.15,
		MarketVariance: 0.30,
	}
}

// comparableTolerance is the allowed ratio spread of tokens saved between
// comparable workflows.
const comparableTolerance = 0.3

// Quote is the full pricing breakdown of one workflow.
type Quote struct {
	WorkflowID        string  `json:"workflow_id"`
	TokensSaved       int     `json:"tokens_saved"`
	BasePrice         int     `json:"base_price"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	ConstrainedPrice  int     `json:"constrained_price"`
	// MarketRate is the median comparable price, or nil without comparables.
	MarketRate    *float64 `json:"market_rate"`
	FinalPrice    int      `json:"final_price"`
	ROIPercentage float64  `json:"roi_percentage"`
	Breakdown     string   `json:"breakdown"`
}

// Engine computes workflow prices.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. Zero fields in cfg take their defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = def.MinPrice
	}
	if cfg.MaxPrice < cfg.MinPrice {
		cfg.MaxPrice = def.MaxPrice
	}
	if cfg.BasePercentage <= 0 {
		cfg.BasePercentage = def.BasePercentage
	}
	if cfg.MarketVariance <= 0 {
		cfg.MarketVariance = def.MarketVariance
	}
	return &Engine{cfg: cfg}
}

// QualityMultiplier maps a 0-5 rating to 0.7x-1.3x.
func QualityMultiplier(rating float64) float64 {
	return 0.7 + (rating/5.0)*0.6
}

// BasePrice is tokensSaved * base percentage * quality multiplier, rounded.
func (e *Engine) BasePrice(tokensSaved int, rating float64) int {
	return int(math.Round(float64(tokensSaved) * e.cfg.BasePercentage * QualityMultiplier(rating)))
}

// Constrain clamps price to the configured bounds.
func (e *Engine) Constrain(price int) int {
	return max(e.cfg.MinPrice, min(price, e.cfg.MaxPrice))
}

// MarketRate returns the median of prices, or false if there are none.
func MarketRate(prices []int) (float64, bool) {
	if len(prices) == 0 {
		return 0, false
	}
	sorted := append([]int(nil), prices...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid]), true
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2, true
}

// ApplyMarketConstraint keeps price within the market variance of rate.
func (e *Engine) ApplyMarketConstraint(price int, rate float64) int {
	lo := rate * (1 - e.cfg.MarketVariance)
	hi := rate * (1 + e.cfg.MarketVariance)
	return int(math.Round(math.Max(lo, math.Min(float64(price), hi))))
}

// ListPrice is the bounded price of wf before any market adjustment.
func (e *Engine) ListPrice(wf *models.Workflow) int {
	return e.Constrain(e.BasePrice(wf.TokenComparison.Saved(), wf.Rating))
}

// Price computes the quote for wf given the prices of comparable
// workflows.
func (e *Engine) Price(wf *models.Workflow, comparables []int) Quote {
	saved := wf.TokenComparison.Saved()
	q := Quote{
		WorkflowID:        wf.WorkflowID,
		TokensSaved:       saved,
		BasePrice:         e.BasePrice(saved, wf.Rating),
		QualityMultiplier: QualityMultiplier(wf.Rating),
	}
	q.ConstrainedPrice = e.Constrain(q.BasePrice)
	q.FinalPrice = q.ConstrainedPrice

	if rate, ok := MarketRate(comparables); ok {
		q.MarketRate = &rate
		q.FinalPrice = e.ApplyMarketConstraint(q.ConstrainedPrice, rate)
	}

	if q.FinalPrice > 0 {
		q.ROIPercentage = math.Round(float64(saved)/float64(q.FinalPrice)*100*10) / 10
	}

	baseAmount := int(float64(saved) * e.cfg.BasePercentage)
	q.Breakdown = fmt.Sprintf("Base: %d (%d%% of %s saved) → Quality adjusted (%.1f★): ×%.2f → Final: %d tokens",
		baseAmount, int(math.Round(e.cfg.BasePercentage*100)), withCommas(saved), wf.Rating, q.QualityMultiplier, q.FinalPrice)
	return q
}

// Comparables returns the list prices of workflows comparable to target:
// the same task type and tokens saved within 30% of target's.
func (e *Engine) Comparables(all []*models.Workflow, target *models.Workflow) []int {
	targetSaved := target.TokenComparison.Saved()
	if targetSaved == 0 {
		return nil
	}

	var prices []int
	for _, wf := range all {
		if wf.WorkflowID == target.WorkflowID || wf.TaskType != target.TaskType {
			continue
		}
		saved := wf.TokenComparison.Saved()
		if saved == 0 {
			continue
		}
		ratio := float64(saved) / float64(targetSaved)
		if ratio >= 1-comparableTolerance && ratio <= 1+comparableTolerance {
			prices = append(prices, e.ListPrice(wf))
		}
	}
	return prices
}

// Quote prices target against the rest of the catalog.
func (e *Engine) Quote(all []*models.Workflow, target *models.Workflow) Quote {
	return e.Price(target, e.Comparables(all, target))
}

// SavingsPercentage is the share of fromScratch saved by paying total,
// truncated toward zero. It is 0 when fromScratch is not positive.
func SavingsPercentage(fromScratch, total int) int {
	if fromScratch <= 0 {
		return 0
	}
	return int(float64(fromScratch-total) / float64(fromScratch) * 100)
}

func withCommas(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}
