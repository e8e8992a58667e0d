package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhaire21/marktools/pkg/models"
)

func TestQualityMultiplier(t *testing.T) {
	tests := []struct {
		rating float64
		want   float64
	}{
		{5.0, 1.3},
		{4.8, 1.276},
		{4.0, 1.18},
		{1.0, 0.82},
		{0, 0.7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, QualityMultiplier(tt.rating), 1e-9, "rating %.1f", tt.rating)
	}
}

func TestEngine_Price(t *testing.T) {
	e := NewEngine(DefaultConfig())
	wf := &models.Workflow{
		WorkflowID:      "ohio",
		Rating:          4.8,
		TokenComparison: &models.TokenComparison{WithWorkflow: 2000, FromScratch: 9000},
	}

	q := e.Price(wf, nil)
	// 7000 * 0.15 * 1.276 = 1339.8
	assert.Equal(t, 7000, q.TokensSaved)
	assert.Equal(t, 1340, q.BasePrice)
	assert.Equal(t, 1340, q.ConstrainedPrice)
	assert.Nil(t, q.MarketRate)
	assert.Equal(t, 1340, q.FinalPrice)
	assert.InDelta(t, 522.4, q.ROIPercentage, 1e-9)
	assert.Equal(t, "Base: 1050 (15% of 7,000 saved) → Quality adjusted (4.8★): ×1.28 → Final: 1340 tokens", q.Breakdown)
}

func TestEngine_Bounds(t *testing.T) {
	e := NewEngine(DefaultConfig())

	none := e.Price(&models.Workflow{WorkflowID: "free", Rating: 5}, nil)
	assert.Equal(t, 50, none.FinalPrice, "no savings still costs the minimum")

	huge := e.Price(&models.Workflow{
		WorkflowID:      "huge",
		Rating:          5,
		TokenComparison: &models.TokenComparison{WithWorkflow: 0, FromScratch: 100000},
	}, nil)
	assert.Equal(t, 2000, huge.ConstrainedPrice)
}

func TestEngine_MarketConstraint(t *testing.T) {
	e := NewEngine(DefaultConfig())
	wf := &models.Workflow{
		WorkflowID:      "ohio",
		Rating:          4.8,
		TokenComparison: &models.TokenComparison{WithWorkflow: 2000, FromScratch: 9000},
	}

	q := e.Price(wf, []int{600, 800, 1000})
	require.NotNil(t, q.MarketRate)
	assert.Equal(t, 800.0, *q.MarketRate)
	assert.Equal(t, 1040, q.FinalPrice, "capped at 130% of the median")
}

func TestMarketRate(t *testing.T) {
	_, ok := MarketRate(nil)
	assert.False(t, ok)

	rate, ok := MarketRate([]int{400, 100, 200, 300})
	assert.True(t, ok)
	assert.Equal(t, 250.0, rate)
}

func TestEngine_Comparables(t *testing.T) {
	e := NewEngine(DefaultConfig())
	target := &models.Workflow{WorkflowID: "a", TaskType: "tax_filing", Rating: 4,
		TokenComparison: &models.TokenComparison{FromScratch: 10000, WithWorkflow: 0}}
	all := []*models.Workflow{
		target,
		{WorkflowID: "b", TaskType: "tax_filing", Rating: 4, TokenComparison: &models.TokenComparison{FromScratch: 12000}},
		{WorkflowID: "c", TaskType: "tax_filing", Rating: 4, TokenComparison: &models.TokenComparison{FromScratch: 20000}},
		{WorkflowID: "d", TaskType: "travel_planning", Rating: 4, TokenComparison: &models.TokenComparison{FromScratch: 10000}},
		{WorkflowID: "e", TaskType: "tax_filing", Rating: 4},
	}

	prices := e.Comparables(all, target)
	require.Len(t, prices, 1)
	assert.Equal(t, e.ListPrice(all[1]), prices[0])

	q := e.Quote(all, target)
	assert.NotNil(t, q.MarketRate)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Config{})
	assert.Equal(t, DefaultConfig(), e.cfg)
}

func TestSavingsPercentage(t *testing.T) {
	assert.Equal(t, 0, SavingsPercentage(0, 100))
	assert.Equal(t, 77, SavingsPercentage(9000, 2000))
	assert.Equal(t, -100, SavingsPercentage(100, 200))
}

func TestFromScratchCost(t *testing.T) {
	dag := models.NewExecutionDAG()
	dag.AddNode(&models.SubtaskNode{ID: "measured", Workflow: &models.Workflow{
		WorkflowID:      "m",
		TokenComparison: &models.TokenComparison{WithWorkflow: 2000, FromScratch: 9000},
	}})
	dag.AddNode(&models.SubtaskNode{ID: "heuristic", Workflow: &models.Workflow{
		WorkflowID:    "h",
		DownloadCost:  100,
		ExecutionCost: 400,
		Steps:         make([]models.Step, 5),
	}})

	// 9000 + 500 * (3 + 0.5)
	assert.Equal(t, 9000+1750, FromScratchCost(dag))
}

func TestFromScratchCost_TextFloor(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "collect documents and file the return "
	}
	dag := models.NewExecutionDAG()
	dag.AddNode(&models.SubtaskNode{ID: "n", Workflow: &models.Workflow{
		WorkflowID:    "stepless",
		DownloadCost:  1,
		ExecutionCost: 1,
		FullText:      long,
	}})

	got := FromScratchCost(dag)
	assert.Equal(t, EstimateTokens(long)*scratchTextMultiplier, got)
	assert.Greater(t, got, 6)
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Positive(t, EstimateTokens("File Ohio 2024 taxes with W2 income"))
}

func TestWithCommas(t *testing.T) {
	assert.Equal(t, "0", withCommas(0))
	assert.Equal(t, "999", withCommas(999))
	assert.Equal(t, "1,000", withCommas(1000))
	assert.Equal(t, "-1,234,567", withCommas(-1234567))
}
