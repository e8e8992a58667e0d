package compose

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhaire21/marktools/internal/catalog/catalogtest"
	"github.com/akhaire21/marktools/pkg/models"
)

func sampleWorkflows() map[string]*models.Workflow {
	out := make(map[string]*models.Workflow)
	for _, wf := range catalogtest.Workflows() {
		out[wf.WorkflowID] = wf
	}
	return out
}

func TestFromBindings_PositionalOrder(t *testing.T) {
	wfs := sampleWorkflows()
	bindings := []models.Binding{
		{Subtask: models.Subtask{Text: "File Ohio taxes", TaskType: "tax_filing", Weight: 0.5}, Workflow: wfs["ohio_w2_itemized_2024"], Score: 0.9},
		{Subtask: models.Subtask{Text: "Book Tokyo trip", TaskType: "travel_planning", Weight: 1.0}, Workflow: wfs["tokyo_trip_7day"], Score: 0.7},
		{Subtask: models.Subtask{Text: "Parse CSV", TaskType: "data_parsing", Weight: 0.8}, Workflow: wfs["csv_to_json_parser"], Score: 0.6},
	}

	dag, err := New(nil).FromBindings(bindings, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"subtask_0", "subtask_1", "subtask_2"}, dag.ExecutionOrder)
	assert.Equal(t, []string{"subtask_0"}, dag.RootIDs)
	assert.Equal(t, "3/4", dag.Coverage)
	assert.Equal(t, StrategyComposite, dag.Strategy)

	assert.Empty(t, dag.Nodes["subtask_0"].Dependencies)
	assert.Equal(t, []string{"subtask_0"}, dag.Nodes["subtask_1"].Dependencies)
	assert.Equal(t, []string{"subtask_1"}, dag.Nodes["subtask_0"].Children)
	assert.Equal(t, []string{"subtask_2"}, dag.Nodes["subtask_1"].Children)

	want := (0.9*0.5 + 0.7*1.0 + 0.6*0.8) / (0.5 + 1.0 + 0.8)
	assert.InDelta(t, want, dag.OverallConfidence, 1e-9)
}

func TestFromBindings_FlattensExpansion(t *testing.T) {
	wfs := sampleWorkflows()
	bindings := []models.Binding{
		{Subtask: models.Subtask{Text: "Ohio", Weight: 1}, Workflow: wfs["ohio_w2_itemized_2024"], Score: 0.9},
		{
			Subtask:  models.Subtask{Text: "Travel with a CSV budget", Weight: 1},
			Workflow: wfs["tokyo_trip_7day"],
			Score:    0.85,
			Expansion: []models.Binding{
				{Subtask: models.Subtask{Text: "Tokyo", Weight: 1}, Workflow: wfs["tokyo_trip_7day"], Score: 0.9},
				{Subtask: models.Subtask{Text: "CSV", Weight: 1}, Workflow: wfs["csv_to_json_parser"], Score: 0.8},
			},
		},
	}

	dag, err := New(nil).FromBindings(bindings, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"subtask_0", "subtask_1_0", "subtask_1_1"}, dag.ExecutionOrder)
	assert.Equal(t, "CSV", dag.Nodes["subtask_1_1"].Description)
	assert.Equal(t, []string{"subtask_1_0"}, dag.Nodes["subtask_1_1"].Dependencies)
	assert.Equal(t, "2/2", dag.Coverage)
}

func TestPricing_DeduplicatesDownloads(t *testing.T) {
	wf := &models.Workflow{WorkflowID: "shared", TaskType: "tax_filing", DownloadCost: 200, ExecutionCost: 800}
	var bindings []models.Binding
	for _, text := range []string{"a", "b", "c"} {
		bindings = append(bindings, models.Binding{Subtask: models.Subtask{Text: text, Weight: 1}, Workflow: wf, Score: 0.8})
	}

	dag, err := New(nil).FromBindings(bindings, 3)
	require.NoError(t, err)

	p := dag.Pricing()
	assert.Equal(t, 200, p.TotalDownloadCost)
	assert.Equal(t, 2400, p.TotalExecutionCost)
	assert.Equal(t, 2600, p.TotalCost)
	assert.Equal(t, 1, p.UniqueWorkflows)

	// Replacing a node after construction must be reflected in pricing.
	other := &models.Workflow{WorkflowID: "other", DownloadCost: 100, ExecutionCost: 50}
	dag.Nodes["subtask_2"].Workflow = other
	p = dag.Pricing()
	assert.Equal(t, 300, p.TotalDownloadCost)
	assert.Equal(t, 1650, p.TotalExecutionCost)
}

func TestOrder_RejectsCycle(t *testing.T) {
	dag := models.NewExecutionDAG()
	dag.AddNode(&models.SubtaskNode{ID: "a", Weight: 1, Dependencies: []string{"b"}})
	dag.AddNode(&models.SubtaskNode{ID: "b", Weight: 1, Dependencies: []string{"a"}})

	err := New(nil).order(dag)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestCompose_Direct(t *testing.T) {
	wfs := sampleWorkflows()
	plan := &models.SearchPlan{
		PlanType:     models.PlanTypeDirect,
		Workflows:    []*models.Workflow{wfs["ohio_w2_itemized_2024"]},
		OverallScore: 0.92,
		Alternatives: []models.Candidate{
			{Workflow: wfs["federal_1040_2024"], Score: 0.4},
			{Workflow: wfs["csv_to_json_parser"], Score: 0.1},
		},
	}

	dags, err := New(nil).Compose("File Ohio taxes", plan, 5)
	require.NoError(t, err)
	require.Len(t, dags, 3)

	first := dags[0]
	assert.Equal(t, StrategyDirect, first.Strategy)
	assert.Equal(t, []string{"ohio_w2_itemized_2024"}, first.WorkflowIDs())
	assert.Equal(t, "File Ohio taxes", first.Nodes["subtask_0"].Description)
	assert.Equal(t, "1/1", first.Coverage)
	for i := 1; i < len(dags); i++ {
		assert.GreaterOrEqual(t, RankScore(dags[i-1]), RankScore(dags[i]))
	}
}

func TestCompose_TopKAndEmpty(t *testing.T) {
	wfs := sampleWorkflows()
	plan := &models.SearchPlan{
		PlanType:     models.PlanTypeDirect,
		Workflows:    []*models.Workflow{wfs["ohio_w2_itemized_2024"]},
		OverallScore: 0.9,
		Alternatives: []models.Candidate{
			{Workflow: wfs["federal_1040_2024"], Score: 0.4},
			{Workflow: wfs["tokyo_trip_7day"], Score: 0.3},
			{Workflow: wfs["csv_to_json_parser"], Score: 0.2},
		},
	}

	dags, err := New(nil).Compose("x", plan, 2)
	require.NoError(t, err)
	assert.Len(t, dags, 2)

	none, err := New(nil).Compose("x", &models.SearchPlan{PlanType: models.PlanTypeDirect}, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCompose_Composite(t *testing.T) {
	wfs := sampleWorkflows()
	plan := &models.SearchPlan{
		PlanType: models.PlanTypeComposite,
		Subtasks: []models.Subtask{{Text: "Ohio", Weight: 1}, {Text: "Tokyo", Weight: 1}},
		Bindings: []models.Binding{
			{Subtask: models.Subtask{Text: "Ohio", Weight: 1}, Workflow: wfs["ohio_w2_itemized_2024"], Score: 0.9},
			{Subtask: models.Subtask{Text: "Tokyo", Weight: 1}, Workflow: wfs["tokyo_trip_7day"], Score: 0.9},
		},
		Alternatives: []models.Candidate{{Workflow: wfs["federal_1040_2024"], Score: 0.3}},
	}
	plan.Recompute()

	dags, err := New(nil).Compose("Ohio and Tokyo", plan, 5)
	require.NoError(t, err)
	require.Len(t, dags, 2)

	assert.Equal(t, StrategyComposite, dags[0].Strategy)
	assert.Equal(t, []string{"ohio_w2_itemized_2024", "tokyo_trip_7day"}, dags[0].WorkflowIDs())
	assert.Equal(t, StrategySingle, dags[1].Strategy)
}

func TestRankScore(t *testing.T) {
	cheap := Single("t", &models.Workflow{WorkflowID: "a", DownloadCost: 500, ExecutionCost: 500}, 0.5, StrategyVariant)
	pricey := Single("t", &models.Workflow{WorkflowID: "b", DownloadCost: 10000, ExecutionCost: 10000}, 0.9, StrategyVariant)

	assert.InDelta(t, 5+9.0, RankScore(cheap), 1e-9)
	assert.InDelta(t, 9.0, RankScore(pricey), 1e-9)

	dags := []*models.ExecutionDAG{pricey, cheap}
	Rank(dags)
	assert.Same(t, cheap, dags[0])
}

func TestExecutionDAG_JSONRoundTrip(t *testing.T) {
	wfs := sampleWorkflows()
	dag, err := New(nil).FromBindings([]models.Binding{
		{Subtask: models.Subtask{Text: "Ohio", Weight: 1}, Workflow: wfs["ohio_w2_itemized_2024"], Score: 0.9},
		{Subtask: models.Subtask{Text: "Tokyo", Weight: 1}, Workflow: wfs["tokyo_trip_7day"], Score: 0.8},
	}, 2)
	require.NoError(t, err)

	data, err := json.Marshal(dag)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_cost_tokens":1750`)

	var back models.ExecutionDAG
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, dag.ExecutionOrder, back.ExecutionOrder)
	assert.Equal(t, dag.Pricing(), back.Pricing())
}
