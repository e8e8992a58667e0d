// Package compose turns search plans into ranked, priced execution DAGs.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/akhaire21/marktools/internal/graph"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/pkg/models"
)

// ErrCycleDetected is returned when node dependencies form a cycle. The
// positional dependency rule cannot produce one, so seeing it means a bug.
var ErrCycleDetected = graph.ErrCycleDetected

// Strategies recorded on ExecutionDAG.Strategy.
const (
	StrategyComposite = "composite"
	StrategyDirect    = "direct"
	StrategySingle    = "single"
	StrategyVariant   = "variant"
)

// DefaultTopK is the number of solutions returned when none is requested.
const DefaultTopK = 5

// Composer builds execution DAGs.
type Composer struct {
	log logging.Logger
}

// New creates a Composer.
func New(log logging.Logger) *Composer {
	return &Composer{log: logging.OrNop(log)}
}

// Compose returns up to topK solutions for plan, best first. A composite
// plan yields its bindings DAG plus a single-workflow alternative; a direct
// plan yields the chosen workflow plus one variant per alternative
// candidate. Solutions using the same workflows are kept once. An empty
// plan yields no solutions.
func (c *Composer) Compose(task string, plan *models.SearchPlan, topK int) ([]*models.ExecutionDAG, error) {
	if plan.Empty() {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	var dags []*models.ExecutionDAG
	switch plan.PlanType {
	case models.PlanTypeComposite:
		dag, err := c.FromBindings(plan.Bindings, len(plan.Subtasks))
		if err != nil {
			return nil, err
		}
		dags = append(dags, dag)
		if len(plan.Alternatives) > 0 {
			alt := plan.Alternatives[0]
			dags = append(dags, Single(task, alt.Workflow, alt.Score, StrategySingle))
		}
	default:
		dags = append(dags, Single(task, plan.Workflows[0], plan.OverallScore, StrategyDirect))
		for _, alt := range plan.Alternatives {
			if len(dags) >= topK {
				break
			}
			dags = append(dags, Single(task, alt.Workflow, alt.Score, StrategyVariant))
		}
	}

	dags = dedupe(dags)
	Rank(dags)
	if len(dags) > topK {
		dags = dags[:topK]
	}

	for i, dag := range dags {
		p := dag.Pricing()
		c.log.Log("[compose] solution %d (%s): %d nodes, %d tokens, confidence %.2f",
			i+1, dag.Strategy, len(dag.Nodes), p.TotalCost, dag.OverallConfidence)
	}
	return dags, nil
}

// FromBindings builds a DAG from matched bindings. Expanded bindings are
// flattened in order; node IDs are subtask_<i> for plain bindings and
// subtask_<i>_<j> for the leaves of an expansion. Each node depends on the
// node before it, so decomposition order is execution order.
func (c *Composer) FromBindings(bindings []models.Binding, totalSubtasks int) (*models.ExecutionDAG, error) {
	dag := models.NewExecutionDAG()
	dag.Strategy = StrategyComposite
	dag.Coverage = fmt.Sprintf("%d/%d", len(bindings), totalSubtasks)

	prev := ""
	for i, b := range bindings {
		leaves := b.Leaves()
		for j, leaf := range leaves {
			id := fmt.Sprintf("subtask_%d", i)
			if len(b.Expansion) > 0 {
				id = fmt.Sprintf("subtask_%d_%d", i, j)
			}
			node := &models.SubtaskNode{
				ID:           id,
				Description:  leaf.Subtask.Text,
				TaskType:     leaf.Subtask.TaskType,
				Weight:       weightOf(leaf.Subtask),
				Workflow:     leaf.Workflow,
				Confidence:   leaf.Score,
				Dependencies: []string{},
				Children:     []string{},
			}
			if prev != "" {
				node.Dependencies = append(node.Dependencies, prev)
			}
			dag.AddNode(node)
			prev = id
		}
	}

	if err := c.order(dag); err != nil {
		return nil, err
	}
	dag.OverallConfidence = weightedConfidence(dag)
	return dag, nil
}

// order fills in children, roots and the execution order of dag.
func (c *Composer) order(dag *models.ExecutionDAG) error {
	g := graph.New()
	g.SetDebugLog(logging.Func(c.log))

	nodes := make([]*graph.Node, 0, len(dag.NodeIDs))
	for _, n := range dag.OrderedNodes() {
		nodes = append(nodes, &graph.Node{ID: n.ID, DependsOn: n.Dependencies, Priority: n.Weight})
	}
	if err := g.Build(nodes); err != nil {
		return fmt.Errorf("build dependency graph: %w", err)
	}

	execOrder, err := g.TopologicalSort()
	if err != nil {
		return fmt.Errorf("order plan nodes: %w", err)
	}

	for _, n := range dag.OrderedNodes() {
		n.Children = append([]string{}, g.GetDependents(n.ID)...)
	}
	dag.RootIDs = g.Roots()
	dag.ExecutionOrder = execOrder
	return nil
}

// Single builds a one-node DAG that runs wf for the whole task.
func Single(task string, wf *models.Workflow, confidence float64, strategy string) *models.ExecutionDAG {
	dag := models.NewExecutionDAG()
	dag.AddNode(&models.SubtaskNode{
		ID:           "subtask_0",
		Description:  task,
		TaskType:     wf.TaskType,
		Weight:       1.0,
		Workflow:     wf,
		Confidence:   confidence,
		Dependencies: []string{},
		Children:     []string{},
	})
	dag.RootIDs = []string{"subtask_0"}
	dag.ExecutionOrder = []string{"subtask_0"}
	dag.Coverage = "1/1"
	dag.OverallConfidence = confidence
	dag.Strategy = strategy
	return dag
}

// RankScore combines confidence and cost efficiency:
// confidence*10 + max(0, 10 - total_cost/1000).
func RankScore(dag *models.ExecutionDAG) float64 {
	cost := 10 - float64(dag.Pricing().TotalCost)/1000
	if cost < 0 {
		cost = 0
	}
	return dag.OverallConfidence*10 + cost
}

// Rank sorts dags by RankScore, highest first. Equal scores keep their
// order.
func Rank(dags []*models.ExecutionDAG) {
	scores := make(map[*models.ExecutionDAG]float64, len(dags))
	for _, d := range dags {
		scores[d] = RankScore(d)
	}
	sort.SliceStable(dags, func(i, j int) bool {
		return scores[dags[i]] > scores[dags[j]]
	})
}

func dedupe(dags []*models.ExecutionDAG) []*models.ExecutionDAG {
	seen := make(map[string]bool, len(dags))
	out := dags[:0]
	for _, d := range dags {
		key := strings.Join(d.WorkflowIDs(), ",") + "|" + fmt.Sprint(len(d.Nodes))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func weightOf(st models.Subtask) float64 {
	if st.Weight <= 0 {
		return 1.0
	}
	return st.Weight
}

// weightedConfidence is the weight-averaged node confidence.
func weightedConfidence(dag *models.ExecutionDAG) float64 {
	var sum, weights float64
	for _, n := range dag.OrderedNodes() {
		sum += n.Confidence * n.Weight
		weights += n.Weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}
