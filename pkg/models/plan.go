package models

import "encoding/json"

// PlanType identifies how a search plan was assembled.
type PlanType string

const (
	// PlanTypeDirect is a single workflow matching the whole task.
	PlanTypeDirect PlanType = "direct"
	// PlanTypeComposite is a set of subtask to workflow bindings.
	PlanTypeComposite PlanType = "composite"
)

// Valid returns true if the plan type is a known value.
func (t PlanType) Valid() bool {
	switch t {
	case PlanTypeDirect, PlanTypeComposite:
		return true
	default:
		return false
	}
}

// Subtask is one decomposed piece of a larger task. Subtasks live only for
// the duration of a single search call.
type Subtask struct {
	Text     string `json:"text"`
	TaskType string `json:"task_type"`
	// Weight is the relative importance used for weighted averaging.
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale,omitempty"`
}

// Binding ties a subtask to the workflow chosen for it and the relevance
// score that justified the choice.
type Binding struct {
	Subtask  Subtask   `json:"subtask"`
	Workflow *Workflow `json:"workflow"`
	Score    float64   `json:"score"`
	// Expansion holds the bindings of a recursive composite result that
	// replaced this subtask's single-workflow match.
	Expansion []Binding `json:"expansion,omitempty"`
}

// Leaves flattens the binding into the single-workflow bindings that will
// become execution nodes.
func (b Binding) Leaves() []Binding {
	if len(b.Expansion) == 0 {
		return []Binding{b}
	}
	var out []Binding
	for _, child := range b.Expansion {
		out = append(out, child.Leaves()...)
	}
	return out
}

// Candidate is a workflow returned by a search together with the score
// that ranked it: the relevance score when the scorer judged it, otherwise
// the hybrid search score.
type Candidate struct {
	Workflow *Workflow `json:"workflow"`
	Score    float64   `json:"score"`
}

// QualityControl describes why a low-confidence result was suppressed.
type QualityControl struct {
	Triggered        bool    `json:"triggered"`
	Reason           string  `json:"reason"`
	MaxDepthReached  bool    `json:"max_depth_reached"`
	FinalDepth       int     `json:"final_depth"`
	BestScore        float64 `json:"best_score"`
	MinRequiredScore float64 `json:"min_required_score"`
}

// SearchPlan is the result of a search call.
type SearchPlan struct {
	// PlanType is direct or composite. Empty plans keep the type of the
	// plan that was suppressed.
	PlanType PlanType
	// Workflows are the selected workflows in rank order.
	Workflows []*Workflow
	// OverallScore is the relevance score for direct plans and
	// coverage times weighted quality for composite plans.
	OverallScore float64
	// Subtasks is the full decomposition, matched or not.
	Subtasks []Subtask
	// Bindings are the matched subtasks in decomposition order.
	Bindings []Binding
	// Unmatched lists subtasks for which no workflow was found.
	Unmatched []Subtask
	// Alternatives are the broad search candidates for the whole task,
	// excluding the chosen workflow of a direct plan.
	Alternatives []Candidate

	MaxDepthReached bool
	FinalDepth      int
	QualityControl  *QualityControl
}

// Empty returns true if the plan selected no workflows.
func (p *SearchPlan) Empty() bool {
	return p == nil || len(p.Workflows) == 0
}

// Coverage returns matched subtasks over total subtasks. Direct plans
// cover the whole task.
func (p *SearchPlan) Coverage() float64 {
	if p.PlanType == PlanTypeDirect {
		if p.Empty() {
			return 0
		}
		return 1
	}
	if len(p.Subtasks) == 0 {
		return 0
	}
	return float64(len(p.Bindings)) / float64(len(p.Subtasks))
}

// Recompute refreshes the workflow list and overall score of a composite
// plan from its bindings. It must be called after any binding is replaced.
func (p *SearchPlan) Recompute() {
	if p.PlanType != PlanTypeComposite {
		return
	}
	p.OverallScore = CompositeScore(p.Bindings, len(p.Subtasks))

	seen := make(map[string]bool)
	workflows := make([]*Workflow, 0, len(p.Bindings))
	for _, b := range p.Bindings {
		for _, leaf := range b.Leaves() {
			if leaf.Workflow == nil || seen[leaf.Workflow.WorkflowID] {
				continue
			}
			seen[leaf.Workflow.WorkflowID] = true
			workflows = append(workflows, leaf.Workflow)
		}
	}
	p.Workflows = workflows
}

// CompositeScore returns coverage_ratio * weighted_average_quality, where
// the weighted average runs over matched bindings only.
func CompositeScore(bindings []Binding, totalSubtasks int) float64 {
	if totalSubtasks == 0 || len(bindings) == 0 {
		return 0
	}

	var weighted, weights float64
	for _, b := range bindings {
		w := b.Subtask.Weight
		if w <= 0 {
			w = 1
		}
		weighted += b.Score * w
		weights += w
	}
	if weights == 0 {
		return 0
	}

	coverage := float64(len(bindings)) / float64(totalSubtasks)
	return coverage * (weighted / weights)
}

// RankedWorkflow is a workflow annotated with its 1-based rank.
type RankedWorkflow struct {
	Rank int `json:"rank"`
	*Workflow
}

// RankedWorkflows returns the plan's workflows with ranks attached.
func (p *SearchPlan) RankedWorkflows() []RankedWorkflow {
	out := make([]RankedWorkflow, 0, len(p.Workflows))
	for i, wf := range p.Workflows {
		out = append(out, RankedWorkflow{Rank: i + 1, Workflow: wf})
	}
	return out
}

// Pricing computes the plan's cost totals over its leaf nodes: the
// flattened bindings of a composite plan, or the workflows of a direct one.
func (p *SearchPlan) Pricing() Pricing {
	if p.PlanType != PlanTypeComposite {
		return priceNodes(p.Workflows)
	}
	var wfs []*Workflow
	for _, b := range p.Bindings {
		for _, leaf := range b.Leaves() {
			wfs = append(wfs, leaf.Workflow)
		}
	}
	return priceNodes(wfs)
}

type searchPlanJSON struct {
	PlanType        PlanType         `json:"plan_type"`
	Workflows       []RankedWorkflow `json:"workflows"`
	NumSolutions    int              `json:"num_solutions"`
	OverallScore    float64          `json:"overall_score"`
	Coverage        float64          `json:"coverage"`
	Subtasks        []Subtask        `json:"subtasks,omitempty"`
	Bindings        []Binding        `json:"bindings,omitempty"`
	Unmatched       []Subtask        `json:"unmatched,omitempty"`
	MaxDepthReached bool             `json:"max_depth_reached"`
	FinalDepth      int              `json:"final_depth"`
	Pricing         Pricing          `json:"pricing"`
	QualityControl  *QualityControl  `json:"quality_control,omitempty"`
}

// MarshalJSON emits the caller-facing form of the plan. The
// quality_control field is present only when the gate suppressed a plan.
func (p *SearchPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(searchPlanJSON{
		PlanType:        p.PlanType,
		Workflows:       p.RankedWorkflows(),
		NumSolutions:    len(p.Workflows),
		OverallScore:    p.OverallScore,
		Coverage:        p.Coverage(),
		Subtasks:        p.Subtasks,
		Bindings:        p.Bindings,
		Unmatched:       p.Unmatched,
		MaxDepthReached: p.MaxDepthReached,
		FinalDepth:      p.FinalDepth,
		Pricing:         p.Pricing(),
		QualityControl:  p.QualityControl,
	})
}
