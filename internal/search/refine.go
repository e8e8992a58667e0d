package search

import (
	"context"

	"github.com/akhaire21/marktools/internal/index"
	"github.com/akhaire21/marktools/pkg/models"
)

// refine improves the worst binding of a composite plan. It first searches
// the steps of the worst subtask's workflow and retries with the subtask
// text sharpened by the best step. If that does not beat the current
// match, it recurses on the worst subtask at depth+1 and splices the
// recursive result in place of the binding. The returned plan is a copy;
// plan is not modified.
func (r *run) refine(ctx context.Context, plan *models.SearchPlan, depth int) (*models.SearchPlan, error) {
	refined := clonePlan(plan)
	worst := worstBinding(refined.Bindings)
	b := &refined.Bindings[worst]
	r.logf("[search] depth=%d refining subtask %q (workflow %s, score %.3f)",
		depth, b.Subtask.Text, b.Workflow.WorkflowID, b.Score)

	improved, err := r.refineWithinWorkflow(ctx, b)
	if err != nil {
		return nil, err
	}
	if improved {
		refined.Recompute()
		r.logf("[search] depth=%d step refinement raised score to %.3f", depth, refined.OverallScore)
		return refined, nil
	}

	sub, err := r.search(ctx, b.Subtask.Text, depth+1)
	if err != nil {
		return nil, err
	}
	if sub.Empty() || sub.OverallScore <= b.Score {
		r.logf("[search] depth=%d recursion on %q did not improve %.3f", depth, b.Subtask.Text, b.Score)
		return plan, nil
	}

	b.Workflow = sub.Workflows[0]
	b.Score = sub.OverallScore
	b.Expansion = nil
	if sub.PlanType == models.PlanTypeComposite {
		b.Expansion = sub.Bindings
	}
	refined.Recompute()
	r.logf("[search] depth=%d recursion replaced subtask %q with %s plan, score %.3f",
		depth, b.Subtask.Text, sub.PlanType, refined.OverallScore)
	return refined, nil
}

// refineWithinWorkflow searches the steps of b's workflow for the part
// closest to the subtask, then re-runs retrieval and scoring on the
// subtask text with the step text appended. b is updated in place when a
// different workflow scores above the current binding on that query.
func (r *run) refineWithinWorkflow(ctx context.Context, b *models.Binding) (bool, error) {
	vec, err := r.embedQuery(ctx, b.Subtask.Text)
	if err != nil {
		return false, err
	}
	nodes, err := r.snap.index.SearchNodes(ctx, b.Workflow.WorkflowID, index.Query{
		Text:      b.Subtask.Text,
		Embedding: vec,
		TopK:      1,
	})
	if err != nil {
		return false, r.wrapIndexErr(ctx, "search nodes", err)
	}
	if len(nodes) == 0 {
		return false, nil
	}

	step := r.nodeText(b.Workflow.WorkflowID, nodes[0].NodeID)
	if step == "" {
		return false, nil
	}

	query := b.Subtask.Text + " " + step
	candidates, err := r.retrieve(ctx, query, b.Subtask.TaskType, r.o.opts.subtaskTopK)
	if err != nil {
		return false, err
	}
	win, ok, err := r.best(ctx, query, candidates)
	if err != nil {
		return false, err
	}
	// The current workflow winning again only means its own step text
	// raised its score; that is not a better match.
	if !ok || win.Workflow.WorkflowID == b.Workflow.WorkflowID || win.Score <= b.Score {
		return false, nil
	}
	r.logf("[search] refined query %q moved subtask from %s (%.3f) to %s (%.3f)",
		query, b.Workflow.WorkflowID, b.Score, win.Workflow.WorkflowID, win.Score)

	b.Workflow = win.Workflow
	b.Score = win.Score
	b.Expansion = nil
	return true, nil
}

func (r *run) nodeText(workflowID, nodeID string) string {
	for _, n := range r.snap.catalog.Nodes(workflowID) {
		if n.NodeID == nodeID {
			return n.Text
		}
	}
	return ""
}

// worstBinding returns the index of the lowest-scoring binding. The first
// one wins ties.
func worstBinding(bindings []models.Binding) int {
	worst := 0
	for i, b := range bindings {
		if b.Score < bindings[worst].Score {
			worst = i
		}
	}
	return worst
}

// clonePlan copies the slices that refinement mutates.
func clonePlan(p *models.SearchPlan) *models.SearchPlan {
	c := *p
	c.Bindings = append([]models.Binding(nil), p.Bindings...)
	c.Workflows = append([]*models.Workflow(nil), p.Workflows...)
	return &c
}
