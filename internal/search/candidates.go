package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/index"
	"github.com/akhaire21/marktools/pkg/models"
)

// embedQuery returns the query vector, or nil when no embedder is
// configured or the embedder fails. A nil vector makes the index fall back
// to keyword-only scoring.
func (r *run) embedQuery(ctx context.Context, q string) ([]float32, error) {
	e := r.o.opts.embedder
	if e == nil {
		return nil, nil
	}
	vec, err := embed.EmbedOne(ctx, e, q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logf("[search] embedding failed, using keyword search only: %v", err)
		return nil, nil
	}
	return vec, nil
}

// retrieve runs a hybrid workflow search and resolves the hits against the
// catalog, in hit order. Step-level entries are never returned.
func (r *run) retrieve(ctx context.Context, q, taskType string, topK int) ([]models.Candidate, error) {
	vec, err := r.embedQuery(ctx, q)
	if err != nil {
		return nil, err
	}

	hits, err := r.snap.index.SearchWorkflows(ctx, index.Query{
		Text:      q,
		Embedding: vec,
		TopK:      topK,
		TaskType:  taskType,
	})
	if err != nil {
		return nil, r.wrapIndexErr(ctx, "search workflows", err)
	}

	candidates := make([]models.Candidate, 0, len(hits))
	for _, h := range hits {
		wf, ok := r.snap.catalog.Get(h.WorkflowID)
		if !ok {
			r.logf("[search] index returned unknown workflow %s", h.WorkflowID)
			continue
		}
		if wf.NodeType != "" && wf.NodeType != models.NodeTypeWorkflow {
			continue
		}
		candidates = append(candidates, models.Candidate{Workflow: wf, Score: h.Score})
	}
	return candidates, nil
}

// score asks the scorer for the relevance of wf to task. Scorer failures
// count as a score of 0. Only context errors are returned.
func (r *run) score(ctx context.Context, task string, wf *models.Workflow) (float64, error) {
	s, err := r.o.req.Scorer.Score(ctx, task, wf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		r.logf("[search] scoring %s failed, treating as 0: %v", wf.WorkflowID, err)
		return 0, nil
	}
	return s, nil
}

// best scores each candidate against task and returns the winner.
// Ties go to the higher rating, then the lower total cost, then the
// earlier catalog position. ok is false when there are no candidates.
func (r *run) best(ctx context.Context, task string, candidates []models.Candidate) (models.Candidate, bool, error) {
	if len(candidates) == 0 {
		return models.Candidate{}, false, nil
	}

	all := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		s, err := r.score(ctx, task, c.Workflow)
		if err != nil {
			return models.Candidate{}, false, err
		}
		all = append(all, models.Candidate{Workflow: c.Workflow, Score: s})
	}

	cat := r.snap.catalog
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Workflow.Rating != b.Workflow.Rating {
			return a.Workflow.Rating > b.Workflow.Rating
		}
		if a.Workflow.TotalCost() != b.Workflow.TotalCost() {
			return a.Workflow.TotalCost() < b.Workflow.TotalCost()
		}
		return cat.Position(a.Workflow.WorkflowID) < cat.Position(b.Workflow.WorkflowID)
	})
	return all[0], true, nil
}

// matchSubtasks finds the best workflow for every subtask. The result is
// indexed like subtasks; nil entries are unmatched. Subtask searches are
// independent and run concurrently when parallel search is enabled.
func (r *run) matchSubtasks(ctx context.Context, subtasks []models.Subtask) ([]*models.Binding, error) {
	matches := make([]*models.Binding, len(subtasks))

	match := func(ctx context.Context, i int) error {
		st := subtasks[i]
		candidates, err := r.retrieve(ctx, st.Text, st.TaskType, r.o.opts.subtaskTopK)
		if err != nil {
			return err
		}
		win, ok, err := r.best(ctx, st.Text, candidates)
		if err != nil {
			return err
		}
		if !ok {
			r.logf("[search] subtask %d %q has no candidates", i, st.Text)
			return nil
		}
		matches[i] = &models.Binding{Subtask: st, Workflow: win.Workflow, Score: win.Score}
		return nil
	}

	if !r.o.opts.parallel || len(subtasks) == 1 {
		for i := range subtasks {
			if err := match(ctx, i); err != nil {
				return nil, err
			}
		}
		return matches, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(subtasks))
	for i := range subtasks {
		g.Go(func() error { return match(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}
