// Package search implements the recursive workflow search orchestrator.
//
// A search first looks for a single workflow covering the whole task. When
// the best candidate is not a good match, the task is decomposed into
// weighted subtasks, each subtask is matched on its own, and the resulting
// composite plan competes with the direct match. Weak composite plans are
// refined by searching inside the worst subtask's workflow and, failing
// that, by recursing on the worst subtask with a bounded depth.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/decompose"
	"github.com/akhaire21/marktools/internal/index"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/pkg/models"
)

// ErrEmptyTask is returned when Search is called without a task.
var ErrEmptyTask = errors.New("task description is empty")

const (
	reasonDepthExhausted = "No close matches found after exhausting max recursion depth"
	reasonBelowMinimum   = "No close matches found above the minimum acceptable score"
)

// SearchOptions are the per-call knobs of Search.
type SearchOptions struct {
	// MaxDepth bounds recursive refinement. Negative values use the
	// orchestrator's configured default.
	MaxDepth int
	// RequireCloseMatch suppresses plans scoring below the minimum
	// acceptable score.
	RequireCloseMatch bool
	// TopK overrides the number of broad search candidates when positive.
	TopK int
}

// DefaultSearchOptions returns options that defer to the orchestrator's
// configuration.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{MaxDepth: -1}
}

// snapshot pairs a catalog with the index built from it so that a reload
// swaps both at once.
type snapshot struct {
	catalog *catalog.Catalog
	index   index.Index
}

// Orchestrator runs searches against a catalog snapshot. It is safe for
// concurrent use; each Search call works on its own plan objects.
type Orchestrator struct {
	snap atomic.Pointer[snapshot]
	opts options
	req  RequiredConfig
	log  logging.Logger
}

// New creates an Orchestrator.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	switch {
	case req.Catalog == nil:
		return nil, errors.New("search: catalog is required")
	case req.Index == nil:
		return nil, errors.New("search: index is required")
	case req.Scorer == nil:
		return nil, errors.New("search: scorer is required")
	case req.Decomposer == nil:
		return nil, errors.New("search: decomposer is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	orch := &Orchestrator{opts: o, req: req, log: logging.OrNop(o.logger)}
	orch.snap.Store(&snapshot{catalog: req.Catalog, index: req.Index})
	return orch, nil
}

// Reload swaps in a new catalog and the index built from it. Searches
// already running keep the catalog and index they started with. idx may be
// the previous index rebuilt in place by index.Build, which replaces its
// contents atomically; running searches then read either the old or the
// new contents.
func (o *Orchestrator) Reload(cat *catalog.Catalog, idx index.Index) {
	o.snap.Store(&snapshot{catalog: cat, index: idx})
	o.log.Log("[search.Reload] catalog reloaded with %d workflows", cat.Len())
}

// Catalog returns the catalog currently searched.
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.snap.Load().catalog
}

// MaxDepth returns the configured default recursion ceiling.
func (o *Orchestrator) MaxDepth() int {
	return o.opts.maxDepth
}

// MinAcceptableScore returns the quality gate threshold.
func (o *Orchestrator) MinAcceptableScore() float64 {
	return o.opts.minAcceptable
}

// Search finds the best plan for task. Index failures are returned as
// errors wrapping index.ErrIndexUnavailable. Scorer and decomposer failures
// degrade the plan and are only logged. A plan suppressed by the quality
// gate is returned empty with QualityControl set.
func (o *Orchestrator) Search(ctx context.Context, task string, so SearchOptions) (*models.SearchPlan, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrEmptyTask
	}

	if o.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.timeout)
		defer cancel()
	}

	maxDepth := so.MaxDepth
	if maxDepth < 0 {
		maxDepth = o.opts.maxDepth
	}
	if limit := o.opts.maxDepthLimit; maxDepth > limit {
		o.log.Log("[search.Search] max_depth %d exceeds limit, using %d", maxDepth, limit)
		maxDepth = limit
	}
	topK := so.TopK
	if topK <= 0 {
		topK = o.opts.topK
	}

	r := &run{
		o:        o,
		snap:     o.snap.Load(),
		maxDepth: maxDepth,
		topK:     topK,
	}

	o.log.Log("[search.Search] task=%q max_depth=%d require_close_match=%v", task, maxDepth, so.RequireCloseMatch)
	plan, err := r.search(ctx, task, 0)
	if err != nil {
		return nil, err
	}

	plan.FinalDepth = r.finalDepth
	plan.MaxDepthReached = r.ceilingHit

	if so.RequireCloseMatch && plan.OverallScore < o.opts.minAcceptable {
		o.log.Log("[search.Search] quality control triggered: score %.3f < %.3f", plan.OverallScore, o.opts.minAcceptable)
		return o.suppress(plan), nil
	}

	o.log.Log("[search.Search] %s plan with %d workflows, score %.3f, final depth %d",
		plan.PlanType, len(plan.Workflows), plan.OverallScore, plan.FinalDepth)
	return plan, nil
}

// suppress replaces a weak plan with an empty one carrying the diagnostic.
// The decomposition is kept so callers can show what was attempted.
func (o *Orchestrator) suppress(plan *models.SearchPlan) *models.SearchPlan {
	reason := reasonBelowMinimum
	if plan.MaxDepthReached {
		reason = reasonDepthExhausted
	}
	return &models.SearchPlan{
		PlanType:        plan.PlanType,
		Subtasks:        plan.Subtasks,
		MaxDepthReached: plan.MaxDepthReached,
		FinalDepth:      plan.FinalDepth,
		QualityControl: &models.QualityControl{
			Triggered:        true,
			Reason:           reason,
			MaxDepthReached:  plan.MaxDepthReached,
			FinalDepth:       plan.FinalDepth,
			BestScore:        plan.OverallScore,
			MinRequiredScore: o.opts.minAcceptable,
		},
	}
}

// run carries the state of one Search call across recursion levels.
// Recursion happens only on the sequential path, so the fields need no
// locking.
type run struct {
	o        *Orchestrator
	snap     *snapshot
	maxDepth int
	topK     int

	// finalDepth is the deepest level entered.
	finalDepth int
	// ceilingHit records that a weak plan could not be refined further
	// because the depth ceiling was reached.
	ceilingHit bool
}

func (r *run) logf(format string, args ...interface{}) {
	r.o.log.Log(format, args...)
}

// search is one level of the recursive algorithm. depth is threaded through
// every recursive call and never exceeds r.maxDepth.
func (r *run) search(ctx context.Context, task string, depth int) (*models.SearchPlan, error) {
	if depth > r.finalDepth {
		r.finalDepth = depth
	}
	opts := r.o.opts

	// Broad search and direct match.
	candidates, err := r.retrieve(ctx, task, "", r.topK)
	if err != nil {
		return nil, err
	}

	direct := &models.SearchPlan{PlanType: models.PlanTypeDirect}
	if len(candidates) > 0 {
		best := candidates[0].Workflow
		score, err := r.score(ctx, task, best)
		if err != nil {
			return nil, err
		}
		candidates[0].Score = score
		direct.Workflows = []*models.Workflow{best}
		direct.OverallScore = score
		direct.Alternatives = candidates[1:]
		r.logf("[search] depth=%d direct candidate %s scored %.3f (threshold %.2f)", depth, best.WorkflowID, score, opts.goodThreshold)

		if score >= opts.goodThreshold {
			return direct, nil
		}
	} else {
		r.logf("[search] depth=%d no broad candidates for %q", depth, task)
	}

	// Decompose and match each subtask.
	subtasks, ok, err := r.decompose(ctx, task)
	if err != nil {
		return nil, err
	}
	composite := &models.SearchPlan{PlanType: models.PlanTypeComposite, Subtasks: subtasks, Unmatched: subtasks}
	if ok {
		if composite, err = r.compose(ctx, subtasks); err != nil {
			return nil, err
		}
	}
	composite.Alternatives = candidates
	r.logf("[search] depth=%d composite covers %d/%d subtasks, score %.3f",
		depth, len(composite.Bindings), len(composite.Subtasks), composite.OverallScore)

	chosen := r.pick(direct, composite)
	if chosen.OverallScore >= opts.goodThreshold || len(composite.Bindings) == 0 {
		return chosen, nil
	}

	if depth >= r.maxDepth {
		r.ceilingHit = true
		r.logf("[search] depth=%d ceiling reached, keeping %s plan at %.3f", depth, chosen.PlanType, chosen.OverallScore)
		return chosen, nil
	}

	// Refine the worst subtask and compare again.
	refined, err := r.refine(ctx, composite, depth)
	if err != nil {
		return nil, err
	}
	return r.pick(direct, refined), nil
}

// pick chooses between the direct and composite plans. The composite plan
// must beat the direct one by the improvement epsilon, unless there is no
// direct match at all.
func (r *run) pick(direct, composite *models.SearchPlan) *models.SearchPlan {
	if direct.Empty() && !composite.Empty() {
		return composite
	}
	// The small tolerance keeps an exact epsilon improvement from losing
	// to float rounding.
	if composite.OverallScore-direct.OverallScore >= r.o.opts.epsilon-1e-9 && !composite.Empty() {
		return composite
	}
	return direct
}

// decompose splits task into subtasks. When the decomposer fails, ok is
// false and the whole task comes back as a single subtask that the
// composite plan leaves unmatched.
func (r *run) decompose(ctx context.Context, task string) (subtasks []models.Subtask, ok bool, err error) {
	opts := r.o.opts
	failed := []models.Subtask{{Text: task, TaskType: models.TaskTypeGeneral, Weight: 1.0}}

	subtasks, err = r.o.req.Decomposer.Decompose(ctx, task)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		r.logf("[search] decomposition failed, keeping direct match: %v", err)
		return failed, false, nil
	}
	if len(subtasks) == 0 {
		r.logf("[search] decomposer returned no subtasks for %q", task)
		return failed, false, nil
	}
	if len(subtasks) > opts.maxSubtasks {
		subtasks = subtasks[:opts.maxSubtasks]
	}

	for _, w := range decompose.CheckSubtasks(subtasks, opts.minSubtasks, opts.maxSubtasks).Warnings() {
		r.logf("[search] decomposition %s", w)
	}
	return subtasks, true, nil
}

// compose matches every subtask and builds the composite plan.
func (r *run) compose(ctx context.Context, subtasks []models.Subtask) (*models.SearchPlan, error) {
	plan := &models.SearchPlan{PlanType: models.PlanTypeComposite, Subtasks: subtasks}
	matches, err := r.matchSubtasks(ctx, subtasks)
	if err != nil {
		return nil, err
	}
	for i, m := range matches {
		if m == nil {
			plan.Unmatched = append(plan.Unmatched, subtasks[i])
			continue
		}
		plan.Bindings = append(plan.Bindings, *m)
	}
	plan.Recompute()
	return plan, nil
}

func (r *run) wrapIndexErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, index.ErrIndexUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, index.ErrIndexUnavailable, err)
}
