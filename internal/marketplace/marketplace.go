// Package marketplace runs the two-phase estimate and buy flow: an
// estimate searches and prices solutions without revealing workflow steps,
// and a buy releases the full workflows of one cached solution.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/compose"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/internal/pricing"
	"github.com/akhaire21/marktools/internal/sanitize"
	"github.com/akhaire21/marktools/internal/search"
	"github.com/akhaire21/marktools/internal/session"
	"github.com/akhaire21/marktools/pkg/models"
)

// Searcher finds plans for tasks. *search.Orchestrator implements it.
type Searcher interface {
	Search(ctx context.Context, task string, so search.SearchOptions) (*models.SearchPlan, error)
	Catalog() *catalog.Catalog
}

// Config wires a Marketplace.
type Config struct {
	Searcher Searcher
	Sessions session.Store
	// Pricing defaults to pricing.DefaultConfig.
	Pricing *pricing.Engine
	Logger  logging.Logger
}

// Marketplace serves estimates and purchases.
type Marketplace struct {
	searcher Searcher
	composer *compose.Composer
	pricing  *pricing.Engine
	sessions session.Store
	log      logging.Logger
	now      func() time.Time
}

// New creates a Marketplace.
func New(cfg Config) (*Marketplace, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("marketplace: searcher is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("marketplace: session store is required")
	}
	if cfg.Pricing == nil {
		cfg.Pricing = pricing.NewEngine(pricing.DefaultConfig())
	}
	log := logging.OrNop(cfg.Logger)
	return &Marketplace{
		searcher: cfg.Searcher,
		composer: compose.New(log),
		pricing:  cfg.Pricing,
		sessions: cfg.Sessions,
		log:      log,
		now:      time.Now,
	}, nil
}

// Search sanitizes task and runs a plain search. No session is created.
func (m *Marketplace) Search(ctx context.Context, task string, so search.SearchOptions) (*models.SearchPlan, error) {
	return m.searcher.Search(ctx, sanitize.RedactText(task), so)
}

// Estimate searches for req.Query and returns priced solution summaries.
// The solutions are cached under the returned session ID until bought. A
// plan suppressed by the quality gate, or a search that found nothing,
// yields no solutions and no session.
func (m *Marketplace) Estimate(ctx context.Context, req EstimateRequest) (*EstimateResponse, error) {
	clean := sanitize.Query(req.Query, req.Context)
	m.log.Log("[marketplace.Estimate] sanitized query, %d private fields withheld", len(clean.Private))

	so := search.DefaultSearchOptions()
	so.RequireCloseMatch = req.RequireCloseMatch
	so.TopK = req.TopK
	if req.MaxDepth != nil {
		so.MaxDepth = *req.MaxDepth
	}

	plan, err := m.searcher.Search(ctx, clean.Text, so)
	if err != nil {
		return nil, fmt.Errorf("search workflows: %w", err)
	}

	sanitized := map[string]any{"query": clean.Text}
	maps.Copy(sanitized, clean.Public)

	resp := &EstimateResponse{
		Query: QueryInfo{
			Sanitized:        sanitized,
			PrivacyProtected: true,
			Summary:          clean.Summary,
		},
		PlanType:        plan.PlanType,
		OverallScore:    plan.OverallScore,
		MaxDepthReached: plan.MaxDepthReached,
		FinalDepth:      plan.FinalDepth,
		Workflows:       []RankedWorkflow{},
		Solutions:       []SolutionSummary{},
	}

	if plan.QualityControl != nil {
		m.log.Log("[marketplace.Estimate] quality control triggered: %s", plan.QualityControl.Reason)
		resp.Decomposition = Decomposition{NumSubtasks: max(1, len(plan.Subtasks)), Subtasks: nonNil(plan.Subtasks)}
		resp.QualityControl = plan.QualityControl
		return resp, nil
	}

	subtasks := plan.Subtasks
	if plan.PlanType != models.PlanTypeComposite || len(subtasks) == 0 {
		subtasks = []models.Subtask{{
			Text:      clean.Text,
			TaskType:  models.TaskTypeGeneral,
			Weight:    1.0,
			Rationale: "Direct match - no decomposition needed",
		}}
	}
	resp.Decomposition = Decomposition{NumSubtasks: len(subtasks), Subtasks: subtasks}

	all := m.searcher.Catalog().All()
	for _, rw := range plan.RankedWorkflows() {
		resp.Workflows = append(resp.Workflows, RankedWorkflow{
			Rank:       rw.Rank,
			WorkflowID: rw.WorkflowID,
			Title:      rw.Title,
			TaskType:   rw.TaskType,
			Rating:     rw.Rating,
			Quote:      m.pricing.Quote(all, rw.Workflow),
		})
	}

	dags, err := m.composer.Compose(clean.Text, plan, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("compose solutions: %w", err)
	}
	if len(dags) == 0 {
		m.log.Log("[marketplace.Estimate] no solutions for %q", clean.Text)
		return resp, nil
	}

	sess := &session.Session{ID: session.NewID(), Query: clean.Text}
	for i, dag := range dags {
		id := fmt.Sprintf("sol_%d", i+1)
		fromScratch := pricing.FromScratchCost(dag)
		resp.Solutions = append(resp.Solutions, summarize(id, i+1, dag, len(subtasks), fromScratch))
		sess.Solutions = append(sess.Solutions, session.Solution{
			SolutionID:          id,
			FromScratchEstimate: fromScratch,
			DAG:                 dag,
		})
	}
	resp.NumSolutions = len(resp.Solutions)

	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("cache solutions: %w", err)
	}
	resp.SessionID = sess.ID

	m.log.Log("[marketplace.Estimate] %d solutions cached in %s", resp.NumSolutions, sess.ID)
	return resp, nil
}

func summarize(id string, rank int, dag *models.ExecutionDAG, numSubtasks, fromScratch int) SolutionSummary {
	p := dag.Pricing()
	s := SolutionSummary{
		SolutionID:      id,
		Rank:            rank,
		ConfidenceScore: dag.OverallConfidence,
		Strategy:        dag.Strategy,
		Pricing: SolutionPricing{
			TotalCostTokens:     p.TotalCost,
			DownloadCost:        p.TotalDownloadCost,
			ExecutionCost:       p.TotalExecutionCost,
			FromScratchEstimate: fromScratch,
			SavingsTokens:       fromScratch - p.TotalCost,
			SavingsPercentage:   pricing.SavingsPercentage(fromScratch, p.TotalCost),
		},
		Structure: Structure{
			NumWorkflows:   len(dag.Nodes),
			NumSubtasks:    numSubtasks,
			Coverage:       dag.Coverage,
			ExecutionOrder: dag.ExecutionOrder,
		},
	}
	for _, n := range dag.OrderedNodes() {
		ws := WorkflowSummary{
			WorkflowID:         n.WorkflowID(),
			TaskType:           n.TaskType,
			SubtaskDescription: n.Description,
		}
		if n.Workflow != nil {
			ws.WorkflowTitle = n.Workflow.Title
			ws.TokenCost = n.Workflow.TotalCost()
		}
		s.WorkflowsSummary = append(s.WorkflowsSummary, ws)
	}
	return s
}

// Buy purchases one solution of an estimate session and returns the full
// workflows in execution order. The session is consumed.
func (m *Marketplace) Buy(ctx context.Context, sessionID, solutionID string) (*Receipt, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	sol, err := sess.Solution(solutionID)
	if err != nil {
		return nil, fmt.Errorf("solution %s in session %s: %w", solutionID, sessionID, err)
	}

	dag := sol.DAG
	plan := ExecutionPlan{
		ExecutionOrder: dag.ExecutionOrder,
		RootIDs:        dag.RootIDs,
		Workflows:      []PurchasedWorkflow{},
	}
	for _, id := range dag.ExecutionOrder {
		n, ok := dag.Nodes[id]
		if !ok {
			return nil, fmt.Errorf("solution %s: execution order names unknown node %s", solutionID, id)
		}
		pw := PurchasedWorkflow{
			SubtaskID:    n.ID,
			Description:  n.Description,
			WorkflowID:   n.WorkflowID(),
			Dependencies: nonNil(n.Dependencies),
			Children:     nonNil(n.Children),
			Workflow:     n.Workflow,
		}
		if n.Workflow != nil {
			pw.WorkflowTitle = n.Workflow.Title
			pw.TokensCharged = n.Workflow.TotalCost()
		}
		plan.Workflows = append(plan.Workflows, pw)
	}

	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("close session %s: %w", sessionID, err)
	}

	receipt := &Receipt{
		PurchaseID:        session.NewPurchaseID(),
		SessionID:         sessionID,
		SolutionID:        solutionID,
		Timestamp:         m.now().UTC(),
		TokensCharged:     dag.Pricing().TotalCost,
		NumWorkflows:      len(plan.Workflows),
		ExecutionPlan:     plan,
		Status:            StatusPurchased,
		UsageInstructions: usageInstructions,
	}
	m.log.Log("[marketplace.Buy] %s: %s/%s charged %d tokens", receipt.PurchaseID, sessionID, solutionID, receipt.TokensCharged)
	return receipt, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
