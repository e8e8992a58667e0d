package marketplace

import (
	"time"

	"github.com/akhaire21/marktools/internal/pricing"
	"github.com/akhaire21/marktools/internal/sanitize"
	"github.com/akhaire21/marktools/pkg/models"
)

// EstimateRequest asks for priced solutions to a task.
type EstimateRequest struct {
	Query string `json:"query"`
	// Context carries structured task details. Sensitive keys never reach
	// the search.
	Context map[string]any `json:"context,omitempty"`
	// TopK bounds the number of solutions; zero uses the default.
	TopK int `json:"top_k,omitempty"`
	// RequireCloseMatch returns no solutions when the best plan scores
	// below the minimum acceptable score.
	RequireCloseMatch bool `json:"require_close_match,omitempty"`
	// MaxDepth overrides the recursion ceiling when set.
	MaxDepth *int `json:"max_depth,omitempty"`
}

// QueryInfo is the sanitized form of the request that was searched.
type QueryInfo struct {
	Sanitized        map[string]any   `json:"sanitized"`
	PrivacyProtected bool             `json:"privacy_protected"`
	Summary          sanitize.Summary `json:"summary"`
}

// Decomposition lists the subtasks the solutions were built from.
type Decomposition struct {
	NumSubtasks int              `json:"num_subtasks"`
	Subtasks    []models.Subtask `json:"subtasks"`
}

// SolutionPricing is the cost of a solution against solving from scratch.
type SolutionPricing struct {
	TotalCostTokens     int `json:"total_cost_tokens"`
	DownloadCost        int `json:"download_cost"`
	ExecutionCost       int `json:"execution_cost"`
	FromScratchEstimate int `json:"from_scratch_estimate"`
	SavingsTokens       int `json:"savings_tokens"`
	SavingsPercentage   int `json:"savings_percentage"`
}

// Structure describes the shape of a solution's plan.
type Structure struct {
	NumWorkflows   int      `json:"num_workflows"`
	NumSubtasks    int      `json:"num_subtasks"`
	Coverage       string   `json:"coverage"`
	ExecutionOrder []string `json:"execution_order"`
}

// WorkflowSummary names a workflow used by a solution without revealing
// its steps.
type WorkflowSummary struct {
	WorkflowID         string `json:"workflow_id"`
	WorkflowTitle      string `json:"workflow_title"`
	TaskType           string `json:"task_type"`
	SubtaskDescription string `json:"subtask_description"`
	TokenCost          int    `json:"token_cost"`
}

// SolutionSummary is what an estimate reveals about one solution.
type SolutionSummary struct {
	SolutionID       string            `json:"solution_id"`
	Rank             int               `json:"rank"`
	ConfidenceScore  float64           `json:"confidence_score"`
	Strategy         string            `json:"strategy"`
	Pricing          SolutionPricing   `json:"pricing"`
	Structure        Structure         `json:"structure"`
	WorkflowsSummary []WorkflowSummary `json:"workflows_summary"`
}

// RankedWorkflow is a selected workflow with its marketplace quote.
type RankedWorkflow struct {
	Rank       int           `json:"rank"`
	WorkflowID string        `json:"workflow_id"`
	Title      string        `json:"title"`
	TaskType   string        `json:"task_type"`
	Rating     float64       `json:"rating"`
	Quote      pricing.Quote `json:"pricing"`
}

// EstimateResponse is the result of Estimate. SessionID is empty when
// there is nothing to buy.
type EstimateResponse struct {
	Query           QueryInfo              `json:"query"`
	Decomposition   Decomposition          `json:"decomposition"`
	PlanType        models.PlanType        `json:"plan_type"`
	OverallScore    float64                `json:"overall_score"`
	MaxDepthReached bool                   `json:"max_depth_reached"`
	FinalDepth      int                    `json:"final_depth"`
	Workflows       []RankedWorkflow       `json:"workflows"`
	Solutions       []SolutionSummary      `json:"solutions"`
	NumSolutions    int                    `json:"num_solutions"`
	SessionID       string                 `json:"session_id,omitempty"`
	QualityControl  *models.QualityControl `json:"quality_control,omitempty"`
}

// PurchasedWorkflow is one executable node of a bought solution, with the
// full workflow attached.
type PurchasedWorkflow struct {
	SubtaskID     string           `json:"subtask_id"`
	Description   string           `json:"description"`
	WorkflowID    string           `json:"workflow_id"`
	WorkflowTitle string           `json:"workflow_title"`
	Dependencies  []string         `json:"dependencies"`
	Children      []string         `json:"children"`
	Workflow      *models.Workflow `json:"workflow"`
	TokensCharged int              `json:"tokens_charged"`
}

// ExecutionPlan lists purchased workflows in execution order.
type ExecutionPlan struct {
	ExecutionOrder []string            `json:"execution_order"`
	RootIDs        []string            `json:"root_ids"`
	Workflows      []PurchasedWorkflow `json:"workflows"`
}

// Receipt is the result of Buy.
type Receipt struct {
	PurchaseID        string            `json:"purchase_id"`
	SessionID         string            `json:"session_id"`
	SolutionID        string            `json:"solution_id"`
	Timestamp         time.Time         `json:"timestamp"`
	TokensCharged     int               `json:"tokens_charged"`
	NumWorkflows      int               `json:"num_workflows"`
	ExecutionPlan     ExecutionPlan     `json:"execution_plan"`
	Status            string            `json:"status"`
	UsageInstructions map[string]string `json:"usage_instructions"`
}

// StatusPurchased marks a completed purchase.
const StatusPurchased = "purchased"

var usageInstructions = map[string]string{
	"1": "Execute workflows in the order specified by execution_order",
	"2": "Pass private data (kept locally) to each workflow during execution",
	"3": "Each workflow contains steps, edge_cases, and domain_knowledge",
	"4": "Follow the 'steps' array sequentially for each workflow",
}
