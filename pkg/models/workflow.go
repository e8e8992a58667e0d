package models

import (
	"fmt"
	"strings"
)

// NodeType distinguishes whole workflows from the step nodes inside them.
type NodeType string

const (
	// NodeTypeWorkflow is a complete, purchasable workflow.
	NodeTypeWorkflow NodeType = "workflow"
	// NodeTypeStep is a single step indexed for tree-aware refinement.
	NodeTypeStep NodeType = "step"
)

// Valid returns true if the node type is a known value.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeWorkflow, NodeTypeStep:
		return true
	default:
		return false
	}
}

// TaskTypeGeneral is the catch-all task category used when none is given.
const TaskTypeGeneral = "general"

// Step is one ordered instruction inside a workflow.
type Step struct {
	// Step is the 1-based step number.
	Step int `json:"step" yaml:"step"`
	// Thought is the reasoning or instruction for this step.
	Thought string `json:"thought" yaml:"thought"`
	// Action is the concrete action to take, if any.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	// Context holds extra domain detail for the step.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

// TokenComparison records measured token usage with and without the workflow.
type TokenComparison struct {
	WithWorkflow int `json:"with_workflow" yaml:"with_workflow"`
	FromScratch  int `json:"from_scratch" yaml:"from_scratch"`
}

// Saved returns the tokens saved by using the workflow, never negative.
func (tc *TokenComparison) Saved() int {
	if tc == nil || tc.FromScratch <= tc.WithWorkflow {
		return 0
	}
	return tc.FromScratch - tc.WithWorkflow
}

// Workflow is a reusable, priced task template from the catalog.
// Workflows are immutable once the catalog has been loaded.
type Workflow struct {
	// WorkflowID is the unique, stable identifier.
	WorkflowID string `json:"workflow_id" yaml:"workflow_id"`
	// NodeType is always "workflow" for catalog entries.
	NodeType NodeType `json:"node_type,omitempty" yaml:"node_type,omitempty"`
	// ParentID links a child workflow to its parent in a hierarchy.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	// ChildIDs lists child workflow IDs.
	ChildIDs []string `json:"child_ids,omitempty" yaml:"child_ids,omitempty"`
	// Depth is the position in the hierarchy, 0 for root workflows.
	Depth int `json:"depth" yaml:"depth"`

	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	// TaskType is the category tag, e.g. tax_filing or travel_planning.
	TaskType string `json:"task_type" yaml:"task_type"`

	State        string   `json:"state,omitempty" yaml:"state,omitempty"`
	Location     string   `json:"location,omitempty" yaml:"location,omitempty"`
	Year         int      `json:"year,omitempty" yaml:"year,omitempty"`
	DurationDays int      `json:"duration_days,omitempty" yaml:"duration_days,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Requirements []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`

	Steps           []Step   `json:"steps,omitempty" yaml:"steps,omitempty"`
	EdgeCases       []string `json:"edge_cases,omitempty" yaml:"edge_cases,omitempty"`
	DomainKnowledge []string `json:"domain_knowledge,omitempty" yaml:"domain_knowledge,omitempty"`

	// Rating is the average user rating from 0 to 5.
	Rating     float64 `json:"rating" yaml:"rating"`
	UsageCount int     `json:"usage_count,omitempty" yaml:"usage_count,omitempty"`

	// DownloadCost is charged once per distinct workflow in a plan.
	DownloadCost int `json:"download_cost" yaml:"download_cost"`
	// ExecutionCost is charged every time the workflow is used by a node.
	ExecutionCost int `json:"execution_cost" yaml:"execution_cost"`

	TokenComparison *TokenComparison `json:"token_comparison,omitempty" yaml:"token_comparison,omitempty"`

	// FullText is the flattened searchable text, derived at load time.
	FullText string `json:"-" yaml:"-"`
	// Embedding is the dense vector for FullText, derived at index time.
	Embedding []float32 `json:"-" yaml:"-"`
}

// TotalCost returns the cost of using the workflow once.
func (w *Workflow) TotalCost() int {
	return w.DownloadCost + w.ExecutionCost
}

// WorkflowNode is a single step of a workflow, indexed separately so that
// refinement can search inside a workflow without treating steps as workflows.
type WorkflowNode struct {
	NodeID     string    `json:"node_id"`
	WorkflowID string    `json:"workflow_id"`
	NodeType   NodeType  `json:"node_type"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Ordinal    int       `json:"ordinal"`
	Embedding  []float32 `json:"-"`
}

// NodeID returns the node ID for the step at ordinal within a workflow.
func NodeID(workflowID string, ordinal int) string {
	return fmt.Sprintf("%s#step%d", workflowID, ordinal)
}

// Nodes derives the step nodes of the workflow. The result depends only on
// the workflow's steps, so calling it again after a reload regenerates them.
func (w *Workflow) Nodes() []WorkflowNode {
	nodes := make([]WorkflowNode, 0, len(w.Steps))
	for i, step := range w.Steps {
		ordinal := step.Step
		if ordinal <= 0 {
			ordinal = i + 1
		}

		parts := []string{step.Thought}
		if step.Action != "" {
			parts = append(parts, step.Action)
		}
		if step.Context != "" {
			parts = append(parts, step.Context)
		}

		nodes = append(nodes, WorkflowNode{
			NodeID:     NodeID(w.WorkflowID, ordinal),
			WorkflowID: w.WorkflowID,
			NodeType:   NodeTypeStep,
			Title:      fmt.Sprintf("%s: step %d", w.Title, ordinal),
			Text:       strings.Join(parts, ". "),
			Ordinal:    ordinal,
		})
	}
	return nodes
}
