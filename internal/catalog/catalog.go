// Package catalog loads the workflow catalog and serves it read-only to the
// search index and orchestrator.
package catalog

import (
	"errors"
	"fmt"

	"github.com/akhaire21/marktools/pkg/models"
)

// ErrDuplicateWorkflow indicates two catalog entries share a workflow_id.
var ErrDuplicateWorkflow = errors.New("duplicate workflow id")

// ErrWorkflowNotFound indicates a lookup for an unknown workflow_id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Catalog is an immutable, ordered collection of workflows.
// It is safe for concurrent reads. Reloading produces a new Catalog.
type Catalog struct {
	workflows []*models.Workflow
	position  map[string]int
	nodes     map[string][]models.WorkflowNode
}

// New builds a catalog from normalized workflows, preserving their order.
// Full text and step nodes are derived for any workflow that lacks them.
func New(workflows []*models.Workflow) (*Catalog, error) {
	c := &Catalog{
		workflows: make([]*models.Workflow, 0, len(workflows)),
		position:  make(map[string]int, len(workflows)),
		nodes:     make(map[string][]models.WorkflowNode, len(workflows)),
	}

	for _, wf := range workflows {
		if _, exists := c.position[wf.WorkflowID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkflow, wf.WorkflowID)
		}
		if wf.FullText == "" {
			wf.FullText = WorkflowToText(wf)
		}
		c.position[wf.WorkflowID] = len(c.workflows)
		c.workflows = append(c.workflows, wf)
		c.nodes[wf.WorkflowID] = wf.Nodes()
	}

	return c, nil
}

// Len returns the number of workflows.
func (c *Catalog) Len() int {
	return len(c.workflows)
}

// All returns the workflows in catalog order. The returned slice is a copy;
// the workflows themselves must not be mutated.
func (c *Catalog) All() []*models.Workflow {
	out := make([]*models.Workflow, len(c.workflows))
	copy(out, c.workflows)
	return out
}

// Get returns the workflow with the given ID.
func (c *Catalog) Get(id string) (*models.Workflow, bool) {
	i, ok := c.position[id]
	if !ok {
		return nil, false
	}
	return c.workflows[i], true
}

// MustGet returns the workflow with the given ID or ErrWorkflowNotFound.
func (c *Catalog) MustGet(id string) (*models.Workflow, error) {
	wf, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// Position returns the catalog index of the workflow, or -1 if unknown.
// It is the final tie-breaker when ranking equally scored candidates.
func (c *Catalog) Position(id string) int {
	i, ok := c.position[id]
	if !ok {
		return -1
	}
	return i
}

// Nodes returns the step nodes of a workflow.
func (c *Catalog) Nodes(workflowID string) []models.WorkflowNode {
	return c.nodes[workflowID]
}

// AllNodes returns every step node in catalog order.
func (c *Catalog) AllNodes() []models.WorkflowNode {
	var out []models.WorkflowNode
	for _, wf := range c.workflows {
		out = append(out, c.nodes[wf.WorkflowID]...)
	}
	return out
}
