package models

import "encoding/json"

// SubtaskNode is one node of an execution plan: a subtask bound to the
// workflow that will carry it out.
type SubtaskNode struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	TaskType    string    `json:"task_type"`
	Weight      float64   `json:"weight"`
	Workflow    *Workflow `json:"workflow"`
	// Confidence is the relevance score that justified the binding.
	Confidence float64 `json:"confidence_score"`
	// Dependencies are node IDs that must run before this node.
	Dependencies []string `json:"dependencies"`
	// Children are node IDs that depend on this node.
	Children []string `json:"children"`
}

// WorkflowID returns the bound workflow's ID, or "" if unbound.
func (n *SubtaskNode) WorkflowID() string {
	if n.Workflow == nil {
		return ""
	}
	return n.Workflow.WorkflowID
}

// Pricing holds the cost totals of an execution plan.
type Pricing struct {
	// TotalDownloadCost sums download_cost over distinct workflow IDs.
	TotalDownloadCost int `json:"total_download_cost"`
	// TotalExecutionCost sums execution_cost over every node.
	TotalExecutionCost int `json:"total_execution_cost"`
	TotalCost          int `json:"total_cost_tokens"`
	UniqueWorkflows    int `json:"num_unique_workflows"`
}

// ExecutionDAG is an ordered, priced plan of subtask nodes.
type ExecutionDAG struct {
	Nodes map[string]*SubtaskNode
	// NodeIDs preserves insertion order for deterministic iteration.
	NodeIDs        []string
	RootIDs        []string
	ExecutionOrder []string
	// Coverage is "matched/total".
	Coverage          string
	OverallConfidence float64
	// Strategy records how the DAG was produced: composite, single or variant.
	Strategy string
}

// NewExecutionDAG creates an empty DAG.
func NewExecutionDAG() *ExecutionDAG {
	return &ExecutionDAG{Nodes: make(map[string]*SubtaskNode)}
}

// AddNode appends a node. Adding an existing ID replaces the node in place.
func (d *ExecutionDAG) AddNode(n *SubtaskNode) {
	if _, exists := d.Nodes[n.ID]; !exists {
		d.NodeIDs = append(d.NodeIDs, n.ID)
	}
	d.Nodes[n.ID] = n
}

// OrderedNodes returns nodes in insertion order.
func (d *ExecutionDAG) OrderedNodes() []*SubtaskNode {
	out := make([]*SubtaskNode, 0, len(d.NodeIDs))
	for _, id := range d.NodeIDs {
		out = append(out, d.Nodes[id])
	}
	return out
}

// Pricing computes the plan's cost totals. Nodes may be replaced after
// construction, so totals are computed from scratch on every call.
func (d *ExecutionDAG) Pricing() Pricing {
	nodes := d.OrderedNodes()
	wfs := make([]*Workflow, 0, len(nodes))
	for _, n := range nodes {
		wfs = append(wfs, n.Workflow)
	}
	return priceNodes(wfs)
}

// priceNodes prices one execution node per entry. Download cost is charged
// once per workflow ID; execution cost is charged per node. Nil entries
// are skipped.
func priceNodes(wfs []*Workflow) Pricing {
	var p Pricing
	charged := make(map[string]bool)
	for _, wf := range wfs {
		if wf == nil {
			continue
		}
		if !charged[wf.WorkflowID] {
			charged[wf.WorkflowID] = true
			p.TotalDownloadCost += wf.DownloadCost
		}
		p.TotalExecutionCost += wf.ExecutionCost
	}
	p.TotalCost = p.TotalDownloadCost + p.TotalExecutionCost
	p.UniqueWorkflows = len(charged)
	return p
}

// WorkflowIDs returns the distinct workflow IDs in execution order.
func (d *ExecutionDAG) WorkflowIDs() []string {
	order := d.ExecutionOrder
	if len(order) == 0 {
		order = d.NodeIDs
	}
	seen := make(map[string]bool)
	var ids []string
	for _, id := range order {
		n, ok := d.Nodes[id]
		if !ok || n.Workflow == nil || seen[n.Workflow.WorkflowID] {
			continue
		}
		seen[n.Workflow.WorkflowID] = true
		ids = append(ids, n.Workflow.WorkflowID)
	}
	return ids
}

type dagMetadata struct {
	Coverage           string  `json:"coverage"`
	OverallConfidence  float64 `json:"overall_confidence"`
	NumNodes           int     `json:"num_nodes"`
	NumUniqueWorkflows int     `json:"num_unique_workflows"`
	Strategy           string  `json:"strategy,omitempty"`
}

type dagJSON struct {
	Nodes          []*SubtaskNode `json:"nodes"`
	RootIDs        []string       `json:"root_ids"`
	ExecutionOrder []string       `json:"execution_order"`
	Pricing        Pricing        `json:"pricing"`
	Metadata       dagMetadata    `json:"metadata"`
}

// MarshalJSON serializes the DAG with full workflow data and freshly
// computed pricing.
func (d *ExecutionDAG) MarshalJSON() ([]byte, error) {
	pricing := d.Pricing()
	return json.Marshal(dagJSON{
		Nodes:          d.OrderedNodes(),
		RootIDs:        d.RootIDs,
		ExecutionOrder: d.ExecutionOrder,
		Pricing:        pricing,
		Metadata: dagMetadata{
			Coverage:           d.Coverage,
			OverallConfidence:  d.OverallConfidence,
			NumNodes:           len(d.Nodes),
			NumUniqueWorkflows: pricing.UniqueWorkflows,
			Strategy:           d.Strategy,
		},
	})
}

// UnmarshalJSON restores a DAG serialized by MarshalJSON. Pricing and
// metadata counts are derived, so they are ignored on input.
func (d *ExecutionDAG) UnmarshalJSON(data []byte) error {
	var raw dagJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = *NewExecutionDAG()
	for _, n := range raw.Nodes {
		d.AddNode(n)
	}
	d.RootIDs = raw.RootIDs
	d.ExecutionOrder = raw.ExecutionOrder
	d.Coverage = raw.Metadata.Coverage
	d.OverallConfidence = raw.Metadata.OverallConfidence
	d.Strategy = raw.Metadata.Strategy
	return nil
}
