package models

import "testing"

func TestNodeType_Valid(t *testing.T) {
	tests := []struct {
		name string
		nt   NodeType
		want bool
	}{
		{"workflow is valid", NodeTypeWorkflow, true},
		{"step is valid", NodeTypeStep, true},
		{"empty is invalid", NodeType(""), false},
		{"module is invalid", NodeType("module"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.nt.Valid(); got != tt.want {
				t.Errorf("NodeType(%q).Valid() = %v, want %v", tt.nt, got, tt.want)
			}
		})
	}
}

func TestWorkflow_TotalCost(t *testing.T) {
	wf := &Workflow{DownloadCost: 200, ExecutionCost: 800}
	if got := wf.TotalCost(); got != 1000 {
		t.Errorf("TotalCost() = %d, want 1000", got)
	}
}

func TestTokenComparison_Saved(t *testing.T) {
	var nilTC *TokenComparison
	if got := nilTC.Saved(); got != 0 {
		t.Errorf("nil Saved() = %d, want 0", got)
	}

	tc := &TokenComparison{WithWorkflow: 2000, FromScratch: 9000}
	if got := tc.Saved(); got != 7000 {
		t.Errorf("Saved() = %d, want 7000", got)
	}

	worse := &TokenComparison{WithWorkflow: 9000, FromScratch: 2000}
	if got := worse.Saved(); got != 0 {
		t.Errorf("Saved() for negative savings = %d, want 0", got)
	}
}

func TestWorkflow_Nodes(t *testing.T) {
	wf := &Workflow{
		WorkflowID: "ohio_w2_itemized_2024",
		Title:      "Ohio 2024 W2 Itemized",
		Steps: []Step{
			{Step: 1, Thought: "Gather W2 forms", Action: "collect documents"},
			{Step: 2, Thought: "Itemize deductions"},
			{Thought: "File state return"},
		},
	}

	nodes := wf.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	if nodes[0].NodeID != "ohio_w2_itemized_2024#step1" {
		t.Errorf("expected node id 'ohio_w2_itemized_2024#step1', got %q", nodes[0].NodeID)
	}
	if nodes[0].Text != "Gather W2 forms. collect documents" {
		t.Errorf("unexpected node text %q", nodes[0].Text)
	}
	if nodes[0].NodeType != NodeTypeStep {
		t.Errorf("expected node type step, got %q", nodes[0].NodeType)
	}
	if nodes[2].Ordinal != 3 {
		t.Errorf("expected missing step number to fall back to position 3, got %d", nodes[2].Ordinal)
	}
	for _, n := range nodes {
		if n.WorkflowID != wf.WorkflowID {
			t.Errorf("node %s has workflow id %q", n.NodeID, n.WorkflowID)
		}
	}

	again := wf.Nodes()
	for i := range nodes {
		if nodes[i].NodeID != again[i].NodeID || nodes[i].Text != again[i].Text {
			t.Errorf("Nodes() is not deterministic at %d", i)
		}
	}
}
