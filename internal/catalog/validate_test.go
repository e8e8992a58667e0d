package catalog

import (
	"strings"
	"testing"

	"github.com/akhaire21/marktools/pkg/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		wf      models.Workflow
		wantErr string
	}{
		{
			name: "valid workflow",
			wf:   models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: models.NodeTypeWorkflow},
		},
		{
			name:    "bad node type",
			wf:      models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: "module"},
			wantErr: "invalid node_type",
		},
		{
			name: "step as child",
			wf: models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: models.NodeTypeWorkflow,
				ChildIDs: []string{"a_step_1"}},
			wantErr: "looks like a step",
		},
		{
			name:    "missing title",
			wf:      models.Workflow{WorkflowID: "a", TaskType: "general", NodeType: models.NodeTypeWorkflow},
			wantErr: "missing required field: title",
		},
		{
			name: "step without thought",
			wf: models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: models.NodeTypeWorkflow,
				Steps: []models.Step{{Step: 1}}},
			wantErr: "missing 'thought'",
		},
		{
			name: "step without number",
			wf: models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: models.NodeTypeWorkflow,
				Steps: []models.Step{{Thought: "x"}}},
			wantErr: "missing 'step'",
		},
		{
			name:    "rating out of range",
			wf:      models.Workflow{WorkflowID: "a", Title: "A", TaskType: "general", NodeType: models.NodeTypeWorkflow, Rating: 7},
			wantErr: "rating",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := Validate(&tt.wf)
			if tt.wantErr == "" {
				if len(problems) != 0 {
					t.Errorf("expected no problems, got %v", problems)
				}
				return
			}
			joined := strings.Join(problems, "; ")
			if !strings.Contains(joined, tt.wantErr) {
				t.Errorf("expected problem containing %q, got %q", tt.wantErr, joined)
			}
		})
	}
}

func TestValidateFile(t *testing.T) {
	data := `{"workflows": [
		{"workflow_id": "a", "title": "A", "task_type": "general"},
		{"workflow_id": "a", "title": "A again", "task_type": "general"},
		{"title": "no id", "task_type": "general"}
	]}`

	report, total, err := ValidateFile("catalog.json", []byte(data))
	if err != nil {
		t.Fatalf("ValidateFile failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 workflows, got %d", total)
	}
	if len(report["a"]) != 1 || report["a"][0] != "duplicate workflow_id" {
		t.Errorf("expected duplicate report for a, got %v", report["a"])
	}
	if len(report["#2"]) == 0 {
		t.Errorf("expected missing id report, got %v", report)
	}
}

func TestWorkflowToText(t *testing.T) {
	wf := &models.Workflow{
		Title:       "Ohio Taxes",
		TaskType:    "tax_filing",
		Description: "File Ohio taxes",
		State:       "OH",
		Year:        2024,
		Tags:        []string{"ohio", "w2"},
		Steps: []models.Step{
			{Step: 1, Thought: "one"}, {Step: 2, Thought: "two"}, {Step: 3, Thought: "three"},
			{Step: 4, Thought: "four"}, {Step: 5, Thought: "five"}, {Step: 6, Thought: "six"},
		},
		EdgeCases: []string{"e1", "e2", "e3", "e4"},
	}

	got := WorkflowToText(wf)
	want := "Title: Ohio Taxes | Task: tax_filing | Description: File Ohio taxes | State: OH | Year: 2024 | " +
		"Tags: ohio, w2 | Steps: 1. one; 2. two; 3. three; 4. four; 5. five | Edge cases: e1, e2, e3"
	if got != want {
		t.Errorf("WorkflowToText() =\n%q\nwant\n%q", got, want)
	}
}
