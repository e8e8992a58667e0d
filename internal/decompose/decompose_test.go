package decompose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akhaire21/marktools/internal/llm"
	"github.com/akhaire21/marktools/pkg/models"
)

type fakeCompleter struct {
	reply string
	err   error
	last  llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.reply, f.err
}

func TestParseResponse_Object(t *testing.T) {
	response := `{
		"subtasks": [
			{"text": "Ohio state tax filing 2024", "task_type": "tax_filing", "weight": 0.9, "rationale": "state return"},
			{"text": "Itemized deductions", "task_type": "TAX_FILING", "weight": 0.6}
		]
	}`

	subtasks, err := ParseResponse(response, 8)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subtasks))
	}
	if subtasks[0].Text != "Ohio state tax filing 2024" || subtasks[0].Weight != 0.9 {
		t.Errorf("unexpected first subtask %+v", subtasks[0])
	}
	if subtasks[1].TaskType != "tax_filing" {
		t.Errorf("expected task type to be lowercased, got %q", subtasks[1].TaskType)
	}
}

func TestParseResponse_BareArrayWithProse(t *testing.T) {
	response := "Here are the subtasks:\n```json\n[{\"text\": \"Book flights to Tokyo\"}]\n```"

	subtasks, err := ParseResponse(response, 8)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(subtasks) != 1 {
		t.Fatalf("expected 1 subtask, got %d", len(subtasks))
	}
	if subtasks[0].TaskType != models.TaskTypeGeneral {
		t.Errorf("expected default task type general, got %q", subtasks[0].TaskType)
	}
	if subtasks[0].Weight != 1.0 {
		t.Errorf("expected default weight 1.0, got %f", subtasks[0].Weight)
	}
}

func TestParseResponse_Normalization(t *testing.T) {
	response := `{"subtasks": [
		{"text": "  "},
		{"text": "a", "weight": 0},
		{"text": "b", "weight": 3.5},
		{"text": "c", "weight": -1},
		{"text": "d"}, {"text": "e"}, {"text": "f"}, {"text": "g"}, {"text": "h"}, {"text": "i"}
	]}`

	subtasks, err := ParseResponse(response, 8)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(subtasks) != 8 {
		t.Fatalf("expected truncation to 8, got %d", len(subtasks))
	}
	if subtasks[0].Text != "a" {
		t.Errorf("expected empty text to be dropped, first is %q", subtasks[0].Text)
	}
	for _, st := range subtasks[:3] {
		if st.Weight != 1.0 {
			t.Errorf("expected out-of-range weight to become 1.0, got %f for %q", st.Weight, st.Text)
		}
	}
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  string
	}{
		{"no json", "I cannot help with that", "no valid JSON found"},
		{"empty list", `{"subtasks": []}`, "empty subtask list"},
		{"malformed", `{"subtasks": [{"text": }]}`, "unmarshal JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.response, 8)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLLMDecomposer_Decompose(t *testing.T) {
	fc := &fakeCompleter{reply: `{"subtasks": [
		{"text": "File Ohio state taxes", "task_type": "tax_filing", "weight": 1.0},
		{"text": "Ohio state taxes filing", "task_type": "tax_filing", "weight": 0.5, "rationale": "dup"},
		{"text": "Itemize deductions", "task_type": "tax_filing", "weight": 0.7}
	]}`}

	subtasks, err := NewLLMDecomposer(fc, 2, 8).Decompose(context.Background(), "File Ohio taxes and itemize")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected duplicate to be merged into 2 subtasks, got %d", len(subtasks))
	}
	if !strings.Contains(fc.last.Prompt, "File Ohio taxes and itemize") {
		t.Errorf("prompt should carry the task, got %q", fc.last.Prompt)
	}
	if !strings.Contains(fc.last.System, "2-8 searchable subtasks") {
		t.Errorf("system prompt should carry the bounds, got %q", fc.last.System)
	}
}

func TestLLMDecomposer_Failure(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{"provider error", &fakeCompleter{err: errors.New("timeout")}},
		{"unparseable", &fakeCompleter{reply: "sorry"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMDecomposer(tt.fc, 2, 8).Decompose(context.Background(), "anything")
			if !errors.Is(err, ErrDecompositionFailed) {
				t.Errorf("expected ErrDecompositionFailed, got %v", err)
			}
		})
	}
}

func TestNewLLMDecomposer_Bounds(t *testing.T) {
	d := NewLLMDecomposer(nil, 0, 20)
	if d.minSubtasks != DefaultMinSubtasks || d.maxSubtasks != DefaultMaxSubtasks {
		t.Errorf("expected defaults, got %d-%d", d.minSubtasks, d.maxSubtasks)
	}
}

func TestHeuristicDecomposer(t *testing.T) {
	d := NewHeuristicDecomposer(8)

	subtasks, err := d.Decompose(context.Background(), "File Ohio 2024 taxes with W2 and book a trip to Tokyo, then parse the CSV export")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 3 {
		t.Fatalf("expected 3 subtasks, got %d: %+v", len(subtasks), subtasks)
	}

	wantTypes := []string{"tax_filing", "travel_planning", "data_parsing"}
	for i, want := range wantTypes {
		if subtasks[i].TaskType != want {
			t.Errorf("subtask %d type = %q, want %q", i, subtasks[i].TaskType, want)
		}
	}
	if subtasks[0].Weight != 1.0 || subtasks[1].Weight != 0.8 {
		t.Errorf("unexpected weights %f, %f", subtasks[0].Weight, subtasks[1].Weight)
	}
}

func TestHeuristicDecomposer_SingleClause(t *testing.T) {
	subtasks, err := NewHeuristicDecomposer(8).Decompose(context.Background(), "the and of")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].TaskType != models.TaskTypeGeneral {
		t.Errorf("expected single general subtask, got %+v", subtasks)
	}
}

func TestInferTaskType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"file my taxes", "tax_filing"},
		{"find hotels in Kyoto", "travel_planning"},
		{"parsing json logs", "data_parsing"},
		{"rent an apartment", "real_estate_search"},
		{"write a poem", models.TaskTypeGeneral},
	}

	for _, tt := range tests {
		if got := InferTaskType(tt.input); got != tt.want {
			t.Errorf("InferTaskType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
