// Package decompose splits a task description into weighted, searchable
// subtasks.
package decompose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/akhaire21/marktools/internal/llm"
	"github.com/akhaire21/marktools/pkg/models"
)

// ErrDecompositionFailed wraps any failure to obtain subtasks.
var ErrDecompositionFailed = errors.New("task decomposition failed")

// Default subtask bounds.
const (
	DefaultMinSubtasks = 2
	DefaultMaxSubtasks = 8
)

// Decomposer splits a task into subtasks in logical execution order.
type Decomposer interface {
	Decompose(ctx context.Context, task string) ([]models.Subtask, error)
}

// decomposedSubtask is the JSON structure returned by the model for a
// single subtask.
type decomposedSubtask struct {
	Text      string   `json:"text"`
	TaskType  string   `json:"task_type"`
	Weight    *float64 `json:"weight"`
	Rationale string   `json:"rationale"`
}

type decomposedReply struct {
	Subtasks []decomposedSubtask `json:"subtasks"`
}

// LLMDecomposer asks a language model for the decomposition.
type LLMDecomposer struct {
	client      llm.Completer
	minSubtasks int
	maxSubtasks int
}

// NewLLMDecomposer creates a decomposer backed by client. Bounds outside
// [1, 8] fall back to the defaults.
func NewLLMDecomposer(client llm.Completer, minSubtasks, maxSubtasks int) *LLMDecomposer {
	if minSubtasks < 1 {
		minSubtasks = DefaultMinSubtasks
	}
	if maxSubtasks < minSubtasks || maxSubtasks > DefaultMaxSubtasks {
		maxSubtasks = DefaultMaxSubtasks
	}
	return &LLMDecomposer{client: client, minSubtasks: minSubtasks, maxSubtasks: maxSubtasks}
}

// Decompose implements Decomposer.
func (d *LLMDecomposer) Decompose(ctx context.Context, task string) ([]models.Subtask, error) {
	reply, err := d.client.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(decompositionSystemPrompt, d.minSubtasks, d.maxSubtasks),
		Prompt:      fmt.Sprintf(decompositionPrompt, task, d.minSubtasks, d.maxSubtasks),
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompositionFailed, err)
	}

	subtasks, err := ParseResponse(reply, d.maxSubtasks)
	if err != nil {
		return nil, fmt.Errorf("%w: parse decomposition response: %w", ErrDecompositionFailed, err)
	}
	return MergeDuplicates(subtasks), nil
}

// ParseResponse parses the model's reply into subtasks. Both
// {"subtasks": [...]} and a bare array are accepted. Entries with empty text
// are dropped, task types default to "general", weights outside (0, 1]
// become 1.0, and the result is truncated to max entries.
func ParseResponse(response string, max int) ([]models.Subtask, error) {
	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no valid JSON found in response (got %d chars): %q", len(response), preview)
	}

	var raw []decomposedSubtask
	if strings.HasPrefix(jsonStr, "[") {
		if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
	} else {
		var reply decomposedReply
		if err := json.Unmarshal([]byte(jsonStr), &reply); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		raw = reply.Subtasks
	}

	subtasks := make([]models.Subtask, 0, len(raw))
	for _, ds := range raw {
		text := strings.TrimSpace(ds.Text)
		if text == "" {
			continue
		}

		taskType := strings.ToLower(strings.TrimSpace(ds.TaskType))
		if taskType == "" {
			taskType = models.TaskTypeGeneral
		}

		weight := 1.0
		if ds.Weight != nil && *ds.Weight > 0 && *ds.Weight <= 1 {
			weight = *ds.Weight
		}

		subtasks = append(subtasks, models.Subtask{
			Text:      text,
			TaskType:  taskType,
			Weight:    weight,
			Rationale: strings.TrimSpace(ds.Rationale),
		})
	}

	if len(subtasks) == 0 {
		return nil, fmt.Errorf("empty subtask list returned")
	}
	if max > 0 && len(subtasks) > max {
		subtasks = subtasks[:max]
	}
	return subtasks, nil
}

// Func adapts a function to the Decomposer interface.
type Func func(ctx context.Context, task string) ([]models.Subtask, error)

// Decompose implements Decomposer.
func (f Func) Decompose(ctx context.Context, task string) ([]models.Subtask, error) {
	return f(ctx, task)
}
