// Package scorer judges how well a workflow fits a task description. The
// score is independent of raw search rank and gates plan acceptance.
package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/akhaire21/marktools/internal/llm"
	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

// ErrScoringFailed wraps any failure to obtain a relevance score.
var ErrScoringFailed = errors.New("relevance scoring failed")

// Scorer returns a relevance score in [0, 1] for (task, workflow).
type Scorer interface {
	Score(ctx context.Context, task string, wf *models.Workflow) (float64, error)
}

// Clamp bounds s to [0, 1].
func Clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

const scoreSystemPrompt = `You are a workflow quality scorer for an AI agent marketplace.

Your job is to evaluate how well a workflow template matches a user's task.

Consider:
- Task type match (exact match = higher score)
- Requirement coverage (does workflow handle all user needs?)
- Specificity match (too specific/general = lower score)
- Domain knowledge overlap

Output ONLY a JSON object with:
{
  "score": 0.85,
  "reasoning": "brief explanation"
}`

const scorePrompt = `Task: %q

Workflow to evaluate:
Title: %s
Task Type: %s
Description: %s
Tags: %s
Requirements: %s

How well does this workflow match the task? Output JSON only.`

// LLMScorer asks a language model for the score.
type LLMScorer struct {
	client      llm.Completer
	temperature float64
}

// NewLLMScorer creates a scorer backed by client.
func NewLLMScorer(client llm.Completer) *LLMScorer {
	return &LLMScorer{client: client, temperature: 0.2}
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, task string, wf *models.Workflow) (float64, error) {
	if wf == nil {
		return 0, fmt.Errorf("%w: nil workflow", ErrScoringFailed)
	}

	prompt := fmt.Sprintf(scorePrompt, task, wf.Title, wf.TaskType, wf.Description,
		strings.Join(wf.Tags, ", "), strings.Join(wf.Requirements, ", "))

	reply, err := s.client.Complete(ctx, llm.Request{
		System:      scoreSystemPrompt,
		Prompt:      prompt,
		Temperature: s.temperature,
		MaxTokens:   512,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	score, err := ParseScore(reply)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	return score, nil
}

type scoreReply struct {
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
}

// ParseScore extracts and clamps the score from a model reply.
func ParseScore(reply string) (float64, error) {
	body := llm.ExtractJSON(reply)
	if body == "" {
		return 0, fmt.Errorf("no JSON object found in reply (got %d chars): %q", len(reply), truncate(reply, 200))
	}

	var r scoreReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return 0, fmt.Errorf("parse score JSON: %w", err)
	}
	if r.Score == nil {
		return 0, fmt.Errorf("reply has no score field")
	}
	return Clamp(*r.Score), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// LexicalScorer scores by stemmed keyword coverage: the share of task
// keywords found in the workflow's full text, with a small bonus when a
// task keyword names the workflow's task type. It needs no network access.
type LexicalScorer struct{}

// NewLexicalScorer creates an offline scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score implements Scorer.
func (LexicalScorer) Score(ctx context.Context, task string, wf *models.Workflow) (float64, error) {
	if wf == nil {
		return 0, fmt.Errorf("%w: nil workflow", ErrScoringFailed)
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	doc := wf.FullText
	if doc == "" {
		doc = wf.Title + " " + wf.Description + " " + strings.Join(wf.Tags, " ")
	}

	score := text.Overlap(task, doc)
	if score > 0 && taskTypeMentioned(task, wf.TaskType) {
		score += 0.05
	}
	return Clamp(score), nil
}

func taskTypeMentioned(task, taskType string) bool {
	if taskType == "" || taskType == models.TaskTypeGeneral {
		return false
	}
	stems := make(map[string]bool)
	for _, kw := range text.Keywords(task) {
		stems[text.Stem(kw)] = true
	}
	for _, part := range strings.Split(taskType, "_") {
		if stems[text.Stem(part)] {
			return true
		}
	}
	return false
}

// Func adapts a function to the Scorer interface.
type Func func(ctx context.Context, task string, wf *models.Workflow) (float64, error)

// Score implements Scorer.
func (f Func) Score(ctx context.Context, task string, wf *models.Workflow) (float64, error) {
	return f(ctx, task, wf)
}
