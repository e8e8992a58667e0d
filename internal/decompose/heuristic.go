package decompose

import (
	"context"
	"regexp"
	"strings"

	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

var clauseSplit = regexp.MustCompile(`(?i)\s*(?:,|;|\band then\b|\bthen\b|\band also\b|\bplus\b|\band\b)\s*`)

// taskTypeHints maps keyword stems to the catalog's task types.
var taskTypeHints = map[string]string{
	"tax":       "tax_filing",
	"w2":        "tax_filing",
	"1040":      "tax_filing",
	"deduction": "tax_filing",
	"trip":      "travel_planning",
	"travel":    "travel_planning",
	"flight":    "travel_planning",
	"hotel":     "travel_planning",
	"itinerary": "travel_planning",
	"csv":       "data_parsing",
	"json":      "data_parsing",
	"pars":      "data_parsing",
	"hous":      "real_estate_search",
	"apartment": "real_estate_search",
	"rent":      "real_estate_search",
	"email":     "outreach",
	"outreach":  "outreach",
}

// HeuristicDecomposer splits a task on conjunctions and punctuation. It
// needs no network access and is used for offline runs.
type HeuristicDecomposer struct {
	maxSubtasks int
}

// NewHeuristicDecomposer creates an offline decomposer.
func NewHeuristicDecomposer(maxSubtasks int) *HeuristicDecomposer {
	if maxSubtasks <= 0 || maxSubtasks > DefaultMaxSubtasks {
		maxSubtasks = DefaultMaxSubtasks
	}
	return &HeuristicDecomposer{maxSubtasks: maxSubtasks}
}

// Decompose implements Decomposer. Clauses without searchable keywords are
// dropped. A task with a single clause comes back as one general subtask.
func (h *HeuristicDecomposer) Decompose(ctx context.Context, task string) ([]models.Subtask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var subtasks []models.Subtask
	for _, clause := range clauseSplit.Split(task, -1) {
		clause = strings.TrimSpace(clause)
		if len(text.Keywords(clause)) == 0 {
			continue
		}
		weight := 0.8
		if len(subtasks) == 0 {
			weight = 1.0
		}
		subtasks = append(subtasks, models.Subtask{
			Text:      clause,
			TaskType:  InferTaskType(clause),
			Weight:    weight,
			Rationale: "clause of the original task",
		})
	}

	if len(subtasks) == 0 {
		return []models.Subtask{{
			Text:      strings.TrimSpace(task),
			TaskType:  models.TaskTypeGeneral,
			Weight:    1.0,
			Rationale: "task could not be split",
		}}, nil
	}

	subtasks = MergeDuplicates(subtasks)
	if len(subtasks) > h.maxSubtasks {
		subtasks = subtasks[:h.maxSubtasks]
	}
	return subtasks, nil
}

// InferTaskType guesses a task type from the keywords of s, returning
// "general" when nothing matches.
func InferTaskType(s string) string {
	for _, kw := range text.Keywords(s) {
		if tt, ok := taskTypeHints[text.Stem(kw)]; ok {
			return tt
		}
	}
	return models.TaskTypeGeneral
}
