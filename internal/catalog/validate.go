package catalog

import (
	"fmt"
	"strings"

	"github.com/akhaire21/marktools/pkg/models"
)

// Validate checks a workflow against the catalog consistency rules and
// returns one message per problem. An empty result means the workflow is valid.
func Validate(wf *models.Workflow) []string {
	var problems []string

	if !wf.NodeType.Valid() {
		problems = append(problems, fmt.Sprintf("invalid node_type %q: must be 'workflow' or 'step'", wf.NodeType))
	}

	for _, childID := range wf.ChildIDs {
		if strings.Contains(childID, "_step_") {
			problems = append(problems, fmt.Sprintf("child id %q looks like a step: steps belong in the steps array", childID))
		}
	}

	if wf.WorkflowID == "" {
		problems = append(problems, "missing required field: workflow_id")
	}
	if wf.Title == "" {
		problems = append(problems, "missing required field: title")
	}
	if wf.TaskType == "" {
		problems = append(problems, "missing required field: task_type")
	}

	for i, step := range wf.Steps {
		switch {
		case step.Step <= 0:
			problems = append(problems, fmt.Sprintf("step %d is missing 'step' field (step number)", i))
		case step.Thought == "":
			problems = append(problems, fmt.Sprintf("step %d is missing 'thought' field", i))
		}
	}

	if wf.Rating < 0 || wf.Rating > 5 {
		problems = append(problems, fmt.Sprintf("rating %.2f out of range 0-5", wf.Rating))
	}
	if wf.DownloadCost < 0 || wf.ExecutionCost < 0 {
		problems = append(problems, "costs must not be negative")
	}

	return problems
}

// Report maps workflow IDs to their validation problems.
type Report map[string][]string

// ValidateFile parses a catalog file without rejecting invalid entries and
// reports every problem found, including duplicate IDs.
func ValidateFile(path string, data []byte) (Report, int, error) {
	workflows, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, 0, err
	}

	report := make(Report)
	seen := make(map[string]bool)
	for i, wf := range workflows {
		key := wf.WorkflowID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		problems := Validate(wf)
		if wf.WorkflowID != "" && seen[wf.WorkflowID] {
			problems = append(problems, "duplicate workflow_id")
		}
		seen[wf.WorkflowID] = true
		if len(problems) > 0 {
			report[key] = append(report[key], problems...)
		}
	}
	return report, len(workflows), nil
}
