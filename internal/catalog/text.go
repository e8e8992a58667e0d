package catalog

import (
	"fmt"
	"strings"

	"github.com/akhaire21/marktools/pkg/models"
)

const (
	maxTextSteps     = 5
	maxTextEdgeCases = 3
	maxTextDomain    = 3
)

// WorkflowToText flattens a workflow into the text used for embedding and
// keyword search.
func WorkflowToText(wf *models.Workflow) string {
	parts := []string{
		"Title: " + wf.Title,
		"Task: " + wf.TaskType,
		"Description: " + wf.Description,
	}

	if wf.State != "" {
		parts = append(parts, "State: "+wf.State)
	}
	if wf.Location != "" {
		parts = append(parts, "Location: "+wf.Location)
	}
	if wf.Year != 0 {
		parts = append(parts, fmt.Sprintf("Year: %d", wf.Year))
	}
	if len(wf.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(wf.Tags, ", "))
	}
	if len(wf.Requirements) > 0 {
		parts = append(parts, "Requirements: "+strings.Join(wf.Requirements, ", "))
	}

	var steps []string
	for i, step := range wf.Steps {
		if i >= maxTextSteps {
			break
		}
		if step.Thought != "" {
			steps = append(steps, fmt.Sprintf("%d. %s", step.Step, step.Thought))
		}
	}
	if len(steps) > 0 {
		parts = append(parts, "Steps: "+strings.Join(steps, "; "))
	}

	if len(wf.EdgeCases) > 0 {
		parts = append(parts, "Edge cases: "+strings.Join(head(wf.EdgeCases, maxTextEdgeCases), ", "))
	}
	if len(wf.DomainKnowledge) > 0 {
		parts = append(parts, "Domain: "+strings.Join(head(wf.DomainKnowledge, maxTextDomain), ", "))
	}

	return strings.Join(parts, " | ")
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
