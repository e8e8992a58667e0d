package decompose

import (
	"fmt"
	"strings"

	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

// Severity indicates the severity of a quality issue.
type Severity int

const (
	// SeverityInfo indicates informational feedback.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential problem.
	SeverityWarning
	// SeverityCritical indicates a serious problem.
	SeverityCritical
)

// String returns a human-readable severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// QualityIssue represents a specific problem with a subtask or with the
// decomposition as a whole.
type QualityIssue struct {
	Severity   Severity
	Message    string
	Suggestion string
}

// SubtaskQualityScore is the quality score for a single subtask.
type SubtaskQualityScore struct {
	Index      int
	Confidence float64 // 0.0-1.0, where 1.0 is highest confidence
	Issues     []QualityIssue
}

// DecompositionQuality is the overall quality of a decomposition.
type DecompositionQuality struct {
	OverallConfidence float64
	SubtaskScores     []SubtaskQualityScore
	// Issues are decomposition-wide problems such as a bad subtask count.
	Issues         []QualityIssue
	TotalSubtasks  int
	CriticalIssues int
}

// Warnings flattens every issue at warning severity or above into
// human-readable lines.
func (q DecompositionQuality) Warnings() []string {
	var out []string
	for _, issue := range q.Issues {
		if issue.Severity >= SeverityWarning {
			out = append(out, fmt.Sprintf("%s: %s", issue.Severity, issue.Message))
		}
	}
	for _, s := range q.SubtaskScores {
		for _, issue := range s.Issues {
			if issue.Severity >= SeverityWarning {
				out = append(out, fmt.Sprintf("%s: subtask %d: %s", issue.Severity, s.Index, issue.Message))
			}
		}
	}
	return out
}

// CheckSubtasks checks subtask count bounds, empty or keyword-free
// texts, duplicates and weight ranges.
func CheckSubtasks(subtasks []models.Subtask, minSubtasks, maxSubtasks int) DecompositionQuality {
	quality := DecompositionQuality{
		OverallConfidence: 1.0,
		SubtaskScores:     make([]SubtaskQualityScore, len(subtasks)),
		TotalSubtasks:     len(subtasks),
	}

	if len(subtasks) < minSubtasks {
		quality.Issues = append(quality.Issues, QualityIssue{
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("Only %d subtasks, expected at least %d", len(subtasks), minSubtasks),
			Suggestion: "Split the task along location, time or requirement lines",
		})
	}
	if maxSubtasks > 0 && len(subtasks) > maxSubtasks {
		quality.Issues = append(quality.Issues, QualityIssue{
			Severity:   SeverityCritical,
			Message:    fmt.Sprintf("%d subtasks exceeds the maximum of %d", len(subtasks), maxSubtasks),
			Suggestion: "Merge related subtasks",
		})
	}

	for i, st := range subtasks {
		score := scoreSubtask(i, st, subtasks)
		quality.SubtaskScores[i] = score
		for _, issue := range score.Issues {
			if issue.Severity == SeverityCritical {
				quality.CriticalIssues++
			}
		}
	}
	for _, issue := range quality.Issues {
		if issue.Severity == SeverityCritical {
			quality.CriticalIssues++
		}
	}

	total := 0.0
	for _, s := range quality.SubtaskScores {
		total += s.Confidence
	}
	if len(quality.SubtaskScores) > 0 {
		quality.OverallConfidence = total / float64(len(quality.SubtaskScores))
	}
	quality.OverallConfidence -= 0.1 * float64(len(quality.Issues))
	if quality.OverallConfidence < 0 {
		quality.OverallConfidence = 0
	}

	return quality
}

func scoreSubtask(i int, st models.Subtask, all []models.Subtask) SubtaskQualityScore {
	score := SubtaskQualityScore{Index: i, Confidence: 1.0}

	if strings.TrimSpace(st.Text) == "" {
		score.Confidence = 0
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityCritical,
			Message:    "Empty subtask text",
			Suggestion: "Drop the subtask or describe it",
		})
		return score
	}

	if len(text.Keywords(st.Text)) == 0 {
		score.Confidence -= 0.5
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityWarning,
			Message:    "Subtask has no searchable keywords: " + st.Text,
			Suggestion: "Name the concrete thing to search for",
		})
	}

	if st.Weight <= 0 || st.Weight > 1 {
		score.Confidence -= 0.2
		score.Issues = append(score.Issues, QualityIssue{
			Severity:   SeverityWarning,
			Message:    fmt.Sprintf("Weight %.2f outside (0, 1]", st.Weight),
			Suggestion: "Use 1.0 for critical, 0.5 for helpful, 0.3 for optional",
		})
	}

	if st.TaskType == "" {
		score.Confidence -= 0.1
		score.Issues = append(score.Issues, QualityIssue{
			Severity: SeverityInfo,
			Message:  "No task type specified",
		})
	}

	for j := 0; j < i; j++ {
		if sameSubtask(all[j], st) {
			score.Confidence -= 0.4
			score.Issues = append(score.Issues, QualityIssue{
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("Duplicates subtask %d", j),
				Suggestion: "Merge duplicate subtasks",
			})
			break
		}
	}

	if score.Confidence < 0 {
		score.Confidence = 0
	}
	return score
}
