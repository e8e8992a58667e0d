package decompose

import (
	"sort"
	"strings"

	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

// MergeDuplicates coalesces subtasks whose stemmed keyword sets are equal.
// The merged subtask keeps the first occurrence's position and text, the
// highest weight, the first specific task type, and every distinct
// rationale.
func MergeDuplicates(subtasks []models.Subtask) []models.Subtask {
	if len(subtasks) <= 1 {
		return subtasks
	}

	var result []models.Subtask
	keyToIndex := make(map[string]int)

	for _, st := range subtasks {
		key := keywordKey(st.Text)
		i, seen := keyToIndex[key]
		if !seen || key == "" {
			keyToIndex[key] = len(result)
			result = append(result, st)
			continue
		}

		merged := &result[i]
		if st.Weight > merged.Weight {
			merged.Weight = st.Weight
		}
		if merged.TaskType == models.TaskTypeGeneral && st.TaskType != "" {
			merged.TaskType = st.TaskType
		}
		if st.Rationale != "" && !strings.Contains(merged.Rationale, st.Rationale) {
			if merged.Rationale == "" {
				merged.Rationale = st.Rationale
			} else {
				merged.Rationale += "; " + st.Rationale
			}
		}
	}

	return result
}

func sameSubtask(a, b models.Subtask) bool {
	ka := keywordKey(a.Text)
	return ka != "" && ka == keywordKey(b.Text)
}

// keywordKey is the sorted, stemmed keyword set of s.
func keywordKey(s string) string {
	keywords := text.Keywords(s)
	stems := make([]string, 0, len(keywords))
	seen := make(map[string]bool)
	for _, kw := range keywords {
		stem := text.Stem(kw)
		if !seen[stem] {
			seen[stem] = true
			stems = append(stems, stem)
		}
	}
	sort.Strings(stems)
	return strings.Join(stems, " ")
}
