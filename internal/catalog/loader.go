package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/akhaire21/marktools/pkg/models"
)

// ErrInvalidWorkflow indicates a catalog entry failed validation.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// Format is the on-disk encoding of a catalog file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from the file extension. Unknown
// extensions are treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// rawWorkflow carries the legacy cost field names next to the canonical
// ones so they can be folded in once at load time.
type rawWorkflow struct {
	models.Workflow `yaml:",inline"`
	// TokenCost is the legacy name for download_cost.
	TokenCost *int `json:"token_cost,omitempty" yaml:"token_cost,omitempty"`
	// ExecutionTokens is the legacy name for execution_cost.
	ExecutionTokens *int `json:"execution_tokens,omitempty" yaml:"execution_tokens,omitempty"`
}

type rawCatalog struct {
	Workflows []rawWorkflow `json:"workflows" yaml:"workflows"`
}

// Load reads, normalizes and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	workflows, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	for _, wf := range workflows {
		if problems := Validate(wf); len(problems) > 0 {
			return nil, fmt.Errorf("%w %q: %s", ErrInvalidWorkflow, wf.WorkflowID, strings.Join(problems, "; "))
		}
	}

	return New(workflows)
}

// Parse decodes catalog data and normalizes every workflow. Both
// {"workflows": [...]} and a bare array are accepted.
func Parse(data []byte, format Format) ([]*models.Workflow, error) {
	raws, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(raws))
	for i := range raws {
		workflows = append(workflows, normalize(&raws[i]))
	}
	return workflows, nil
}

func decode(data []byte, format Format) ([]rawWorkflow, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	switch format {
	case FormatYAML:
		var wrapped rawCatalog
		if err := yaml.Unmarshal(data, &wrapped); err == nil && wrapped.Workflows != nil {
			return wrapped.Workflows, nil
		}
		var bare []rawWorkflow
		if err := yaml.Unmarshal(data, &bare); err != nil {
			return nil, fmt.Errorf("unmarshal YAML: %w", err)
		}
		return bare, nil
	default:
		if strings.HasPrefix(trimmed, "[") {
			var bare []rawWorkflow
			if err := json.Unmarshal(data, &bare); err != nil {
				return nil, fmt.Errorf("unmarshal JSON: %w", err)
			}
			return bare, nil
		}
		var wrapped rawCatalog
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		return wrapped.Workflows, nil
	}
}

// normalize folds legacy cost names into the canonical fields and fills
// defaults, so nothing downstream needs to know about the old names.
func normalize(raw *rawWorkflow) *models.Workflow {
	wf := raw.Workflow

	if wf.DownloadCost == 0 && raw.TokenCost != nil {
		wf.DownloadCost = *raw.TokenCost
	}
	if wf.ExecutionCost == 0 && raw.ExecutionTokens != nil {
		wf.ExecutionCost = *raw.ExecutionTokens
	}
	if wf.NodeType == "" {
		wf.NodeType = models.NodeTypeWorkflow
	}
	if wf.TaskType == "" {
		wf.TaskType = models.TaskTypeGeneral
	}
	wf.FullText = WorkflowToText(&wf)

	return &wf
}
