// Package index provides hybrid (semantic + keyword) search over catalog
// workflows and their step nodes.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/logging"
	"github.com/akhaire21/marktools/pkg/models"
)

// ErrIndexUnavailable indicates the search backend could not be reached.
// It is distinct from an empty result.
var ErrIndexUnavailable = errors.New("search index unavailable")

// DefaultVectorWeight is the share of the hybrid score contributed by the
// semantic half.
const DefaultVectorWeight = 0.7

// minSemantic is the cosine a hit needs when no query keyword matches it.
const minSemantic = 0.1

// Query describes one hybrid search.
type Query struct {
	Text string
	// Embedding may be nil, in which case only the keyword half is used.
	Embedding []float32
	TopK      int
	// TaskType restricts workflow hits when set to anything but "general".
	TaskType string
}

// Hit is a workflow-level match.
type Hit struct {
	WorkflowID string
	Score      float64
}

// NodeHit is a step-level match inside one workflow.
type NodeHit struct {
	NodeID     string
	WorkflowID string
	Score      float64
}

// Index is the read side used by the search orchestrator.
type Index interface {
	SearchWorkflows(ctx context.Context, q Query) ([]Hit, error)
	SearchNodes(ctx context.Context, workflowID string, q Query) ([]NodeHit, error)
}

// Writer is the write side used by Build.
type Writer interface {
	Reset(ctx context.Context) error
	UpsertWorkflows(ctx context.Context, workflows []*models.Workflow) error
	UpsertNodes(ctx context.Context, nodes []models.WorkflowNode) error
}

// Replacer is a Writer that can swap its whole contents atomically. Build
// uses it when available so concurrent searches never observe a partly
// rebuilt index.
type Replacer interface {
	Replace(ctx context.Context, workflows []*models.Workflow, nodes []models.WorkflowNode) error
}

// Build embeds every workflow and step node of cat and writes them to w,
// replacing any previous contents. Catalog workflows are not mutated;
// embedded copies are written instead.
func Build(ctx context.Context, w Writer, cat *catalog.Catalog, embedder embed.Embedder, log logging.Logger) error {
	log = logging.OrNop(log)

	workflows := cat.All()
	texts := make([]string, len(workflows))
	for i, wf := range workflows {
		texts[i] = wf.FullText
	}

	nodes := cat.AllNodes()
	nodeTexts := make([]string, len(nodes))
	for i, n := range nodes {
		nodeTexts[i] = n.Title + ". " + n.Text
	}

	var wfVecs, nodeVecs [][]float32
	if embedder != nil {
		var err error
		if wfVecs, err = embed.Batch(ctx, embedder, texts, 32); err != nil {
			return fmt.Errorf("embed workflows: %w", err)
		}
		if nodeVecs, err = embed.Batch(ctx, embedder, nodeTexts, 32); err != nil {
			return fmt.Errorf("embed nodes: %w", err)
		}
	}

	embedded := make([]*models.Workflow, len(workflows))
	for i, wf := range workflows {
		cp := *wf
		if wfVecs != nil {
			cp.Embedding = wfVecs[i]
		}
		embedded[i] = &cp
	}
	if nodeVecs != nil {
		for i := range nodes {
			nodes[i].Embedding = nodeVecs[i]
		}
	}

	if r, ok := w.(Replacer); ok {
		if err := r.Replace(ctx, embedded, nodes); err != nil {
			return fmt.Errorf("replace index: %w", err)
		}
	} else {
		if err := w.Reset(ctx); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		if err := w.UpsertWorkflows(ctx, embedded); err != nil {
			return fmt.Errorf("upsert workflows: %w", err)
		}
		if err := w.UpsertNodes(ctx, nodes); err != nil {
			return fmt.Errorf("upsert nodes: %w", err)
		}
	}

	log.Log("[index.Build] indexed %d workflows and %d nodes", len(embedded), len(nodes))
	return nil
}

// filterTaskType returns the task type to filter on, or "" for none.
func filterTaskType(taskType string) string {
	if taskType == "" || taskType == models.TaskTypeGeneral {
		return ""
	}
	return taskType
}

// weightedText repeats the boosted fields so plain BM25 over one document
// approximates title^3, description^2, tags^2 field boosts.
func weightedText(wf *models.Workflow) string {
	tags := strings.Join(wf.Tags, " ")
	parts := []string{
		wf.Title, wf.Title, wf.Title,
		wf.Description, wf.Description,
		tags, tags,
		wf.FullText,
	}
	return strings.Join(parts, " ")
}

// candidate is one document's raw components before fusion.
type candidate struct {
	id         string
	workflowID string
	position   int
	cosine     float64
	keyword    float64
}

type fused struct {
	candidate
	score float64
}

// fuse combines raw cosine and keyword scores into the hybrid score
// vectorWeight*(cos+1)/2 + (1-vectorWeight)*keyword/maxKeyword and returns
// the topK best in descending order. Equal scores keep catalog order.
func fuse(cands []candidate, semantic bool, vectorWeight float64, topK int) []fused {
	var maxKeyword float64
	for _, c := range cands {
		if c.keyword > maxKeyword {
			maxKeyword = c.keyword
		}
	}

	out := make([]fused, 0, len(cands))
	for _, c := range cands {
		var kw float64
		if maxKeyword > 0 {
			kw = c.keyword / maxKeyword
		}

		var score float64
		if semantic {
			if kw == 0 && c.cosine < minSemantic {
				continue
			}
			score = vectorWeight*(c.cosine+1)/2 + (1-vectorWeight)*kw
		} else {
			if kw == 0 {
				continue
			}
			score = kw
		}
		out = append(out, fused{candidate: c, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].position < out[j].position
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func toHits(fs []fused) []Hit {
	hits := make([]Hit, len(fs))
	for i, f := range fs {
		hits[i] = Hit{WorkflowID: f.workflowID, Score: f.score}
	}
	return hits
}

func toNodeHits(fs []fused) []NodeHit {
	hits := make([]NodeHit, len(fs))
	for i, f := range fs {
		hits[i] = NodeHit{NodeID: f.id, WorkflowID: f.workflowID, Score: f.score}
	}
	return hits
}

func normalizeWeight(w float64) float64 {
	if w < 0 || w > 1 {
		return DefaultVectorWeight
	}
	return w
}
