package index

import (
	"context"
	"sync"

	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

type memoryDoc struct {
	id         string
	workflowID string
	taskType   string
	position   int
	embedding  []float32
	text       string
}

// MemoryIndex is an in-process hybrid index: cosine similarity over stored
// embeddings plus BM25 over boosted workflow text. It is safe for
// concurrent use.
type MemoryIndex struct {
	vectorWeight float64

	mu         sync.RWMutex
	workflows  []memoryDoc
	wfCorpus   *text.Corpus
	nodes      map[string][]memoryDoc
	nodeCorpus map[string]*text.Corpus
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(vectorWeight float64) *MemoryIndex {
	return &MemoryIndex{
		vectorWeight: normalizeWeight(vectorWeight),
		wfCorpus:     text.NewCorpus(nil),
		nodes:        make(map[string][]memoryDoc),
		nodeCorpus:   make(map[string]*text.Corpus),
	}
}

// Reset drops every document.
func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()
	return nil
}

// Replace swaps the whole contents under one lock.
func (m *MemoryIndex) Replace(ctx context.Context, workflows []*models.Workflow, nodes []models.WorkflowNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked()
	m.upsertWorkflowsLocked(workflows)
	m.upsertNodesLocked(nodes)
	return nil
}

func (m *MemoryIndex) resetLocked() {
	m.workflows = nil
	m.wfCorpus = text.NewCorpus(nil)
	m.nodes = make(map[string][]memoryDoc)
	m.nodeCorpus = make(map[string]*text.Corpus)
}

// UpsertWorkflows replaces the workflow documents. The keyword corpus is
// rebuilt over the full set so BM25 statistics stay global.
func (m *MemoryIndex) UpsertWorkflows(ctx context.Context, workflows []*models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertWorkflowsLocked(workflows)
	return nil
}

func (m *MemoryIndex) upsertWorkflowsLocked(workflows []*models.Workflow) {
	byID := make(map[string]int, len(m.workflows))
	for i, d := range m.workflows {
		byID[d.id] = i
	}
	for _, wf := range workflows {
		doc := memoryDoc{
			id:         wf.WorkflowID,
			workflowID: wf.WorkflowID,
			taskType:   wf.TaskType,
			embedding:  wf.Embedding,
			text:       weightedText(wf),
		}
		if i, ok := byID[wf.WorkflowID]; ok {
			doc.position = m.workflows[i].position
			m.workflows[i] = doc
		} else {
			doc.position = len(m.workflows)
			byID[wf.WorkflowID] = len(m.workflows)
			m.workflows = append(m.workflows, doc)
		}
	}

	m.rebuildWorkflowCorpus()
}

// UpsertNodes replaces the step nodes of every workflow named in nodes.
func (m *MemoryIndex) UpsertNodes(ctx context.Context, nodes []models.WorkflowNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertNodesLocked(nodes)
	return nil
}

func (m *MemoryIndex) upsertNodesLocked(nodes []models.WorkflowNode) {
	grouped := make(map[string][]models.WorkflowNode)
	var order []string
	for _, n := range nodes {
		if _, ok := grouped[n.WorkflowID]; !ok {
			order = append(order, n.WorkflowID)
		}
		grouped[n.WorkflowID] = append(grouped[n.WorkflowID], n)
	}

	for _, wfID := range order {
		group := grouped[wfID]
		docs := make([]memoryDoc, len(group))
		texts := make([]string, len(group))
		for i, n := range group {
			docs[i] = memoryDoc{
				id:         n.NodeID,
				workflowID: n.WorkflowID,
				position:   n.Ordinal,
				embedding:  n.Embedding,
			}
			texts[i] = n.Title + " " + n.Text
		}
		m.nodes[wfID] = docs
		m.nodeCorpus[wfID] = text.NewCorpus(texts)
	}
}

// SearchWorkflows ranks workflow documents for q.
func (m *MemoryIndex) SearchWorkflows(ctx context.Context, q Query) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	taskType := filterTaskType(q.TaskType)
	terms := text.Keywords(q.Text)

	cands := make([]candidate, 0, len(m.workflows))
	for i, d := range m.workflows {
		if taskType != "" && d.taskType != taskType {
			continue
		}
		cands = append(cands, candidate{
			id:         d.id,
			workflowID: d.workflowID,
			position:   d.position,
			cosine:     embed.Cosine(q.Embedding, d.embedding),
			keyword:    m.wfCorpus.Score(terms, i),
		})
	}

	return toHits(fuse(cands, len(q.Embedding) > 0, m.vectorWeight, q.TopK)), nil
}

// SearchNodes ranks the step nodes of one workflow for q.
func (m *MemoryIndex) SearchNodes(ctx context.Context, workflowID string, q Query) ([]NodeHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.nodes[workflowID]
	corpus := m.nodeCorpus[workflowID]
	if len(docs) == 0 || corpus == nil {
		return nil, nil
	}

	terms := text.Keywords(q.Text)
	cands := make([]candidate, len(docs))
	for i, d := range docs {
		cands[i] = candidate{
			id:         d.id,
			workflowID: d.workflowID,
			position:   d.position,
			cosine:     embed.Cosine(q.Embedding, d.embedding),
			keyword:    corpus.Score(terms, i),
		}
	}

	return toNodeHits(fuse(cands, len(q.Embedding) > 0, m.vectorWeight, q.TopK)), nil
}

// Len returns the number of indexed workflows.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workflows)
}

func (m *MemoryIndex) rebuildWorkflowCorpus() {
	docs := make([]string, len(m.workflows))
	for i, d := range m.workflows {
		docs[i] = d.text
	}
	m.wfCorpus = text.NewCorpus(docs)
}
