package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"
)

// PostgresIndex stores workflows in Postgres with a pgvector embedding
// column and a weighted tsvector. Cosine distance (<=>) and ts_rank_cd are
// computed in SQL and fused in process.
type PostgresIndex struct {
	db           *pgxpool.Pool
	vectorWeight float64
}

// NewPostgresIndex connects to dsn, verifies the connection and applies the
// schema.
func NewPostgresIndex(ctx context.Context, dsn string, vectorWeight float64) (*PostgresIndex, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrIndexUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrIndexUnavailable, err)
	}

	p := NewPostgresIndexFromPool(pool, vectorWeight)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresIndexFromPool wraps an existing pool. The schema is not
// applied; call Migrate.
func NewPostgresIndexFromPool(pool *pgxpool.Pool, vectorWeight float64) *PostgresIndex {
	return &PostgresIndex{db: pool, vectorWeight: normalizeWeight(vectorWeight)}
}

// Close releases the pool.
func (p *PostgresIndex) Close() {
	p.db.Close()
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS marktools_workflows (
	workflow_id TEXT PRIMARY KEY,
	position INT NOT NULL,
	task_type TEXT NOT NULL DEFAULT 'general',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	full_text TEXT NOT NULL DEFAULT '',
	embedding VECTOR,
	tsv TSVECTOR GENERATED ALWAYS AS (
		setweight(to_tsvector('english', title), 'A') ||
		setweight(to_tsvector('english', description), 'B') ||
		setweight(to_tsvector('english', tags), 'B') ||
		setweight(to_tsvector('english', full_text), 'D')
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_marktools_workflows_tsv ON marktools_workflows USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_marktools_workflows_task_type ON marktools_workflows (task_type);

CREATE TABLE IF NOT EXISTS marktools_nodes (
	node_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	ordinal INT NOT NULL,
	title TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding VECTOR,
	tsv TSVECTOR GENERATED ALWAYS AS (
		setweight(to_tsvector('english', title), 'B') ||
		setweight(to_tsvector('english', text), 'D')
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_marktools_nodes_workflow ON marktools_nodes (workflow_id);
`

// Migrate creates the pgvector extension, tables and indexes.
func (p *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("%w: apply schema: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Reset truncates both tables.
func (p *PostgresIndex) Reset(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, "TRUNCATE marktools_nodes, marktools_workflows"); err != nil {
		return fmt.Errorf("%w: truncate: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// UpsertWorkflows writes workflows in one batch. New workflows are appended
// after the current last position.
func (p *PostgresIndex) UpsertWorkflows(ctx context.Context, workflows []*models.Workflow) error {
	return upsertWorkflowsBatch(ctx, p.db, workflows)
}

// UpsertNodes writes step nodes in one batch.
func (p *PostgresIndex) UpsertNodes(ctx context.Context, nodes []models.WorkflowNode) error {
	return sendBatch(ctx, p.db, nodeBatch(nodes))
}

// Replace swaps both tables' contents in one transaction. Concurrent
// searches keep reading the committed rows until the swap commits.
func (p *PostgresIndex) Replace(ctx context.Context, workflows []*models.Workflow, nodes []models.WorkflowNode) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrIndexUnavailable, err)
	}
	defer tx.Rollback(ctx)

	// DELETE rather than TRUNCATE: TRUNCATE takes an exclusive lock that
	// would block readers for the whole rebuild.
	if _, err := tx.Exec(ctx, "DELETE FROM marktools_nodes"); err != nil {
		return fmt.Errorf("%w: clear nodes: %w", ErrIndexUnavailable, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM marktools_workflows"); err != nil {
		return fmt.Errorf("%w: clear workflows: %w", ErrIndexUnavailable, err)
	}
	if err := upsertWorkflowsBatch(ctx, tx, workflows); err != nil {
		return err
	}
	if err := sendBatch(ctx, tx, nodeBatch(nodes)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// querier is the part of pgxpool.Pool and pgx.Tx the writers need.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func upsertWorkflowsBatch(ctx context.Context, q querier, workflows []*models.Workflow) error {
	var next int
	if err := q.QueryRow(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM marktools_workflows").Scan(&next); err != nil {
		return fmt.Errorf("%w: read positions: %w", ErrIndexUnavailable, err)
	}

	batch := &pgx.Batch{}
	for i, wf := range workflows {
		batch.Queue(`
			INSERT INTO marktools_workflows (workflow_id, position, task_type, title, description, tags, full_text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (workflow_id) DO UPDATE SET
				task_type = EXCLUDED.task_type,
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				tags = EXCLUDED.tags,
				full_text = EXCLUDED.full_text,
				embedding = EXCLUDED.embedding
		`, wf.WorkflowID, next+i, wf.TaskType, wf.Title, wf.Description,
			strings.Join(wf.Tags, " "), wf.FullText, vectorArg(wf.Embedding))
	}
	return sendBatch(ctx, q, batch)
}

func nodeBatch(nodes []models.WorkflowNode) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, n := range nodes {
		batch.Queue(`
			INSERT INTO marktools_nodes (node_id, workflow_id, ordinal, title, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (node_id) DO UPDATE SET
				workflow_id = EXCLUDED.workflow_id,
				ordinal = EXCLUDED.ordinal,
				title = EXCLUDED.title,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, n.NodeID, n.WorkflowID, n.Ordinal, n.Title, n.Text, vectorArg(n.Embedding))
	}
	return batch
}

func sendBatch(ctx context.Context, q querier, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := q.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%w: batch statement %d: %w", ErrIndexUnavailable, i, err)
		}
	}
	return nil
}

// SearchWorkflows ranks workflows for q.
func (p *PostgresIndex) SearchWorkflows(ctx context.Context, q Query) ([]Hit, error) {
	rows, err := p.db.Query(ctx, `
		SELECT workflow_id, position,
			CASE WHEN $1::vector IS NULL OR embedding IS NULL THEN 0
				ELSE 1 - (embedding <=> $1::vector) END,
			CASE WHEN $2 = '' THEN 0
				ELSE ts_rank_cd(tsv, to_tsquery('english', $2)) END
		FROM marktools_workflows
		WHERE ($3 = '' OR task_type = $3)
		ORDER BY position
	`, vectorArg(q.Embedding), tsQuery(q.Text), filterTaskType(q.TaskType))
	if err != nil {
		return nil, fmt.Errorf("%w: search workflows: %w", ErrIndexUnavailable, err)
	}

	cands, err := collectCandidates(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan workflows: %w", ErrIndexUnavailable, err)
	}
	return toHits(fuse(cands, len(q.Embedding) > 0, p.vectorWeight, q.TopK)), nil
}

// SearchNodes ranks the step nodes of one workflow for q.
func (p *PostgresIndex) SearchNodes(ctx context.Context, workflowID string, q Query) ([]NodeHit, error) {
	rows, err := p.db.Query(ctx, `
		SELECT node_id, ordinal,
			CASE WHEN $1::vector IS NULL OR embedding IS NULL THEN 0
				ELSE 1 - (embedding <=> $1::vector) END,
			CASE WHEN $2 = '' THEN 0
				ELSE ts_rank_cd(tsv, to_tsquery('english', $2)) END
		FROM marktools_nodes
		WHERE workflow_id = $3
		ORDER BY ordinal
	`, vectorArg(q.Embedding), tsQuery(q.Text), workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: search nodes: %w", ErrIndexUnavailable, err)
	}

	cands, err := collectCandidates(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan nodes: %w", ErrIndexUnavailable, err)
	}
	for i := range cands {
		cands[i].workflowID = workflowID
	}
	return toNodeHits(fuse(cands, len(q.Embedding) > 0, p.vectorWeight, q.TopK)), nil
}

func collectCandidates(rows pgx.Rows) ([]candidate, error) {
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var c candidate
		var kw float32
		if err := rows.Scan(&c.id, &c.position, &c.cosine, &kw); err != nil {
			return nil, err
		}
		c.workflowID = c.id
		c.keyword = float64(kw)
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// vectorArg returns a pgvector parameter, or nil for SQL NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// tsQuery ORs the keywords of s into a to_tsquery expression. Keywords are
// alphanumeric, so no escaping is needed.
func tsQuery(s string) string {
	return strings.Join(text.Keywords(s), " | ")
}
