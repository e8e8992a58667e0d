package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/akhaire21/marktools/internal/embed"
	"github.com/akhaire21/marktools/internal/text"
	"github.com/akhaire21/marktools/pkg/models"

	_ "modernc.org/sqlite"
)

// SQLiteIndex persists workflows and nodes in SQLite. The keyword half uses
// FTS5 bm25 with per-column weights; the semantic half is computed in
// process over the stored embeddings.
type SQLiteIndex struct {
	db           *sql.DB
	dbPath       string
	vectorWeight float64
	mu           sync.RWMutex
}

// NewSQLiteIndex opens (or creates) the index database at dbPath and applies
// migrations.
func NewSQLiteIndex(dbPath string, vectorWeight float64) (*SQLiteIndex, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrIndexUnavailable, err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %w", ErrIndexUnavailable, err)
	}

	s := &SQLiteIndex{db: conn, dbPath: dbPath, vectorWeight: normalizeWeight(vectorWeight)}
	if err := s.Migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteIndex) Path() string {
	return s.dbPath
}

// Migrate creates the tables, FTS5 mirrors and sync triggers.
func (s *SQLiteIndex) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS index_schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM index_schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, indexMigrationV1Workflows},
		{2, indexMigrationV2Nodes},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO index_schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

const indexMigrationV1Workflows = `
CREATE TABLE IF NOT EXISTS index_workflows (
	workflow_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	task_type TEXT NOT NULL DEFAULT 'general',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	full_text TEXT NOT NULL DEFAULT '',
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_index_workflows_task_type ON index_workflows(task_type);

CREATE VIRTUAL TABLE IF NOT EXISTS index_workflows_fts USING fts5(
	title,
	description,
	tags,
	full_text,
	content='index_workflows',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS index_workflows_ai AFTER INSERT ON index_workflows BEGIN
	INSERT INTO index_workflows_fts(rowid, title, description, tags, full_text)
	VALUES (NEW.rowid, NEW.title, NEW.description, NEW.tags, NEW.full_text);
END;

CREATE TRIGGER IF NOT EXISTS index_workflows_ad AFTER DELETE ON index_workflows BEGIN
	INSERT INTO index_workflows_fts(index_workflows_fts, rowid, title, description, tags, full_text)
	VALUES ('delete', OLD.rowid, OLD.title, OLD.description, OLD.tags, OLD.full_text);
END;

CREATE TRIGGER IF NOT EXISTS index_workflows_au AFTER UPDATE ON index_workflows BEGIN
	INSERT INTO index_workflows_fts(index_workflows_fts, rowid, title, description, tags, full_text)
	VALUES ('delete', OLD.rowid, OLD.title, OLD.description, OLD.tags, OLD.full_text);
	INSERT INTO index_workflows_fts(rowid, title, description, tags, full_text)
	VALUES (NEW.rowid, NEW.title, NEW.description, NEW.tags, NEW.full_text);
END;
`

const indexMigrationV2Nodes = `
CREATE TABLE IF NOT EXISTS index_nodes (
	node_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	title TEXT NOT NULL,
	text TEXT NOT NULL,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_index_nodes_workflow ON index_nodes(workflow_id);

CREATE VIRTUAL TABLE IF NOT EXISTS index_nodes_fts USING fts5(
	title,
	text,
	content='index_nodes',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS index_nodes_ai AFTER INSERT ON index_nodes BEGIN
	INSERT INTO index_nodes_fts(rowid, title, text) VALUES (NEW.rowid, NEW.title, NEW.text);
END;

CREATE TRIGGER IF NOT EXISTS index_nodes_ad AFTER DELETE ON index_nodes BEGIN
	INSERT INTO index_nodes_fts(index_nodes_fts, rowid, title, text) VALUES ('delete', OLD.rowid, OLD.title, OLD.text);
END;

CREATE TRIGGER IF NOT EXISTS index_nodes_au AFTER UPDATE ON index_nodes BEGIN
	INSERT INTO index_nodes_fts(index_nodes_fts, rowid, title, text) VALUES ('delete', OLD.rowid, OLD.title, OLD.text);
	INSERT INTO index_nodes_fts(rowid, title, text) VALUES (NEW.rowid, NEW.title, NEW.text);
END;
`

// Reset deletes every workflow and node. Delete triggers keep FTS in sync.
func (s *SQLiteIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_nodes"); err != nil {
		return fmt.Errorf("%w: clear nodes: %w", ErrIndexUnavailable, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM index_workflows"); err != nil {
		return fmt.Errorf("%w: clear workflows: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// UpsertWorkflows inserts or updates workflows. New workflows are appended
// after the current last position.
func (s *SQLiteIndex) UpsertWorkflows(ctx context.Context, workflows []*models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertWorkflowsTx(ctx, tx, workflows)
	})
}

// UpsertNodes inserts or updates step nodes.
func (s *SQLiteIndex) UpsertNodes(ctx context.Context, nodes []models.WorkflowNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertNodesTx(ctx, tx, nodes)
	})
}

// Replace swaps the whole index contents in one transaction. Searches
// wait on the index lock, so they see the previous or the new contents,
// never a partial rebuild.
func (s *SQLiteIndex) Replace(ctx context.Context, workflows []*models.Workflow, nodes []models.WorkflowNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_nodes"); err != nil {
			return fmt.Errorf("%w: clear nodes: %w", ErrIndexUnavailable, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_workflows"); err != nil {
			return fmt.Errorf("%w: clear workflows: %w", ErrIndexUnavailable, err)
		}
		if err := upsertWorkflowsTx(ctx, tx, workflows); err != nil {
			return err
		}
		return upsertNodesTx(ctx, tx, nodes)
	})
}

func (s *SQLiteIndex) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertWorkflowsTx(ctx context.Context, tx *sql.Tx, workflows []*models.Workflow) error {
	var next int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM index_workflows").Scan(&next); err != nil {
		return fmt.Errorf("%w: read positions: %w", ErrIndexUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_workflows (workflow_id, position, task_type, title, description, tags, full_text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			task_type = excluded.task_type,
			title = excluded.title,
			description = excluded.description,
			tags = excluded.tags,
			full_text = excluded.full_text,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, wf := range workflows {
		emb, err := encodeVector(wf.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding for %s: %w", wf.WorkflowID, err)
		}
		_, err = stmt.ExecContext(ctx, wf.WorkflowID, next+i, wf.TaskType, wf.Title, wf.Description,
			strings.Join(wf.Tags, " "), wf.FullText, emb)
		if err != nil {
			return fmt.Errorf("upsert workflow %s: %w", wf.WorkflowID, err)
		}
	}
	return nil
}

func upsertNodesTx(ctx context.Context, tx *sql.Tx, nodes []models.WorkflowNode) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO index_nodes (node_id, workflow_id, ordinal, title, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			ordinal = excluded.ordinal,
			title = excluded.title,
			text = excluded.text,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		emb, err := encodeVector(n.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding for %s: %w", n.NodeID, err)
		}
		if _, err := stmt.ExecContext(ctx, n.NodeID, n.WorkflowID, n.Ordinal, n.Title, n.Text, emb); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.NodeID, err)
		}
	}
	return nil
}

// SearchWorkflows ranks workflows for q.
func (s *SQLiteIndex) SearchWorkflows(ctx context.Context, q Query) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taskType := filterTaskType(q.TaskType)
	match := text.FTSQuery(q.Text)

	var rows *sql.Rows
	var err error
	if match == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT w.workflow_id, w.position, w.embedding, 0.0
			FROM index_workflows w
			WHERE (? = '' OR w.task_type = ?)
			ORDER BY w.position
		`, taskType, taskType)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT w.workflow_id, w.position, w.embedding, COALESCE(m.kw, 0.0)
			FROM index_workflows w
			LEFT JOIN (
				SELECT rowid AS rid, -bm25(index_workflows_fts, 3.0, 2.0, 2.0, 1.0) AS kw
				FROM index_workflows_fts
				WHERE index_workflows_fts MATCH ?
			) m ON m.rid = w.rowid
			WHERE (? = '' OR w.task_type = ?)
			ORDER BY w.position
		`, match, taskType, taskType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search workflows: %w", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	cands, err := scanCandidates(rows, q.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: scan workflows: %w", ErrIndexUnavailable, err)
	}
	return toHits(fuse(cands, len(q.Embedding) > 0, s.vectorWeight, q.TopK)), nil
}

// SearchNodes ranks the step nodes of one workflow for q.
func (s *SQLiteIndex) SearchNodes(ctx context.Context, workflowID string, q Query) ([]NodeHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := text.FTSQuery(q.Text)

	var rows *sql.Rows
	var err error
	if match == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT n.node_id, n.ordinal, n.embedding, 0.0
			FROM index_nodes n
			WHERE n.workflow_id = ?
			ORDER BY n.ordinal
		`, workflowID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT n.node_id, n.ordinal, n.embedding, COALESCE(m.kw, 0.0)
			FROM index_nodes n
			LEFT JOIN (
				SELECT rowid AS rid, -bm25(index_nodes_fts, 2.0, 1.0) AS kw
				FROM index_nodes_fts
				WHERE index_nodes_fts MATCH ?
			) m ON m.rid = n.rowid
			WHERE n.workflow_id = ?
			ORDER BY n.ordinal
		`, match, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search nodes: %w", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	cands, err := scanCandidates(rows, q.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: scan nodes: %w", ErrIndexUnavailable, err)
	}
	for i := range cands {
		cands[i].workflowID = workflowID
	}
	return toNodeHits(fuse(cands, len(q.Embedding) > 0, s.vectorWeight, q.TopK)), nil
}

// scanCandidates reads (id, position, embedding, keyword) rows. For workflow
// rows the id doubles as the workflow id.
func scanCandidates(rows *sql.Rows, query []float32) ([]candidate, error) {
	var cands []candidate
	for rows.Next() {
		var c candidate
		var emb sql.NullString
		if err := rows.Scan(&c.id, &c.position, &emb, &c.keyword); err != nil {
			return nil, err
		}
		c.workflowID = c.id
		if len(query) > 0 && emb.Valid {
			vec, err := decodeVector(emb.String)
			if err != nil {
				return nil, fmt.Errorf("decode embedding for %s: %w", c.id, err)
			}
			c.cosine = embed.Cosine(query, vec)
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

func encodeVector(v []float32) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
