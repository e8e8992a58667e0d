package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions in a SQLite database so that an estimate
// made by one CLI invocation can be bought by the next.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS estimate_sessions (
			id TEXT PRIMARY KEY,
			query TEXT,
			payload TEXT NOT NULL,
			created_at DATETIME,
			expires_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, sess *Session) error {
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := json.Marshal(sess.Solutions)
	if err != nil {
		return fmt.Errorf("marshal solutions: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM estimate_sessions WHERE expires_at <= ?`, now.UTC()); err != nil {
		return fmt.Errorf("purge expired sessions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO estimate_sessions (id, query, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.Query, string(payload), sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, payload, created_at, expires_at
		FROM estimate_sessions
		WHERE id = ?
	`, id)

	var sess Session
	var query sql.NullString
	var payload string
	err := row.Scan(&sess.ID, &query, &payload, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("%w: %s expired", ErrSessionNotFound, id)
	}

	if query.Valid {
		sess.Query = query.String
	}
	if err := json.Unmarshal([]byte(payload), &sess.Solutions); err != nil {
		return nil, fmt.Errorf("unmarshal solutions: %w", err)
	}
	return &sess, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM estimate_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
