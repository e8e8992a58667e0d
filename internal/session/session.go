// Package session caches estimated solutions until they are bought.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akhaire21/marktools/pkg/models"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSolutionNotFound is returned when a session has no solution with
	// the requested ID.
	ErrSolutionNotFound = errors.New("solution not found")
)

// DefaultTTL is how long a session stays buyable.
const DefaultTTL = time.Hour

// Solution is one priced plan offered by an estimate.
type Solution struct {
	SolutionID          string               `json:"solution_id"`
	FromScratchEstimate int                  `json:"from_scratch_estimate"`
	DAG                 *models.ExecutionDAG `json:"dag"`
}

// Session is the cached result of one estimate.
type Session struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Solutions []Solution `json:"solutions"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Solution returns the solution with the given ID.
func (s *Session) Solution(id string) (*Solution, error) {
	for i := range s.Solutions {
		if s.Solutions[i].SolutionID == id {
			return &s.Solutions[i], nil
		}
	}
	return nil, ErrSolutionNotFound
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists sessions between estimate and buy.
type Store interface {
	// Put saves sess, replacing any session with the same ID. A zero
	// ExpiresAt is filled in from the store's TTL.
	Put(ctx context.Context, sess *Session) error
	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete removes the session. Deleting an unknown ID returns
	// ErrSessionNotFound.
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewID returns a fresh session ID of the form session_<16 hex>.
func NewID() string {
	return "session_" + hexID(16)
}

// NewPurchaseID returns a fresh purchase ID of the form purchase_<8 hex>.
func NewPurchaseID() string {
	return "purchase_" + hexID(8)
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:n]
}
