package session

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhaire21/marktools/pkg/models"
)

func sampleSession(id string) *Session {
	dag := models.NewExecutionDAG()
	dag.AddNode(&models.SubtaskNode{
		ID:           "subtask_0",
		Description:  "File Ohio taxes",
		Weight:       1,
		Workflow:     &models.Workflow{WorkflowID: "ohio", Title: "Ohio", DownloadCost: 200, ExecutionCost: 800},
		Confidence:   0.9,
		Dependencies: []string{},
		Children:     []string{},
	})
	dag.RootIDs = []string{"subtask_0"}
	dag.ExecutionOrder = []string{"subtask_0"}
	dag.Coverage = "1/1"
	dag.OverallConfidence = 0.9

	return &Session{
		ID:    id,
		Query: "File Ohio taxes",
		Solutions: []Solution{
			{SolutionID: "sol_1", FromScratchEstimate: 9000, DAG: dag},
		},
	}
}

func TestNewID(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^session_[0-9a-f]{16}$`), NewID())
	assert.Regexp(t, regexp.MustCompile(`^purchase_[0-9a-f]{8}$`), NewPurchaseID())
	assert.NotEqual(t, NewID(), NewID())
}

func TestSession_Solution(t *testing.T) {
	sess := sampleSession("s")

	sol, err := sess.Solution("sol_1")
	require.NoError(t, err)
	assert.Equal(t, 9000, sol.FromScratchEstimate)

	_, err = sess.Solution("sol_9")
	assert.ErrorIs(t, err, ErrSolutionNotFound)
}

func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Put(ctx, sampleSession("session_a")))

	got, err := store.Get(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, "File Ohio taxes", got.Query)
	require.Len(t, got.Solutions, 1)
	dag := got.Solutions[0].DAG
	assert.Equal(t, []string{"subtask_0"}, dag.ExecutionOrder)
	assert.Equal(t, 1000, dag.Pricing().TotalCost)
	assert.False(t, got.ExpiresAt.IsZero())

	require.NoError(t, store.Delete(ctx, "session_a"))
	_, err = store.Get(ctx, "session_a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "session_a"), ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(0))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), time.Hour)
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(context.Background(), sampleSession("old")))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, store.Len())
}

func TestSQLiteStore_Expiry(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Put(context.Background(), sampleSession("old")))

	now = now.Add(2 * time.Minute)
	_, err = store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	first, err := NewSQLiteStore(path, time.Hour)
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), sampleSession("session_b")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, time.Hour)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(context.Background(), "session_b")
	require.NoError(t, err)
	assert.Equal(t, "sol_1", got.Solutions[0].SolutionID)
}
