package index

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akhaire21/marktools/internal/catalog/catalogtest"
	"github.com/akhaire21/marktools/internal/embed"
)

var (
	_ Replacer = (*MemoryIndex)(nil)
	_ Replacer = (*SQLiteIndex)(nil)
	_ Replacer = (*PostgresIndex)(nil)
)

type testIndex interface {
	Index
	Writer
}

func buildIndexes(t *testing.T) map[string]testIndex {
	t.Helper()
	ctx := context.Background()

	sqliteIdx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"), DefaultVectorWeight)
	require.NoError(t, err)
	t.Cleanup(func() { sqliteIdx.Close() })

	indexes := map[string]testIndex{
		"memory": NewMemoryIndex(DefaultVectorWeight),
		"sqlite": sqliteIdx,
	}
	for _, idx := range indexes {
		require.NoError(t, Build(ctx, idx, catalogtest.New(), embed.NewHashEmbedder(256), nil))
	}
	return indexes
}

func queryFor(t *testing.T, s string) Query {
	t.Helper()
	vec, err := embed.EmbedOne(context.Background(), embed.NewHashEmbedder(256), s)
	require.NoError(t, err)
	return Query{Text: s, Embedding: vec, TopK: 5}
}

func TestSearchWorkflows_BestMatchFirst(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchWorkflows(context.Background(),
				queryFor(t, "File Ohio 2024 taxes with W2 and itemized deductions"))
			require.NoError(t, err)
			require.NotEmpty(t, hits)

			assert.Equal(t, "ohio_w2_itemized_2024", hits[0].WorkflowID)
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
			}
		})
	}
}

func TestSearchWorkflows_TaskTypeFilter(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			q := queryFor(t, "Ohio state taxes")
			q.TaskType = "travel_planning"

			hits, err := idx.SearchWorkflows(context.Background(), q)
			require.NoError(t, err)
			for _, h := range hits {
				assert.Equal(t, "tokyo_trip_7day", h.WorkflowID)
			}

			q.TaskType = "general"
			hits, err = idx.SearchWorkflows(context.Background(), q)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, "ohio_w2_itemized_2024", hits[0].WorkflowID)
		})
	}
}

func TestSearchWorkflows_KeywordOnly(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchWorkflows(context.Background(), Query{Text: "tokyo itinerary", TopK: 5})
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "tokyo_trip_7day", hits[0].WorkflowID)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
		})
	}
}

func TestSearchWorkflows_TopK(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			q := queryFor(t, "2024 tax filing with itemized deductions")
			q.TopK = 1
			hits, err := idx.SearchWorkflows(context.Background(), q)
			require.NoError(t, err)
			assert.Len(t, hits, 1)
		})
	}
}

func TestSearchWorkflows_Deterministic(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			q := queryFor(t, "plan a trip and file taxes")
			first, err := idx.SearchWorkflows(context.Background(), q)
			require.NoError(t, err)
			second, err := idx.SearchWorkflows(context.Background(), q)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestSearchNodes_ScopedToWorkflow(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			hits, err := idx.SearchNodes(context.Background(), "ohio_w2_itemized_2024",
				queryFor(t, "itemize deductions on schedule A"))
			require.NoError(t, err)
			require.NotEmpty(t, hits)

			assert.Equal(t, "ohio_w2_itemized_2024#step2", hits[0].NodeID)
			for _, h := range hits {
				assert.Equal(t, "ohio_w2_itemized_2024", h.WorkflowID)
			}

			none, err := idx.SearchNodes(context.Background(), "missing_workflow", queryFor(t, "anything"))
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestBuild_DoesNotMutateCatalog(t *testing.T) {
	cat := catalogtest.New()
	require.NoError(t, Build(context.Background(), NewMemoryIndex(0.7), cat, embed.NewHashEmbedder(32), nil))

	for _, wf := range cat.All() {
		assert.Nil(t, wf.Embedding, "workflow %s was mutated", wf.WorkflowID)
	}
}

func TestBuild_RebuildNeverExposesPartialIndex(t *testing.T) {
	for name, idx := range buildIndexes(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			done := make(chan struct{})
			var empty atomic.Int32
			var searches atomic.Int32

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					hits, err := idx.SearchWorkflows(ctx, Query{Text: "csv json", TopK: 3})
					searches.Add(1)
					if err != nil || len(hits) == 0 {
						empty.Add(1)
					}
					select {
					case <-done:
						return
					default:
					}
				}
			}()

			for i := 0; i < 10; i++ {
				require.NoError(t, Build(ctx, idx, catalogtest.New(), nil, nil))
			}
			close(done)
			wg.Wait()

			assert.Positive(t, searches.Load())
			assert.Zero(t, empty.Load(), "a search saw an empty or failing index during rebuild")
		})
	}
}

func TestSQLiteIndex_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := NewSQLiteIndex(path, DefaultVectorWeight)
	require.NoError(t, err)
	require.NoError(t, Build(ctx, idx, catalogtest.New(), nil, nil))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteIndex(path, DefaultVectorWeight)
	require.NoError(t, err)
	defer reopened.Close()

	hits, err := reopened.SearchWorkflows(ctx, Query{Text: "csv json", TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "csv_to_json_parser", hits[0].WorkflowID)
}

func TestSQLiteIndex_ClosedIsUnavailable(t *testing.T) {
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"), DefaultVectorWeight)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.SearchWorkflows(context.Background(), Query{Text: "ohio", TopK: 3})
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestFuse(t *testing.T) {
	cands := []candidate{
		{id: "a", workflowID: "a", position: 0, cosine: 0.9, keyword: 0},
		{id: "b", workflowID: "b", position: 1, cosine: 0.9, keyword: 0},
		{id: "c", workflowID: "c", position: 2, cosine: 0.5, keyword: 4},
		{id: "d", workflowID: "d", position: 3, cosine: 0.05, keyword: 0},
	}

	out := fuse(cands, true, 0.7, 0)
	require.Len(t, out, 3, "d has neither keyword nor semantic signal")

	assert.Equal(t, "c", out[0].id)
	assert.InDelta(t, 0.7*0.75+0.3, out[0].score, 1e-9)
	assert.Equal(t, "a", out[1].id, "ties keep catalog order")
	assert.Equal(t, "b", out[2].id)
	assert.InDelta(t, 0.7*0.95, out[1].score, 1e-9)
}
