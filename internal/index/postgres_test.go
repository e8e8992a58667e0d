package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/akhaire21/marktools/internal/catalog/catalogtest"
	"github.com/akhaire21/marktools/internal/embed"
)

func TestPostgresIndex(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("marktools"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	idx, err := NewPostgresIndex(ctx, connStr, DefaultVectorWeight)
	require.NoError(t, err)
	defer idx.Close()

	embedder := embed.NewHashEmbedder(64)
	require.NoError(t, Build(ctx, idx, catalogtest.New(), embedder, nil))

	t.Run("workflow search", func(t *testing.T) {
		q := "File Ohio 2024 taxes with W2 and itemized deductions"
		vec, err := embed.EmbedOne(ctx, embedder, q)
		require.NoError(t, err)

		hits, err := idx.SearchWorkflows(ctx, Query{Text: q, Embedding: vec, TopK: 3})
		assert.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "ohio_w2_itemized_2024", hits[0].WorkflowID)
	})

	t.Run("keyword only", func(t *testing.T) {
		hits, err := idx.SearchWorkflows(ctx, Query{Text: "tokyo itinerary", TopK: 3})
		assert.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "tokyo_trip_7day", hits[0].WorkflowID)
	})

	t.Run("node search", func(t *testing.T) {
		q := "itemize deductions on schedule A"
		vec, err := embed.EmbedOne(ctx, embedder, q)
		require.NoError(t, err)

		hits, err := idx.SearchNodes(ctx, "ohio_w2_itemized_2024", Query{Text: q, Embedding: vec, TopK: 1})
		assert.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "ohio_w2_itemized_2024#step2", hits[0].NodeID)
	})

	t.Run("rebuild is idempotent", func(t *testing.T) {
		require.NoError(t, Build(ctx, idx, catalogtest.New(), embedder, nil))
		hits, err := idx.SearchWorkflows(ctx, Query{Text: "csv json", TopK: 10})
		assert.NoError(t, err)
		require.Len(t, hits, 1)
	})
}
