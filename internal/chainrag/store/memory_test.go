package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	err := s.Upsert(context.Background(), []Chunk{
		{ID: "refund#0", Source: "refund.md", Text: "Refunds are issued within 30 days.", Embedding: []float32{1, 0, 0}},
		{ID: "refund#1", Source: "refund.md", Text: "Contact support to start a refund.", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "shipping#0", Source: "shipping.md", Text: "Orders ship in two days.", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
}

func TestMemoryStore_SearchOrdersBySimilarity(t *testing.T) {
	s := NewMemoryStore("docs", 3)
	seed(t, s)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "refund#0", got[0].ID)
	assert.Equal(t, "refund#1", got[1].ID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.Nil(t, got[0].Embedding)
}

func TestMemoryStore_SearchTiesBreakByID(t *testing.T) {
	s := NewMemoryStore("docs", 2)
	require.NoError(t, s.Upsert(context.Background(), []Chunk{
		{ID: "b", Embedding: []float32{1, 0}},
		{ID: "a", Embedding: []float32{1, 0}},
	}))

	got, err := s.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got[0].ID, got[1].ID})
}

func TestMemoryStore_EmptyCollection(t *testing.T) {
	s := NewMemoryStore("docs", 3)
	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s := NewMemoryStore("docs", 3)

	_, err := s.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = s.Upsert(context.Background(), []Chunk{{ID: "x", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_UpsertReplacesAndDeleteSource(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("docs", 3)
	seed(t, s)

	require.NoError(t, s.Upsert(ctx, []Chunk{{ID: "refund#0", Source: "refund.md", Text: "updated", Embedding: []float32{1, 0, 0}}}))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, s.DeleteSource(ctx, "refund.md"))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore("docs", 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
