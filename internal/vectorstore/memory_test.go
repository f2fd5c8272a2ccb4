package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateCollection(ctx, "docs", 4))
	require.NoError(t, s.CreateCollection(ctx, "docs", 4))

	err := s.CreateCollection(ctx, "docs", 8)
	require.Error(t, err)
}

func TestMemoryStore_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "chunks", 3))

	ids, err := s.InsertVectors(ctx, "chunks",
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]map[string]string{{"lang": "go"}, {"lang": "py"}, {"lang": "go"}})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	results, err := s.SearchSimilar(ctx, "chunks", []float32{1, 0, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestMemoryStore_SearchWithFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "chunks", 3))

	ids, err := s.InsertVectors(ctx, "chunks",
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}},
		[]map[string]string{{"lang": "go"}, {"lang": "py"}})
	require.NoError(t, err)

	results, err := s.SearchSimilar(ctx, "chunks", []float32{1, 0, 0}, 10, `{"lang":"py"}`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[1], results[0].ID)
}

func TestMemoryStore_DeleteAndGetVectorsByIDsNoOpOnEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "chunks", 2))

	require.NoError(t, s.DeleteVectors(ctx, "chunks", nil))
	recs, err := s.GetVectorsByIDs(ctx, "chunks", nil)
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestMemoryStore_DeleteVectorsRemovesFromResults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "chunks", 2))

	ids, err := s.InsertVectors(ctx, "chunks", [][]float32{{1, 0}, {0, 1}}, []map[string]string{{}, {}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteVectors(ctx, "chunks", []string{ids[0]}))

	recs, err := s.GetVectorsByIDs(ctx, "chunks", ids)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, ids[1], recs[0].ID)
}

func TestMemoryStore_SearchUnknownCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.SearchSimilar(ctx, "missing", []float32{1}, 1, "")
	require.Error(t, err)
}

func TestMemoryStore_ZeroLimitSearchReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "chunks", 2))
	_, err := s.InsertVectors(ctx, "chunks", [][]float32{{1, 0}}, []map[string]string{{}})
	require.NoError(t, err)

	results, err := s.SearchSimilar(ctx, "chunks", []float32{1, 0}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_ListCollectionsAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "a", 2))
	require.NoError(t, s.CreateCollection(ctx, "b", 2))

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = s.InsertVectors(ctx, "a", [][]float32{{1, 0}}, []map[string]string{{}})
	require.NoError(t, err)

	stats, err := s.GetStats(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorsCount)
	assert.Equal(t, 2, stats.Dimensions)
}

func TestMemoryStore_DeleteCollectionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateCollection(ctx, "a", 2))
	require.NoError(t, s.DeleteCollection(ctx, "a"))
	require.NoError(t, s.DeleteCollection(ctx, "a"))

	exists, err := s.CollectionExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}
