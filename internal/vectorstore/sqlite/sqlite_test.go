package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groundrag/internal/domain"
	"groundrag/internal/vectorstore"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "index.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"), false)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestOpenExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	built, err := Open(path, true)
	require.NoError(t, err)
	require.NoError(t, built.Upsert([]vectorstore.Record{{ID: "a", Text: "A", Vector: []float32{1, 0}}}))
	require.NoError(t, built.Close())

	store, err := Open(path, false)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Text)

	assert.Error(t, store.Upsert([]vectorstore.Record{{ID: "b", Text: "B", Vector: []float32{0, 1}}}), "existing indexes are opened query-only")
}

func TestOpenWithoutPassagesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Open(path, false)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "no passages table")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "opening must not write a schema")
}

func TestSimilaritySearch(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Upsert([]vectorstore.Record{
		{ID: "a", Text: "first tie", Metadata: map[string]*string{domain.MetadataSource: vectorstore.StringPtr("doc1")}, Vector: []float32{1, 0}},
		{ID: "b", Text: "orthogonal", Metadata: map[string]*string{domain.MetadataSource: nil}, Vector: []float32{0, 1}},
		{ID: "c", Text: "second tie", Vector: []float32{3, 0}},
	}))

	got, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first tie", "second tie", "orthogonal"}, []string{got[0].Text, got[1].Text, got[2].Text})
	assert.Equal(t, "doc1", got[0].Source())
	assert.Contains(t, got[2].Metadata, domain.MetadataSource)
	assert.Nil(t, got[2].Metadata[domain.MetadataSource])
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.InDelta(t, 0.5, got[2].Score, 1e-6, "orthogonal vectors sit mid-scale")
}

func TestUpsertKeepsPosition(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Upsert([]vectorstore.Record{
		{ID: "a", Text: "A", Vector: []float32{1, 0}},
		{ID: "b", Text: "B", Vector: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert([]vectorstore.Record{{ID: "a", Text: "A2", Vector: []float32{1, 0}}}))

	got, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A2", got[0].Text)
}

func TestSimilaritySearchDimensionMismatch(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Upsert([]vectorstore.Record{{ID: "a", Text: "A", Vector: []float32{1, 0, 0}}}))

	_, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestFloatRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
}
