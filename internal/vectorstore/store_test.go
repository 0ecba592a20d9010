package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmbedding(seed float32) []float32 {
	v := make([]float32, 8)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func TestStore_UpsertAndHydrate(t *testing.T) {
	// Given: a fresh collection
	store, err := Open(t.TempDir(), 8, "test-model")
	require.NoError(t, err)

	rec := Record{
		ID:        "rec-1",
		Embedding: testEmbedding(1),
		Payload:   Payload{Path: "a.go", Kind: KindCode, Text: "package main"},
	}

	// When: I upsert it
	require.NoError(t, store.Upsert(rec))

	// Then: it's readable immediately, before finalise
	got, err := store.Hydrate("rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "package main", got.Payload.Text)
	assert.True(t, store.Contains("rec-1"))
	assert.Equal(t, 1, store.Count())
}

func TestStore_DimensionMismatchRejected(t *testing.T) {
	store, err := Open(t.TempDir(), 8, "test-model")
	require.NoError(t, err)

	err = store.Upsert(Record{ID: "bad", Embedding: []float32{1, 2, 3}})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 8, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Got)
}

func TestStore_UpdateMovesOldFileWhenPathChanges(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root, 8, "test-model")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(Record{ID: "rec-1", Embedding: testEmbedding(1), Payload: Payload{Path: "a.go"}}))
	firstPath := store.idMap["rec-1"]

	// When: re-upserting with a very different embedding (likely a new quantised path)
	require.NoError(t, store.Upsert(Record{ID: "rec-1", Embedding: testEmbedding(-50), Payload: Payload{Path: "a.go"}}))
	secondPath := store.idMap["rec-1"]

	assert.Equal(t, 1, store.Count(), "update must not create a duplicate entry")
	if firstPath != secondPath {
		_, err := readVectorFile(root, firstPath)
		assert.Error(t, err, "stale vector file should have been removed")
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	store, err := Open(t.TempDir(), 8, "test-model")
	require.NoError(t, err)

	require.NoError(t, store.Delete("never-existed"))

	require.NoError(t, store.Upsert(Record{ID: "rec-1", Embedding: testEmbedding(1)}))
	require.NoError(t, store.Delete("rec-1"))
	require.NoError(t, store.Delete("rec-1"))
	assert.Equal(t, 0, store.Count())
}

func TestStore_FinaliseRebuildsIDIndexAndPersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root, 8, "test-model")
	require.NoError(t, err)

	require.NoError(t, store.Upsert(Record{ID: "rec-1", Embedding: testEmbedding(1)}))
	require.NoError(t, store.Upsert(Record{ID: "rec-2", Embedding: testEmbedding(2)}))
	require.NoError(t, store.Delete("rec-1"))

	log := store.ChangeLog()
	assert.ElementsMatch(t, []string{"rec-1", "rec-2"}, append(append([]string{}, log.Added...), log.Deleted...))

	require.NoError(t, store.Finalise())
	assert.Empty(t, store.ChangeLog().Added)

	reopened, err := Open(root, 8, "test-model")
	require.NoError(t, err)
	assert.False(t, reopened.Contains("rec-1"))
	assert.True(t, reopened.Contains("rec-2"))
	assert.Equal(t, 1, reopened.Count())

	assert.FileExists(t, filepath.Join(root, collectionMetaFile))
	assert.FileExists(t, filepath.Join(root, idIndexFile))
}

func TestStore_TextResolvesFromPayloadWhenPresent(t *testing.T) {
	store, err := Open(t.TempDir(), 8, "test-model")
	require.NoError(t, err)

	rec := Record{ID: "rec-1", Embedding: testEmbedding(1), Payload: Payload{Text: "hello"}}
	require.NoError(t, store.Upsert(rec))

	got, err := store.Hydrate("rec-1")
	require.NoError(t, err)

	text, err := store.Text(got, "/nonexistent", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestStore_TextFallsBackToStaleErrorWhenBlobUnavailable(t *testing.T) {
	store, err := Open(t.TempDir(), 8, "test-model")
	require.NoError(t, err)

	rec := Record{ID: "rec-1", Embedding: testEmbedding(1), Payload: Payload{Path: "missing.go", BlobHash: "deadbeef"}}
	require.NoError(t, store.Upsert(rec))

	got, err := store.Hydrate("rec-1")
	require.NoError(t, err)

	_, err = store.Text(got, t.TempDir(), nil)
	require.Error(t, err)
}
