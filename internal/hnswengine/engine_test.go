package hnswengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semcore/engine/internal/vectorstore"
)

type fakeSource struct {
	records map[string]vectorstore.Record
}

func (f fakeSource) AllIDs() []string {
	ids := make([]string, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	return ids
}

func (f fakeSource) Hydrate(id string) (vectorstore.Record, error) {
	return f.records[id], nil
}

func vec(vals ...float32) []float32 { return vals }

func testSource() fakeSource {
	return fakeSource{records: map[string]vectorstore.Record{
		"a": {ID: "a", Embedding: vec(1, 0, 0, 0)},
		"b": {ID: "b", Embedding: vec(0, 1, 0, 0)},
		"c": {ID: "c", Embedding: vec(0, 0, 1, 0)},
	}}
}

func TestFullBuildAndSearch(t *testing.T) {
	e := New(DefaultParams())
	src := testSource()
	require.NoError(t, e.FullBuild(src))
	assert.Equal(t, 3, e.Len())

	results := e.Search(vec(1, 0, 0, 0), 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestApplyChangeLogSoftDeletesAndInserts(t *testing.T) {
	e := New(DefaultParams())
	src := testSource()
	require.NoError(t, e.FullBuild(src))

	src.records["d"] = vectorstore.Record{ID: "d", Embedding: vec(0, 0, 0, 1)}
	cl := vectorstore.ChangeLog{Added: []string{"d"}, Deleted: []string{"b"}}
	require.NoError(t, e.ApplyChangeLog(cl, src))

	assert.Equal(t, 3, e.Len())

	results := e.Search(vec(0, 1, 0, 0), 3)
	for _, r := range results {
		assert.NotEqual(t, "b", r.ID, "soft-deleted id must not appear in search results")
	}
}

func TestChurnFractionTriggersRebuildDecision(t *testing.T) {
	e := New(DefaultParams())
	src := testSource()
	require.NoError(t, e.FullBuild(src))

	require.NoError(t, e.ApplyChangeLog(vectorstore.ChangeLog{Deleted: []string{"a", "b"}}, src))
	assert.Greater(t, e.ChurnFraction(), 0.3)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hnsw_index.bin")

	e := New(DefaultParams())
	src := testSource()
	require.NoError(t, e.FullBuild(src))
	require.NoError(t, e.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, e.Len(), loaded.Len())

	results := loaded.Search(vec(1, 0, 0, 0), 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestLoadMissingFileReportsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
