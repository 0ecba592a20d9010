package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semcore/engine/internal/config"
	"github.com/semcore/engine/internal/embed"
	"github.com/semcore/engine/internal/finder"
	"github.com/semcore/engine/internal/fts"
	"github.com/semcore/engine/internal/hnswengine"
	"github.com/semcore/engine/internal/vectorstore"
)

// fakeEmbedder returns a deterministic low-dimensional embedding derived
// from text length, enough to exercise the dispatcher/store/HNSW wiring
// without a real backend.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int             { return 4 }
func (fakeEmbedder) ModelName() string           { return "fake-test-model" }
func (fakeEmbedder) Available(_ context.Context) bool { return true }
func (fakeEmbedder) Close() error                { return nil }

func newTestOrchestrator(t *testing.T, root string) *Orchestrator {
	t.Helper()
	indexDir := filepath.Join(root, ".index")

	f, err := finder.New()
	require.NoError(t, err)

	store, err := vectorstore.Open(filepath.Join(indexDir, "code"), 4, "fake-test-model")
	require.NoError(t, err)

	ftsIdx, err := fts.Open(filepath.Join(indexDir, "fts.bleve"))
	require.NoError(t, err)

	registry, err := OpenRegistry(filepath.Join(indexDir, "fingerprints.json"))
	require.NoError(t, err)

	cfg := config.Config{}.WithDefaults()

	return New(Dependencies{
		ProjectRoot: root,
		Config:      cfg,
		Finder:      f,
		Dispatcher:  embed.NewDispatcher(fakeEmbedder{}),
		Store:       store,
		HNSW:        hnswengine.New(hnswengine.DefaultParams()),
		FTS:         ftsIdx,
		Registry:    registry,
	})
}

func TestFullIndexEmbedsAllDiscoveredFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n\nfunc A() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n\nfunc B() {}\n"), 0o644))

	o := newTestOrchestrator(t, root)
	result, err := o.FullIndex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesScanned)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Zero(t, result.FilesSkipped)
	assert.NotZero(t, result.ChunksWritten)
	assert.Empty(t, result.Errors)
}

func TestIncrementalIndexSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	o := newTestOrchestrator(t, root)
	_, err := o.FullIndex(context.Background())
	require.NoError(t, err)

	result, err := o.IncrementalIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesSkipped)
	assert.Zero(t, result.FilesIndexed)
}

func TestIncrementalIndexReembedsChangedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	o := newTestOrchestrator(t, root)
	_, err := o.FullIndex(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("package a\n\nfunc NowBigger() {}\n"), 0o644))

	result, err := o.IncrementalIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestReconcileDeletesVanishedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a\n"), 0o644))

	o := newTestOrchestrator(t, root)
	_, err := o.FullIndex(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, o.deps.Store.Count())

	require.NoError(t, os.Remove(path))

	result, err := o.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesDeleted)
	assert.Zero(t, o.deps.Store.Count())
}
