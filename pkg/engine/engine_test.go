package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semcore/engine/internal/config"
	"github.com/semcore/engine/internal/query"
)

func testConfig() config.Config {
	return config.Config{
		Embedding: config.EmbeddingConfig{Provider: "static"},
	}
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestEngine_IndexThenQueryEndToEnd(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "auth.go", "package auth\n\nfunc AuthenticateUser(name, password string) bool { return false }\n")
	writeFile(t, root, "store.py", "def save_record(record):\n    pass\n")

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer e.Close()

	result, err := e.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesScanned)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.NotZero(t, result.ChunksWritten)
	assert.Empty(t, result.Errors)

	resp, err := e.Query(ctx, query.Request{
		Mode: query.ModeSemantic, QueryText: "authenticate user password", Limit: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}

	resp, err = e.Query(ctx, query.Request{
		Mode: query.ModeFTS, QueryText: "authenticate", Limit: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "auth.go", resp.Results[0].Path)
}

func TestEngine_SecondOpenFailsWhileLockHeld(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = Open(ctx, root, testConfig())
	assert.Error(t, err, "a second writer must not acquire the project lock")
}

func TestEngine_ReopenServesQueriesWithoutReindexing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc ParseConfig() {}\n")

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	_, err = e.Index(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer reopened.Close()

	resp, err := reopened.Query(ctx, query.Request{
		Mode: query.ModeSemantic, QueryText: "parse config", Limit: 5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results, "a reopened engine should serve queries from rehydrated state")
}

func TestEngine_ReIndexSkipsUnchangedAndReplacesChanged(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")
	writeFile(t, root, "c.go", "package c\n")

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Index(ctx)
	require.NoError(t, err)

	writeFile(t, root, "b.go", "package b\n\nfunc AppendedLater() {}\n")

	result, err := e.ReIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesSkipped)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestEngine_GitProjectIndexesCommitHistory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	writeFile(t, root, "a.go", "package a\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Alice Smith", Email: "alice@example.com", When: time.Now()}
	_, err = wt.Commit("initial security fix", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer e.Close()

	result, err := e.Index(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	resp, err := e.Query(ctx, query.Request{
		Mode: query.ModeTemporal, QueryText: "security fix", Limit: 10, Author: "alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results, "the commit should be searchable in the temporal collection")
	for _, r := range resp.Results {
		assert.NotEmpty(t, r.CommitHash)
		assert.Contains(t, r.CommitAuthor, "Alice")
	}

	// Re-running the index must not re-ingest the same commit.
	before := e.temporalStore.Count()
	_, err = e.ReIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, e.temporalStore.Count())
}

func TestEngine_TemporalAndCodeCollectionsNeverMix(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	writeFile(t, root, "a.go", "package a\n\nfunc Login() {}\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Bob", Email: "bob@example.com", When: time.Now()}
	_, err = wt.Commit("add login", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	e, err := Open(ctx, root, testConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Index(ctx)
	require.NoError(t, err)

	code, err := e.Query(ctx, query.Request{Mode: query.ModeSemantic, QueryText: "login", Limit: 20})
	require.NoError(t, err)
	for _, r := range code.Results {
		assert.Equal(t, "code", r.Kind, "a non-temporal query must never return commit records")
	}

	temporal, err := e.Query(ctx, query.Request{Mode: query.ModeTemporal, QueryText: "login", Limit: 20})
	require.NoError(t, err)
	for _, r := range temporal.Results {
		assert.NotEqual(t, "code", r.Kind, "a temporal query must never return code records")
	}
}
