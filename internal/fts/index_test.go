package fts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "fts_index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestTokenizeCodeSplitsIdentifiers(t *testing.T) {
	tokens := TokenizeCode("func getUserById(ctx context.Context) {")
	assert.Contains(t, tokens, "get")
	assert.Contains(t, tokens, "user")
	assert.Contains(t, tokens, "by")
	assert.Contains(t, tokens, "id")
	assert.Contains(t, tokens, "ctx")
}

func TestIndexAndExactQuery(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.IndexFile(Document{
		Path: "auth/login.py", Language: "python",
		Text: "def authenticate_user(request):\n    return True\n",
	}))
	require.NoError(t, idx.IndexFile(Document{
		Path: "tests/test_login.py", Language: "python",
		Text: "def test_authenticate_user():\n    pass\n",
	}))

	hits, err := idx.QueryExact("authenticate", Options{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestDeleteFileRemovesDocument(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.IndexFile(Document{Path: "a.go", Text: "package main"}))

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, idx.DeleteFile("a.go"))
	count, err = idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestTokenRegexMatchesTokensNotLines(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.IndexFile(Document{
		Path: "handler.go",
		Text: "// TODO: refactor this\nfunc def() {}\n",
	}))

	hits, err := idx.QueryTokenRegex("TODO", Options{CaseSensitive: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// A pattern shaped for whole-line matching never matches because the
	// regex runs against single tokens, not raw text.
	hits, err = idx.QueryTokenRegex(`def\s+\w+`, Options{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFuzzyQueryToleratesTypos(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.IndexFile(Document{Path: "a.py", Text: "def authentication(): pass"}))

	hits, err := idx.QueryFuzzy("authentification", Options{FuzzyEditDistance: 2, Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestCaseSensitiveQueryDistinguishesCase(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.IndexFile(Document{Path: "a.go", Text: "const MaxRetries = 3"}))

	hits, err := idx.QueryExact("MaxRetries", Options{CaseSensitive: true, Limit: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	hits, err = idx.QueryExact("maxretries", Options{CaseSensitive: true, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
