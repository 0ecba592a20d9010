package temporal

import (
	"testing"
	"time"

	"github.com/semcore/engine/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToChunksProducesMessageAndDiffChunks(t *testing.T) {
	c := Commit{
		Hash:      "abc123",
		Author:    "Ada Lovelace",
		Email:     "ada@example.com",
		Timestamp: time.Now(),
		Message:   "fix: handle empty batch",
		Parents:   []string{"def456"},
		Files: []FileDiff{
			{Path: "a.go", Type: DiffModified, DiffText: "+ func Foo() {}\n"},
			{Path: "b.go", Type: DiffBinary},
			{Path: "c.go", OldPath: "old_c.go", Type: DiffRenamed},
		},
	}

	chunks := ToChunks(c)
	require.Len(t, chunks, 4)

	msg := chunks[0]
	assert.Equal(t, vectorstore.KindCommitMessage, msg.Kind)
	assert.Equal(t, c.Message, msg.Text)
	assert.Equal(t, c.Hash, msg.Meta.CommitHash)
	assert.NotEmpty(t, msg.Fingerprint)

	diffA := chunks[1]
	assert.Equal(t, vectorstore.KindCommitDiff, diffA.Kind)
	assert.Equal(t, "a.go", diffA.Path)
	assert.Equal(t, DiffModified, diffA.Meta.DiffType)
	assert.NotEmpty(t, diffA.Text)

	diffBinary := chunks[2]
	assert.Equal(t, DiffBinary, diffBinary.Meta.DiffType)
	assert.Empty(t, diffBinary.Text)

	diffRenamed := chunks[3]
	assert.Equal(t, DiffRenamed, diffRenamed.Meta.DiffType)
	assert.Equal(t, "old_c.go", diffRenamed.Meta.OldPath)
}

func TestToChunksMessagePathsAreDistinctPerCommit(t *testing.T) {
	c1 := Commit{Hash: "h1", Message: "same message"}
	c2 := Commit{Hash: "h2", Message: "same message"}

	chunks1 := ToChunks(c1)
	chunks2 := ToChunks(c2)

	// Same message text still yields distinct chunks because path embeds
	// the commit hash.
	assert.NotEqual(t, chunks1[0].Path, chunks2[0].Path)
}
