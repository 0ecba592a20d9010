package temporal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/semcore/engine/internal/vectorstore"
)

// Metadata is the commit-derived context attached to a temporal chunk,
// beyond what vectorstore.Payload already carries.
type Metadata struct {
	CommitHash string
	Author     string
	Email      string
	Timestamp  time.Time
	Parents    []string
	DiffType   DiffType // zero value for Kind == KindCommitMessage
	OldPath    string   // set only for DiffRenamed
}

// Chunk is one embeddable unit produced from a commit: either its message
// or one file's diff. Unlike code chunks, these are never split further —
// the full message and full diff text are stored as a single chunk each.
type Chunk struct {
	Kind        vectorstore.Kind
	Path        string // synthetic for commit_message, the touched file's path for commit_diff
	Text        string
	Fingerprint string
	Meta        Metadata
}

// ToChunks expands a walked commit into its commit_message chunk and one
// commit_diff chunk per non-binary touched file. Binary and rename-only
// diffs produce metadata-only chunks with empty Text.
func ToChunks(c Commit) []Chunk {
	chunks := make([]Chunk, 0, 1+len(c.Files))

	msgPath := fmt.Sprintf(".git/commit-message/%s", c.Hash)
	chunks = append(chunks, Chunk{
		Kind:        vectorstore.KindCommitMessage,
		Path:        msgPath,
		Text:        c.Message,
		Fingerprint: fingerprint(c.Message),
		Meta: Metadata{
			CommitHash: c.Hash,
			Author:     c.Author,
			Email:      c.Email,
			Timestamp:  c.Timestamp,
			Parents:    c.Parents,
		},
	})

	for _, f := range c.Files {
		chunks = append(chunks, Chunk{
			Kind:        vectorstore.KindCommitDiff,
			Path:        f.Path,
			Text:        f.DiffText,
			Fingerprint: fingerprint(c.Hash + "|" + f.Path + "|" + f.DiffText),
			Meta: Metadata{
				CommitHash: c.Hash,
				Author:     c.Author,
				Email:      c.Email,
				Timestamp:  c.Timestamp,
				Parents:    c.Parents,
				DiffType:   f.Type,
				OldPath:    f.OldPath,
			},
		})
	}
	return chunks
}

func fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
