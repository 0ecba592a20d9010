// Package vectorstore is the filesystem-backed vector record store: one
// JSON file per embedded chunk, grouped into a quantised directory tree,
// with a packed binary id index and an HNSW graph snapshot layered on top
// by the hnswengine package. It never talks to an embedding provider or a
// git repository directly — callers supply embeddings and, for stale-record
// recovery, a BlobSource.
package vectorstore

import "fmt"

// Kind tags what a vector record embeds.
type Kind string

const (
	KindCode          Kind = "code"
	KindCommitMessage Kind = "commit_message"
	KindCommitDiff    Kind = "commit_diff"
)

// Payload is a vector record's metadata, persisted alongside its embedding.
type Payload struct {
	Path        string `json:"path"`
	ChunkIndex  int    `json:"chunk_index"`
	ByteStart   int    `json:"byte_start"`
	ByteEnd     int    `json:"byte_end"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	Language    string `json:"language"`
	Kind        Kind   `json:"kind"`
	Fingerprint string `json:"fingerprint"`

	// BlobHash is set for a git-tracked, clean file; Text is empty in that
	// case and reconstructed on demand via Store.Text's 3-tier lookup.
	BlobHash string `json:"blob_hash,omitempty"`

	// Text holds the chunk text directly for dirty or non-git files.
	Text string `json:"text,omitempty"`

	// Temporal-only fields, set for KindCommitMessage/KindCommitDiff
	// records and empty for KindCode. CommitTimestamp is Unix seconds
	// (UTC) rather than time.Time so vector files stay plain JSON.
	CommitHash      string `json:"commit_hash,omitempty"`
	CommitAuthor    string `json:"commit_author,omitempty"`
	CommitEmail     string `json:"commit_email,omitempty"`
	CommitTimestamp int64  `json:"commit_timestamp,omitempty"`
	DiffType        string `json:"diff_type,omitempty"`
}

// Record is a vector and its payload, the unit Upsert/Hydrate operate on.
type Record struct {
	ID        string
	Embedding []float32
	Payload   Payload
}

// CollectionMeta is the small descriptor written to collection_meta.json.
type CollectionMeta struct {
	SchemaVersion  int    `json:"schema_version"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	CreatedAt      int64  `json:"created_at"`
	ModifiedAt     int64  `json:"modified_at"`
	Stale          bool   `json:"stale"`
}

const currentSchemaVersion = 1

// ChangeLog tracks one indexing session's mutations, consumed by the HNSW
// engine to decide between an incremental update and a full rebuild.
type ChangeLog struct {
	Added   []string
	Updated []string
	Deleted []string
}

func (c *ChangeLog) reset() {
	c.Added = nil
	c.Updated = nil
	c.Deleted = nil
}

// ErrDimensionMismatch reports that a vector's dimensionality doesn't match
// the collection's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorstore: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
