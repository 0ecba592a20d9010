// Package orchestrator decides, per file, whether to skip, re-embed, or
// delete, and drives full, incremental, reconcile, and watch indexing
// sessions across the chunker, embedding dispatcher, vector store, HNSW
// engine, and FTS engine.
package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// FileFingerprint is the per-file state the registry persists between
// indexing runs, so a later session can decide skip/re-embed/delete
// without re-reading and re-chunking every file.
type FileFingerprint struct {
	ModTime         time.Time `json:"mod_time"`
	Size            int64     `json:"size"`
	ContentHash     string    `json:"content_hash"`
	BlobHash        string    `json:"blob_hash,omitempty"`
	LastIndexedIDs  []string  `json:"last_indexed_ids"`
}

// Registry is the file fingerprint registry, persisted as a single JSON
// document at <IndexDir>/fingerprints.json.
type Registry struct {
	path string

	mu      sync.Mutex
	entries map[string]FileFingerprint
}

// OpenRegistry loads the registry at path, or starts an empty one if the
// file doesn't exist yet.
func OpenRegistry(path string) (*Registry, error) {
	entries, err := readRegistry(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, entries: entries}, nil
}

func readRegistry(path string) (map[string]FileFingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]FileFingerprint{}, nil
		}
		return nil, fmt.Errorf("orchestrator: read fingerprint registry: %w", err)
	}
	var entries map[string]FileFingerprint
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("orchestrator: decode fingerprint registry: %w", err)
	}
	return entries, nil
}

// Get returns the recorded fingerprint for path, if any.
func (r *Registry) Get(path string) (FileFingerprint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.entries[path]
	return fp, ok
}

// Set records fp as path's current fingerprint.
func (r *Registry) Set(path string, fp FileFingerprint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[path] = fp
}

// Delete removes path's fingerprint, e.g. after the file is unlinked.
func (r *Registry) Delete(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, path)
}

// Paths returns every path currently tracked by the registry.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.entries))
	for p := range r.entries {
		paths = append(paths, p)
	}
	return paths
}

// Save atomically persists the registry to disk.
func (r *Registry) Save() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.entries, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("orchestrator: marshal fingerprint registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: create index directory: %w", err)
	}
	if err := renameio.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("orchestrator: write fingerprint registry: %w", err)
	}
	return nil
}

// ContentHash is the registry's content-change fingerprint: SHA-256 of the
// raw file bytes, hex-encoded.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Unchanged reports whether candidate matches fp exactly: same size,
// mtime, content hash, and git blob hash, so a file whose HEAD blob
// drifted is re-embedded even when its bytes did not change.
func (fp FileFingerprint) Unchanged(candidate FileFingerprint) bool {
	return fp.Size == candidate.Size &&
		fp.ModTime.Equal(candidate.ModTime) &&
		fp.ContentHash == candidate.ContentHash &&
		fp.BlobHash == candidate.BlobHash
}
