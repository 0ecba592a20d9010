package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// vectorFile is a vector record's on-disk JSON shape.
type vectorFile struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Payload   Payload   `json:"payload"`
}

// vectorRelPath computes a record's quantised path, relative to the
// collection root.
func vectorRelPath(id string, embedding []float32) string {
	segs := QuantisePath(embedding)
	return filepath.Join("vectors", segs[0], segs[1], segs[2], segs[3], "vector_"+id+".json")
}

// writeVectorFile atomically writes rec's JSON document to root/relPath.
func writeVectorFile(root, relPath string, rec Record) error {
	absPath := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("create vector directory: %w", err)
	}

	data, err := json.Marshal(vectorFile{ID: rec.ID, Embedding: rec.Embedding, Payload: rec.Payload})
	if err != nil {
		return fmt.Errorf("marshal vector record %s: %w", rec.ID, err)
	}

	if err := renameio.WriteFile(absPath, data, 0o644); err != nil {
		return fmt.Errorf("write vector file %s: %w", rec.ID, err)
	}
	return nil
}

// readVectorFile reads and decodes the vector file at root/relPath.
func readVectorFile(root, relPath string) (Record, error) {
	absPath := filepath.Join(root, relPath)
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Record{}, fmt.Errorf("read vector file: %w", err)
	}

	var vf vectorFile
	if err := json.Unmarshal(data, &vf); err != nil {
		renamed := absPath + ".corrupt"
		_ = os.Rename(absPath, renamed)
		return Record{}, fmt.Errorf("decode vector file %s (quarantined as %s): %w", absPath, renamed, err)
	}
	return Record{ID: vf.ID, Embedding: vf.Embedding, Payload: vf.Payload}, nil
}

// removeVectorFile unlinks the vector file at root/relPath. A missing file
// is not an error: Delete is idempotent.
func removeVectorFile(root, relPath string) error {
	absPath := filepath.Join(root, relPath)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vector file: %w", err)
	}
	return nil
}
