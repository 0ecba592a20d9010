package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

const (
	collectionMetaFile = "collection_meta.json"
	idIndexFile        = "id_index.bin"
)

// Store is a single collection's filesystem-backed vector record store,
// rooted at <project>/.index/<collection>/. Upsert and Delete are safe
// from multiple goroutines within one process; cross-process concurrent
// writers are not supported (callers serialise that with internal/lock).
type Store struct {
	root string

	mu        sync.Mutex
	meta      CollectionMeta
	idMap     map[string]string // id -> vector file path relative to root
	changeLog ChangeLog
}

// Open opens or creates the collection at root. dimensions and model
// describe the embedding space this collection holds; they're recorded in
// collection_meta.json and used to validate subsequent upserts.
func Open(root string, dimensions int, model string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create collection directory: %w", err)
	}

	meta, err := readCollectionMeta(filepath.Join(root, collectionMetaFile))
	if err != nil {
		return nil, err
	}
	if meta.SchemaVersion == 0 {
		now := time.Now().Unix()
		meta = CollectionMeta{
			SchemaVersion:  currentSchemaVersion,
			EmbeddingModel: model,
			Dimensions:     dimensions,
			CreatedAt:      now,
			ModifiedAt:     now,
		}
	}

	records, err := readIDIndex(filepath.Join(root, idIndexFile))
	if err != nil {
		return nil, fmt.Errorf("load id index: %w", err)
	}
	idMap := make(map[string]string, len(records))
	for _, r := range records {
		idMap[r.ID] = r.Path
	}

	return &Store{root: root, meta: meta, idMap: idMap}, nil
}

// Meta returns the collection's current descriptor.
func (s *Store) Meta() CollectionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// ChangeLog returns a copy of the pending session change log.
func (s *Store) ChangeLog() ChangeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChangeLog{
		Added:   append([]string(nil), s.changeLog.Added...),
		Updated: append([]string(nil), s.changeLog.Updated...),
		Deleted: append([]string(nil), s.changeLog.Deleted...),
	}
}

// Upsert writes rec's vector file atomically and records the mutation in
// the session change log. The id index and HNSW graph are not touched
// until Finalise.
func (s *Store) Upsert(rec Record) error {
	if len(rec.Embedding) != s.meta.Dimensions {
		return ErrDimensionMismatch{Expected: s.meta.Dimensions, Got: len(rec.Embedding)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	relPath := vectorRelPath(rec.ID, rec.Embedding)
	oldPath, existed := s.idMap[rec.ID]

	if err := writeVectorFile(s.root, relPath, rec); err != nil {
		return err
	}

	if existed && oldPath != relPath {
		if err := removeVectorFile(s.root, oldPath); err != nil {
			return err
		}
	}

	s.idMap[rec.ID] = relPath
	if existed {
		s.changeLog.Updated = append(s.changeLog.Updated, rec.ID)
	} else {
		s.changeLog.Added = append(s.changeLog.Added, rec.ID)
	}
	return nil
}

// Delete unlinks the vector file for id, if present, and records the
// mutation. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	relPath, existed := s.idMap[id]
	if !existed {
		return nil
	}

	if err := removeVectorFile(s.root, relPath); err != nil {
		return err
	}
	delete(s.idMap, id)
	// An id added or updated earlier in this session has no record left to
	// insert into the graph; only its deletion stays in the log.
	for _, list := range []*[]string{&s.changeLog.Added, &s.changeLog.Updated} {
		kept := (*list)[:0]
		for _, v := range *list {
			if v != id {
				kept = append(kept, v)
			}
		}
		*list = kept
	}
	s.changeLog.Deleted = append(s.changeLog.Deleted, id)
	return nil
}

// Finalise rebuilds the id index from the current in-memory id set,
// refreshes collection_meta.json, and clears the session change log. It
// must be called after any batch of upserts/deletes before the collection
// is considered consistent and readable by other sessions.
func (s *Store) Finalise() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]idRecord, 0, len(s.idMap))
	for id, path := range s.idMap {
		records = append(records, idRecord{ID: id, Path: path})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	if err := writeIDIndex(filepath.Join(s.root, idIndexFile), records); err != nil {
		return fmt.Errorf("finalise id index: %w", err)
	}

	s.meta.ModifiedAt = time.Now().Unix()
	if err := writeCollectionMeta(filepath.Join(s.root, collectionMetaFile), s.meta); err != nil {
		return fmt.Errorf("finalise collection meta: %w", err)
	}

	s.changeLog.reset()
	return nil
}

// Hydrate reads one vector record by id. The payload's Text field may be
// empty for clean git files; use Text to resolve chunk content in that
// case.
func (s *Store) Hydrate(id string) (Record, error) {
	s.mu.Lock()
	relPath, ok := s.idMap[id]
	s.mu.Unlock()

	if !ok {
		return Record{}, fmt.Errorf("vectorstore: no record for id %s", id)
	}
	return readVectorFile(s.root, relPath)
}

// Text resolves rec's chunk content, following the three-tier clean-file
// lookup when the payload carries only a blob hash.
func (s *Store) Text(rec Record, projectRoot string, blobs BlobSource) (string, error) {
	return resolveContent(projectRoot, rec.Payload, blobs)
}

// AllIDs returns every id currently tracked by the store, including
// not-yet-finalised upserts from this session.
func (s *Store) AllIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether id is currently tracked.
func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.idMap[id]
	return ok
}

// Count returns the number of tracked vectors.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idMap)
}

func readCollectionMeta(path string) (CollectionMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return CollectionMeta{}, nil
		}
		return CollectionMeta{}, fmt.Errorf("read collection meta: %w", err)
	}
	var meta CollectionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return CollectionMeta{}, fmt.Errorf("decode collection meta: %w", err)
	}
	return meta, nil
}

func writeCollectionMeta(path string, meta CollectionMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection meta: %w", err)
	}
	return renameio.WriteFile(path, data, 0o644)
}
