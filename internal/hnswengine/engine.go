// Package hnswengine builds and maintains an in-memory HNSW graph layered
// over a vector store collection's snapshot. It never holds a
// back-reference to the store: callers (the orchestrator) hand it a
// VectorSource snapshot iterator for a full build, or a ChangeLog plus the
// same iterator for an incremental update.
//
// Deletion is soft: a RoaringBitmap marks labels removed without touching
// graph connectivity, deferring structural repair to a future full
// rebuild. coder/hnsw's own Delete is not used here — deleting the last
// node in that library can corrupt the graph.
package hnswengine

import (
	"fmt"
	"sort"
	"sync"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/coder/hnsw"

	"github.com/semcore/engine/internal/vectorstore"
)

// Params fixes the graph's build/query parameters.
type Params struct {
	// M is the max number of bidirectional links per node.
	M int

	// EfConstruction is recorded and persisted alongside the graph;
	// coder/hnsw does not expose a separate construction-time search
	// width, so it has no direct effect on the underlying library.
	EfConstruction int

	// EfSearch is ef_query, the candidate-list width used during search.
	EfSearch int
}

// DefaultParams returns the engine's fixed parameters: M=16,
// ef_construction=200, ef_query=50, cosine distance.
func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 50}
}

// VectorSource supplies the ordered id set and embeddings a build or
// incremental update needs, without exposing any other store internals.
type VectorSource interface {
	AllIDs() []string
	Hydrate(id string) (vectorstore.Record, error)
}

// Engine is a single collection's HNSW graph: labels, a label<->id map, and
// a soft-delete bitset. It holds no reference to the vector store.
type Engine struct {
	mu        sync.RWMutex
	params    Params
	graph     *hnsw.Graph[uint32]
	labelOf   map[string]uint32
	idOf      map[uint32]string
	deleted   *roaring.Bitmap
	nextLabel uint32
}

// New constructs an empty graph with params.
func New(params Params) *Engine {
	return &Engine{
		params:  params,
		graph:   newGraph(params),
		labelOf: map[string]uint32{},
		idOf:    map[uint32]string{},
		deleted: roaring.New(),
	}
}

func newGraph(params Params) *hnsw.Graph[uint32] {
	g := hnsw.NewGraph[uint32]()
	g.Distance = hnsw.CosineDistance
	if params.M > 0 {
		g.M = params.M
	}
	if params.EfSearch > 0 {
		g.EfSearch = params.EfSearch
	}
	return g
}

// Params returns the engine's build/query parameters.
func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// Len returns the number of live (non-soft-deleted) vectors.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.labelOf)
}

// FullBuild discards the current graph and rebuilds it from scratch,
// inserting every id from src in deterministic (sorted) order and
// assigning fresh sequential labels. Used when no prior graph exists, the
// embedding model/dimensionality changed, churn exceeded the configured
// threshold, or the caller requested a clear.
func (e *Engine) FullBuild(src VectorSource) error {
	ids := append([]string(nil), src.AllIDs()...)
	sort.Strings(ids)

	g := newGraph(e.params)
	labelOf := make(map[string]uint32, len(ids))
	idOf := make(map[uint32]string, len(ids))

	var label uint32
	for _, id := range ids {
		rec, err := src.Hydrate(id)
		if err != nil {
			return fmt.Errorf("hnswengine: hydrate %s for full build: %w", id, err)
		}
		g.Add(hnsw.MakeNode(label, rec.Embedding))
		labelOf[id] = label
		idOf[label] = id
		label++
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = g
	e.labelOf = labelOf
	e.idOf = idOf
	e.deleted = roaring.New()
	e.nextLabel = label
	return nil
}

// ApplyChangeLog performs an incremental update over the current graph:
// each Deleted id's label is soft-deleted; each Updated id's old label is
// soft-deleted and a new node inserted; each Added id gets a fresh node.
// Graph connectivity is not otherwise touched.
func (e *Engine) ApplyChangeLog(cl vectorstore.ChangeLog, src VectorSource) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range cl.Deleted {
		e.softDeleteLocked(id)
	}
	for _, id := range cl.Updated {
		e.softDeleteLocked(id)
	}

	toInsert := make([]string, 0, len(cl.Added)+len(cl.Updated))
	toInsert = append(toInsert, cl.Added...)
	toInsert = append(toInsert, cl.Updated...)
	sort.Strings(toInsert)

	for _, id := range toInsert {
		rec, err := src.Hydrate(id)
		if err != nil {
			return fmt.Errorf("hnswengine: hydrate %s for incremental insert: %w", id, err)
		}
		label := e.nextLabel
		e.nextLabel++
		e.graph.Add(hnsw.MakeNode(label, rec.Embedding))
		e.labelOf[id] = label
		e.idOf[label] = id
	}
	return nil
}

func (e *Engine) softDeleteLocked(id string) {
	label, ok := e.labelOf[id]
	if !ok {
		return
	}
	e.deleted.Add(label)
	delete(e.labelOf, id)
}

// ChurnFraction is deleted-label-count / total-graph-node-count, the ratio
// the orchestrator compares against HNSWConfig.RebuildChurnFraction to
// decide whether finalise() must force a full rebuild.
func (e *Engine) ChurnFraction() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	total := e.graph.Len()
	if total == 0 {
		return 0
	}
	return float64(e.deleted.GetCardinality()) / float64(total)
}

// Result is one hit from Search: the vector's stable id and its cosine
// distance to the query (lower is closer).
type Result struct {
	ID       string
	Distance float32
}

// Search runs a top-k cosine search at ef_query width, filtering
// soft-deleted labels out of the result. It over-fetches 2k candidates
// from the underlying graph so that recently soft-deleted nodes near the
// query don't starve the caller of k results; query.Executor likewise
// keeps the probe width from narrowing below twice the caller's limit
// before filters run.
func (e *Engine) Search(query []float32, k int) []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.graph.Len() == 0 || k <= 0 {
		return nil
	}

	fetch := k * 2
	if fetch < k {
		fetch = k
	}
	candidates := e.graph.Search(query, fetch)

	results := make([]Result, 0, k)
	for _, n := range candidates {
		if e.deleted.Contains(n.Key) {
			continue
		}
		id, ok := e.idOf[n.Key]
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Distance: e.graph.Distance(query, n.Value)})
		if len(results) == k {
			break
		}
	}
	return results
}
