package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/semcore/engine/internal/chunk"
	"github.com/semcore/engine/internal/config"
	"github.com/semcore/engine/internal/embed"
	engineerr "github.com/semcore/engine/internal/errors"
	"github.com/semcore/engine/internal/finder"
	"github.com/semcore/engine/internal/fts"
	"github.com/semcore/engine/internal/hnswengine"
	"github.com/semcore/engine/internal/vectorstore"
	"github.com/semcore/engine/internal/watcher"
)

// GitSource is the subset of a git repository the orchestrator needs to
// classify files as clean (blob-backed) or dirty (stored inline) and to
// detect branch/blob drift. internal/temporal.Repository implements it.
type GitSource interface {
	vectorstore.BlobSource
	HeadFiles() (map[string]string, error)
}

// BlobHasher computes the git blob hash git would assign to content.
// internal/temporal.HashObject implements this as a plain function; it is
// threaded through as a value so this package never imports temporal
// directly.
type BlobHasher func(content []byte) string

// Dependencies are the collaborators an Orchestrator drives. Git and
// HashBlob are nil/unset for non-git projects; every file is then treated
// as dirty (content stored inline).
type Dependencies struct {
	ProjectRoot string
	Config      config.Config

	FinderOptions  finder.Options
	WatchDebounce  time.Duration

	Finder     *finder.Finder
	Dispatcher *embed.Dispatcher
	Store      *vectorstore.Store
	HNSW       *hnswengine.Engine
	FTS        *fts.Index
	Registry   *Registry

	Git      GitSource
	HashBlob BlobHasher
}

// Result summarizes one indexing session.
type Result struct {
	FilesScanned  int
	FilesSkipped  int
	FilesIndexed  int
	FilesDeleted  int
	ChunksWritten int
	Errors        []error
	Duration      time.Duration
}

// Orchestrator decides, per file, skip/re-embed/delete, and drives a
// session end to end through the dispatcher, vector store, HNSW engine,
// and FTS index.
type Orchestrator struct {
	deps Dependencies

	// sessionMu serialises FullIndex/IncrementalIndex/Reconcile against
	// each other and against Watch's periodic re-index flushes, so a
	// background watch session never races a foreground one over the same
	// registry/store/FTS state. flushDue uses TryLock so a busy foreground
	// session just defers pending watch events to the next tick instead of
	// blocking the watch loop.
	sessionMu sync.Mutex
}

// New builds an Orchestrator over deps.
func New(deps Dependencies) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// FullIndex re-embeds every discovered file regardless of fingerprint
// state, then finalises the collection, HNSW graph, and FTS index.
func (o *Orchestrator) FullIndex(ctx context.Context) (Result, error) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	return o.runSessionLocked(ctx, true)
}

// IncrementalIndex re-embeds only files whose fingerprint changed since
// the last session, and deletes records for files no longer present.
func (o *Orchestrator) IncrementalIndex(ctx context.Context) (Result, error) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	return o.runSessionLocked(ctx, false)
}

// Reconcile forces a full disk walk, compares it against the fingerprint
// registry and (for git projects) blob-hash drift, deletes vanished
// files' vectors, rebuilds drifted ones, and finalises every backing
// store. A full HNSW rebuild is triggered if the soft-delete churn
// fraction exceeds the configured threshold.
func (o *Orchestrator) Reconcile(ctx context.Context) (Result, error) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()

	result, err := o.runSessionLocked(ctx, false)
	if err != nil {
		return result, err
	}

	if o.deps.HNSW.ChurnFraction() > o.deps.Config.HNSW.RebuildChurnFraction {
		if err := o.rebuildHNSW(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("rebuild hnsw after reconcile: %w", err))
		}
	}
	return result, nil
}

// frontEndWorkers returns W_vec+2, the size of the file-read/chunk pool
// that feeds the embedding dispatcher's back-end pool.
func (o *Orchestrator) frontEndWorkers() int {
	w := o.deps.Config.Dispatch.Workers
	if w <= 0 {
		w = embed.DefaultWorkers
	}
	return w + 2
}

// fileOutcome is one front-end worker's verdict on a single scanned file.
type fileOutcome struct {
	err     error
	skipped bool
	errs    []error
	items   []embed.DispatchItem
	chunks  []chunk.Chunk
}

// runSessionLocked is the shared core of Full/Incremental/Reconcile. The
// caller must hold sessionMu. It scans the project, fans file
// reading/fingerprinting/chunking out across a front-end pool of
// frontEndWorkers() goroutines (the producer side), streams the resulting
// chunks into the dispatcher's back-end embedding pool as they're ready
// (the consumer side), and folds results back into the vector store, FTS
// index, and fingerprint registry as they arrive.
func (o *Orchestrator) runSessionLocked(ctx context.Context, forceAll bool) (Result, error) {
	start := time.Now()
	var result Result

	opts := o.deps.FinderOptions
	opts.RootDir = o.deps.ProjectRoot
	files, err := o.deps.Finder.Scan(ctx, opts)
	if err != nil {
		return result, fmt.Errorf("orchestrator: scan: %w", err)
	}
	result.FilesScanned = len(files)

	var headFiles map[string]string
	if o.deps.Git != nil {
		headFiles, _ = o.deps.Git.HeadFiles()
	}

	seen := make(map[string]bool, len(files))
	for _, fi := range files {
		seen[fi.Path] = true
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := o.frontEndWorkers()
	fileCh := make(chan *finder.FileInfo)
	outCh := make(chan fileOutcome, workers*2)

	var frontEnd sync.WaitGroup
	for i := 0; i < workers; i++ {
		frontEnd.Add(1)
		go func() {
			defer frontEnd.Done()
			for fi := range fileCh {
				select {
				case <-sessionCtx.Done():
					outCh <- fileOutcome{err: sessionCtx.Err()}
					continue
				default:
				}
				outCh <- o.processFile(fi, headFiles, forceAll)
			}
		}()
	}
	go func() {
		defer close(outCh)
		frontEnd.Wait()
	}()
	go func() {
		defer close(fileCh)
		for _, fi := range files {
			select {
			case <-sessionCtx.Done():
				return
			case fileCh <- fi:
			}
		}
	}()

	itemCh := make(chan embed.DispatchItem, workers*4)
	resultCh := o.deps.Dispatcher.DispatchStream(sessionCtx, itemCh)

	// chunksByID is written by the feeding goroutine below and read by the
	// result-draining loop further down; both run concurrently, so a plain
	// map won't do. sync.Map is built for exactly this: disjoint keys,
	// each written once by one goroutine and read once by another.
	var chunksByID sync.Map

	// feedErrs/filesSkipped are local to this goroutine until feeding.Wait()
	// returns below, so merging them into result afterward needs no lock.
	var feedErrs []error
	var filesSkipped int

	var feeding sync.WaitGroup
	feeding.Add(1)
	go func() {
		defer feeding.Done()
		defer close(itemCh)
		for oc := range outCh {
			if oc.err != nil {
				feedErrs = append(feedErrs, oc.err)
				continue
			}
			if oc.skipped {
				filesSkipped++
				continue
			}
			feedErrs = append(feedErrs, oc.errs...)
			for i, it := range oc.items {
				chunksByID.Store(it.ID, oc.chunks[i])
				select {
				case <-sessionCtx.Done():
				case itemCh <- it:
				}
			}
		}
	}()

	idsByPath := map[string][]string{}
	var abortErr error
	for res := range resultCh {
		cv, _ := chunksByID.Load(res.ID)
		c, _ := cv.(chunk.Chunk)
		if res.Err != nil {
			wrapped := fmt.Errorf("embed %s#%d: %w", c.Path, c.Index, res.Err)
			result.Errors = append(result.Errors, wrapped)
			if abortErr == nil && engineerr.IsPermanent(res.Err) {
				// A permanent backend failure can't be worked around by
				// skipping this chunk: every remaining chunk would fail
				// the same way. Stop feeding new work and finish draining
				// in-flight results rather than finalising a partial,
				// silently-incomplete index.
				abortErr = fmt.Errorf("orchestrator: aborting after permanent backend error: %w", wrapped)
				cancel()
			}
			continue
		}
		rec := vectorstore.Record{
			ID:        res.ID,
			Embedding: res.Embedding,
			Payload: vectorstore.Payload{
				Path:        c.Path,
				ChunkIndex:  c.Index,
				ByteStart:   c.ByteStart,
				ByteEnd:     c.ByteEnd,
				LineStart:   c.LineStart,
				LineEnd:     c.LineEnd,
				Language:    c.Language,
				Kind:        vectorstore.KindCode,
				Fingerprint: c.Fingerprint,
				BlobHash:    c.BlobHash,
			},
		}
		if c.BlobHash == "" {
			rec.Payload.Text = c.Text
		}
		if err := o.deps.Store.Upsert(rec); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("upsert %s#%d: %w", c.Path, c.Index, err))
			continue
		}
		idsByPath[c.Path] = append(idsByPath[c.Path], res.ID)
		result.ChunksWritten++
	}
	feeding.Wait()

	result.Errors = append(result.Errors, feedErrs...)
	result.FilesSkipped += filesSkipped

	for path, ids := range idsByPath {
		fp, _ := o.deps.Registry.Get(path)
		fp.LastIndexedIDs = ids
		o.deps.Registry.Set(path, fp)
		result.FilesIndexed++
	}

	if abortErr != nil {
		result.Duration = time.Since(start)
		return result, abortErr
	}
	if ctx.Err() != nil {
		result.Errors = append(result.Errors, ctx.Err())
		result.Duration = time.Since(start)
		return result, ctx.Err()
	}

	// Deletion detection: anything the registry tracks but the scan didn't
	// see is gone from disk.
	for _, path := range o.deps.Registry.Paths() {
		if seen[path] {
			continue
		}
		existing, _ := o.deps.Registry.Get(path)
		for _, id := range existing.LastIndexedIDs {
			if err := o.deps.Store.Delete(id); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete vanished %s: %w", path, err))
			}
		}
		if err := o.deps.FTS.DeleteFile(path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("fts delete %s: %w", path, err))
		}
		o.deps.Registry.Delete(path)
		result.FilesDeleted++
	}

	if err := o.finalise(); err != nil {
		result.Errors = append(result.Errors, err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// processFile reads, fingerprints, and (if changed) chunks one file,
// indexing it into FTS and deleting its stale vector-store chunks
// immediately since those are keyed by path and safe to do from any
// front-end worker. It never touches shared per-session accumulators
// directly; its fileOutcome is folded in by runSessionLocked's single
// feeding goroutine.
func (o *Orchestrator) processFile(fi *finder.FileInfo, headFiles map[string]string, forceAll bool) fileOutcome {
	content, err := os.ReadFile(fi.AbsPath)
	if err != nil {
		return fileOutcome{err: fmt.Errorf("read %s: %w", fi.Path, err)}
	}

	headBlobHash := headFiles[fi.Path]
	effectiveBlobHash := ""
	if headBlobHash != "" && o.deps.HashBlob != nil && o.deps.HashBlob(content) == headBlobHash {
		effectiveBlobHash = headBlobHash
	}

	candidate := FileFingerprint{
		ModTime:     fi.ModTime,
		Size:        fi.Size,
		ContentHash: ContentHash(content),
		BlobHash:    effectiveBlobHash,
	}

	existing, tracked := o.deps.Registry.Get(fi.Path)
	if !forceAll && tracked && existing.Unchanged(candidate) {
		return fileOutcome{skipped: true}
	}

	cfg := chunk.Config{
		Size:            o.deps.Config.Chunking.ChunkSizeFor(o.deps.Config.Embedding.Model),
		OverlapFraction: o.deps.Config.Chunking.OverlapFraction,
	}
	chunks := chunk.Split(fi.Path, fi.Language, content, cfg, effectiveBlobHash)

	var oc fileOutcome
	if err := o.deps.FTS.IndexFile(fts.Document{Path: fi.Path, Language: fi.Language, Text: string(content)}); err != nil {
		oc.errs = append(oc.errs, fmt.Errorf("fts index %s: %w", fi.Path, err))
	}

	if tracked {
		for _, id := range existing.LastIndexedIDs {
			if err := o.deps.Store.Delete(id); err != nil {
				oc.errs = append(oc.errs, fmt.Errorf("delete stale chunk for %s: %w", fi.Path, err))
			}
		}
	}

	oc.chunks = chunks
	oc.items = make([]embed.DispatchItem, len(chunks))
	for i, c := range chunks {
		oc.items[i] = embed.DispatchItem{ID: uuid.NewString(), Text: c.Text}
	}

	o.deps.Registry.Set(fi.Path, candidate)
	return oc
}

func (o *Orchestrator) finalise() error {
	if err := o.deps.Store.Finalise(); err != nil {
		return fmt.Errorf("finalise vector store: %w", err)
	}
	if err := o.deps.Registry.Save(); err != nil {
		return fmt.Errorf("save fingerprint registry: %w", err)
	}

	cl := o.deps.Store.ChangeLog()
	src := storeVectorSource{store: o.deps.Store}
	if err := o.deps.HNSW.ApplyChangeLog(cl, src); err != nil {
		return fmt.Errorf("apply hnsw change log: %w", err)
	}
	if o.deps.HNSW.ChurnFraction() > o.deps.Config.HNSW.RebuildChurnFraction {
		if err := o.rebuildHNSW(); err != nil {
			return fmt.Errorf("rebuild hnsw after churn: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) rebuildHNSW() error {
	src := storeVectorSource{store: o.deps.Store}
	return o.deps.HNSW.FullBuild(src)
}

// Watch runs a long-lived session consuming w's debounced file events,
// applying a per-file re-index with the same decision machinery as
// IncrementalIndex. Each event is processed exactly once after its
// debounce window, in order of last modification.
func (o *Orchestrator) Watch(ctx context.Context, w watcher.Watcher) error {
	if err := w.Start(ctx, o.deps.ProjectRoot); err != nil {
		return fmt.Errorf("orchestrator: start watcher: %w", err)
	}
	defer w.Stop()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	debounce := o.deps.WatchDebounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, ev := range batch {
				pending[ev.Path] = ev.Timestamp
			}

		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))

		case <-ticker.C:
			o.flushDue(ctx, pending, debounce)
		}
	}
}

// flushDue re-indexes every pending path whose debounce window has
// elapsed, in one incremental session per tick rather than one per path.
//
// If a foreground FullIndex/IncrementalIndex/Reconcile session already
// holds sessionMu, TryLock fails and flushDue leaves pending untouched:
// the due paths stay queued and are retried on the next tick instead of
// racing the foreground session over the same registry/store/FTS state.
func (o *Orchestrator) flushDue(ctx context.Context, pending map[string]time.Time, debounce time.Duration) {
	now := time.Now()
	var due []string
	for path, ts := range pending {
		if now.Sub(ts) >= debounce {
			due = append(due, path)
		}
	}
	if len(due) == 0 {
		return
	}

	if !o.sessionMu.TryLock() {
		return
	}
	defer o.sessionMu.Unlock()

	sort.Slice(due, func(i, j int) bool { return pending[due[i]].Before(pending[due[j]]) })
	for _, path := range due {
		delete(pending, path)
	}

	if _, err := o.runSessionLocked(ctx, false); err != nil {
		slog.Warn("watch_reindex_failed", slog.Int("paths", len(due)), slog.String("error", err.Error()))
	}
}

// storeVectorSource adapts vectorstore.Store to hnswengine.VectorSource.
type storeVectorSource struct {
	store *vectorstore.Store
}

func (s storeVectorSource) AllIDs() []string { return s.store.AllIDs() }

func (s storeVectorSource) Hydrate(id string) (vectorstore.Record, error) {
	return s.store.Hydrate(id)
}
