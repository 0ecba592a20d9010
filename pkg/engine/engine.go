// Package engine is the public facade: it wires the finder, chunker,
// embedding dispatcher, vector store, HNSW graph, FTS index, temporal
// indexer, lock, orchestrator, and query executor into one project-scoped
// handle with Index/Query/Watch/Reconcile/Close.
//
// Two collections are maintained side by side under IndexDir: "code" (one
// record per source chunk) and "temporal" (one record per commit
// message/diff chunk, populated only when the project root is a git
// repository).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/semcore/engine/internal/config"
	"github.com/semcore/engine/internal/embed"
	engineerr "github.com/semcore/engine/internal/errors"
	"github.com/semcore/engine/internal/finder"
	"github.com/semcore/engine/internal/fts"
	"github.com/semcore/engine/internal/hnswengine"
	"github.com/semcore/engine/internal/lock"
	"github.com/semcore/engine/internal/logging"
	"github.com/semcore/engine/internal/orchestrator"
	"github.com/semcore/engine/internal/query"
	"github.com/semcore/engine/internal/temporal"
	"github.com/semcore/engine/internal/vectorstore"
	"github.com/semcore/engine/internal/watcher"
)

const (
	codeCollectionDir     = "code"
	temporalCollectionDir = "temporal"
	ftsIndexDir           = "fts.bleve"
	registryFile          = "fingerprints.json"
	ledgerFile            = "commits.db"
	lockStaleAfter        = 10 * time.Minute
)

// Engine is a single project's open index: every backing store, plus the
// orchestrator and query executor wired over them.
type Engine struct {
	root string
	cfg  config.Config

	embedder   embed.Embedder
	dispatcher *embed.Dispatcher

	codeStore *vectorstore.Store
	codeHNSW  *hnswengine.Engine

	temporalStore *vectorstore.Store
	temporalHNSW  *hnswengine.Engine

	fts *fts.Index

	git    *temporal.Repository
	ledger *temporal.Ledger

	lock *lock.ProjectLock

	orch *orchestrator.Orchestrator
	exec *query.Executor

	logCleanup func()
}

// gitHashAdapter satisfies orchestrator.BlobHasher and is nil-safe only by
// virtue of Open never wiring it when no repository is present.
func gitHashAdapter(content []byte) string {
	return temporal.HashObject(content)
}

// Open acquires the project lock, opens (or creates) every backing store
// under root/cfg.IndexDir, and wires an Engine ready for Index/Query/Watch.
// The temporal collection is always opened; if root is a git repository,
// the repository and commit ledger are opened too, otherwise temporal
// features are silently unavailable.
func Open(ctx context.Context, root string, cfg config.Config) (*Engine, error) {
	cfg = cfg.WithDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve root: %w", err)
	}
	indexDir := filepath.Join(absRoot, cfg.IndexDir)

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.WriteToStderr,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = filepath.Join(indexDir, "logs", "engine.log")
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: set up logging: %w", err)
	}
	slog.SetDefault(logger)
	opened := false
	defer func() {
		if !opened {
			logCleanup()
		}
	}()

	pl := lock.New(indexDir)
	acquired, err := pl.TryAcquire(lockStaleAfter)
	if err != nil {
		return nil, fmt.Errorf("engine: acquire project lock: %w", err)
	}
	if !acquired {
		return nil, engineerr.ValidationError(fmt.Sprintf("another process holds the index lock at %s", pl.Path()), nil)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.Config{
		Provider: embed.ParseProvider(cfg.Embedding.Provider),
		Model:    cfg.Embedding.Model,
		Ollama: embed.OllamaConfig{
			Host:           cfg.Embedding.Host,
			ConnectTimeout: cfg.Embedding.Timeout,
		},
	})
	if err != nil {
		pl.Release()
		return nil, fmt.Errorf("engine: construct embedder: %w", err)
	}

	codeStore, err := vectorstore.Open(filepath.Join(indexDir, codeCollectionDir), embedder.Dimensions(), embedder.ModelName())
	if err != nil {
		pl.Release()
		return nil, fmt.Errorf("engine: open code collection: %w", err)
	}
	temporalStore, err := vectorstore.Open(filepath.Join(indexDir, temporalCollectionDir), embedder.Dimensions(), embedder.ModelName())
	if err != nil {
		pl.Release()
		return nil, fmt.Errorf("engine: open temporal collection: %w", err)
	}

	ftsIdx, err := fts.Open(filepath.Join(indexDir, ftsIndexDir))
	if err != nil {
		pl.Release()
		return nil, fmt.Errorf("engine: open fts index: %w", err)
	}

	registry, err := orchestrator.OpenRegistry(filepath.Join(indexDir, registryFile))
	if err != nil {
		pl.Release()
		return nil, fmt.Errorf("engine: open fingerprint registry: %w", err)
	}

	codeHNSW := hnswengine.New(hnswengine.Params{M: cfg.HNSW.M, EfConstruction: cfg.HNSW.EfConstruction, EfSearch: cfg.HNSW.EfSearch})
	temporalHNSW := hnswengine.New(hnswengine.Params{M: cfg.HNSW.M, EfConstruction: cfg.HNSW.EfConstruction, EfSearch: cfg.HNSW.EfSearch})

	deps := orchestrator.Dependencies{
		ProjectRoot: absRoot,
		Config:      cfg,
		FinderOptions: finder.Options{
			RespectGitignore: true,
		},
		Finder:     mustFinder(),
		Dispatcher: embed.NewDispatcher(embedder, embed.WithTokenBudget(cfg.Dispatch.TokenBudget), embed.WithWorkers(cfg.Dispatch.Workers)),
		Store:      codeStore,
		HNSW:       codeHNSW,
		FTS:        ftsIdx,
		Registry:   registry,
	}

	e := &Engine{
		root:          absRoot,
		cfg:           cfg,
		embedder:      embedder,
		codeStore:     codeStore,
		codeHNSW:      codeHNSW,
		temporalStore: temporalStore,
		temporalHNSW:  temporalHNSW,
		fts:           ftsIdx,
		lock:          pl,
		logCleanup:    logCleanup,
	}

	if repo, gitErr := temporal.Open(absRoot); gitErr == nil {
		ledger, ledgerErr := temporal.OpenLedger(filepath.Join(indexDir, ledgerFile))
		if ledgerErr != nil {
			pl.Release()
			return nil, fmt.Errorf("engine: open commit ledger: %w", ledgerErr)
		}
		e.git = repo
		e.ledger = ledger
		deps.Git = repo
		deps.HashBlob = gitHashAdapter
	}

	e.orch = orchestrator.New(deps)

	var ancestry query.AncestorChecker
	if e.git != nil {
		ancestry = e.git
	}
	e.exec = query.New(query.Dependencies{
		ProjectRoot: absRoot,
		Config:      cfg.Query,
		Embedder:    embedder,
		Code:        query.Collection{Store: codeStore, HNSW: codeHNSW},
		Temporal:    query.Collection{Store: temporalStore, HNSW: temporalHNSW},
		FTS:         ftsIdx,
		Blobs:       e.git,
		Ancestry:    ancestry,
	})

	if err := e.rehydrateHNSW(); err != nil {
		pl.Release()
		return nil, err
	}

	opened = true
	return e, nil
}

func mustFinder() *finder.Finder {
	f, err := finder.New()
	if err != nil {
		panic(fmt.Sprintf("engine: finder.New: %v", err))
	}
	return f
}

// rehydrateHNSW rebuilds each collection's in-memory graph from whatever
// vectors already live in its store, so a re-opened Engine can serve
// queries before its next Index call.
func (e *Engine) rehydrateHNSW() error {
	if e.codeStore.Count() > 0 {
		if err := e.codeHNSW.FullBuild(codeVectorSource{e.codeStore}); err != nil {
			return fmt.Errorf("engine: rehydrate code hnsw: %w", err)
		}
	}
	if e.temporalStore.Count() > 0 {
		if err := e.temporalHNSW.FullBuild(codeVectorSource{e.temporalStore}); err != nil {
			return fmt.Errorf("engine: rehydrate temporal hnsw: %w", err)
		}
	}
	return nil
}

type codeVectorSource struct{ store *vectorstore.Store }

func (s codeVectorSource) AllIDs() []string                         { return s.store.AllIDs() }
func (s codeVectorSource) Hydrate(id string) (vectorstore.Record, error) { return s.store.Hydrate(id) }

// Index runs a one-shot full index of the project's code collection,
// followed by a temporal walk (if the project is a git repository) of any
// commits not already recorded in the ledger.
func (e *Engine) Index(ctx context.Context) (orchestrator.Result, error) {
	result, err := e.orch.FullIndex(ctx)
	if err != nil {
		return result, err
	}
	if e.git != nil {
		if terr := e.indexTemporal(ctx); terr != nil {
			result.Errors = append(result.Errors, terr)
		}
	}
	return result, nil
}

// ReIndex runs an incremental index pass (code) plus an incremental
// temporal walk, skipping files and commits already up to date.
func (e *Engine) ReIndex(ctx context.Context) (orchestrator.Result, error) {
	result, err := e.orch.IncrementalIndex(ctx)
	if err != nil {
		return result, err
	}
	if e.git != nil {
		if terr := e.indexTemporal(ctx); terr != nil {
			result.Errors = append(result.Errors, terr)
		}
	}
	return result, nil
}

// Reconcile forces a full disk walk against the fingerprint registry,
// deletes vanished files, and rebuilds the HNSW graph if delete churn
// exceeds the configured threshold.
func (e *Engine) Reconcile(ctx context.Context) (orchestrator.Result, error) {
	return e.orch.Reconcile(ctx)
}

// indexTemporal walks commits on the configured branch since the last
// recorded ledger hash, chunks them, embeds and upserts them into the
// temporal collection, and records the new commits in the ledger.
func (e *Engine) indexTemporal(ctx context.Context) error {
	branch := e.cfg.Temporal.Branch
	sel := temporal.Selector{Mode: temporal.BranchCurrent}
	if branch != "" {
		sel = temporal.Selector{Mode: temporal.BranchList, Branches: []string{branch}}
	}
	ledgerBranch := branch
	if ledgerBranch == "" {
		ledgerBranch = "HEAD"
	}

	afterHash, err := e.ledger.LastIndexed(ctx, ledgerBranch)
	if err != nil {
		return fmt.Errorf("engine: read commit ledger: %w", err)
	}

	commits, err := e.git.Walk(sel, afterHash, e.cfg.Temporal.SinceDate, e.cfg.Temporal.MaxCommits)
	if err != nil {
		return fmt.Errorf("engine: walk commits: %w", err)
	}
	if len(commits) == 0 {
		return nil
	}

	var items []embed.DispatchItem
	var pending []temporal.Chunk
	for _, c := range commits {
		for _, tc := range temporal.ToChunks(c) {
			items = append(items, embed.DispatchItem{ID: fmt.Sprintf("%s:%s:%d", c.Hash, tc.Path, len(pending)), Text: tc.Text})
			pending = append(pending, tc)
		}
	}

	if len(items) > 0 {
		dispatcher := embed.NewDispatcher(e.embedder, embed.WithTokenBudget(e.cfg.Dispatch.TokenBudget), embed.WithWorkers(e.cfg.Dispatch.Workers))
		results := dispatcher.Dispatch(ctx, items)
		for i, res := range results {
			if res.Err != nil {
				continue
			}
			tc := pending[i]
			rec := vectorstore.Record{
				ID:        res.ID,
				Embedding: res.Embedding,
				Payload: vectorstore.Payload{
					Path:            tc.Path,
					Language:        "",
					Kind:            tc.Kind,
					Text:            tc.Text,
					Fingerprint:     tc.Fingerprint,
					CommitHash:      tc.Meta.CommitHash,
					CommitAuthor:    tc.Meta.Author,
					CommitEmail:     tc.Meta.Email,
					CommitTimestamp: tc.Meta.Timestamp.Unix(),
					DiffType:        string(tc.Meta.DiffType),
				},
			}
			if err := e.temporalStore.Upsert(rec); err != nil {
				return fmt.Errorf("engine: upsert temporal chunk: %w", err)
			}
		}
	}

	if err := e.temporalStore.Finalise(); err != nil {
		return fmt.Errorf("engine: finalise temporal collection: %w", err)
	}
	if err := e.temporalHNSW.ApplyChangeLog(e.temporalStore.ChangeLog(), codeVectorSource{e.temporalStore}); err != nil {
		return fmt.Errorf("engine: apply temporal change log: %w", err)
	}

	hashes := make([]string, len(commits))
	for i, c := range commits {
		hashes[i] = c.Hash
	}
	if err := e.ledger.Record(ctx, ledgerBranch, hashes); err != nil {
		return fmt.Errorf("engine: record commit ledger: %w", err)
	}
	return nil
}

// Query runs req against whichever collections req.Mode selects.
func (e *Engine) Query(ctx context.Context, req query.Request) (query.Response, error) {
	if req.Deadline.IsZero() && e.cfg.Query.Timeout > 0 {
		req.Deadline = time.Now().Add(e.cfg.Query.Timeout)
	}
	return e.exec.Execute(ctx, req)
}

// Watch runs a long-lived session that incrementally re-indexes the code
// collection as w reports debounced file events. It blocks until ctx is
// cancelled or w's event channel closes.
func (e *Engine) Watch(ctx context.Context, w watcher.Watcher) error {
	return e.orch.Watch(ctx, w)
}

// Close releases every backing store and the project lock. It is safe to
// call once; the Engine must not be used afterward.
func (e *Engine) Close() error {
	var errs []error
	if err := e.fts.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close fts index: %w", err))
	}
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close commit ledger: %w", err))
		}
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close embedder: %w", err))
	}
	if err := e.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release project lock: %w", err))
	}
	if e.logCleanup != nil {
		e.logCleanup()
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine: close: %v", errs)
	}
	return nil
}
