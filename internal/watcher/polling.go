package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by re-walking the project tree on an
// interval and diffing (mtime, size) snapshots. It is the fallback for
// filesystems where inotify doesn't deliver events — network mounts and
// some container volumes. Each sweep emits its whole diff as one batch,
// which already matches the batched contract the orchestrator consumes,
// so no per-event coalescing is needed on this path.
//
// The walk skips .git and the engine's own index directory: polling is
// the one watcher mode that would otherwise re-stat every vector file the
// indexer just wrote, turning each finalise into a storm of self-events.
type PollingWatcher struct {
	interval time.Duration

	events chan []FileEvent
	errors chan error
	done   chan struct{}
	stop   sync.Once

	root string
	prev map[string]stamp
}

// stamp is the per-path change fingerprint one sweep records.
type stamp struct {
	mtime int64 // UnixNano
	size  int64
	dir   bool
}

// NewPollingWatcher returns a watcher sweeping every interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		events:   make(chan []FileEvent, 16),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}
}

// Start records a baseline snapshot, then sweeps until ctx is cancelled or
// Stop is called. An unreadable root fails the baseline and is fatal;
// later sweep errors are reported on Errors and the loop keeps going.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.root = absPath

	baseline, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("baseline snapshot: %w", err)
	}
	p.prev = baseline

	defer close(p.events)
	defer close(p.errors)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-ticker.C:
			p.sweep()
		}
	}
}

// Stop ends the sweep loop. Safe to call more than once; the event and
// error channels are closed by the Start loop on its way out.
func (p *PollingWatcher) Stop() error {
	p.stop.Do(func() { close(p.done) })
	return nil
}

// Events returns the per-sweep diff batches.
func (p *PollingWatcher) Events() <-chan []FileEvent {
	return p.events
}

// Errors returns non-fatal sweep errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// sweep takes a fresh snapshot, diffs it against the previous one, and
// emits the diff as one batch.
func (p *PollingWatcher) sweep() {
	next, err := p.snapshot()
	if err != nil {
		select {
		case p.errors <- err:
		default:
		}
		return
	}

	batch := diffSnapshots(p.prev, next)
	p.prev = next
	if len(batch) == 0 {
		return
	}

	select {
	case p.events <- batch:
	default:
		slog.Warn("polling consumer behind, dropping sweep batch",
			slog.Int("batch_size", len(batch)))
	}
}

// snapshot walks the tree once and stamps every reachable entry.
// Individual unreadable entries are skipped; only a dead root is an error.
func (p *PollingWatcher) snapshot() (map[string]stamp, error) {
	snap := make(map[string]stamp, len(p.prev))

	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			return nil
		}
		rel, relErr := filepath.Rel(p.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() && (d.Name() == ".git" || rel == indexDirName) {
			return filepath.SkipDir
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		snap[rel] = stamp{
			mtime: info.ModTime().UnixNano(),
			size:  info.Size(),
			dir:   d.IsDir(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.root, err)
	}
	return snap, nil
}

// diffSnapshots turns two consecutive snapshots into create/modify/delete
// events.
func diffSnapshots(prev, next map[string]stamp) []FileEvent {
	now := time.Now()
	var batch []FileEvent

	for path, cur := range next {
		old, existed := prev[path]
		switch {
		case !existed:
			batch = append(batch, FileEvent{Path: path, Operation: OpCreate, IsDir: cur.dir, Timestamp: now})
		case old.mtime != cur.mtime || old.size != cur.size:
			batch = append(batch, FileEvent{Path: path, Operation: OpModify, IsDir: cur.dir, Timestamp: now})
		}
	}
	for path, old := range prev {
		if _, stillThere := next[path]; !stillThere {
			batch = append(batch, FileEvent{Path: path, Operation: OpDelete, IsDir: old.dir, Timestamp: now})
		}
	}
	return batch
}
