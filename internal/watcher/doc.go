// Package watcher feeds the indexing orchestrator's watch mode: it turns
// raw filesystem activity into settled, gitignore-filtered event batches.
//
// HybridWatcher prefers fsnotify and falls back to snapshot polling when
// an fsnotify watcher cannot be created; it does not detect a filesystem
// on which fsnotify is created but delivers no events. On
// the fsnotify path raw events settle through a Coalescer — a path must
// go quiet for the debounce window before it is emitted, and its raw
// operation sequence is reduced to one net operation. The polling path
// emits each sweep's diff as a batch directly. Either way a receive from
// Events yields one window's worth of distinct paths, ordered oldest
// modification first, which is the order the orchestrator re-indexes in:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() {
//	    for batch := range w.Events() {
//	        for _, ev := range batch {
//	            // re-index ev.Path according to ev.Operation
//	        }
//	    }
//	}()
//	return w.Start(ctx, projectRoot)
package watcher
