package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Coalescer folds the raw event stream into settled per-path batches for
// the indexing orchestrator. A path's events are held until it has been
// quiet for the configured window (an editor save, a git checkout, or a
// build touching the same file repeatedly collapses to one re-index), then
// emitted in a batch ordered by last modification — the order the
// orchestrator replays them in.
//
// Raw operations on one path are reduced to their net effect at flush
// time: a file created and deleted inside one window produces nothing, a
// file deleted and recreated is a modification, and anything after a
// create is still a create.
type Coalescer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*trackedPath
	stopped bool

	out     chan []FileEvent
	done    chan struct{}
	runDone chan struct{}
	stop    sync.Once
}

// trackedPath is one path's state between its first raw event and its
// settle.
type trackedPath struct {
	first Operation // operation that opened the window
	last  FileEvent // most recent raw event
	seen  time.Time // when last arrived; the quiet-period clock
}

// NewCoalescer starts a Coalescer flushing paths that have been quiet for
// window.
func NewCoalescer(window time.Duration) *Coalescer {
	c := &Coalescer{
		window:  window,
		pending: make(map[string]*trackedPath),
		out:     make(chan []FileEvent, 10),
		done:    make(chan struct{}),
		runDone: make(chan struct{}),
	}
	go c.run()
	return c
}

// Add feeds one raw event in. Safe to call from multiple producers; calls
// after Stop are dropped.
func (c *Coalescer) Add(ev FileEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	now := time.Now()
	if t, ok := c.pending[ev.Path]; ok {
		t.last = ev
		t.seen = now
		return
	}
	c.pending[ev.Path] = &trackedPath{first: ev.Operation, last: ev, seen: now}
}

// run ticks at a fraction of the window so a settled path waits at most
// window + window/4 before emission.
func (c *Coalescer) run() {
	defer close(c.runDone)

	tick := c.window / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.flushSettled()
		}
	}
}

// flushSettled emits every path whose quiet period has elapsed, oldest
// modification first.
func (c *Coalescer) flushSettled() {
	now := time.Now()

	c.mu.Lock()
	var settled []FileEvent
	for path, t := range c.pending {
		if now.Sub(t.seen) < c.window {
			continue
		}
		delete(c.pending, path)
		if ev, keep := t.net(); keep {
			settled = append(settled, ev)
		}
	}
	c.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Slice(settled, func(i, j int) bool {
		return settled[i].Timestamp.Before(settled[j].Timestamp)
	})

	select {
	case c.out <- settled:
	default:
		slog.Warn("coalescer consumer behind, dropping settled batch",
			slog.Int("batch_size", len(settled)))
	}
}

// net reduces the path's raw sequence to its net operation. The second
// return is false when the sequence cancelled itself out.
func (t *trackedPath) net() (FileEvent, bool) {
	ev := t.last
	switch {
	case t.first == OpCreate && ev.Operation == OpDelete:
		return FileEvent{}, false
	case t.first == OpCreate:
		ev.Operation = OpCreate
	case t.first == OpDelete && ev.Operation == OpCreate:
		ev.Operation = OpModify
	}
	return ev, true
}

// Output returns the settled-batch channel. Closed by Stop.
func (c *Coalescer) Output() <-chan []FileEvent {
	return c.out
}

// Stop halts the flush loop and closes Output. Events still pending are
// discarded: the orchestrator's next incremental pass picks their files up
// by fingerprint instead. Safe to call more than once.
func (c *Coalescer) Stop() {
	c.stop.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()

		close(c.done)
		<-c.runDone
		close(c.out)
	})
}
