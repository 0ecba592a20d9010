package watcher

import (
	"context"
	"time"
)

// Operation classifies what happened to a watched path. The orchestrator
// maps these onto its per-file decisions: create/modify re-index, delete
// removes records, rename is treated as delete+create of the two paths,
// and a gitignore change widens to a reconcile-scale re-walk.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename

	// OpGitignoreChange marks an edit to a .gitignore file. The visible
	// file set may have changed without any source file changing, so the
	// consumer re-walks instead of re-indexing one path.
	OpGitignoreChange
)

var operationNames = map[Operation]string{
	OpCreate:          "CREATE",
	OpModify:          "MODIFY",
	OpDelete:          "DELETE",
	OpRename:          "RENAME",
	OpGitignoreChange: "GITIGNORE_CHANGE",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// FileEvent is one settled change to one path, as delivered to the
// orchestrator's watch loop.
type FileEvent struct {
	// Path is relative to the watched root, forward-slash separated.
	Path string

	// OldPath is the pre-rename path; empty for every other operation.
	OldPath string

	Operation Operation
	IsDir     bool

	// Timestamp orders events within a batch: batches arrive sorted by
	// it, oldest modification first.
	Timestamp time.Time
}

// Watcher is the event source the orchestrator's Watch operation
// consumes. Events arrive batched: rapid changes from IDEs and git
// operations settle through a Coalescer (fsnotify path) or arrive as one
// sweep's diff (polling path), so a single receive is a window's worth of
// distinct paths, not one raw filesystem event.
type Watcher interface {
	// Start watches path recursively until ctx is cancelled or Stop is
	// called. It blocks for the watcher's lifetime.
	Start(ctx context.Context, path string) error

	// Stop halts watching and releases resources. Safe to call more than
	// once.
	Stop() error

	// Events returns settled event batches; closed when the watcher
	// stops.
	Events() <-chan []FileEvent

	// Errors returns non-fatal watcher errors; the watcher keeps running
	// after reporting one. Closed when the watcher stops.
	Errors() <-chan error
}

// Options tunes a watcher.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before its
	// coalesced event is emitted.
	DebounceWindow time.Duration

	// PollInterval is the sweep cadence of the polling fallback.
	PollInterval time.Duration

	// EventBufferSize bounds the outgoing batch channel; a consumer
	// lagging past it loses batches (logged, counted).
	EventBufferSize int

	// IgnorePatterns are extra gitignore-syntax exclusions layered on
	// top of the project's own .gitignore files.
	IgnorePatterns []string
}

// DefaultOptions are tuned for interactive editing: one save settles in
// 200ms, and the polling fallback sweeps every 5s.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// Validate reports option combinations a watcher cannot run with.
// Every zero value currently has a usable default, so there is nothing to
// reject yet; the hook exists for callers that validate config up front.
func (o Options) Validate() error {
	return nil
}

// WithDefaults fills zero-valued fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
