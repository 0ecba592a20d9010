// Package lock provides the per-project writer lock: one indexing writer
// at a time, enforced by an OS file lock (gofrs/flock) plus a small
// sidecar recording the holder's PID and acquisition time so a stale lock
// left behind by a crashed process can be reclaimed.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

const lockFileName = "index.lock"

// Info is the sidecar content recorded alongside the OS-level lock.
type Info struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ProjectLock is the per-project writer lock living at <indexDir>/index.lock.
type ProjectLock struct {
	path string
	fl   *flock.Flock
}

// New returns a lock rooted at indexDir (typically <project>/.index).
func New(indexDir string) *ProjectLock {
	path := filepath.Join(indexDir, lockFileName)
	return &ProjectLock{path: path, fl: flock.New(path)}
}

// TryAcquire attempts a non-blocking acquire. If the lock is already held
// and its sidecar shows it is older than staleAfter and its PID is no
// longer running, the stale lock is reclaimed and the acquire retried
// once. Returns false, nil if the lock is genuinely held by a live writer.
func (l *ProjectLock) TryAcquire(staleAfter time.Duration) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("lock: create index directory: %w", err)
	}

	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock: try acquire: %w", err)
	}
	if !ok {
		if l.reclaimIfStale(staleAfter) {
			ok, err = l.fl.TryLock()
			if err != nil {
				return false, fmt.Errorf("lock: try acquire after reclaim: %w", err)
			}
		}
	}
	if !ok {
		return false, nil
	}
	if err := l.writeInfo(); err != nil {
		_ = l.fl.Unlock()
		return false, err
	}
	return true, nil
}

// Release drops the lock and removes the sidecar. Safe to call on an
// unheld lock.
func (l *ProjectLock) Release() error {
	_ = os.Remove(l.infoPath())
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}

// Path is the OS-lock file's path.
func (l *ProjectLock) Path() string { return l.path }

func (l *ProjectLock) infoPath() string { return l.path + ".info" }

func (l *ProjectLock) writeInfo() error {
	info := Info{PID: os.Getpid(), AcquiredAt: time.Now()}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("lock: marshal info: %w", err)
	}
	if err := renameio.WriteFile(l.infoPath(), data, 0o644); err != nil {
		return fmt.Errorf("lock: write info: %w", err)
	}
	return nil
}

// reclaimIfStale inspects the sidecar of a lock this process failed to
// acquire. If it's older than staleAfter and its recorded PID is no longer
// alive, the lock file is removed and a fresh flock handle opened so a
// subsequent TryLock can succeed.
func (l *ProjectLock) reclaimIfStale(staleAfter time.Duration) bool {
	info, ok := readInfo(l.infoPath())
	if !ok {
		return false
	}
	if time.Since(info.AcquiredAt) < staleAfter {
		return false
	}
	if processAlive(info.PID) {
		return false
	}

	_ = l.fl.Unlock()
	_ = os.Remove(l.path)
	_ = os.Remove(l.infoPath())
	l.fl = flock.New(l.path)
	return true
}

func readInfo(path string) (Info, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, false
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, false
	}
	return info, true
}
