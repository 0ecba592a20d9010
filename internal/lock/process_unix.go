//go:build !windows

package lock

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a still-running process, via a
// zero-signal probe.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
