// Package process inspects and stops the daemon process by PID.
package process

import (
	"os"
	"syscall"
	"time"

	"github.com/grovetools/storymap/errors"
)

// IsProcessAlive reports whether a process with the given PID exists.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// FindProcess never fails on Unix, signal 0 is the real probe.
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// EPERM still means the process exists.
	err = p.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}

// Terminate sends SIGTERM to pid and waits up to grace for it to exit,
// then sends SIGKILL. It returns true when the process was already gone.
func Terminate(pid int, grace time.Duration) (bool, error) {
	if !IsProcessAlive(pid) {
		return true, nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return true, nil
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to signal daemon").WithDetail("pid", pid)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !IsProcessAlive(pid) {
			return false, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := p.Signal(syscall.SIGKILL); err != nil && IsProcessAlive(pid) {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to kill daemon").WithDetail("pid", pid)
	}
	return false, nil
}
