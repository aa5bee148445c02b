// Package pidfile guards against two storymap daemons serving one socket.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/process"
)

// ErrCodeAlreadyRunning is returned by Acquire when a live daemon owns the file.
const ErrCodeAlreadyRunning errors.ErrorCode = "DAEMON_ALREADY_RUNNING"

// Acquire records the current PID in path. A file left by a dead process
// is replaced.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create pid directory")
	}

	if pid, err := Read(path); err == nil {
		if pid != os.Getpid() && process.IsProcessAlive(pid) {
			return errors.New(ErrCodeAlreadyRunning, "daemon already running").WithDetail("pid", pid)
		}
		_ = os.Remove(path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write pid file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write pid file")
	}
	return nil
}

// Release removes path if it still names the current process.
func Release(path string) error {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return os.Remove(path)
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// Read returns the PID stored in path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning reports whether the daemon recorded in path is alive.
// A missing file means not running.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
