package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/grovetools/storymap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "storymapd.pid")

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, Release(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Release(path), "releasing twice is harmless")
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storymapd.pid")
	// PIDs this large are never allocated on Linux or macOS.
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0644))

	running, _, err := IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storymapd.pid")
	parent := os.Getppid()
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(parent)), 0644))

	err := Acquire(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCodeAlreadyRunning))

	require.NoError(t, Release(path))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "release leaves another process's file alone")
}

func TestIsRunningMissingFile(t *testing.T) {
	running, pid, err := IsRunning(filepath.Join(t.TempDir(), "none.pid"))
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
}
