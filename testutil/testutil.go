package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/storymap/pkg/channel"
	"github.com/stretchr/testify/require"
)

// Handler produces the worker's answer to one command line.
type Handler func(command string) (channel.Response, error)

// OK is a Handler that accepts every command.
func OK(string) (channel.Response, error) {
	return channel.Response{"status": "ok"}, nil
}

// Reject returns a worker-style application error.
func Reject(errorType, message string) channel.Response {
	resp := channel.Response{"status": "error", "error": message}
	if errorType != "" {
		resp["error_type"] = errorType
	}
	return resp
}

// ScriptedExecutor stands in for a command channel. It records every
// command and answers with Handler. Hold blocks each call until Release.
type ScriptedExecutor struct {
	Handler Handler

	mu       sync.Mutex
	commands []string
	gate     chan struct{}
	entered  chan string
}

// NewScriptedExecutor returns an executor answering with h, or OK when h
// is nil.
func NewScriptedExecutor(h Handler) *ScriptedExecutor {
	if h == nil {
		h = OK
	}
	return &ScriptedExecutor{Handler: h, entered: make(chan string, 64)}
}

// Execute implements the queue's executor. It honors ctx while held.
func (e *ScriptedExecutor) Execute(ctx context.Context, command string) (channel.Response, error) {
	e.mu.Lock()
	e.commands = append(e.commands, command)
	gate := e.gate
	e.mu.Unlock()

	select {
	case e.entered <- command:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Handler(command)
}

// Hold makes subsequent calls block until Release.
func (e *ScriptedExecutor) Hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
}

// Release unblocks held calls.
func (e *ScriptedExecutor) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

// AwaitCommand waits for the next call to reach the executor.
func (e *ScriptedExecutor) AwaitCommand(t *testing.T) string {
	t.Helper()
	select {
	case cmd := <-e.entered:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command reached the executor")
		return ""
	}
}

// Commands returns every command received so far, in order.
func (e *ScriptedExecutor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.commands...)
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// Isolate points every storymap path at a fresh temp dir so tests never
// touch the real config or state.
func Isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("STORYMAP_HOME", home)
	t.Setenv("STORYMAP_LOG_LEVEL", "")
	return home
}
