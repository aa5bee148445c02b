// Package daemon provides a client interface for interacting with the
// storymap daemon (storymapd). It implements a transparent fallback
// pattern: if the daemon is running, use its HTTP API; if not, run the
// session in-process for the lifetime of the client.
package daemon

import (
	"context"
	"time"

	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/storymap"
)

// Client defines the interface for driving a story map session.
// Both RemoteClient (daemon) and LocalClient (in-process) implement it.
type Client interface {
	// Enqueue records a change. It is validated and applied optimistically
	// before Enqueue returns; the worker sees it after the debounce window.
	Enqueue(ctx context.Context, change storymap.Change) error

	// Flush sends buffered changes within d and waits for them to resolve.
	Flush(ctx context.Context, d time.Duration) (storymap.Status, error)

	// CompleteSave confirms the current save cycle.
	CompleteSave(ctx context.Context) (storymap.Status, error)

	// ReturnError reports a worker failure for the last attempted change.
	ReturnError(ctx context.Context, errorType, message string) (bool, error)

	Status(ctx context.Context) (storymap.Status, error)
	DismissStatus(ctx context.Context) (storymap.Status, error)
	DOMState(ctx context.Context) (storymap.DOMState, error)
	Queue(ctx context.Context) (QueueInfo, error)
	ExecutedCommands(ctx context.Context) ([]storymap.Command, error)

	// StoryGraph returns the snapshot with every persisted command replayed.
	StoryGraph(ctx context.Context) (*storymap.Node, error)

	// FindNode returns the first node matching type and name, or a
	// NODE_NOT_FOUND error.
	FindNode(ctx context.Context, nodeType, name string) (*storymap.Node, error)

	ReloadSnapshot(ctx context.Context) (int, error)

	// ErrorDialog returns the open dialog, or nil when none is shown.
	ErrorDialog(ctx context.Context) (*storymap.ErrorDialog, error)
	DismissErrorDialog(ctx context.Context) error

	// Exec sends one raw command line to the worker.
	Exec(ctx context.Context, line string) (channel.Response, error)

	// StreamState subscribes to real-time state updates from the daemon.
	// For LocalClient, this returns an error since streaming is only available via daemon.
	StreamState(ctx context.Context) (<-chan StateUpdate, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client. LocalClient flushes
	// pending changes first.
	Close() error
}
