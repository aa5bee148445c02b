package daemon

import (
	"context"
	"time"

	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/internal/daemon/engine"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/sirupsen/logrus"
)

// closeTimeout bounds the final flush when a LocalClient closes.
const closeTimeout = 30 * time.Second

// LocalClient implements Client by running an engine in-process.
// This is used when the daemon is not running, providing the same API
// but owning the worker for the life of the client.
type LocalClient struct {
	engine *engine.Engine
	cancel context.CancelFunc
	logger *logrus.Entry
}

// NewLocalClient creates a new LocalClient from cfg.
func NewLocalClient(cfg *config.Config, logger *logrus.Entry) (*LocalClient, error) {
	return newLocalClient(cfg, logger, engine.Options{})
}

func newLocalClient(cfg *config.Config, logger *logrus.Entry, opts engine.Options) (*LocalClient, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	eng, err := engine.New(cfg, nil, logger, opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Start(ctx)
	return &LocalClient{engine: eng, cancel: cancel, logger: logger}, nil
}

func (c *LocalClient) Enqueue(ctx context.Context, change storymap.Change) error {
	return c.engine.Controller().Enqueue(change)
}

func (c *LocalClient) Flush(ctx context.Context, d time.Duration) (storymap.Status, error) {
	ctrl := c.engine.Controller()
	if err := ctrl.WaitForDebounce(ctx, d); err != nil {
		return ctrl.Status(), err
	}
	return ctrl.Status(), nil
}

func (c *LocalClient) CompleteSave(ctx context.Context) (storymap.Status, error) {
	c.engine.Controller().CompleteSaveSuccessfully()
	return c.engine.Controller().Status(), nil
}

func (c *LocalClient) ReturnError(ctx context.Context, errorType, message string) (bool, error) {
	return c.engine.Controller().ReturnError(errorType, message), nil
}

func (c *LocalClient) Status(ctx context.Context) (storymap.Status, error) {
	return c.engine.Controller().Status(), nil
}

func (c *LocalClient) DismissStatus(ctx context.Context) (storymap.Status, error) {
	c.engine.Controller().DismissStatus()
	return c.engine.Controller().Status(), nil
}

func (c *LocalClient) DOMState(ctx context.Context) (storymap.DOMState, error) {
	return c.engine.Controller().DOMState(), nil
}

func (c *LocalClient) Queue(ctx context.Context) (QueueInfo, error) {
	ctrl := c.engine.Controller()
	info := QueueInfo{Length: ctrl.QueueLength(), WorkerRunning: c.engine.WorkerRunning()}
	if cmd, ok := ctrl.LastAttempted(); ok {
		info.LastAttempted = &cmd
	}
	return info, nil
}

func (c *LocalClient) ExecutedCommands(ctx context.Context) ([]storymap.Command, error) {
	return c.engine.Controller().ExecutedCommands(), nil
}

func (c *LocalClient) StoryGraph(ctx context.Context) (*storymap.Node, error) {
	return c.engine.Controller().StoryGraph()
}

func (c *LocalClient) FindNode(ctx context.Context, nodeType, name string) (*storymap.Node, error) {
	node, err := c.engine.Controller().FindNodeInGraph(nodeType, name)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, errors.NodeNotFound(nodeType, name)
	}
	return node, nil
}

func (c *LocalClient) ReloadSnapshot(ctx context.Context) (int, error) {
	return len(c.engine.ReloadSnapshot().Groups), nil
}

func (c *LocalClient) ErrorDialog(ctx context.Context) (*storymap.ErrorDialog, error) {
	d, ok := c.engine.Controller().ErrorDialog()
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (c *LocalClient) DismissErrorDialog(ctx context.Context) error {
	c.engine.DismissErrorDialog()
	return nil
}

func (c *LocalClient) Exec(ctx context.Context, line string) (channel.Response, error) {
	return c.engine.Exec(ctx, line)
}

// StreamState returns an error for LocalClient since streaming is only available via daemon.
func (c *LocalClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	return nil, errors.New(errors.ErrCodeDaemonUnavailable, "streaming not available in local mode; start the daemon for real-time updates")
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close flushes pending changes, then stops the worker.
func (c *LocalClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := c.engine.Close(ctx)
	c.cancel()
	return err
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
