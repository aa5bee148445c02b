// Package engine hosts one story map editing session: the worker channel,
// the save controller, and the pump that publishes its status to the store.
package engine

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/grovetools/storymap/command"
	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/internal/daemon/store"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/clock"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/sirupsen/logrus"
)

// Options are test seams. Zero values start the configured worker binary
// on the real clock.
type Options struct {
	Spawner channel.Spawner
	Clock   clock.Clock
}

// Engine wires configuration to a running session.
type Engine struct {
	cfg        *config.Config
	store      *store.Store
	channel    *channel.Channel
	exec       *serialExecutor
	controller *storymap.Controller
	logger     *logrus.Entry

	updates     *pendingUpdates
	unsubscribe func()
}

// New creates an Engine from cfg. The worker is not started until the
// first command is sent.
func New(cfg *config.Config, st *store.Store, logger *logrus.Entry, opts Options) (*Engine, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Spawner == nil {
		if err := cfg.RequireWorker(); err != nil {
			return nil, err
		}
		opts.Spawner = newSpawner(cfg.Worker, logger)
	}

	policy, err := storymap.ParseMissingNodePolicy(cfg.Graph.MissingNodePolicy)
	if err != nil {
		return nil, err
	}

	ch := channel.New(opts.Spawner, channel.Options{
		Sentinel:     cfg.Worker.Sentinel,
		OutputFlag:   cfg.Worker.OutputFlag,
		Timeout:      cfg.Worker.Timeout.Std(),
		ReadTimeout:  cfg.Worker.ReadTimeout.Std(),
		ReadCommands: cfg.Worker.ReadCommands,
		Clock:        opts.Clock,
		Logger:       logger.WithField("part", "channel"),
	})
	exec := newSerialExecutor(ch)

	e := &Engine{
		cfg:     cfg,
		store:   st,
		channel: ch,
		exec:    exec,
		logger:  logger,
		updates: newPendingUpdates(),
	}

	e.controller = storymap.NewController(exec, storymap.ControllerOptions{
		Queue: storymap.QueueOptions{
			Debounce: cfg.Queue.Debounce.Std(),
			AutoHide: cfg.Queue.AutoHide.Std(),
			Clock:    opts.Clock,
			Logger:   logger.WithField("part", "queue"),
		},
		Policy:   policy,
		Snapshot: e.readSnapshot(),
		Logger:   logger,
	})
	// Status callbacks run under the queue lock; hand them off.
	e.unsubscribe = e.controller.OnStatusChange(func(s storymap.Status) {
		e.enqueueUpdate(store.Update{Type: store.UpdateStatus, Source: "queue", Payload: s})
	})
	e.controller.OnErrorDialog(func(d storymap.ErrorDialog) {
		e.enqueueUpdate(store.Update{Type: store.UpdateDialog, Source: "queue", Payload: d})
	})
	return e, nil
}

func (e *Engine) enqueueUpdate(u store.Update) {
	e.updates.push(u)
}

// pendingUpdates holds at most one unpublished update per type. A newer
// update replaces the older one, so a slow consumer always ends up with
// the latest status and dialog.
type pendingUpdates struct {
	mu     sync.Mutex
	queue  []store.Update
	signal chan struct{}
}

func newPendingUpdates() *pendingUpdates {
	return &pendingUpdates{signal: make(chan struct{}, 1)}
}

func (p *pendingUpdates) push(u store.Update) {
	p.mu.Lock()
	for i, old := range p.queue {
		if old.Type == u.Type {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	p.queue = append(p.queue, u)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *pendingUpdates) take() []store.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.queue
	p.queue = nil
	return out
}

func newSpawner(w config.WorkerConfig, logger *logrus.Entry) *channel.ExecSpawner {
	env := append([]string{}, w.Env...)
	if w.OutputEnv != "" {
		env = append(env, w.OutputEnv)
	}
	return &channel.ExecSpawner{
		Executor: command.Wrap(command.RealExecutor{}, w.Wrapper...),
		Name:     w.Command,
		Args:     w.Args,
		Dir:      w.WorkingDir,
		Env:      env,
		Logger:   logger.WithField("part", "worker"),
	}
}

// Start publishes status changes to the store until ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.updates.signal:
			for _, u := range e.updates.take() {
				e.publish(u)
			}
		}
	}
}

func (e *Engine) publish(u store.Update) {
	if e.store == nil {
		return
	}
	if u.Type == store.UpdateStatus {
		e.store.SetQueueLength(e.controller.QueueLength())
	}
	e.store.ApplyUpdate(u)
}

// DismissErrorDialog closes the dialog and tells subscribers.
func (e *Engine) DismissErrorDialog() {
	e.controller.DismissErrorDialog()
	if e.store != nil {
		e.store.ApplyUpdate(store.Update{Type: store.UpdateDialog, Source: "client", Payload: nil})
	}
}

// Controller returns the session's controller.
func (e *Engine) Controller() *storymap.Controller {
	return e.controller
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// WorkerRunning reports whether a worker process is alive.
func (e *Engine) WorkerRunning() bool {
	return e.channel.Running()
}

// Exec sends a raw command line to the worker. It waits for any save in
// progress rather than failing with a busy channel.
func (e *Engine) Exec(ctx context.Context, line string) (channel.Response, error) {
	return e.exec.Execute(ctx, strings.TrimSpace(line))
}

// ReloadSnapshot rereads the snapshot file and rebuilds the graph from it.
func (e *Engine) ReloadSnapshot() storymap.FlatParentMap {
	flat := e.readSnapshot()
	e.controller.SetSnapshot(flat)
	if e.store != nil {
		e.store.ApplyUpdate(store.Update{Type: store.UpdateGraph, Source: "snapshot"})
	}
	return flat
}

func (e *Engine) readSnapshot() storymap.FlatParentMap {
	path := e.cfg.Graph.Snapshot
	if path == "" {
		return storymap.FlatParentMap{}
	}
	flat, err := storymap.LoadSnapshot(path)
	if err != nil {
		level := logrus.WarnLevel
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			level = logrus.DebugLevel
		}
		e.logger.WithError(err).WithField("path", path).Log(level, "Starting from an empty story graph")
		return storymap.FlatParentMap{}
	}
	e.logger.WithFields(logrus.Fields{
		"path":   path,
		"groups": len(flat.Groups),
	}).Debug("Snapshot loaded")
	return flat
}

// Close flushes pending changes while ctx allows, then stops the queue and
// the worker. Changes still unsent are rolled back.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.controller.WaitForDebounce(ctx, 0); err != nil {
		e.logger.WithError(err).Warn("Pending changes not flushed before shutdown")
	}
	e.unsubscribe()
	_ = e.controller.Close()
	return e.channel.Close()
}

// serialExecutor lets the queue and ad-hoc commands share one channel,
// which itself rejects concurrent calls.
type serialExecutor struct {
	ch  *channel.Channel
	sem chan struct{}
}

func newSerialExecutor(ch *channel.Channel) *serialExecutor {
	return &serialExecutor{ch: ch, sem: make(chan struct{}, 1)}
}

func (s *serialExecutor) Execute(ctx context.Context, line string) (channel.Response, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()
	return s.ch.Execute(ctx, line)
}
