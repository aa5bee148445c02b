package storymap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/storymap/logging"
	"github.com/sirupsen/logrus"
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Queue    QueueOptions
	Policy   MissingNodePolicy
	Snapshot FlatParentMap
	Logger   *logrus.Entry
}

// ErrorDialog is the error shown to the user after a rejected change.
type ErrorDialog struct {
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Stack     string     `json:"stack"`
	ErrorType string     `json:"error_type"`
	Class     ErrorClass `json:"class"`
	Command   string     `json:"command,omitempty"`
	ChangeID  string     `json:"change_id,omitempty"`
	ShownAt   time.Time  `json:"shown_at"`
}

// Controller is the single entry point for a presentation layer. It owns
// the save queue, materializes the story graph on demand, and keeps the
// error dialog for the last rejected change.
type Controller struct {
	queue   *Queue
	updater *Updater
	logger  *logrus.Entry

	mu          sync.Mutex
	snapshot    FlatParentMap
	snapshotRev uint64
	graph       *Node
	graphSnap   uint64
	graphExec   uint64
	built       bool
	dialog      *ErrorDialog
	dialogHooks []func(ErrorDialog)
}

// NewController creates a Controller committing through exec.
func NewController(exec Executor, opts ControllerOptions) *Controller {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Queue.Logger == nil {
		opts.Queue.Logger = opts.Logger
	}

	c := &Controller{
		queue:    NewQueue(exec, opts.Queue),
		updater:  NewUpdater(opts.Policy, opts.Logger),
		logger:   opts.Logger,
		snapshot: opts.Snapshot,
	}
	c.queue.OnFailure(c.showFailure)
	return c
}

// Enqueue records a user edit. See Queue.Enqueue.
func (c *Controller) Enqueue(change Change) error {
	return c.queue.Enqueue(change)
}

// CompleteSaveSuccessfully confirms the current save cycle.
func (c *Controller) CompleteSaveSuccessfully() {
	c.queue.CompleteSaveSuccessfully()
}

// ReturnError reports a worker failure for the last attempted change.
func (c *Controller) ReturnError(errorType, message string) bool {
	return c.queue.ReturnError(errorType, message)
}

func (c *Controller) DOMState() DOMState { return c.queue.DOMState() }

func (c *Controller) Status() Status { return c.queue.Status() }

// QueueLength is the number of changes not yet confirmed or rolled back.
func (c *Controller) QueueLength() int { return c.queue.Len() }

func (c *Controller) ExecutedCommands() []Command { return c.queue.ExecutedCommands() }

func (c *Controller) LastAttempted() (Command, bool) { return c.queue.LastAttempted() }

// OnStatusChange subscribes fn to status changes. fn must not call back
// into the Controller.
func (c *Controller) OnStatusChange(fn func(Status)) (unsubscribe func()) {
	return c.queue.StatusIndicator().OnChange(fn)
}

// DismissStatus clears the status line, including a sticky error.
func (c *Controller) DismissStatus() {
	c.queue.StatusIndicator().Dismiss()
}

// WaitForDebounce flushes pending changes after at most d and waits for
// them to resolve.
func (c *Controller) WaitForDebounce(ctx context.Context, d time.Duration) error {
	return c.queue.WaitForDebounce(ctx, d)
}

func (c *Controller) WaitIdle(ctx context.Context) error {
	return c.queue.WaitIdle(ctx)
}

// Close stops the queue. Unsent changes are rolled back.
func (c *Controller) Close() error {
	return c.queue.Close()
}

// SetSnapshot replaces the structural snapshot the graph is built from.
func (c *Controller) SetSnapshot(flat FlatParentMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = flat
	c.snapshotRev++
}

// Snapshot returns the current structural snapshot.
func (c *Controller) Snapshot() FlatParentMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// StoryGraph returns the snapshot with every persisted command replayed.
// The tree is cached until the snapshot or the executed log changes;
// callers must not modify it.
func (c *Controller) StoryGraph() (*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Read the revision before the log so a concurrent change can only
	// make the cache look stale, never fresh.
	execRev := c.queue.Revision()
	if c.built && c.graphSnap == c.snapshotRev && c.graphExec == execRev {
		return c.graph, nil
	}

	executed := c.queue.ExecutedCommands()
	graph, err := c.updater.Load(c.snapshot, executed)
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"nodes":    Count(graph),
		"replayed": len(executed),
	}).Debug("Story graph rebuilt")

	c.graph = graph
	c.graphSnap = c.snapshotRev
	c.graphExec = execRev
	c.built = true
	return graph, nil
}

// FindNodeInGraph looks a node up by type and name in the current graph.
func (c *Controller) FindNodeInGraph(nodeType, name string) (*Node, error) {
	graph, err := c.StoryGraph()
	if err != nil {
		return nil, err
	}
	return Find(graph, nodeType, name), nil
}

// IsErrorDialogDisplayed reports whether an error dialog is open.
func (c *Controller) IsErrorDialogDisplayed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialog != nil
}

// ErrorDialog returns the open dialog, if any.
func (c *Controller) ErrorDialog() (ErrorDialog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialog == nil {
		return ErrorDialog{}, false
	}
	return *c.dialog, true
}

// OnErrorDialog registers fn to run each time a dialog opens. fn must not
// block.
func (c *Controller) OnErrorDialog(fn func(ErrorDialog)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogHooks = append(c.dialogHooks, fn)
}

// DismissErrorDialog closes the dialog. Closing a closed dialog is a no-op.
func (c *Controller) DismissErrorDialog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialog = nil
}

func (c *Controller) showFailure(f Failure) {
	dialog := BuildErrorDialog(f)
	dialog.ShownAt = c.queue.clock.Now()

	c.mu.Lock()
	c.dialog = &dialog
	hooks := append([]func(ErrorDialog){}, c.dialogHooks...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(dialog)
	}

	c.logger.WithFields(logrus.Fields{
		"error_type": dialog.ErrorType,
		"change":     dialog.ChangeID,
	}).Info("Error dialog shown")
}

// BuildErrorDialog turns a failure into a dialog. It always produces a
// dialog; failures that match no template get the generic one.
func BuildErrorDialog(f Failure) ErrorDialog {
	message := strings.TrimSpace(f.Message)
	if message == "" {
		message = "The change could not be saved."
	}

	d := ErrorDialog{
		Message:  message,
		Class:    f.Class,
		Command:  f.Command.Text,
		ChangeID: f.Command.ID,
	}
	switch f.Class {
	case ClassValidation:
		d.Title = "Invalid change"
		d.ErrorType = "ValidationError"
	case ClassHierarchy:
		d.Title = "Story map structure conflict"
		d.ErrorType = "StructuralError"
	default:
		d.Title = "Save failed"
		d.ErrorType = "Error"
		if f.Transport {
			d.ErrorType = "TransportError"
		}
	}

	var stack strings.Builder
	fmt.Fprintf(&stack, "%s: %s", d.ErrorType, message)
	if f.Command.Text != "" {
		fmt.Fprintf(&stack, "\n    at %s", f.Command.Text)
	}
	if f.Command.Type != "" {
		subject := f.Command.Subject()
		if f.Command.Type == ChangeCreate {
			subject = NodeKey{Type: f.Command.NodeType, Name: f.Command.NewNodeName}
		}
		fmt.Fprintf(&stack, "\n    in %s %s", f.Command.Type, subject)
	}
	if f.ErrorType != "" && !strings.EqualFold(f.ErrorType, d.ErrorType) {
		fmt.Fprintf(&stack, "\n    reported as %s", f.ErrorType)
	}
	d.Stack = stack.String()
	return d
}
