package storymap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/clock"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultDebounce is the quiet period before buffered changes are sent.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultAutoHide is how long "saved" stays visible.
	DefaultAutoHide = 2 * time.Second
)

// Executor sends one command line to the worker. *channel.Channel
// implements it.
type Executor interface {
	Execute(ctx context.Context, command string) (channel.Response, error)
}

// Failure describes a change the worker rejected or never confirmed.
type Failure struct {
	Command   Command    `json:"command"`
	Class     ErrorClass `json:"class"`
	ErrorType string     `json:"error_type,omitempty"`
	Message   string     `json:"message"`
	// Transport is set when the command never got a worker response.
	Transport bool  `json:"transport,omitempty"`
	Err       error `json:"-"`
}

// QueueOptions configures a Queue. Zero values fall back to the defaults.
type QueueOptions struct {
	// Debounce below zero sends every change as soon as it is enqueued.
	Debounce time.Duration
	AutoHide time.Duration
	Clock    clock.Clock
	Logger   *logrus.Entry
	// Status is created when nil.
	Status *StatusIndicator
}

// Queue buffers changes, applies them optimistically, and commits them to
// the worker one at a time, in enqueue order, after a debounce window.
type Queue struct {
	exec     Executor
	debounce time.Duration
	autoHide time.Duration
	clock    clock.Clock
	logger   *logrus.Entry
	status   *StatusIndicator

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	dom      domState
	buffer   []Change
	batches  [][]Change
	busy     bool
	pending  int
	timer    *clock.Timer
	seq      uint64
	closed   bool
	changed  chan struct{}
	executed []*Command
	revision uint64
	// lastAttempted is the most recent change handed to the worker,
	// whatever its outcome. ReturnError resolves against it.
	lastAttempted *Command
	rolledBack    map[string]bool
	// seen holds every change ID ever enqueued. Outcomes are keyed by ID,
	// so an ID is accepted once.
	seen map[string]bool
	// cycleFailed records a failure since the queue last drained.
	cycleFailed bool
	onFailure     []func(Failure)
}

// NewQueue creates a Queue and starts its dispatcher.
func NewQueue(exec Executor, opts QueueOptions) *Queue {
	if opts.Debounce < 0 {
		opts.Debounce = 0
	} else if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.AutoHide <= 0 {
		opts.AutoHide = DefaultAutoHide
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Status == nil {
		opts.Status = NewStatusIndicator(opts.Clock)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		exec:       exec,
		debounce:   opts.Debounce,
		autoHide:   opts.AutoHide,
		clock:      opts.Clock,
		logger:     opts.Logger,
		status:     opts.Status,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		changed:    make(chan struct{}),
		rolledBack: make(map[string]bool),
		seen:       make(map[string]bool),
	}
	go q.run()
	return q
}

// Enqueue validates and buffers a change, applies it to the DOM state, and
// restarts the debounce window. It never blocks on the worker.
func (q *Queue) Enqueue(change Change) error {
	if err := change.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.New(errors.ErrCodeQueueClosed, "save queue is closed")
	}
	if q.seen[change.ID] {
		return errors.InvalidChange(string(change.Type), "change id was already enqueued").WithDetail("id", change.ID)
	}
	q.seen[change.ID] = true

	q.dom.apply(change)
	q.buffer = append(q.buffer, change)
	q.pending++
	// An error stays visible until this cycle's outcome is known.
	if q.status.Current().State != StateError {
		q.status.Saving(q.pending)
	}

	q.logger.WithFields(logrus.Fields{
		"change":  change.ID,
		"type":    change.Type,
		"node":    change.Subject().String(),
		"pending": q.pending,
	}).Debug("Change enqueued")

	q.armDebounceLocked()
	q.notifyLocked()
	return nil
}

// CompleteSaveSuccessfully marks the save cycle as confirmed. An error
// status is left in place.
func (q *Queue) CompleteSaveSuccessfully() {
	if q.status.Saved() {
		q.status.ScheduleAutoHide(q.autoHide)
	}
}

// ReturnError reports an asynchronous worker failure for the most recently
// attempted change and rolls it back. It returns false when there is
// nothing left to roll back.
func (q *Queue) ReturnError(errorType, message string) bool {
	q.mu.Lock()
	cmd := q.lastAttempted
	if cmd == nil {
		q.mu.Unlock()
		q.status.Error(message)
		q.emitFailure(Failure{
			Class:     ClassifyErrorType(errorType, message),
			ErrorType: errorType,
			Message:   message,
		})
		return false
	}
	failure := Failure{
		Command:   *cmd,
		Class:     ClassifyErrorType(errorType, message),
		ErrorType: errorType,
		Message:   message,
	}
	ok := q.failLocked(cmd, failure)
	q.mu.Unlock()

	if ok {
		q.emitFailure(failure)
	}
	return ok
}

// OnFailure registers fn to run after every rollback.
func (q *Queue) OnFailure(fn func(Failure)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = append(q.onFailure, fn)
}

// Len returns the number of changes not yet resolved.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// DOMState returns a copy of the optimistic view state.
func (q *Queue) DOMState() DOMState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dom.snapshot()
}

// Status returns the save status.
func (q *Queue) Status() Status {
	return q.status.Current()
}

// StatusIndicator returns the indicator the queue drives.
func (q *Queue) StatusIndicator() *StatusIndicator {
	return q.status
}

// ExecutedCommands returns a copy of the executed-command log.
func (q *Queue) ExecutedCommands() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Command, len(q.executed))
	for i, c := range q.executed {
		out[i] = *c
	}
	return out
}

// LastAttempted returns the most recent change sent to the worker.
func (q *Queue) LastAttempted() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lastAttempted == nil {
		return Command{}, false
	}
	return *q.lastAttempted, true
}

// Revision changes whenever the executed-command log does.
func (q *Queue) Revision() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.revision
}

// WaitForDebounce makes buffered changes flush after d at the latest (at
// once when d <= 0), then waits until every change has been resolved.
func (q *Queue) WaitForDebounce(ctx context.Context, d time.Duration) error {
	q.mu.Lock()
	if len(q.buffer) > 0 {
		if d <= 0 {
			q.flushLocked()
		} else {
			q.clock.AfterFunc(d, q.forceFlush)
		}
	}
	q.mu.Unlock()

	return q.WaitIdle(ctx)
}

// WaitIdle blocks until nothing is buffered, queued, or in flight.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := len(q.buffer) == 0 && len(q.batches) == 0 && !q.busy
		changed := q.changed
		q.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the dispatcher. Changes that were never sent are rolled back;
// a change in flight is abandoned and rolled back as well.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	q.stopTimerLocked()

	var unsent []Change
	unsent = append(unsent, q.buffer...)
	for _, batch := range q.batches {
		unsent = append(unsent, batch...)
	}
	q.buffer = nil
	q.batches = nil
	for _, c := range unsent {
		q.dom.rollback(c.ID)
		q.rolledBack[c.ID] = true
		q.pending--
	}
	if len(unsent) > 0 {
		q.status.Error(fmt.Sprintf("%d unsaved changes discarded", len(unsent)))
		q.logger.WithField("discarded", len(unsent)).Warn("Save queue closed with unsent changes")
	}
	q.notifyLocked()
	q.mu.Unlock()

	q.cancel()
	<-q.done
	return nil
}

// armDebounceLocked restarts the debounce window.
func (q *Queue) armDebounceLocked() {
	q.stopTimerLocked()
	if q.debounce <= 0 {
		q.flushLocked()
		return
	}
	seq := q.seq
	q.timer = q.clock.AfterFunc(q.debounce, func() { q.fire(seq) })
}

func (q *Queue) stopTimerLocked() {
	q.seq++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// fire is the debounce callback for window seq.
func (q *Queue) fire(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seq != q.seq || q.closed {
		return
	}
	q.flushLocked()
}

func (q *Queue) forceFlush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.flushLocked()
}

// flushLocked hands the buffered changes to the dispatcher as one batch.
func (q *Queue) flushLocked() {
	q.stopTimerLocked()
	if len(q.buffer) == 0 {
		return
	}
	q.batches = append(q.batches, q.buffer)
	q.logger.WithField("changes", len(q.buffer)).Debug("Debounce window closed")
	q.buffer = nil
	q.notifyLocked()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the dispatcher. It is the only goroutine that talks to the
// executor, so commands go out strictly in enqueue order.
func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.wake:
		case <-q.ctx.Done():
			return
		}

		for {
			q.mu.Lock()
			if len(q.batches) == 0 || q.ctx.Err() != nil {
				q.mu.Unlock()
				break
			}
			batch := q.batches[0]
			q.batches = q.batches[1:]
			q.busy = true
			q.mu.Unlock()

			failed := q.processBatch(batch)

			q.mu.Lock()
			q.busy = false
			q.cycleFailed = q.cycleFailed || failed
			// Completing under the lock keeps a concurrent Enqueue from
			// being overwritten by "saved".
			if len(q.buffer) == 0 && len(q.batches) == 0 {
				if !q.cycleFailed {
					q.completeCycleLocked()
				}
				q.cycleFailed = false
			}
			q.notifyLocked()
			q.mu.Unlock()
		}
	}
}

// completeCycleLocked ends a cycle in which every change was confirmed. It
// also clears an error left over from an earlier cycle.
func (q *Queue) completeCycleLocked() {
	if q.status.Current().State == StateError {
		q.status.Resolve()
		q.status.ScheduleAutoHide(q.autoHide)
		return
	}
	q.CompleteSaveSuccessfully()
}

// processBatch sends each change in order and reports whether any failed.
func (q *Queue) processBatch(batch []Change) bool {
	failed := false
	for _, change := range batch {
		if !q.processOne(change) {
			failed = true
		}
	}
	return failed
}

func (q *Queue) processOne(change Change) bool {
	cmd := &Command{Change: change}
	text, renderErr := RenderCommand(change)
	cmd.Text = text

	q.mu.Lock()
	q.lastAttempted = cmd
	q.mu.Unlock()

	logger := q.logger.WithFields(logrus.Fields{
		"change":  change.ID,
		"command": text,
	})

	var failure *Failure
	switch {
	case renderErr != nil:
		failure = &Failure{Class: ClassValidation, Message: renderErr.Error(), Err: renderErr}
	case q.ctx.Err() != nil:
		err := errors.New(errors.ErrCodeQueueClosed, "save queue closed before the change was sent")
		failure = &Failure{Class: ClassUnknown, Message: err.Message, Transport: true, Err: err}
	default:
		resp, err := q.exec.Execute(q.ctx, text)
		switch {
		case err != nil:
			failure = &Failure{Class: ClassUnknown, Message: err.Error(), Transport: true, Err: err}
		case resp.IsError():
			failure = &Failure{
				Class:     ClassifyError(resp),
				ErrorType: resp.ErrorType(),
				Message:   resp.ErrorMessage(),
			}
			if failure.Message == "" {
				failure.Message = "worker rejected the command"
			}
		}
	}

	if failure == nil {
		q.mu.Lock()
		if q.rolledBack[cmd.ID] {
			// ReturnError already reported this change as failed.
			q.pending--
			q.mu.Unlock()
			logger.Debug("Ignoring confirmation for a change already rolled back")
			return false
		}
		cmd.Persisted = true
		q.executed = append(q.executed, cmd)
		q.revision++
		q.pending--
		if q.status.Current().State == StateSaving {
			q.status.Saving(q.pending)
		}
		q.mu.Unlock()
		logger.Debug("Change persisted")
		return true
	}

	failure.Command = *cmd
	logger.WithFields(logrus.Fields{
		"class":     failure.Class,
		"transport": failure.Transport,
	}).Warnf("Change failed: %s", failure.Message)

	q.mu.Lock()
	q.pending--
	ok := q.failLocked(cmd, *failure)
	q.mu.Unlock()
	if ok {
		q.emitFailure(*failure)
	}
	return false
}

// failLocked rolls back cmd's optimistic update and shows the error. A
// persisted command that is later reported failed stops counting as
// persisted; the log entry itself stays. It returns false if cmd was
// already rolled back.
func (q *Queue) failLocked(cmd *Command, failure Failure) bool {
	if q.rolledBack[cmd.ID] {
		return false
	}
	q.rolledBack[cmd.ID] = true
	if q.busy || len(q.batches) > 0 {
		q.cycleFailed = true
	}

	if rb, ok := q.dom.rollback(cmd.ID); ok {
		q.logger.WithFields(logrus.Fields{
			"change": cmd.ID,
			"node":   rb.Node.String(),
		}).Debug("Optimistic update rolled back")
	}
	if cmd.Persisted {
		cmd.Persisted = false
		q.revision++
	}

	q.status.Error(failureMessage(cmd.Change, failure.Message))
	q.notifyLocked()
	return true
}

func (q *Queue) emitFailure(f Failure) {
	q.mu.Lock()
	hooks := append([]func(Failure){}, q.onFailure...)
	q.mu.Unlock()
	for _, fn := range hooks {
		fn(f)
	}
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func failureMessage(c Change, message string) string {
	subject := c.Subject()
	if c.Type == ChangeCreate {
		subject = NodeKey{Type: c.NodeType, Name: c.NewNodeName}
	}
	if subject.Name == "" {
		return message
	}
	return fmt.Sprintf("Could not %s %s: %s", c.Type, subject, message)
}
