package channel

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/clock"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSentinel terminates every worker response.
	DefaultSentinel = "<<<END_OF_RESPONSE>>>"

	// DefaultOutputFlag asks the worker for machine-readable output.
	DefaultOutputFlag = "--json"

	// DefaultTimeout bounds ordinary commands.
	DefaultTimeout = 30 * time.Second

	// DefaultReadTimeout bounds read-heavy commands.
	DefaultReadTimeout = 2 * time.Minute

	readChunkSize = 4096
)

// DefaultReadCommands are verbs that get the longer read timeout.
var DefaultReadCommands = []string{"status", "show", "list", "get", "export"}

// Options configures a Channel. Zero values fall back to the defaults.
type Options struct {
	Sentinel     string
	OutputFlag   string
	Timeout      time.Duration
	ReadTimeout  time.Duration
	ReadCommands []string
	Clock        clock.Clock
	Logger       *logrus.Entry
}

// Channel multiplexes synchronous commands over a worker's byte streams.
// At most one command is in flight; a concurrent Execute is rejected with
// ErrCodeChannelBusy rather than queued.
type Channel struct {
	spawner Spawner
	opts    Options
	clock   clock.Clock
	logger  *logrus.Entry

	mu         sync.Mutex
	worker     Worker
	generation uint64
	framer     *Framer
	slot       *inflight
	// abandoned counts commands whose caller gave up. Their responses
	// still arrive eventually and must not be handed to a later command.
	abandoned int
	nextID    uint64
	closed    bool
}

// inflight is the single outstanding-request slot.
type inflight struct {
	id      uint64
	command string
	done    chan result
	timer   *clock.Timer
}

type result struct {
	resp Response
	err  error
}

// New creates a Channel. The worker is not started until the first Execute.
func New(spawner Spawner, opts Options) *Channel {
	if opts.Sentinel == "" {
		opts.Sentinel = DefaultSentinel
	}
	if opts.OutputFlag == "" {
		opts.OutputFlag = DefaultOutputFlag
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReadCommands == nil {
		opts.ReadCommands = DefaultReadCommands
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Channel{
		spawner: spawner,
		opts:    opts,
		clock:   opts.Clock,
		logger:  opts.Logger,
		framer:  NewFramer(opts.Sentinel),
	}
}

// Execute sends command to the worker and waits for its response. An
// application failure (status "error") is returned as a Response, not an
// error; errors are reserved for transport problems: timeout, a dead
// worker, malformed output, or a busy or closed channel.
func (c *Channel) Execute(ctx context.Context, command string) (Response, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, errors.New(errors.ErrCodeInvalidInput, "command must be a single line").
			WithDetail("command", command)
	}
	line := c.withOutputFlag(strings.TrimSpace(command))
	timeout := c.timeoutFor(line)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.ChannelClosed()
	}
	if c.slot != nil {
		pending := c.slot.command
		c.mu.Unlock()
		return nil, errors.ChannelBusy(pending, line)
	}
	if c.worker == nil {
		if err := c.spawnLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}

	c.nextID++
	slot := &inflight{
		id:      c.nextID,
		command: line,
		done:    make(chan result, 1),
	}
	slot.timer = c.clock.AfterFunc(timeout, func() { c.expire(slot.id, timeout) })
	c.slot = slot
	worker := c.worker
	generation := c.generation
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"command": line,
		"timeout": timeout.String(),
	}).Debug("Sending command to worker")

	// Written outside the lock: a worker blocked on a full stdout pipe
	// must still be drained by the reader while we write.
	if _, err := io.WriteString(worker.Stdin(), line+"\n"); err != nil {
		c.workerFailed(generation, err)
	}

	select {
	case r := <-slot.done:
		return r.resp, r.err
	case <-ctx.Done():
		if c.abandon(slot.id) {
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeWorkerTimeout, "command cancelled").
				WithDetail("command", line)
		}
		// The slot was resolved concurrently; report what it got.
		r := <-slot.done
		return r.resp, r.err
	}
}

// Running reports whether a worker process is currently attached.
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.worker != nil
}

// Buffered returns output received after the last complete response.
func (c *Channel) Buffered() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framer.Buffered()
}

// Close terminates the worker and fails any in-flight command. The channel
// cannot be used afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	worker := c.worker
	c.detachLocked()
	slot := c.takeSlotLocked(0)
	c.mu.Unlock()

	if slot != nil {
		slot.done <- result{err: errors.ChannelClosed()}
	}
	if worker == nil {
		return nil
	}
	c.logger.Debug("Terminating worker")
	return worker.Kill()
}

func (c *Channel) spawnLocked(ctx context.Context) error {
	worker, err := c.spawner.Spawn(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to spawn worker")
		return err
	}

	c.generation++
	c.worker = worker
	c.framer.Reset()
	c.abandoned = 0

	go c.readLoop(c.generation, worker)
	return nil
}

// readLoop pumps stdout into the framer until the worker goes away.
func (c *Channel) readLoop(generation uint64, worker Worker) {
	buf := make([]byte, readChunkSize)
	stdout := worker.Stdout()
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			c.handleOutput(generation, buf[:n])
		}
		if err != nil {
			waitErr := worker.Wait()
			if err == io.EOF {
				err = waitErr
			}
			c.workerFailed(generation, err)
			return
		}
	}
}

// handleOutput feeds a chunk to the framer and resolves the in-flight
// command with the first complete frame.
func (c *Channel) handleOutput(generation uint64, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}

	_, _ = c.framer.Write(chunk)
	for {
		frame, ok := c.framer.Next()
		if !ok {
			return
		}

		if c.abandoned > 0 {
			c.abandoned--
			c.logger.WithField("bytes", len(frame)).Debug("Discarding late response")
			continue
		}

		slot := c.takeSlotLocked(0)
		if slot == nil {
			c.logger.WithField("bytes", len(frame)).Warn("Discarding unsolicited worker output")
			continue
		}

		resp, err := ExtractObject(frame)
		if err != nil {
			c.logger.WithError(err).WithField("command", slot.command).Warn("Malformed worker response")
		}
		slot.done <- result{resp: resp, err: err}
	}
}

// workerFailed handles a dead or unwritable worker: the in-flight command
// fails and the handle is dropped so the next Execute respawns.
func (c *Channel) workerFailed(generation uint64, cause error) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	worker := c.worker
	c.detachLocked()
	slot := c.takeSlotLocked(0)
	c.mu.Unlock()

	fields := logrus.Fields{"generation": generation}
	if slot != nil {
		fields["command"] = slot.command
	}
	c.logger.WithFields(fields).WithError(cause).Warn("Worker exited")

	if worker != nil {
		_ = worker.Kill()
	}
	if slot != nil {
		command := slot.command
		slot.done <- result{err: errors.WorkerExited(command, cause)}
	}
}

// expire is the timeout callback for slot id.
func (c *Channel) expire(id uint64, timeout time.Duration) {
	c.mu.Lock()
	slot := c.takeSlotLocked(id)
	if slot != nil {
		c.abandoned++
	}
	c.mu.Unlock()

	if slot == nil {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"command": slot.command,
		"timeout": timeout.String(),
	}).Warn("Worker response timed out")
	slot.done <- result{err: errors.WorkerTimeout(slot.command, timeout)}
}

// abandon releases slot id after the caller's context ended. It returns
// false if the slot had already been resolved.
func (c *Channel) abandon(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot := c.takeSlotLocked(id); slot != nil {
		c.abandoned++
		return true
	}
	return false
}

// takeSlotLocked clears and returns the in-flight slot. A non-zero id only
// matches that slot. Whoever takes the slot owns the single send on done.
func (c *Channel) takeSlotLocked(id uint64) *inflight {
	slot := c.slot
	if slot == nil || (id != 0 && slot.id != id) {
		return nil
	}
	c.slot = nil
	if slot.timer != nil {
		slot.timer.Stop()
	}
	return slot
}

func (c *Channel) detachLocked() {
	c.worker = nil
	c.generation++
	c.framer.Reset()
	c.abandoned = 0
}

func (c *Channel) withOutputFlag(line string) string {
	flag := c.opts.OutputFlag
	for _, field := range strings.Fields(line) {
		if field == flag {
			return line
		}
	}
	return line + " " + flag
}

func (c *Channel) timeoutFor(line string) time.Duration {
	verb := line
	if i := strings.IndexByte(line, ' '); i >= 0 {
		verb = line[:i]
	}
	for _, rc := range c.opts.ReadCommands {
		if verb == rc {
			return c.opts.ReadTimeout
		}
	}
	return c.opts.Timeout
}
