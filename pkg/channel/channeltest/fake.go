// Package channeltest provides an in-memory worker for exercising the
// command channel without spawning processes.
package channeltest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grovetools/storymap/pkg/channel"
)

// Worker is an in-memory worker. Commands written by the channel appear on
// Commands; tests answer them with Emit or Respond.
type Worker struct {
	sentinel string

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	commands chan string
	exited   chan struct{}
	once     sync.Once
	exitErr  error
}

// NewWorker returns a Worker that frames responses with sentinel.
func NewWorker(sentinel string) *Worker {
	w := &Worker{
		sentinel: sentinel,
		commands: make(chan string, 64),
		exited:   make(chan struct{}),
	}
	w.stdinR, w.stdinW = io.Pipe()
	w.stdoutR, w.stdoutW = io.Pipe()

	go func() {
		scanner := bufio.NewScanner(w.stdinR)
		for scanner.Scan() {
			w.commands <- scanner.Text()
		}
	}()
	return w
}

func (w *Worker) Stdin() io.Writer  { return w.stdinW }
func (w *Worker) Stdout() io.Reader { return w.stdoutR }

// Kill ends the worker as if the process had been terminated.
func (w *Worker) Kill() error {
	w.exit(io.EOF)
	return nil
}

// Wait blocks until the worker has exited.
func (w *Worker) Wait() error {
	<-w.exited
	if w.exitErr == io.EOF {
		return nil
	}
	return w.exitErr
}

// Crash ends the worker with err, as a process dying mid-command would.
func (w *Worker) Crash(err error) {
	w.exit(err)
}

func (w *Worker) exit(err error) {
	w.once.Do(func() {
		w.exitErr = err
		close(w.exited)
		_ = w.stdoutW.CloseWithError(err)
		_ = w.stdinR.CloseWithError(io.ErrClosedPipe)
	})
}

// Exited reports whether Kill or Crash has been called.
func (w *Worker) Exited() bool {
	select {
	case <-w.exited:
		return true
	default:
		return false
	}
}

// NextCommand waits up to timeout for the next command line.
func (w *Worker) NextCommand(timeout time.Duration) (string, error) {
	select {
	case cmd := <-w.commands:
		return cmd, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no command received within %s", timeout)
	}
}

// Emit writes raw bytes to stdout. It returns once the channel has read them.
func (w *Worker) Emit(chunk string) error {
	_, err := io.WriteString(w.stdoutW, chunk)
	return err
}

// Respond writes body followed by the sentinel.
func (w *Worker) Respond(body string) error {
	return w.Emit(body + w.sentinel)
}

// Serve answers every command with handler's body until the worker exits.
// Returning "" from handler leaves the command unanswered.
func (w *Worker) Serve(handler func(command string) string) {
	go func() {
		for {
			select {
			case cmd := <-w.commands:
				body := handler(cmd)
				if body == "" {
					continue
				}
				if err := w.Respond(body); err != nil {
					return
				}
			case <-w.exited:
				return
			}
		}
	}()
}

// Spawner hands out Workers, creating a fresh one per Spawn.
type Spawner struct {
	Sentinel string
	// OnSpawn, if set, configures each new worker (e.g. calls Serve).
	OnSpawn func(w *Worker)
	// Err, if set, is returned instead of spawning.
	Err error

	mu      sync.Mutex
	workers []*Worker
}

// Spawn implements channel.Spawner.
func (s *Spawner) Spawn(ctx context.Context) (channel.Worker, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	w := NewWorker(s.Sentinel)
	if s.OnSpawn != nil {
		s.OnSpawn(w)
	}

	s.mu.Lock()
	s.workers = append(s.workers, w)
	s.mu.Unlock()
	return w, nil
}

// Count returns how many workers have been spawned.
func (s *Spawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Latest returns the most recently spawned worker, or nil.
func (s *Spawner) Latest() *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.workers) == 0 {
		return nil
	}
	return s.workers[len(s.workers)-1]
}
