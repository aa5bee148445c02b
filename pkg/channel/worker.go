package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/grovetools/storymap/command"
	"github.com/grovetools/storymap/errors"
	"github.com/sirupsen/logrus"
)

// Worker is a running backend process as seen by the Channel.
type Worker interface {
	// Stdin receives one command per line.
	Stdin() io.Writer

	// Stdout carries responses, each followed by the sentinel.
	Stdout() io.Reader

	// Kill terminates the process.
	Kill() error

	// Wait blocks until the process has exited. The Channel calls it once
	// stdout reaches EOF.
	Wait() error
}

// Spawner starts workers. The Channel calls Spawn lazily and again after
// a worker dies.
type Spawner interface {
	Spawn(ctx context.Context) (Worker, error)
}

// ExecSpawner starts the worker as an operating system process.
type ExecSpawner struct {
	Executor command.Executor
	Name     string
	Args     []string
	// Dir is the worker's working directory. Empty means inherit.
	Dir string
	// Env entries ("KEY=VALUE") are added to the current environment.
	Env    []string
	Logger *logrus.Entry
}

// Spawn starts the process with piped stdin/stdout. Stderr lines are
// forwarded to the debug log; they are never part of the protocol.
func (s *ExecSpawner) Spawn(ctx context.Context) (Worker, error) {
	executor := s.Executor
	if executor == nil {
		executor = command.RealExecutor{}
	}

	// The worker outlives the request that happened to spawn it, so the
	// context only gates the start.
	if err := ctx.Err(); err != nil {
		return nil, errors.WorkerSpawn(s.describe(), err)
	}

	cmd := executor.Command(s.Name, s.Args...)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WorkerSpawn(s.describe(), err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WorkerSpawn(s.describe(), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.WorkerSpawn(s.describe(), err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.WorkerSpawn(s.describe(), err)
	}

	logger := s.Logger
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"pid":     cmd.Process.Pid,
			"command": s.describe(),
			"dir":     s.Dir,
		}).Debug("Worker started")
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if logger != nil {
				logger.WithField("stream", "stderr").Debug(scanner.Text())
			}
		}
	}()

	return &execWorker{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (s *ExecSpawner) describe() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s %s", s.Name, strings.Join(s.Args, " "))
}

type execWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (w *execWorker) Stdin() io.Writer  { return w.stdin }
func (w *execWorker) Stdout() io.Reader { return w.stdout }

func (w *execWorker) Kill() error {
	_ = w.stdin.Close()
	if w.cmd.Process == nil {
		return nil
	}
	if err := w.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}

func (w *execWorker) Wait() error {
	return w.cmd.Wait()
}
