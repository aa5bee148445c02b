package command

import "os/exec"

// Executor builds the exec.Cmd for a worker. The channel spawns through it
// so embedders can wrap the worker (nice, a container shim) and tests can
// swap in a stub binary.
type Executor interface {
	Command(name string, args ...string) *exec.Cmd
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(name string, args ...string) *exec.Cmd

// Command calls f.
func (f ExecutorFunc) Command(name string, args ...string) *exec.Cmd {
	return f(name, args...)
}

// RealExecutor runs the worker binary as given.
type RealExecutor struct{}

// Command returns exec.Command(name, args...).
func (RealExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// Wrap returns an Executor that runs the worker under prefix, for example
// Wrap(RealExecutor{}, "nice", "-n", "10").
func Wrap(inner Executor, prefix ...string) Executor {
	if len(prefix) == 0 {
		return inner
	}
	return ExecutorFunc(func(name string, args ...string) *exec.Cmd {
		full := append(append(append([]string{}, prefix[1:]...), name), args...)
		return inner.Command(prefix[0], full...)
	})
}
