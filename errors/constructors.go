package errors

import (
	"fmt"
	"os/exec"
	"time"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// WorkerSpawn creates an error for a worker process that could not be started
func WorkerSpawn(command string, err error) *Error {
	return Wrap(err, ErrCodeWorkerSpawn, fmt.Sprintf("failed to start worker: %s", command)).
		WithDetail("command", command)
}

// WorkerTimeout creates an error for a command that got no response in time
func WorkerTimeout(command string, timeout time.Duration) *Error {
	return New(ErrCodeWorkerTimeout,
		fmt.Sprintf("no response to '%s' within %s", command, timeout)).
		WithDetail("command", command).
		WithDetail("timeout", timeout.String())
}

// WorkerExited creates an error for a worker that died while a command was pending
func WorkerExited(command string, err error) *Error {
	e := Wrap(err, ErrCodeWorkerExited, "worker exited while a command was pending").
		WithDetail("command", command)

	if exitErr, ok := err.(*exec.ExitError); ok {
		e = e.WithDetail("exitCode", exitErr.ExitCode())
	}

	return e
}

// MalformedResponse creates an error for worker output that holds no JSON object
func MalformedResponse(payload string) *Error {
	if len(payload) > 200 {
		payload = payload[:200] + "..."
	}
	return New(ErrCodeMalformedResponse, "worker response contains no JSON object").
		WithDetail("payload", payload)
}

// ChannelBusy creates an error for a second Execute while one is in flight
func ChannelBusy(pending, rejected string) *Error {
	return New(ErrCodeChannelBusy,
		fmt.Sprintf("command '%s' is still in flight", pending)).
		WithDetail("pending", pending).
		WithDetail("rejected", rejected)
}

// ChannelClosed creates an error for calls made after Close
func ChannelClosed() *Error {
	return New(ErrCodeChannelClosed, "command channel is closed")
}

// CommandRejected creates an error for a worker-reported application failure
func CommandRejected(command, errorType, message string) *Error {
	return New(ErrCodeCommandRejected, message).
		WithDetail("command", command).
		WithDetail("errorType", errorType)
}

// InvalidChange creates an error for a structurally invalid story map change
func InvalidChange(changeType, reason string) *Error {
	return New(ErrCodeInvalidChange, fmt.Sprintf("invalid %s change: %s", changeType, reason)).
		WithDetail("type", changeType)
}

// NodeNotFound creates an error for a lookup that matched no node
func NodeNotFound(nodeType, name string) *Error {
	return New(ErrCodeNodeNotFound, fmt.Sprintf("%s '%s' not found in story graph", nodeType, name)).
		WithDetail("nodeType", nodeType).
		WithDetail("name", name)
}

// SnapshotError creates an error for a snapshot that cannot be read or written
func SnapshotError(path string, err error) *Error {
	return Wrap(err, ErrCodeSnapshot, fmt.Sprintf("story graph snapshot unavailable: %s", path)).
		WithDetail("path", path)
}

// DaemonUnavailable creates an error for a daemon that cannot be reached
func DaemonUnavailable(socket string, err error) *Error {
	return Wrap(err, ErrCodeDaemonUnavailable, "storymap daemon is not reachable").
		WithDetail("socket", socket)
}
