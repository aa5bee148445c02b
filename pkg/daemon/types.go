package daemon

import (
	"time"

	"github.com/grovetools/storymap/pkg/storymap"
)

// RunningConfig is what the daemon reports from /api/config so clients
// can check which settings it is using.
type RunningConfig struct {
	Worker            string        `json:"worker"`
	WorkingDir        string        `json:"working_dir,omitempty"`
	Debounce          time.Duration `json:"debounce"`
	AutoHide          time.Duration `json:"auto_hide"`
	Timeout           time.Duration `json:"timeout"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	MissingNodePolicy string        `json:"missing_node_policy"`
	Snapshot          string        `json:"snapshot"`
	Socket            string        `json:"socket"`
	StartedAt         time.Time     `json:"started_at"`
}

// QueueInfo describes the save queue.
type QueueInfo struct {
	Length        int               `json:"length"`
	LastAttempted *storymap.Command `json:"last_attempted,omitempty"`
	WorkerRunning bool              `json:"worker_running"`
}

// StateUpdate represents an update pushed from the daemon to subscribers.
type StateUpdate struct {
	UpdateType  string                `json:"update_type"` // "initial", "status", "dialog", "graph"
	Source      string                `json:"source,omitempty"`
	Status      *storymap.Status      `json:"status,omitempty"`
	Dialog      *storymap.ErrorDialog `json:"dialog,omitempty"`
	QueueLength int                   `json:"queue_length"`
}

// FlushRequest asks the daemon to send buffered changes and wait for them.
type FlushRequest struct {
	// WithinMS caps the remaining debounce window; 0 flushes at once.
	WithinMS int64 `json:"within_ms"`
}

// ReturnErrorRequest reports a worker failure for the last attempted change.
type ReturnErrorRequest struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// ReturnErrorResponse says whether a change was rolled back.
type ReturnErrorResponse struct {
	RolledBack bool `json:"rolled_back"`
}

// ExecRequest runs one raw command on the worker.
type ExecRequest struct {
	Command string `json:"command"`
}

// EnqueueResponse acknowledges an accepted change.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// ReloadResponse reports the snapshot that was loaded.
type ReloadResponse struct {
	Groups int `json:"groups"`
}
