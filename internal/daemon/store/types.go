// Package store provides the in-memory state store for the storymap daemon.
package store

import (
	"github.com/grovetools/storymap/pkg/storymap"
)

// State is what the daemon last published about the save pipeline.
type State struct {
	Status      storymap.Status       `json:"status"`
	Dialog      *storymap.ErrorDialog `json:"dialog,omitempty"`
	QueueLength int                   `json:"queue_length"`
	Revision    uint64                `json:"revision"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateStatus UpdateType = "status"
	UpdateDialog UpdateType = "dialog"
	UpdateGraph  UpdateType = "graph"
)

// Update represents a change to the state.
type Update struct {
	Type    UpdateType
	Source  string // "queue", "client", or "snapshot"
	Payload interface{}
}
