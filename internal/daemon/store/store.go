package store

import (
	"sync"

	"github.com/grovetools/storymap/pkg/storymap"
)

// Store is the in-memory state store for the daemon.
// It is thread-safe and supports pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers map[chan Update]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state:       State{Status: storymap.Status{State: storymap.StateIdle}},
		subscribers: make(map[chan Update]struct{}),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.Dialog != nil {
		dialog := *state.Dialog
		state.Dialog = &dialog
	}
	return state
}

// ApplyUpdate modifies the state and notifies subscribers.
func (s *Store) ApplyUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateStatus:
		if status, ok := u.Payload.(storymap.Status); ok {
			s.state.Status = status
		}
	case UpdateDialog:
		switch d := u.Payload.(type) {
		case storymap.ErrorDialog:
			s.state.Dialog = &d
		case nil:
			s.state.Dialog = nil
		}
	case UpdateGraph:
		if rev, ok := u.Payload.(uint64); ok {
			s.state.Revision = rev
		}
	}

	// Broadcast without blocking. A full subscriber loses its oldest
	// update rather than this one, so it always sees the latest state.
	for ch := range s.subscribers {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

// SetQueueLength records the queue length without notifying subscribers;
// status updates already carry the pending count.
func (s *Store) SetQueueLength(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.QueueLength = n
}

// Subscribe creates a new subscription channel for state updates.
func (s *Store) Subscribe() chan Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Update, 100) // Buffered
	s.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
