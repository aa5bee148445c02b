package storymap

import (
	"fmt"
	"sync"
	"time"

	"github.com/grovetools/storymap/pkg/clock"
	"github.com/grovetools/storymap/tui/theme"
)

// SaveState is the save-status state shown to the user.
type SaveState string

const (
	StateIdle   SaveState = "idle"
	StateSaving SaveState = "saving"
	StateSaved  SaveState = "saved"
	StateError  SaveState = "error"
)

// Status is a snapshot of the StatusIndicator.
type Status struct {
	State   SaveState  `json:"state"`
	Icon    string     `json:"icon"`
	Message string     `json:"message"`
	IsError bool       `json:"is_error"`
	Pending int        `json:"pending,omitempty"`
	HideAt  *time.Time `json:"hide_at,omitempty"`
}

// StatusIndicator is the save-status state machine. Exactly one state is
// active at a time. An error stays until the next save cycle or Dismiss.
type StatusIndicator struct {
	clock clock.Clock

	mu        sync.Mutex
	status    Status
	hideTimer *clock.Timer
	hideSeq   uint64
	nextSub   int
	subs      map[int]func(Status)
}

// NewStatusIndicator starts idle.
func NewStatusIndicator(clk clock.Clock) *StatusIndicator {
	if clk == nil {
		clk = clock.Real()
	}
	return &StatusIndicator{
		clock:  clk,
		status: Status{State: StateIdle, Icon: theme.IconIdle},
		subs:   make(map[int]func(Status)),
	}
}

// Current returns the active status.
func (s *StatusIndicator) Current() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Update switches to state and cancels any pending auto-hide.
func (s *StatusIndicator) Update(state SaveState, icon, message string, isError bool) {
	s.set(Status{State: state, Icon: icon, Message: message, IsError: isError})
}

// Saving shows the number of changes not yet confirmed.
func (s *StatusIndicator) Saving(pending int) {
	msg := "Saving..."
	if pending > 0 {
		msg = fmt.Sprintf("Saving, %d pending", pending)
	}
	s.set(Status{State: StateSaving, Icon: theme.IconSaving, Message: msg, Pending: pending})
}

// Saved shows success. It does nothing while an error is displayed.
func (s *StatusIndicator) Saved() bool {
	s.mu.Lock()
	if s.status.State == StateError {
		s.mu.Unlock()
		return false
	}
	status := Status{State: StateSaved, Icon: theme.IconSuccess, Message: "Saved"}
	subs := s.setLocked(status)
	s.mu.Unlock()

	notify(subs, status)
	return true
}

// Resolve shows success even over an error. The queue calls it when a
// later cycle confirms every change it sent.
func (s *StatusIndicator) Resolve() {
	s.set(Status{State: StateSaved, Icon: theme.IconSuccess, Message: "Saved"})
}

// Error shows a sticky error.
func (s *StatusIndicator) Error(message string) {
	s.set(Status{State: StateError, Icon: theme.IconError, Message: message, IsError: true})
}

// Dismiss clears whatever is shown, including an error.
func (s *StatusIndicator) Dismiss() {
	s.set(Status{State: StateIdle, Icon: theme.IconIdle})
}

// ScheduleAutoHide returns to idle after d. It only applies while saved;
// any later Update cancels it.
func (s *StatusIndicator) ScheduleAutoHide(d time.Duration) {
	s.mu.Lock()
	if s.status.State != StateSaved {
		s.mu.Unlock()
		return
	}
	s.stopHideLocked()
	seq := s.hideSeq
	if d <= 0 {
		s.mu.Unlock()
		s.hide(seq)
		return
	}
	hideAt := s.clock.Now().Add(d)
	s.status.HideAt = &hideAt
	snapshot := s.status
	s.hideTimer = s.clock.AfterFunc(d, func() { s.hide(seq) })
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, snapshot)
}

// OnChange registers fn to receive every status change. fn runs on the
// goroutine that changed the status and must not block.
func (s *StatusIndicator) OnChange(fn func(Status)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *StatusIndicator) hide(seq uint64) {
	s.mu.Lock()
	if seq != s.hideSeq || s.status.State != StateSaved {
		s.mu.Unlock()
		return
	}
	status := Status{State: StateIdle, Icon: theme.IconIdle}
	subs := s.setLocked(status)
	s.mu.Unlock()

	notify(subs, status)
}

func (s *StatusIndicator) set(status Status) {
	s.mu.Lock()
	subs := s.setLocked(status)
	s.mu.Unlock()

	notify(subs, status)
}

func (s *StatusIndicator) setLocked(status Status) []func(Status) {
	s.stopHideLocked()
	s.status = status
	return s.subscribersLocked()
}

func (s *StatusIndicator) stopHideLocked() {
	s.hideSeq++
	if s.hideTimer != nil {
		s.hideTimer.Stop()
		s.hideTimer = nil
	}
}

func (s *StatusIndicator) subscribersLocked() []func(Status) {
	subs := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Status), status Status) {
	for _, fn := range subs {
		fn(status)
	}
}
