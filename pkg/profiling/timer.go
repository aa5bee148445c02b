// Package profiling times the phases of one storymap command: loading
// config, reaching the daemon, and waiting for the worker.
package profiling

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	depth    int
	start    time.Time
	duration time.Duration
	done     bool
}

// Timer records nested spans. Spans must be stopped in reverse start order.
type Timer struct {
	mu      sync.Mutex
	start   time.Time
	spans   []*span
	open    []*span
	enabled bool
}

var global = &Timer{}

// Enable turns on the global timer.
func Enable() {
	global.mu.Lock()
	defer global.mu.Unlock()
	if global.enabled {
		return
	}
	global.enabled = true
	global.start = time.Now()
}

// Start begins a span on the global timer. It is a no-op until Enable.
func Start(name string) Stopper {
	return global.Start(name)
}

// Summarize writes the global timer's spans to w.
func Summarize(w io.Writer) {
	global.Summarize(w)
}

// NewTimer returns an enabled timer.
func NewTimer() *Timer {
	return &Timer{enabled: true, start: time.Now()}
}

// Start begins a span nested under the innermost open span.
func (t *Timer) Start(name string) Stopper {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return noopStopper{}
	}
	s := &span{name: name, depth: len(t.open), start: time.Now()}
	t.spans = append(t.spans, s)
	t.open = append(t.open, s)
	return &stopper{t: t, s: s}
}

type stopper struct {
	t *Timer
	s *span
}

func (st *stopper) Stop() {
	st.t.mu.Lock()
	defer st.t.mu.Unlock()
	if st.s.done {
		return
	}
	st.s.done = true
	st.s.duration = time.Since(st.s.start)
	for i := len(st.t.open) - 1; i >= 0; i-- {
		if st.t.open[i] == st.s {
			st.t.open = append(st.t.open[:i], st.t.open[i+1:]...)
			break
		}
	}
}

// Summarize prints every span in start order with its share of the total.
func (t *Timer) Summarize(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || len(t.spans) == 0 {
		return
	}

	total := time.Since(t.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	for _, s := range t.spans {
		d := s.duration
		if !s.done {
			d = time.Since(s.start)
		}
		pct := 0.0
		if total > 0 {
			pct = float64(d) / float64(total) * 100
		}
		fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", strings.Repeat("  ", s.depth), s.name, d.Round(100*time.Microsecond), pct)
	}
	fmt.Fprintf(w, "total %v\n", total.Round(100*time.Microsecond))
}

type noopStopper struct{}

func (noopStopper) Stop() {}
