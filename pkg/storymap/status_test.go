package storymap

import (
	"testing"
	"time"

	"github.com/grovetools/storymap/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestStatusAutoHide(t *testing.T) {
	clk := clock.Fake(epoch)
	s := NewStatusIndicator(clk)
	assert.Equal(t, StateIdle, s.Current().State)

	s.Saving(2)
	assert.Equal(t, "Saving, 2 pending", s.Current().Message)

	require.True(t, s.Saved())
	s.ScheduleAutoHide(2 * time.Second)

	current := s.Current()
	assert.Equal(t, StateSaved, current.State)
	require.NotNil(t, current.HideAt)
	assert.Equal(t, epoch.Add(2*time.Second), *current.HideAt)

	clk.Advance(time.Second)
	assert.Equal(t, StateSaved, s.Current().State)

	clk.Advance(time.Second)
	assert.Equal(t, StateIdle, s.Current().State)
}

func TestStatusUpdateCancelsAutoHide(t *testing.T) {
	clk := clock.Fake(epoch)
	s := NewStatusIndicator(clk)

	s.Saved()
	s.ScheduleAutoHide(time.Second)
	s.Saving(1)

	clk.Advance(5 * time.Second)
	assert.Equal(t, StateSaving, s.Current().State, "a stale auto-hide must not clear a new save cycle")
	assert.Equal(t, 0, clk.PendingCount())
}

func TestStatusErrorIsSticky(t *testing.T) {
	clk := clock.Fake(epoch)
	s := NewStatusIndicator(clk)

	s.Error("Could not rename story")
	assert.False(t, s.Saved(), "saved must not replace an error")
	s.ScheduleAutoHide(time.Second)
	clk.Advance(time.Minute)

	current := s.Current()
	assert.Equal(t, StateError, current.State)
	assert.True(t, current.IsError)

	s.Dismiss()
	assert.Equal(t, StateIdle, s.Current().State)
}

func TestStatusImmediateHide(t *testing.T) {
	s := NewStatusIndicator(clock.Fake(epoch))
	s.Saved()
	s.ScheduleAutoHide(0)
	assert.Equal(t, StateIdle, s.Current().State)
}

func TestStatusOnChange(t *testing.T) {
	s := NewStatusIndicator(clock.Fake(epoch))

	var seen []SaveState
	unsubscribe := s.OnChange(func(st Status) { seen = append(seen, st.State) })

	s.Saving(1)
	s.Saved()
	s.Error("boom")
	unsubscribe()
	s.Dismiss()

	assert.Equal(t, []SaveState{StateSaving, StateSaved, StateError}, seen)
}
