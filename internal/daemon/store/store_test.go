package store

import (
	"testing"

	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdateBroadcasts(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	status := storymap.Status{State: storymap.StateSaving, Message: "Saving, 1 pending", Pending: 1}
	st.ApplyUpdate(Update{Type: UpdateStatus, Source: "queue", Payload: status})

	got := <-ch
	assert.Equal(t, UpdateStatus, got.Type)
	assert.Equal(t, status, st.Get().Status)
}

func TestDialogSetAndClear(t *testing.T) {
	st := New()

	st.ApplyUpdate(Update{Type: UpdateDialog, Payload: storymap.ErrorDialog{Title: "Invalid change"}})
	require.NotNil(t, st.Get().Dialog)
	assert.Equal(t, "Invalid change", st.Get().Dialog.Title)

	copied := st.Get()
	copied.Dialog.Title = "changed"
	assert.Equal(t, "Invalid change", st.Get().Dialog.Title, "Get returns a copy")

	st.ApplyUpdate(Update{Type: UpdateDialog, Payload: nil})
	assert.Nil(t, st.Get().Dialog)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	st := New()
	ch := st.Subscribe()

	for i := 0; i < 250; i++ {
		st.ApplyUpdate(Update{Type: UpdateGraph, Payload: uint64(i)})
	}
	assert.Len(t, ch, 100)
	assert.Equal(t, uint64(249), st.Get().Revision)

	st.Unsubscribe(ch)
	st.Unsubscribe(ch)
	assert.Equal(t, 0, st.Subscribers())
}

func TestFullSubscriberKeepsLatestUpdate(t *testing.T) {
	st := New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	for i := 0; i < 150; i++ {
		st.ApplyUpdate(Update{Type: UpdateStatus, Payload: storymap.Status{State: storymap.StateSaving, Pending: i}})
	}
	st.ApplyUpdate(Update{Type: UpdateStatus, Payload: storymap.Status{State: storymap.StateSaved}})

	var last Update
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, storymap.StateSaved, last.Payload.(storymap.Status).State)
}
