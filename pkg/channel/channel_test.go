package channel_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/channel/channeltest"
	"github.com/grovetools/storymap/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentinel = "<<<END>>>"

type execResult struct {
	resp channel.Response
	err  error
}

func executeAsync(ch *channel.Channel, command string) <-chan execResult {
	out := make(chan execResult, 1)
	go func() {
		resp, err := ch.Execute(context.Background(), command)
		out <- execResult{resp: resp, err: err}
	}()
	return out
}

func await(t *testing.T, results <-chan execResult) execResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return")
		return execResult{}
	}
}

func TestExecuteAppendsOutputFlag(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	assert.False(t, ch.Running(), "worker is spawned lazily")

	results := executeAsync(ch, "status")
	worker := waitForWorker(t, spawner)

	cmd, err := worker.NextCommand(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "status --json", cmd)

	require.NoError(t, worker.Respond(`{"status":"ok","stories":4}`))
	r := await(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "ok", r.resp.Status())
	assert.Equal(t, float64(4), r.resp["stories"])
	assert.True(t, ch.Running())

	results = executeAsync(ch, "status --json")
	cmd, err = worker.NextCommand(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "status --json", cmd, "flag is not appended twice")
	require.NoError(t, worker.Respond(`{"status":"ok"}`))
	require.NoError(t, await(t, results).err)

	assert.Equal(t, 1, spawner.Count())
}

func TestFramingKeepsLeftoverForNextResponse(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	results := executeAsync(ch, "status")
	worker := waitForWorker(t, spawner)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)

	require.NoError(t, worker.Emit(`{"status":"ok"}`))
	require.NoError(t, worker.Emit(sentinel+`{"status":"ne`))

	r := await(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, channel.Response{"status": "ok"}, r.resp)
	assert.Equal(t, `{"status":"ne`, string(ch.Buffered()))

	results = executeAsync(ch, "show")
	_, err = worker.NextCommand(time.Second)
	require.NoError(t, err)
	require.NoError(t, worker.Emit(`xt"}` + sentinel))

	r = await(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "next", r.resp.Status())
	assert.Empty(t, ch.Buffered())
}

func TestApplicationErrorIsReturnedAsResponse(t *testing.T) {
	spawner := &channeltest.Spawner{
		Sentinel: sentinel,
		OnSpawn: func(w *channeltest.Worker) {
			w.Serve(func(string) string {
				return `{"status":"error","error":"Story \"Login\" already exists under \"Auth\"","error_type":"hierarchy"}`
			})
		},
	}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	resp, err := ch.Execute(context.Background(), `rename "Signup" to "Login"`)
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Equal(t, "hierarchy", resp.ErrorType())
}

func TestTimeoutRejectsAndNextCallSucceeds(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{
		Sentinel:     sentinel,
		Timeout:      50 * time.Millisecond,
		ReadCommands: []string{},
	})
	defer ch.Close()

	start := time.Now()
	results := executeAsync(ch, "status")
	r := await(t, results)
	elapsed := time.Since(start)

	require.Error(t, r.err)
	assert.True(t, errors.Is(r.err, errors.ErrCodeWorkerTimeout))
	assert.Less(t, elapsed, time.Second)

	worker := spawner.Latest()
	require.NotNil(t, worker)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)

	// The slow worker recovers and answers both commands in order; the
	// late answer to the first must not be handed to the second.
	results = executeAsync(ch, "status")
	_, err = worker.NextCommand(time.Second)
	require.NoError(t, err)
	require.NoError(t, worker.Respond(`{"status":"late"}`))
	require.NoError(t, worker.Respond(`{"status":"ok"}`))

	r = await(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "ok", r.resp.Status())
	assert.Equal(t, 1, spawner.Count(), "a timeout does not restart the worker")
}

func TestReadCommandsGetLongerTimeout(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{
		Sentinel:    sentinel,
		Timeout:     time.Second,
		ReadTimeout: 10 * time.Second,
		Clock:       fake,
	})
	defer ch.Close()

	results := executeAsync(ch, "export graph")
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	worker := spawner.Latest()
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)
	require.NoError(t, worker.Respond(`{"status":"ok"}`))
	require.NoError(t, await(t, results).err)

	results = executeAsync(ch, `delete "Login"`)
	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)
	r := await(t, results)
	assert.True(t, errors.Is(r.err, errors.ErrCodeWorkerTimeout))
}

func TestConcurrentExecuteIsRejected(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	first := executeAsync(ch, "status")
	worker := waitForWorker(t, spawner)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)

	_, err = ch.Execute(context.Background(), `delete "Login"`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeChannelBusy))

	require.NoError(t, worker.Respond(`{"status":"ok"}`))
	r := await(t, first)
	require.NoError(t, r.err, "the pending command is unaffected by the rejected one")
	assert.Equal(t, "ok", r.resp.Status())
}

func TestWorkerCrashRejectsAndRespawns(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	results := executeAsync(ch, "status")
	worker := waitForWorker(t, spawner)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)

	worker.Crash(stderrors.New("segfault"))
	r := await(t, results)
	require.Error(t, r.err)
	assert.True(t, errors.Is(r.err, errors.ErrCodeWorkerExited))

	require.Eventually(t, func() bool { return !ch.Running() }, time.Second, 5*time.Millisecond)

	spawner.OnSpawn = func(w *channeltest.Worker) {
		w.Serve(func(string) string { return `{"status":"ok"}` })
	}
	resp, err := ch.Execute(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status())
	assert.Equal(t, 2, spawner.Count())
}

func TestMalformedResponse(t *testing.T) {
	spawner := &channeltest.Spawner{
		Sentinel: sentinel,
		OnSpawn: func(w *channeltest.Worker) {
			w.Serve(func(string) string { return "Traceback: something went wrong" })
		},
	}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	_, err := ch.Execute(context.Background(), "status")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeMalformedResponse))

	// The channel stays usable.
	_, err = ch.Execute(context.Background(), "status")
	assert.True(t, errors.Is(err, errors.ErrCodeMalformedResponse))
	assert.Equal(t, 1, spawner.Count())
}

func TestSpawnFailure(t *testing.T) {
	spawner := &channeltest.Spawner{
		Sentinel: sentinel,
		Err:      errors.WorkerSpawn("story-worker", stderrors.New("not found")),
	}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})

	_, err := ch.Execute(context.Background(), "status")
	assert.True(t, errors.Is(err, errors.ErrCodeWorkerSpawn))
	assert.False(t, ch.Running())
}

func TestCancelledContextReleasesSlot(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ch.Execute(ctx, "status")
		done <- err
	}()

	worker := waitForWorker(t, spawner)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, errors.ErrCodeWorkerTimeout))
	case <-time.After(time.Second):
		t.Fatal("Execute ignored cancellation")
	}

	results := executeAsync(ch, "status")
	_, err = worker.NextCommand(time.Second)
	require.NoError(t, err)
	require.NoError(t, worker.Respond(`{"status":"stale"}`))
	require.NoError(t, worker.Respond(`{"status":"fresh"}`))
	r := await(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "fresh", r.resp.Status())
}

func TestCloseFailsInflightAndLaterCalls(t *testing.T) {
	spawner := &channeltest.Spawner{Sentinel: sentinel}
	ch := channel.New(spawner, channel.Options{Sentinel: sentinel})

	results := executeAsync(ch, "status")
	worker := waitForWorker(t, spawner)
	_, err := worker.NextCommand(time.Second)
	require.NoError(t, err)

	require.NoError(t, ch.Close())
	r := await(t, results)
	assert.True(t, errors.Is(r.err, errors.ErrCodeChannelClosed))
	assert.True(t, worker.Exited())

	_, err = ch.Execute(context.Background(), "status")
	assert.True(t, errors.Is(err, errors.ErrCodeChannelClosed))
	assert.NoError(t, ch.Close(), "Close is idempotent")
}

func TestMultilineCommandRejected(t *testing.T) {
	ch := channel.New(&channeltest.Spawner{Sentinel: sentinel}, channel.Options{Sentinel: sentinel})
	_, err := ch.Execute(context.Background(), "status\ndelete \"Login\"")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func waitForWorker(t *testing.T, spawner *channeltest.Spawner) *channeltest.Worker {
	t.Helper()
	require.Eventually(t, func() bool { return spawner.Latest() != nil }, time.Second, time.Millisecond)
	return spawner.Latest()
}
