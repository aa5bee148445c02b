package daemon_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/internal/daemon/engine"
	"github.com/grovetools/storymap/internal/daemon/server"
	"github.com/grovetools/storymap/internal/daemon/store"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/channel/channeltest"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemote(t *testing.T) *daemon.RemoteClient {
	t.Helper()
	cfg := config.Default()
	cfg.Queue.Debounce = config.Duration(time.Millisecond)

	spawner := &channeltest.Spawner{
		Sentinel: cfg.Worker.Sentinel,
		OnSpawn: func(w *channeltest.Worker) {
			w.Serve(func(cmd string) string {
				if strings.HasPrefix(cmd, "delete") {
					return `{"status":"error","error":"has children","error_type":"hierarchy"}`
				}
				return `{"status":"ok","echo":"` + strings.Fields(cmd)[0] + `"}`
			})
		},
	}
	st := store.New()
	eng, err := engine.New(cfg, st, nil, engine.Options{Spawner: spawner})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go eng.Start(ctx)

	srv := server.New(logging.Discard())
	srv.SetEngine(eng, st)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		cancel()
		closeCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = eng.Close(closeCtx)
	})
	return daemon.NewHTTPClient(ts.URL, ts.Client())
}

func TestRemoteClientRoundTrip(t *testing.T) {
	client := newTestRemote(t)
	ctx := context.Background()

	assert.True(t, client.IsRunning())

	require.NoError(t, client.Enqueue(ctx, storymap.NewCreateChange("sub_epic", "Accounts", "root", "Story Map", nil)))
	dom, err := client.DOMState(ctx)
	require.NoError(t, err)
	assert.Len(t, dom.OptimisticUpdates, 1)

	status, err := client.Flush(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, storymap.StateSaved, status.State)

	graph, err := client.StoryGraph(ctx)
	require.NoError(t, err)
	require.Len(t, graph.Children, 1)
	assert.Equal(t, "Accounts", graph.Children[0].Name)

	cmds, err := client.ExecutedCommands(ctx)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, `create sub_epic "Accounts" under root "Story Map"`, cmds[0].Text)

	resp, err := client.Exec(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "status", resp["echo"])
}

func TestRemoteClientKeepsErrorCodes(t *testing.T) {
	client := newTestRemote(t)
	ctx := context.Background()

	err := client.Enqueue(ctx, storymap.Change{ID: "bad", Type: storymap.ChangeMove, NodeType: "story"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidChange, errors.GetCode(err))

	_, err = client.FindNode(ctx, "story", "Nope")
	assert.Equal(t, errors.ErrCodeNodeNotFound, errors.GetCode(err))

	_, err = client.GetConfig(ctx)
	assert.Equal(t, errors.ErrCodeDaemonRequestError, errors.GetCode(err))
}

func TestRemoteClientDialogAndStream(t *testing.T) {
	client := newTestRemote(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates, err := client.StreamState(ctx)
	require.NoError(t, err)
	first := <-updates
	assert.Equal(t, "initial", first.UpdateType)

	require.NoError(t, client.Enqueue(ctx, storymap.NewDeleteChange("sub_epic", "Accounts", "root", "Story Map", 0)))
	_, err = client.Flush(ctx, 0)
	require.NoError(t, err)

	dialog, err := client.ErrorDialog(ctx)
	require.NoError(t, err)
	require.NotNil(t, dialog)
	assert.Equal(t, "StructuralError", dialog.ErrorType)

	for u := range updates {
		if u.UpdateType == "dialog" && u.Dialog != nil {
			assert.Equal(t, "has children", u.Dialog.Message)
			break
		}
	}

	require.NoError(t, client.DismissErrorDialog(ctx))
	dialog, err = client.ErrorDialog(ctx)
	require.NoError(t, err)
	assert.Nil(t, dialog)
}

func TestConnectWithoutDaemon(t *testing.T) {
	_, err := daemon.Connect(filepath.Join(t.TempDir(), "none.sock"))
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonUnavailable))
}
