package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grovetools/storymap/config"
	"github.com/grovetools/storymap/internal/daemon/engine"
	"github.com/grovetools/storymap/internal/daemon/store"
	"github.com/grovetools/storymap/logging"
	"github.com/grovetools/storymap/pkg/channel/channeltest"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	cfg := config.Default()
	cfg.Queue.Debounce = config.Duration(5 * time.Millisecond)

	spawner := &channeltest.Spawner{
		Sentinel: cfg.Worker.Sentinel,
		OnSpawn: func(w *channeltest.Worker) {
			w.Serve(func(cmd string) string {
				if strings.HasPrefix(cmd, "delete") {
					return `{"status":"error","error":"Epic has children","error_type":"hierarchy"}`
				}
				return `{"status":"ok"}`
			})
		},
	}

	st := store.New()
	eng, err := engine.New(cfg, st, nil, engine.Options{Spawner: spawner})
	require.NoError(t, err)
	eng.Controller().SetSnapshot(storymap.FlatParentMap{
		Root: "Shop",
		Groups: []storymap.ChildGroup{{
			ParentNodeType: "root", ParentNodeName: "Shop",
			Children: []storymap.SnapshotNode{{Name: "Accounts", Type: "sub_epic"}},
		}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Start(ctx)

	srv := New(logging.Discard())
	srv.SetEngine(eng, st)
	srv.SetRunningConfig(&daemon.RunningConfig{Worker: "fake", StartedAt: time.Now()})
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		cancel()
		closeCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = eng.Close(closeCtx)
	})
	return ts, eng
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnqueueAndFlush(t *testing.T) {
	ts, eng := testServer(t)

	change := storymap.NewCreateChange("story", "Login", "sub_epic", "Accounts", nil)
	resp := postJSON(t, ts.URL+"/api/changes", change)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/flush", daemon.FlushRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status storymap.Status
	decode(t, resp, &status)
	assert.Equal(t, storymap.StateSaved, status.State)

	graph, err := http.Get(ts.URL + "/api/graph?type=story&name=Login")
	require.NoError(t, err)
	defer graph.Body.Close()
	require.Equal(t, http.StatusOK, graph.StatusCode)
	var node storymap.Node
	decode(t, graph, &node)
	assert.Equal(t, "Login", node.Name)

	cmds, err := http.Get(ts.URL + "/api/commands")
	require.NoError(t, err)
	defer cmds.Body.Close()
	var executed []storymap.Command
	decode(t, cmds, &executed)
	require.Len(t, executed, 1)
	assert.True(t, executed[0].Persisted)
	assert.Len(t, eng.Controller().ExecutedCommands(), 1)
}

func TestEnqueueRejectsInvalidChange(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/changes", storymap.Change{ID: "c1", Type: "teleport"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "INVALID_CHANGE", body["code"])
}

func TestGraphNodeNotFound(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/api/graph?type=story&name=Nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDialogLifecycle(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/api/dialog")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	postJSON(t, ts.URL+"/api/changes", storymap.NewDeleteChange("sub_epic", "Accounts", "root", "Shop", 0))
	postJSON(t, ts.URL+"/api/flush", daemon.FlushRequest{})

	resp, err = http.Get(ts.URL + "/api/dialog")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dialog storymap.ErrorDialog
	decode(t, resp, &dialog)
	assert.Equal(t, "StructuralError", dialog.ErrorType)
	assert.Equal(t, "Epic has children", dialog.Message)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/dialog", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/dialog")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestReturnErrorWithoutAttempt(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/error", daemon.ReturnErrorRequest{ErrorType: "validation", Message: "late"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body daemon.ReturnErrorResponse
	decode(t, resp, &body)
	assert.False(t, body.RolledBack)
}

func TestExec(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/exec", daemon.ExecRequest{Command: "status"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/api/changes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStreamSendsInitialState(t *testing.T) {
	ts, _ := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var update daemon.StateUpdate
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update))
		assert.Equal(t, "initial", update.UpdateType)
		require.NotNil(t, update.Status)
		assert.Equal(t, storymap.StateIdle, update.Status.State)
		return
	}
	t.Fatal("stream closed before the initial state")
}

func TestEnqueueRejectsReusedID(t *testing.T) {
	ts, _ := testServer(t)

	change := storymap.NewRenameChange("sub_epic", "Accounts", "Users")
	resp := postJSON(t, ts.URL+"/api/changes", change)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/changes", change)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "INVALID_CHANGE", body["code"])
}
