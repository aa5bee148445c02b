package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/pkg/channel"
	"github.com/grovetools/storymap/pkg/storymap"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
	baseURL    string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) (*RemoteClient, error) {
	// Create HTTP client that dials Unix socket
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	// Flush waits for the worker, so the timeout leaves room for a slow save.
	client := &http.Client{
		Transport: transport,
		Timeout:   2 * time.Minute,
	}

	return &RemoteClient{
		httpClient: client,
		socketPath: socketPath,
		baseURL:    unixBaseURL,
	}, nil
}

// newHTTPClient points a RemoteClient at a TCP URL. Tests use it with httptest.
func newHTTPClient(baseURL string, client *http.Client) *RemoteClient {
	return &RemoteClient{httpClient: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// unixBaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixBaseURL = "http://unix"

// do sends one request and decodes a JSON response into out (if non-nil).
// Error responses carrying the errors package shape keep their code.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDaemonRequestError, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.DaemonUnavailable(c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, decodeError(resp, method, path)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrap(err, errors.ErrCodeDaemonRequestError, "failed to decode daemon response").
				WithDetail("path", path)
		}
	}
	return resp.StatusCode, nil
}

func decodeError(resp *http.Response, method, path string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var e errors.Error
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") &&
		json.Unmarshal(data, &e) == nil && e.Code != "" {
		return &e
	}
	return errors.New(errors.ErrCodeDaemonRequestError,
		fmt.Sprintf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))).
		WithDetail("method", method).
		WithDetail("path", path)
}

func (c *RemoteClient) Enqueue(ctx context.Context, change storymap.Change) error {
	_, err := c.do(ctx, http.MethodPost, "/api/changes", change, nil)
	return err
}

func (c *RemoteClient) Flush(ctx context.Context, d time.Duration) (storymap.Status, error) {
	var status storymap.Status
	_, err := c.do(ctx, http.MethodPost, "/api/flush", FlushRequest{WithinMS: d.Milliseconds()}, &status)
	return status, err
}

func (c *RemoteClient) CompleteSave(ctx context.Context) (storymap.Status, error) {
	var status storymap.Status
	_, err := c.do(ctx, http.MethodPost, "/api/complete", struct{}{}, &status)
	return status, err
}

func (c *RemoteClient) ReturnError(ctx context.Context, errorType, message string) (bool, error) {
	var out ReturnErrorResponse
	_, err := c.do(ctx, http.MethodPost, "/api/error", ReturnErrorRequest{ErrorType: errorType, Message: message}, &out)
	return out.RolledBack, err
}

func (c *RemoteClient) Status(ctx context.Context) (storymap.Status, error) {
	var status storymap.Status
	_, err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *RemoteClient) DismissStatus(ctx context.Context) (storymap.Status, error) {
	var status storymap.Status
	_, err := c.do(ctx, http.MethodDelete, "/api/status", nil, &status)
	return status, err
}

func (c *RemoteClient) DOMState(ctx context.Context) (storymap.DOMState, error) {
	var state storymap.DOMState
	_, err := c.do(ctx, http.MethodGet, "/api/dom", nil, &state)
	return state, err
}

func (c *RemoteClient) Queue(ctx context.Context) (QueueInfo, error) {
	var info QueueInfo
	_, err := c.do(ctx, http.MethodGet, "/api/queue", nil, &info)
	return info, err
}

func (c *RemoteClient) ExecutedCommands(ctx context.Context) ([]storymap.Command, error) {
	var cmds []storymap.Command
	_, err := c.do(ctx, http.MethodGet, "/api/commands", nil, &cmds)
	return cmds, err
}

func (c *RemoteClient) StoryGraph(ctx context.Context) (*storymap.Node, error) {
	var node storymap.Node
	if _, err := c.do(ctx, http.MethodGet, "/api/graph", nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *RemoteClient) FindNode(ctx context.Context, nodeType, name string) (*storymap.Node, error) {
	q := url.Values{"type": {nodeType}, "name": {name}}
	var node storymap.Node
	if _, err := c.do(ctx, http.MethodGet, "/api/graph?"+q.Encode(), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *RemoteClient) ReloadSnapshot(ctx context.Context) (int, error) {
	var out ReloadResponse
	_, err := c.do(ctx, http.MethodPost, "/api/snapshot/reload", struct{}{}, &out)
	return out.Groups, err
}

func (c *RemoteClient) ErrorDialog(ctx context.Context) (*storymap.ErrorDialog, error) {
	var dialog storymap.ErrorDialog
	status, err := c.do(ctx, http.MethodGet, "/api/dialog", nil, &dialog)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dialog, nil
}

func (c *RemoteClient) DismissErrorDialog(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/dialog", nil, nil)
	return err
}

func (c *RemoteClient) Exec(ctx context.Context, line string) (channel.Response, error) {
	var resp channel.Response
	_, err := c.do(ctx, http.MethodPost, "/api/exec", ExecRequest{Command: line}, &resp)
	return resp, err
}

// GetConfig returns the daemon's running configuration.
func (c *RemoteClient) GetConfig(ctx context.Context) (*RunningConfig, error) {
	var cfg RunningConfig
	if _, err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamState subscribes to real-time state updates via Server-Sent Events (SSE).
// Returns a channel that receives updates. The channel is closed when the context is cancelled
// or the connection is lost.
func (c *RemoteClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonRequestError, "failed to create stream request")
	}

	// Use a separate client with no timeout for streaming
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   0,
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.DaemonUnavailable(c.socketPath, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp, http.MethodGet, "/api/stream")
	}

	ch := make(chan StateUpdate, 10)

	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			// Skip comments and empty lines
			if strings.HasPrefix(line, ":") || line == "" {
				continue
			}

			// Parse SSE data lines
			if strings.HasPrefix(line, "data: ") {
				var update StateUpdate
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
					continue // Skip malformed data
				}

				select {
				case ch <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
