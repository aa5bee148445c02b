// Package server provides the HTTP server for the storymap daemon.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/storymap/errors"
	"github.com/grovetools/storymap/internal/daemon/engine"
	"github.com/grovetools/storymap/internal/daemon/store"
	"github.com/grovetools/storymap/pkg/daemon"
	"github.com/grovetools/storymap/pkg/storymap"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	engine        *engine.Engine
	store         *store.Store
	runningConfig *daemon.RunningConfig
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
	}
}

// SetEngine sets the session the server fronts.
func (s *Server) SetEngine(eng *engine.Engine, st *store.Store) {
	s.engine = eng
	s.store = st
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *daemon.RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the API routes. ListenAndServe serves them over h2c.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/api/state", s.handleGetState)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/dom", s.handleDOMState)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/commands", s.handleCommands)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/snapshot/reload", s.handleReloadSnapshot)
	mux.HandleFunc("/api/changes", s.handleEnqueue)
	mux.HandleFunc("/api/flush", s.handleFlush)
	mux.HandleFunc("/api/complete", s.handleComplete)
	mux.HandleFunc("/api/error", s.handleReturnError)
	mux.HandleFunc("/api/dialog", s.handleDialog)
	mux.HandleFunc("/api/exec", s.handleExec)
	mux.HandleFunc("/api/stream", s.handleStreamState)
	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	err = s.server.Serve(listener)
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) ready(w http.ResponseWriter) bool {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError reports err as the errors package JSON shape so clients can
// rebuild the code.
func writeError(w http.ResponseWriter, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.Wrap(err, errors.ErrCodeInternal, err.Error())
	}

	status := http.StatusInternalServerError
	switch e.Code {
	case errors.ErrCodeInvalidChange, errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeNodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeQueueClosed, errors.ErrCodeChannelClosed, errors.ErrCodeChannelBusy:
		status = http.StatusConflict
	case errors.ErrCodeWorkerTimeout:
		status = http.StatusGatewayTimeout
	case errors.ErrCodeWorkerSpawn, errors.ErrCodeWorkerExited, errors.ErrCodeMalformedResponse:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, e)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return false
	}
	return true
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

// handleGetState returns the state last published to subscribers.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.store.Get())
}

// handleStatus returns the save status; DELETE dismisses it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	ctrl := s.engine.Controller()
	if r.Method == http.MethodDelete {
		ctrl.DismissStatus()
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleDOMState(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Controller().DOMState())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}
	ctrl := s.engine.Controller()
	info := daemon.QueueInfo{Length: ctrl.QueueLength(), WorkerRunning: s.engine.WorkerRunning()}
	if cmd, ok := ctrl.LastAttempted(); ok {
		info.LastAttempted = &cmd
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Controller().ExecutedCommands())
}

// handleGraph returns the materialized graph, or one node when type and
// name query parameters are given.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}
	ctrl := s.engine.Controller()

	nodeType, name := r.URL.Query().Get("type"), r.URL.Query().Get("name")
	if nodeType != "" || name != "" {
		node, err := ctrl.FindNodeInGraph(nodeType, name)
		if err != nil {
			writeError(w, err)
			return
		}
		if node == nil {
			writeError(w, errors.NodeNotFound(nodeType, name))
			return
		}
		writeJSON(w, http.StatusOK, node)
		return
	}

	graph, err := ctrl.StoryGraph()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleReloadSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	flat := s.engine.ReloadSnapshot()
	s.logger.WithField("groups", len(flat.Groups)).Info("Snapshot reloaded")
	writeJSON(w, http.StatusOK, daemon.ReloadResponse{Groups: len(flat.Groups)})
}

// handleEnqueue accepts one change. The change is validated and applied
// optimistically before the response is written; the worker sees it after
// the debounce window.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	var change storymap.Change
	if !decodeBody(w, r, &change) {
		return
	}
	if change.ID == "" {
		writeError(w, errors.InvalidChange(string(change.Type), "change id is required"))
		return
	}
	if err := s.engine.Controller().Enqueue(change); err != nil {
		writeError(w, err)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"change": change.ID,
		"type":   change.Type,
	}).Debug("Change accepted")
	writeJSON(w, http.StatusAccepted, daemon.EnqueueResponse{ID: change.ID})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	var req daemon.FlushRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	ctrl := s.engine.Controller()
	if err := ctrl.WaitForDebounce(r.Context(), time.Duration(req.WithinMS)*time.Millisecond); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrCodeDaemonRequestError, "flush interrupted"))
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	ctrl := s.engine.Controller()
	ctrl.CompleteSaveSuccessfully()
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleReturnError(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	var req daemon.ReturnErrorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rolledBack := s.engine.Controller().ReturnError(req.ErrorType, req.Message)
	writeJSON(w, http.StatusOK, daemon.ReturnErrorResponse{RolledBack: rolledBack})
}

// handleDialog returns the open error dialog (404 when none); DELETE
// dismisses it.
func (s *Server) handleDialog(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	if r.Method == http.MethodDelete {
		s.engine.DismissErrorDialog()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	dialog, ok := s.engine.Controller().ErrorDialog()
	if !ok {
		http.Error(w, "no error dialog", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, dialog)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodPost) {
		return
	}
	var req daemon.ExecRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.engine.Exec(r.Context(), req.Command)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStreamState provides Server-Sent Events (SSE) for real-time state updates.
// Clients receive the current state first, then every change.
func (s *Server) handleStreamState(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) {
		return
	}

	// Ensure the connection supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe to store updates
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	send := func(u *daemon.StateUpdate) {
		data, err := json.Marshal(u)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal update")
			return
		}
		// SSE format: "data: {json}\n\n"
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	state := s.store.Get()
	send(&daemon.StateUpdate{
		UpdateType:  "initial",
		Status:      &state.Status,
		Dialog:      state.Dialog,
		QueueLength: state.QueueLength,
	})

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update, open := <-ch:
			if !open {
				return
			}
			if apiUpdate := convertToAPIUpdate(update, s.store.Get()); apiUpdate != nil {
				send(apiUpdate)
			}
		}
	}
}

// convertToAPIUpdate converts internal store.Update to the public API format.
func convertToAPIUpdate(u store.Update, state store.State) *daemon.StateUpdate {
	out := &daemon.StateUpdate{
		UpdateType:  string(u.Type),
		Source:      u.Source,
		QueueLength: state.QueueLength,
	}
	switch u.Type {
	case store.UpdateStatus:
		status, ok := u.Payload.(storymap.Status)
		if !ok {
			return nil
		}
		out.Status = &status
	case store.UpdateDialog:
		if d, ok := u.Payload.(storymap.ErrorDialog); ok {
			out.Dialog = &d
		}
	case store.UpdateGraph:
	default:
		return nil
	}
	return out
}
