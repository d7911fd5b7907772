package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/internal/version"
)

// statusTimeout bounds one shared backend status call
const statusTimeout = 10 * time.Second

// Server exposes one workspace session to CLI clients over a Unix socket
type Server struct {
	sess         *session.Session
	listener     net.Listener
	server       *http.Server
	startTime    time.Time
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	socketPath   string // Custom socket path (empty uses the root's default)

	statusGroup singleflight.Group
}

// NewServer creates a server for sess
func NewServer(sess *session.Session) *Server {
	return &Server{
		sess:         sess,
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
	}
}

// GetSocketPathForRoot returns a workspace-specific socket path so that
// servers for different roots can run side by side
func GetSocketPathForRoot(root string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("azline-%016x.sock", xxhash.Sum64String(absRoot)))
}

// SetSocketPath sets a custom socket path for this server (used for testing)
func (s *Server) SetSocketPath(path string) {
	s.socketPath = path
}

// SocketPath returns the socket path this server is using
func (s *Server) SocketPath() string {
	if s.socketPath != "" {
		return s.socketPath
	}
	return GetSocketPathForRoot(s.sess.Config().Project.Root)
}

// Start begins listening for client connections
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Remove a stale socket left by a crashed server
	socketPath := s.SocketPath()
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	// Make socket accessible to user only
	os.Chmod(socketPath, 0600)

	mux := http.NewServeMux()
	s.registerHandlers(mux)
	s.server = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			debug.LogServer("server error: %v", err)
		}
	}()

	debug.LogServer("server started on %s (pid: %d)", socketPath, os.Getpid())
	debug.LogServer("project root: %s", s.sess.Config().Project.Root)
	return nil
}

// registerHandlers sets up RPC endpoints
func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/complete", s.handleComplete)
	mux.HandleFunc("/hover", s.handleHover)
	mux.HandleFunc("/parse", s.handleParse)
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/edit", s.handleEdit)
	mux.HandleFunc("/toggle-query", s.handleToggleQuery)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/shutdown", s.handleShutdown)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.LogServer("failed to encode response: %v", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// handlePing responds to health check requests
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, PingResponse{
		Uptime:  time.Since(s.startTime).Seconds(),
		Version: version.Version,
		BuildID: version.BuildID(),
		Root:    s.sess.Config().Project.Root,
	})
}

// handleStatus returns the backend status line. Concurrent requests share
// one backend call.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v, _, _ := s.statusGroup.Do("status", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), statusTimeout)
		defer cancel()
		return s.sess.Status(ctx), nil
	})
	st := v.(backend.Status)
	writeJSON(w, StatusResponse{Message: st.Message, Active: s.sess.Active()})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if !decode(w, r, &req) {
		return
	}
	resp := CompleteResponse{Context: s.sess.Provider().Context(req.Line, req.Cursor)}
	items, err := s.sess.Complete(r.Context(), req.Line, req.Cursor)
	if err != nil {
		resp.Error = err.Error()
	}
	resp.Items = items
	writeJSON(w, resp)
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req HoverRequest
	if !decode(w, r, &req) {
		return
	}
	var resp HoverResponse
	h, err := s.sess.Hover(r.Context(), req.Line, req.Offset)
	if err != nil {
		resp.Error = err.Error()
	}
	resp.Hover = h
	writeJSON(w, resp)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, NewParseResponse(req.Line, s.sess.Config().Root))
}

// handleRun starts a run. The run outlives the request; with Wait set the
// response is held until the output is written or the client gives up.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !decode(w, r, &req) {
		return
	}
	done, err := s.sess.Run(r.Context(), req.Line)
	if err != nil {
		writeJSON(w, ResultResponse{State: s.sess.Result(), Error: err.Error()})
		return
	}
	if req.Wait {
		select {
		case <-done:
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, ResultResponse{State: s.sess.Result()})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if !decode(w, r, &req) {
		return
	}
	s.sess.Edit(r.Context(), req.Path, req.Text, req.Changes)
	writeJSON(w, ResultResponse{State: s.sess.Result()})
}

func (s *Server) handleToggleQuery(w http.ResponseWriter, r *http.Request) {
	enabled := s.sess.ToggleQuery(r.Context())
	writeJSON(w, ToggleQueryResponse{Enabled: enabled, State: s.sess.Result()})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ResultResponse{State: s.sess.Result()})
}

// handleStats returns session statistics including memory usage
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	writeJSON(w, StatsResponse{
		Stats:         s.sess.Stats(),
		MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
		MemoryHeapMB:  float64(memStats.HeapAlloc) / 1024 / 1024,
		NumGoroutines: runtime.NumGoroutine(),
	})
}

// handleShutdown gracefully shuts down the server
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req ShutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body
		req = ShutdownRequest{}
	}

	writeJSON(w, ShutdownResponse{Success: true, Message: "Server shutting down"})

	// Trigger shutdown after response is sent
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.shutdownOnce.Do(func() { close(s.shutdownChan) })
	}()
}

// Wait blocks until a client requests shutdown
func (s *Server) Wait() {
	<-s.shutdownChan
}

// Done is closed when a client requests shutdown
func (s *Server) Done() <-chan struct{} {
	return s.shutdownChan
}

// Shutdown gracefully shuts down the server. The session is left open.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}
	s.wg.Wait()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.SocketPath())

	debug.LogServer("server shut down cleanly")
	return nil
}
