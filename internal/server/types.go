package server

import (
	"github.com/standardbeagle/azline/internal/completion"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/parser"
	"github.com/standardbeagle/azline/internal/pipeline"
	"github.com/standardbeagle/azline/internal/session"
)

// RPC request/response types for client-server communication

// PingResponse confirms server is alive
type PingResponse struct {
	Uptime  float64 `json:"uptime_seconds"`
	Version string  `json:"version"`
	BuildID string  `json:"build_id"`
	Root    string  `json:"root"`
}

// StatusResponse carries the backend status line
type StatusResponse struct {
	Message string `json:"message"`
	Active  bool   `json:"active"`
}

// CompleteRequest asks for completions at a cursor
type CompleteRequest struct {
	Line   string `json:"line"`
	Cursor int    `json:"cursor"`
}

// CompleteResponse contains completion items and the resolved cursor context
type CompleteResponse struct {
	Items   []completion.Item        `json:"items"`
	Context completion.CursorContext `json:"context"`
	Error   string                   `json:"error,omitempty"`
}

// HoverRequest asks for documentation of the token at an offset
type HoverRequest struct {
	Line   string `json:"line"`
	Offset int    `json:"offset"`
}

// HoverResponse contains hover documentation; Hover is nil when there is none
type HoverResponse struct {
	Hover *completion.HoverResult `json:"hover,omitempty"`
	Error string                  `json:"error,omitempty"`
}

// ParseRequest asks for the command tree of a line
type ParseRequest struct {
	Line string `json:"line"`
}

// ParseResponse is the parsed form of one line
type ParseResponse struct {
	Nodes      []parser.Node    `json:"nodes"`
	Subcommand []string         `json:"subcommand"`
	Arguments  parser.Arguments `json:"arguments"`
	HasRoot    bool             `json:"has_root"`
}

// NewParseResponse parses line; root is the invocation name to check for
func NewParseResponse(line, root string) ParseResponse {
	cmd := parser.Parse(line)
	nodes := cmd.Nodes
	if nodes == nil {
		nodes = []parser.Node{}
	}
	return ParseResponse{
		Nodes:      nodes,
		Subcommand: cmd.Path(),
		Arguments:  parser.BuildArguments(line),
		HasRoot:    cmd.HasRoot(root),
	}
}

// RunRequest starts a command run; with Wait set the response is sent
// after the output is written
type RunRequest struct {
	Line string `json:"line"`
	Wait bool   `json:"wait,omitempty"`
}

// EditRequest reports an edit of a source document
type EditRequest struct {
	Path    string         `json:"path,omitempty"`
	Text    string         `json:"text"`
	Changes []editor.Range `json:"changes"`
}

// ToggleQueryResponse reports the new live filtering setting
type ToggleQueryResponse struct {
	Enabled bool           `json:"enabled"`
	State   pipeline.State `json:"state"`
}

// ResultResponse carries the pipeline state
type ResultResponse struct {
	State pipeline.State `json:"state"`
	Error string         `json:"error,omitempty"`
}

// StatsResponse contains session statistics and process memory figures
type StatsResponse struct {
	session.Stats
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryHeapMB  float64 `json:"memory_heap_mb"`
	NumGoroutines int     `json:"num_goroutines"`
}

// ShutdownRequest requests server shutdown
type ShutdownRequest struct {
	Force bool `json:"force,omitempty"`
}

// ShutdownResponse confirms shutdown
type ShutdownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
