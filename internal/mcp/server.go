// Package mcp exposes a workspace session as Model Context Protocol tools
// served over stdio.
package mcp

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/azline/internal/query"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/internal/version"
)

// ServerName is the implementation name announced to MCP clients
const ServerName = "azline-mcp-server"

// Server serves session operations as MCP tools
type Server struct {
	sess             *session.Session
	server           *mcp.Server
	diagnosticLogger *DiagnosticLogger
	eval             query.Evaluator

	calls  atomic.Int64
	panics atomic.Int64
}

// NewServer creates an MCP server for sess. A nil logger discards diagnostics.
func NewServer(sess *session.Session, logger *DiagnosticLogger) (*Server, error) {
	if sess == nil {
		return nil, fmt.Errorf("mcp server needs a session")
	}
	if logger == nil {
		logger = NewDiagnosticLogger(false, "")
	}

	s := &Server{
		sess:             sess,
		diagnosticLogger: logger,
		eval:             query.NewJMESPath(),
	}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version.Version,
	}, nil)
	s.registerTools()

	logger.Printf("MCP server initialized for %s", sess.Config().Project.Root)
	return s, nil
}

func stringProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func intProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description}
}

func boolProp(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "info",
		Description: "Server version, workspace root, backend kind and the list of tools.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleInfo)

	s.server.AddTool(&mcp.Tool{
		Name:        "parse",
		Description: "Parse one command line into subcommand, parameter name and parameter value nodes with byte offsets.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"line": stringProp("Command line, e.g. 'az vm list -g rg1'"),
			},
			Required: []string{"line"},
		},
	}, s.handleParse)

	s.server.AddTool(&mcp.Tool{
		Name:        "complete",
		Description: "Completion items for a command line at a cursor position.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"line":   stringProp("Command line"),
				"cursor": intProp("Byte offset of the cursor (default: end of line)"),
			},
			Required: []string{"line"},
		},
	}, s.handleComplete)

	s.server.AddTool(&mcp.Tool{
		Name:        "hover",
		Description: "Documentation for the subcommand or parameter at a byte offset.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"line":   stringProp("Command line"),
				"offset": intProp("Byte offset of the token"),
			},
			Required: []string{"line", "offset"},
		},
	}, s.handleHover)

	s.server.AddTool(&mcp.Tool{
		Name:        "run_line",
		Description: "Run a command line in the workspace shell and capture its output as the current result.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"line": stringProp("Command line to run"),
				"wait": boolProp("Wait for the output before returning (default: true)"),
			},
			Required: []string{"line"},
		},
	}, s.handleRunLine)

	s.server.AddTool(&mcp.Tool{
		Name:        "edit_line",
		Description: "Report an edited source line; its --query expression becomes the cached query.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": stringProp("Whole document text after the edit"),
				"row":  intProp("Zero-based row that was edited (default: 0)"),
				"path": stringProp("Document path, informational"),
			},
			Required: []string{"text"},
		},
	}, s.handleEditLine)

	s.server.AddTool(&mcp.Tool{
		Name:        "toggle_query",
		Description: "Turn live filtering of the current result by the cached --query expression on or off.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleToggleQuery)

	s.server.AddTool(&mcp.Tool{
		Name:        "result",
		Description: "Current result state. With 'query' set, also evaluates that JMESPath expression against the parsed result without changing state.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": stringProp("Ad hoc JMESPath expression"),
			},
		},
	}, s.handleResult)

	s.server.AddTool(&mcp.Tool{
		Name:        "status",
		Description: "Backend status line and session statistics.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleStatus)
}

// recoverFromPanic runs handler, turning panics and errors into error results
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	s.calls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.diagnosticLogger.Printf("PANIC RECOVERED in %s: %v", operation, r)
			s.diagnosticLogger.Printf("Stack trace: %s", debug.Stack())

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			s.diagnosticLogger.Printf("Memory stats - Alloc: %d KB, Sys: %d KB, NumGC: %d",
				m.Alloc/1024, m.Sys/1024, m.NumGC)

			result, err = createErrorResponse(operation, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err = handler()
	if err != nil {
		s.diagnosticLogger.Printf("Error in %s: %v", operation, err)
		return createErrorResponse(operation, err)
	}
	return result, nil
}

// Start serves MCP over stdio until ctx ends or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	s.diagnosticLogger.Printf("Starting MCP server with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Shutdown waits for runs in flight and closes the diagnostic log. The
// session itself is owned by the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.diagnosticLogger.Printf("Shutting down MCP server...")

	done := make(chan struct{})
	go func() {
		s.sess.Pipeline().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.diagnosticLogger.Printf("Shutdown gave up waiting for runs: %v", ctx.Err())
	}

	s.diagnosticLogger.Printf("MCP server shutdown complete (%d calls, %d panics)", s.calls.Load(), s.panics.Load())
	return s.diagnosticLogger.Close()
}
