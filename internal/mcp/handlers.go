package mcp

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/azline/internal/completion"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/pipeline"
	"github.com/standardbeagle/azline/internal/server"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/internal/version"
)

// LineParams names a command line
type LineParams struct {
	Line string `json:"line"`
}

// CompleteParams asks for completions; a nil Cursor means end of line
type CompleteParams struct {
	Line   string `json:"line"`
	Cursor *int   `json:"cursor,omitempty"`
}

// HoverParams asks for documentation at Offset
type HoverParams struct {
	Line   string `json:"line"`
	Offset int    `json:"offset"`
}

// RunParams starts a run; a nil Wait means wait
type RunParams struct {
	Line string `json:"line"`
	Wait *bool  `json:"wait,omitempty"`
}

// EditParams reports an edit of Row in Text
type EditParams struct {
	Path string `json:"path,omitempty"`
	Text string `json:"text"`
	Row  int    `json:"row,omitempty"`
}

// ResultParams optionally evaluates an ad hoc expression
type ResultParams struct {
	Query string `json:"query,omitempty"`
}

// CompleteResult is the complete tool's response
type CompleteResult struct {
	Items   []completion.Item        `json:"items"`
	Context completion.CursorContext `json:"context"`
}

// ResultResult is the result tool's response
type ResultResult struct {
	State pipeline.State `json:"state"`
	Query string         `json:"query,omitempty"`
	Value interface{}    `json:"value,omitempty"`
}

// StatusResult is the status tool's response
type StatusResult struct {
	Message string        `json:"message"`
	Active  bool          `json:"active"`
	Stats   session.Stats `json:"stats"`
}

var errEmptyLine = errors.New("line must not be empty")

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("info", func() (*mcp.CallToolResult, error) {
		cfg := s.sess.Config()
		return createJSONResponse(map[string]interface{}{
			"server_name":    ServerName,
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"root":           cfg.Project.Root,
			"invocation":     cfg.Root,
			"backend":        cfg.Backend.Kind,
			"tools": []string{
				"info", "parse", "complete", "hover", "run_line",
				"edit_line", "toggle_query", "result", "status",
			},
		})
	})
}

func (s *Server) handleParse(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params LineParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("parse", err, `Use: {"line": "az vm list -g rg1"}`)
	}
	return s.recoverFromPanic("parse", func() (*mcp.CallToolResult, error) {
		return createJSONResponse(server.NewParseResponse(params.Line, s.sess.Config().Root))
	})
}

func (s *Server) handleComplete(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params CompleteParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("complete", err, `Use: {"line": "az vm ", "cursor": 6}`)
	}
	cursor := len(params.Line)
	if params.Cursor != nil {
		cursor = *params.Cursor
	}
	if cursor < 0 || cursor > len(params.Line) {
		return createErrorResponse("complete", fmt.Errorf("cursor %d outside line of length %d", cursor, len(params.Line)))
	}

	return s.recoverFromPanic("complete", func() (*mcp.CallToolResult, error) {
		items, err := s.sess.Complete(ctx, params.Line, cursor)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []completion.Item{}
		}
		return createJSONResponse(CompleteResult{
			Items:   items,
			Context: s.sess.Provider().Context(params.Line, cursor),
		})
	})
}

func (s *Server) handleHover(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params HoverParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("hover", err, `Use: {"line": "az vm list", "offset": 4}`)
	}
	return s.recoverFromPanic("hover", func() (*mcp.CallToolResult, error) {
		h, err := s.sess.Hover(ctx, params.Line, params.Offset)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return createJSONResponse(map[string]interface{}{"hover": nil})
		}
		return createJSONResponse(map[string]interface{}{"hover": h})
	})
}

func (s *Server) handleRunLine(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params RunParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("run_line", err, `Use: {"line": "az group list", "wait": true}`)
	}
	if params.Line == "" {
		return createErrorResponse("run_line", errEmptyLine)
	}
	wait := params.Wait == nil || *params.Wait

	return s.recoverFromPanic("run_line", func() (*mcp.CallToolResult, error) {
		done, err := s.sess.Run(ctx, params.Line)
		if err != nil {
			return nil, err
		}
		if wait {
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return createJSONResponse(ResultResult{State: s.sess.Result()})
	})
}

func (s *Server) handleEditLine(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params EditParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("edit_line", err, `Use: {"text": "az vm list --query '[].name'", "row": 0}`)
	}
	if params.Row < 0 {
		return createErrorResponse("edit_line", fmt.Errorf("row %d is negative", params.Row))
	}
	return s.recoverFromPanic("edit_line", func() (*mcp.CallToolResult, error) {
		at := editor.Position{Row: params.Row}
		s.sess.Edit(ctx, params.Path, params.Text, []editor.Range{{Start: at, End: at}})
		return createJSONResponse(ResultResult{State: s.sess.Result()})
	})
}

func (s *Server) handleToggleQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("toggle_query", func() (*mcp.CallToolResult, error) {
		enabled := s.sess.ToggleQuery(ctx)
		return createJSONResponse(map[string]interface{}{
			"enabled": enabled,
			"state":   s.sess.Result(),
		})
	})
}

func (s *Server) handleResult(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ResultParams
	if err := decodeArguments(req, &params); err != nil {
		return createErrorResponseWithHelp("result", err, `Use: {} or {"query": "[].name"}`)
	}
	return s.recoverFromPanic("result", func() (*mcp.CallToolResult, error) {
		state := s.sess.Result()
		resp := ResultResult{State: state}
		if params.Query == "" {
			return createJSONResponse(resp)
		}
		if !state.HasResult {
			return nil, pipeline.ErrNoResult
		}
		value, err := s.eval.Evaluate(state.ParsedResult, params.Query)
		if err != nil {
			return nil, err
		}
		resp.Query = params.Query
		resp.Value = value
		return createJSONResponse(resp)
	})
}

func (s *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("status", func() (*mcp.CallToolResult, error) {
		st := s.sess.Status(ctx)
		return createJSONResponse(StatusResult{
			Message: st.Message,
			Active:  s.sess.Active(),
			Stats:   s.sess.Stats(),
		})
	})
}
