package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/standardbeagle/azline/internal/completion"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/pipeline"
)

// Client connects to a running Server
type Client struct {
	httpClient *http.Client
	socketPath string
}

// NewClient creates a client for the server of the workspace at root
func NewClient(root string) *Client {
	return NewClientWithSocket(GetSocketPathForRoot(root))
}

// NewClientWithSocket creates a client connection with a custom socket path
func NewClientWithSocket(socketPath string) *Client {
	// HTTP client that dials the Unix socket
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Minute, // runs may wait for long commands
	}

	return &Client{
		httpClient: httpClient,
		socketPath: socketPath,
	}
}

// SocketPath returns the socket this client dials
func (c *Client) SocketPath() string {
	return c.socketPath
}

// IsServerRunning checks if the server is accessible
func (c *Client) IsServerRunning(ctx context.Context) bool {
	_, err := c.Ping(ctx)
	return err == nil
}

// call posts req as JSON to path and decodes the response into resp
func (c *Client) call(ctx context.Context, path string, req, resp interface{}) error {
	var body io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("server error: %s", bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ping sends a health check to the server
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var resp PingResponse
	if err := c.call(ctx, "/ping", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the backend status line
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete asks for completion items at cursor
func (c *Client) Complete(ctx context.Context, line string, cursor int) ([]completion.Item, error) {
	var resp CompleteResponse
	if err := c.call(ctx, "/complete", CompleteRequest{Line: line, Cursor: cursor}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Items, nil
}

// Hover asks for documentation at offset; nil means there is none
func (c *Client) Hover(ctx context.Context, line string, offset int) (*completion.HoverResult, error) {
	var resp HoverResponse
	if err := c.call(ctx, "/hover", HoverRequest{Line: line, Offset: offset}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Hover, nil
}

// Parse returns the command tree of line
func (c *Client) Parse(ctx context.Context, line string) (*ParseResponse, error) {
	var resp ParseResponse
	if err := c.call(ctx, "/parse", ParseRequest{Line: line}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run starts line on the server; with wait set it returns after the output is written
func (c *Client) Run(ctx context.Context, line string, wait bool) (*pipeline.State, error) {
	return c.result(ctx, "/run", RunRequest{Line: line, Wait: wait})
}

// Edit reports an edit of a source document
func (c *Client) Edit(ctx context.Context, path, text string, changes []editor.Range) (*pipeline.State, error) {
	return c.result(ctx, "/edit", EditRequest{Path: path, Text: text, Changes: changes})
}

// Result returns the current pipeline state
func (c *Client) Result(ctx context.Context) (*pipeline.State, error) {
	return c.result(ctx, "/result", nil)
}

func (c *Client) result(ctx context.Context, path string, req interface{}) (*pipeline.State, error) {
	var resp ResultResponse
	if err := c.call(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return &resp.State, errors.New(resp.Error)
	}
	return &resp.State, nil
}

// ToggleQuery flips live filtering and returns the new setting
func (c *Client) ToggleQuery(ctx context.Context) (bool, error) {
	var resp ToggleQueryResponse
	if err := c.call(ctx, "/toggle-query", nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// Stats returns session statistics
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.call(ctx, "/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown requests the server to shut down
func (c *Client) Shutdown(ctx context.Context, force bool) error {
	var resp ShutdownResponse
	if err := c.call(ctx, "/shutdown", ShutdownRequest{Force: force}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("shutdown failed: %s", resp.Message)
	}
	return nil
}
