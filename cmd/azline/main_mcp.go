package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/mcp"
	"github.com/standardbeagle/azline/internal/server"
	"github.com/standardbeagle/azline/internal/session"
)

// mcpCommand serves the workspace over MCP stdio. The session is also
// shared through the workspace socket so CLI commands with --server see
// the same results.
func mcpCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return debug.Fatal("failed to load config: %v\n", err)
	}
	if err := setupLogging(c, cfg, true); err != nil {
		return err
	}

	logger := mcp.NewDiagnosticLogger(true, c.String("log-dir"))
	sess, err := session.New(cfg, session.Options{
		Diagnostics: logger.Diagnose,
		OnNotFound: func() {
			logger.Printf("az was not found; install it from %s", backend.InstallURL)
		},
	})
	if err != nil {
		logger.Close()
		return debug.Fatal("failed to create session: %v\n", err)
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sess.StartStatus(ctx)

	shared := server.NewServer(sess)
	if err := shared.Start(); err != nil {
		debug.LogMCP("Warning: failed to start shared server: %v", err)
		shared = nil
	} else {
		debug.LogMCP("Shared server started on %s", shared.SocketPath())
	}

	mcpServer, err := mcp.NewServer(sess, logger)
	if err != nil {
		return debug.Fatal("failed to create MCP server: %v\n", err)
	}

	errChan := make(chan error, 1)
	go func() {
		debug.LogMCP("Starting MCP server with stdio transport...")
		errChan <- mcpServer.Start(ctx)
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
		debug.LogMCP("Received signal, shutting down gracefully...")
		select {
		case serveErr = <-errChan:
		case <-time.After(2 * time.Second):
			debug.LogMCP("Graceful shutdown timeout, closing stdin")
			os.Stdin.Close()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shared != nil {
		if err := shared.Shutdown(shutdownCtx); err != nil {
			debug.LogMCP("shared server shutdown: %v", err)
		}
	}
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		debug.LogMCP("MCP shutdown: %v", err)
	}

	if serveErr != nil && ctx.Err() == nil {
		return debug.Fatal("MCP server error: %v\n", serveErr)
	}
	return nil
}
