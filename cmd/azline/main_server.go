package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/azline/internal/config"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/server"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/internal/version"
)

// serverReadyTimeout bounds the wait for a freshly spawned daemon
const serverReadyTimeout = 15 * time.Second

// serverCommand runs the workspace daemon until a signal or a shutdown request
func serverCommand(c *cli.Context) error {
	sess, err := openSession(c, session.Options{})
	if err != nil {
		return err
	}
	defer sess.Close()

	srv := server.NewServer(sess)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sess.StartStatus(ctx)

	out := c.App.Writer
	fmt.Fprintf(out, "azline server started\n")
	fmt.Fprintf(out, "Socket: %s\n", srv.SocketPath())
	fmt.Fprintf(out, "Root: %s\n", sess.Config().Project.Root)
	fmt.Fprintf(out, "\nUse 'azline shutdown' to stop the server\n")

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "\nReceived signal, shutting down...")
	case <-srv.Done():
		fmt.Fprintln(out, "Server shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fmt.Fprintln(out, "Server shut down cleanly")
	return nil
}

// shutdownCommand sends a shutdown request to the running server
func shutdownCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	client := server.NewClient(cfg.Project.Root)

	if !client.IsServerRunning(ctx) {
		return fmt.Errorf("no server is running for root: %s", cfg.Project.Root)
	}

	fmt.Fprintf(c.App.Writer, "Shutting down server for root: %s\n", cfg.Project.Root)
	if err := stopServer(ctx, client, c.Bool("force")); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Server shut down successfully")
	return nil
}

// stopServer requests shutdown and waits until the socket stops answering
func stopServer(ctx context.Context, client *server.Client, force bool) error {
	if err := client.Shutdown(ctx, force); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !client.IsServerRunning(ctx) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not shut down")
}

// clientFor returns a client for the workspace daemon, starting it when needed
func clientFor(c *cli.Context) (*server.Client, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(c, cfg, false); err != nil {
		return nil, err
	}
	return ensureServerRunning(c, cfg)
}

// ensureServerRunning checks if the daemon is running, and starts it if not.
// A daemon from a different build is replaced.
func ensureServerRunning(c *cli.Context, cfg *config.Config) (*server.Client, error) {
	ctx := c.Context
	client := server.NewClient(cfg.Project.Root)

	if ping, err := client.Ping(ctx); err == nil {
		if ping.BuildID == version.BuildID() {
			return client, nil
		}
		fmt.Fprintf(c.App.ErrWriter, "Daemon is from another build (%s), restarting...\n", ping.Version)
		debug.LogServer("replacing daemon build %s with %s", ping.BuildID, version.BuildID())
		if err := stopServer(ctx, client, true); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(c.App.ErrWriter, "azline server not running, starting in background...")

	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"--root", cfg.Project.Root}
	if path := c.String("config"); path != "" {
		args = append(args, "--config", path)
	}
	if kind := c.String("backend"); kind != "" {
		args = append(args, "--backend", kind)
	}
	args = append(args, "serve")

	cmd := exec.Command(executable, args...)
	cmd.Dir = cfg.Project.Root
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return nil, fmt.Errorf("failed to detach server process: %w", err)
	}

	if err := waitForReady(ctx, client, serverReadyTimeout); err != nil {
		return nil, fmt.Errorf("server did not become ready: %w", err)
	}
	return client, nil
}

// waitForReady polls the daemon until it answers or timeout passes
func waitForReady(ctx context.Context, client *server.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if client.IsServerRunning(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
