package main

import (
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/azline/internal/server"
	"github.com/standardbeagle/azline/internal/session"
)

// StatusReport represents the status output for JSON
type StatusReport struct {
	Timestamp     time.Time      `json:"timestamp"`
	Message       string         `json:"message"`
	Daemon        bool           `json:"daemon"`
	Active        bool           `json:"active"`
	Stats         *session.Stats `json:"stats,omitempty"`
	MemoryAllocMB float64        `json:"memory_alloc_mb,omitempty"`
	NumGoroutines int            `json:"num_goroutines,omitempty"`
}

// statusCommand reports the backend status line. With a running daemon
// (or --server) the daemon's statistics are included.
func statusCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx := c.Context

	report := StatusReport{Timestamp: time.Now()}
	client := server.NewClient(cfg.Project.Root)
	if c.Bool("server") || client.IsServerRunning(ctx) {
		if client, err = clientFor(c); err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		st, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get server status: %w", err)
		}
		stats, err := client.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get server stats: %w", err)
		}
		report.Message = st.Message
		report.Active = st.Active
		report.Daemon = true
		report.Stats = &stats.Stats
		report.MemoryAllocMB = stats.MemoryAllocMB
		report.NumGoroutines = stats.NumGoroutines
	} else {
		sess, err := openSession(c, session.Options{})
		if err != nil {
			return err
		}
		defer sess.Close()
		report.Message = sess.Status(ctx).Message
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, report)
	}
	return outputStatusHuman(c.App.Writer, report)
}

func outputStatusHuman(w io.Writer, report StatusReport) error {
	msg := report.Message
	if msg == "" {
		msg = "(backend unavailable)"
	}
	fmt.Fprintf(w, "Backend: %s\n", msg)
	if !report.Daemon {
		fmt.Fprintln(w, "Daemon: not running")
		return nil
	}

	s := report.Stats
	fmt.Fprintln(w, "Daemon: running")
	fmt.Fprintf(w, "  Root:             %s\n", s.Root)
	fmt.Fprintf(w, "  Backend kind:     %s\n", s.Backend)
	fmt.Fprintf(w, "  Backend failures: %d\n", s.BackendFailures)
	fmt.Fprintf(w, "  Status polls:     %d\n", s.StatusPolls)
	fmt.Fprintf(w, "  Phase:            %s (runs in flight: %d)\n", s.Phase, s.RunsInFlight)
	fmt.Fprintf(w, "  Live query:       %v\n", s.QueryEnabled)
	fmt.Fprintf(w, "  Uptime:           %s\n", time.Duration(s.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(w, "  Memory:           %.1f MB, %d goroutines\n", report.MemoryAllocMB, report.NumGoroutines)
	return nil
}
