package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/config"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/internal/version"
)

// errUsage marks a command invoked with missing arguments
var errUsage = errors.New("missing arguments")

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	configPath := c.String("config")
	rootFlag := c.String("root")

	cfg, err := config.LoadWithRoot(configPath, rootFlag)
	if err != nil {
		if configPath == "" {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	if backendFlag := c.String("backend"); backendFlag != "" && backendFlag != cfg.Backend.Kind {
		cfg.Backend = config.Backend{Kind: backendFlag}
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging routes debug output according to the config and flags.
// In MCP mode nothing is written to stdio.
func setupLogging(c *cli.Context, cfg *config.Config, mcpMode bool) error {
	debug.SetMCPMode(mcpMode)

	if cfg.Log.File != "" || mcpMode {
		path, err := debug.InitDebugLogFile(debug.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Level:      cfg.Log.Level,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		debug.Log("CLI", "azline %s logging to %s", version.Info(), path)
		return nil
	}

	if c.Bool("verbose") {
		debug.SetDebugOutput(c.App.ErrWriter)
	}
	return nil
}

// notFoundAdvisory prints the install hint once per process
func notFoundAdvisory(w io.Writer) backend.NotFoundHandler {
	var once sync.Once
	return func() {
		once.Do(func() {
			fmt.Fprintf(w, "The az command line tool was not found; completions and hovers are disabled.\n")
			fmt.Fprintf(w, "Install it from %s\n", backend.InstallURL)
		})
	}
}

// openSession loads config, sets up logging and builds a session
func openSession(c *cli.Context, opts session.Options) (*session.Session, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}
	if err := setupLogging(c, cfg, false); err != nil {
		return nil, err
	}
	if opts.OnNotFound == nil {
		opts.OnNotFound = notFoundAdvisory(c.App.ErrWriter)
	}
	return session.New(cfg, opts)
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "azline",
		Usage:                  "Completion, hover and live JMESPath results for az command lines",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <root>/" + config.FileName + ")",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Knowledge backend: azservice or catalog (overrides config)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Show debug information on stderr",
			},
			&cli.BoolFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Use the workspace daemon, starting it if needed",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "parse",
				Aliases:   []string{"p"},
				Usage:     "Show the command tree of a line",
				ArgsUsage: "LINE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: parseCommand,
			},
			{
				Name:      "complete",
				Usage:     "List completions at a cursor position",
				ArgsUsage: "LINE",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "cursor", Value: -1, Usage: "Byte offset of the cursor (default: end of line)"},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: completeCommand,
			},
			{
				Name:      "hover",
				Usage:     "Show documentation for the token at an offset",
				ArgsUsage: "LINE",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Byte offset of the token", Required: true},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: hoverCommand,
			},
			{
				Name:      "run",
				Usage:     "Run a line and print its result",
				ArgsUsage: "LINE",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "live-query",
						Aliases: []string{"q"},
						Usage:   "Apply the --query expression locally to the unfiltered output",
					},
				},
				Action: runCommand,
			},
			{
				Name:      "watch",
				Aliases:   []string{"w"},
				Usage:     "Follow edits of a source file and keep its result file current",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "run-line", Usage: "Run this 1-based line on start (0: none)"},
					&cli.BoolFlag{Name: "live-query", Aliases: []string{"q"}, Usage: "Start with live filtering on"},
				},
				Action: watchCommand,
			},
			{
				Name:   "serve",
				Usage:  "Run the workspace daemon in the foreground",
				Action: serverCommand,
			},
			{
				Name:  "shutdown",
				Usage: "Stop the workspace daemon",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Force shutdown"},
				},
				Action: shutdownCommand,
			},
			{
				Name:  "status",
				Usage: "Show backend status and daemon statistics",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: statusCommand,
			},
			{
				Name:  "mcp",
				Usage: "Serve the workspace as MCP tools over stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "log-dir", Usage: "Directory for MCP diagnostic logs (default: temp dir)"},
				},
				Action: mcpCommand,
			},
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
