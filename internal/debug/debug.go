package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/azline/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running in MCP mode (set by main)
var MCPMode = false

// debugOutput is the writer for debug output (defaults to nil, meaning no output)
var debugOutput io.Writer

// debugFile holds the rotating file if debug output goes to a file
var debugFile *lumberjack.Logger

// logger writes to debugOutput; rebuilt whenever the output changes
var logger = zerolog.Nop()

// debugMutex protects access to debug output
var debugMutex sync.Mutex

// FileOptions configures the rotating debug log file
type FileOptions struct {
	Path       string // empty selects a timestamped file in the temp dir
	MaxSizeMB  int
	MaxBackups int
	Level      string
}

// SetMCPMode enables MCP mode which suppresses all debug output to stdio
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	setOutputLocked(w, zerolog.DebugLevel)
}

func setOutputLocked(w io.Writer, level zerolog.Level) {
	debugOutput = w
	if w == nil {
		logger = zerolog.Nop()
		return
	}
	logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// InitDebugLogFile initializes debug logging to a rotating file.
// Returns the path to the log file, or an error if initialization fails.
// Call CloseDebugLog when done to ensure the file is properly closed.
func InitDebugLogFile(opts FileOptions) (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logPath := opts.Path
	if logPath == "" {
		timestamp := time.Now().Format("2006-01-02T150405")
		logPath = filepath.Join(os.TempDir(), "azline-debug-logs", fmt.Sprintf("debug-%s.log", timestamp))
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}

	debugFile = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
	}
	setOutputLocked(debugFile, ParseLevel(opts.Level))
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		setOutputLocked(nil, zerolog.DebugLevel)
		return err
	}
	return nil
}

// ParseLevel maps a config level name onto a zerolog level; unknown names mean debug
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.DebugLevel
	}
}

// IsDebugEnabled returns true if debug mode is enabled and we're not in MCP mode
func IsDebugEnabled() bool {
	// Never output debug info in MCP mode
	if MCPMode {
		return false
	}

	if EnableDebug == "true" {
		return true
	}

	// Allow runtime override via environment variable
	if os.Getenv("DEBUG") == "1" || os.Getenv("DEBUG") == "true" {
		return true
	}

	return false
}

func current() (zerolog.Logger, bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return logger, debugOutput != nil
}

func message(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

// Printf prints debug information only when debug mode is enabled and output is configured
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	l, ok := current()
	if !ok {
		return
	}
	l.Debug().Msg(message(format, args...))
}

// Println prints debug information only when debug mode is enabled and output is configured
func Println(args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	l, ok := current()
	if !ok {
		return
	}
	l.Debug().Msg(strings.TrimRight(fmt.Sprintln(args...), "\n"))
}

// Log provides structured debug logging with component names
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	l, ok := current()
	if !ok {
		return
	}
	l.Debug().Str("component", component).Msg(message(format, args...))
}

// Warn logs a component message at warn level. Unlike Log it is written
// whenever output is configured, so diagnostics survive without DEBUG set.
func Warn(component, format string, args ...interface{}) {
	l, ok := current()
	if !ok {
		return
	}
	l.Warn().Str("component", component).Msg(message(format, args...))
}

// LogPipeline provides debug logging for the live result pipeline
func LogPipeline(format string, args ...interface{}) {
	Log("PIPELINE", format, args...)
}

// LogBackend provides debug logging for knowledge backend traffic
func LogBackend(format string, args ...interface{}) {
	Log("BACKEND", format, args...)
}

// LogServer provides debug logging for the daemon
func LogServer(format string, args ...interface{}) {
	Log("SERVER", format, args...)
}

// LogMCP provides debug logging specifically for MCP operations
func LogMCP(format string, args ...interface{}) {
	Log("MCP", format, args...)
}

// Fatal outputs a catastrophic error message to the debug log and returns a fatal error.
// In MCP mode, output is suppressed entirely.
func Fatal(format string, args ...interface{}) error {
	msg := message(format, args...)
	if !MCPMode {
		if l, ok := current(); ok {
			l.Error().Str("severity", "fatal").Msg(msg)
		}
	}
	return fmt.Errorf("fatal error: %s", msg)
}

// CatastrophicError outputs an error that indicates system failure to the debug log.
// In MCP mode, this is suppressed to maintain protocol compliance.
func CatastrophicError(format string, args ...interface{}) {
	if MCPMode {
		return
	}
	if l, ok := current(); ok {
		l.Error().Str("severity", "catastrophic").Msg(message(format, args...))
	}
}
