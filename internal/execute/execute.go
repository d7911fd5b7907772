// Package execute runs a command line as an external process and captures
// its stdout and stderr separately.
package execute

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/azline/internal/debug"
	azerrors "github.com/standardbeagle/azline/internal/errors"
)

// MaxOutputSize limits captured output per stream (10MB)
const MaxOutputSize = 10 * 1024 * 1024

const truncationNotice = "\n... OUTPUT TRUNCATED (exceeded 10MB limit) ...\n"

// Outcome is the captured result of one execution
type Outcome struct {
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// Failed reports whether the command did not complete successfully
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Executor runs a line. Implementations own any timeout policy; callers
// impose none beyond the context they pass.
type Executor interface {
	Execute(ctx context.Context, line string) Outcome
}

// Shell executes lines through the platform shell
type Shell struct {
	// Program and Flag select the shell; empty uses sh -c (cmd /C on Windows)
	Program string
	Flag    string
	Dir     string
	Env     []string
}

// NewShell creates a shell executor. program may be empty for the platform default.
func NewShell(program string) *Shell {
	s := &Shell{}
	s.Program, s.Flag = ShellFor(runtime.GOOS, program)
	return s
}

// ShellFor returns the shell program and its command flag for goos
func ShellFor(goos, program string) (string, string) {
	if goos == "windows" {
		if program == "" {
			program = "cmd"
		}
		if strings.EqualFold(program, "cmd") || strings.EqualFold(program, "cmd.exe") {
			return program, "/C"
		}
		return program, "-Command"
	}
	if program == "" {
		program = "sh"
	}
	return program, "-c"
}

// Execute runs line and waits for it to exit
func (s *Shell) Execute(ctx context.Context, line string) Outcome {
	program, flag := s.Program, s.Flag
	if program == "" {
		program, flag = ShellFor(runtime.GOOS, "")
	}

	cmd := exec.CommandContext(ctx, program, flag, line)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}

	stdout := &collector{}
	stderr := &collector{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	debug.Log("EXEC", "running %q via %s %s", line, program, flag)
	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		outcome.Err = azerrors.NewExecError(line, exitCode, err)
		debug.Log("EXEC", "command %q failed after %v: %v", line, outcome.Duration, err)
		return outcome
	}

	debug.Log("EXEC", "command %q finished in %v (%d bytes stdout)", line, outcome.Duration, len(outcome.Stdout))
	return outcome
}

// collector accumulates a stream up to MaxOutputSize
type collector struct {
	mu        sync.Mutex
	output    strings.Builder
	truncated bool
}

// Write implements io.Writer
func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.truncated {
		return len(p), nil
	}
	if c.output.Len()+len(p) > MaxOutputSize {
		c.output.Write(p[:MaxOutputSize-c.output.Len()])
		c.output.WriteString(truncationNotice)
		c.truncated = true
		return len(p), nil
	}
	c.output.Write(p)
	return len(p), nil
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output.String()
}

// Func adapts a function to the Executor interface
type Func func(ctx context.Context, line string) Outcome

// Execute calls f
func (f Func) Execute(ctx context.Context, line string) Outcome {
	return f(ctx, line)
}

// Static returns an executor that always yields outcome
func Static(outcome Outcome) Executor {
	return Func(func(context.Context, string) Outcome { return outcome })
}

// Failure builds a failed outcome, as a fake executor would report it
func Failure(stdout, stderr string, exitCode int) Outcome {
	return Outcome{
		Stdout: stdout,
		Stderr: stderr,
		Err:    azerrors.NewExecError("", exitCode, fmt.Errorf("exit status %d", exitCode)),
	}
}
