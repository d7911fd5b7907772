package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/standardbeagle/azline/internal/debug"
	azerrors "github.com/standardbeagle/azline/internal/errors"
)

// Default helper process speaking the line protocol
const (
	DefaultServiceCommand = "python3"
)

// DefaultServiceArgs starts the azservice helper module
var DefaultServiceArgs = []string{"-m", "azservice"}

// maxResponseSize bounds a single response line
const maxResponseSize = 16 * 1024 * 1024

// AzServiceOptions configures the helper process
type AzServiceOptions struct {
	Command    string
	Args       []string
	Env        []string // appended to the current environment
	OnNotFound NotFoundHandler
	// MaxResponseSize bounds one response line; 0 uses 16 MiB
	MaxResponseSize int
}

// serviceRequest is one line written to the helper
type serviceRequest struct {
	Sequence int64        `json:"sequence"`
	Query    serviceQuery `json:"query"`
}

type serviceQuery struct {
	Request    string             `json:"request"`
	Subcommand string             `json:"subcommand,omitempty"`
	Argument   string             `json:"argument,omitempty"`
	Arguments  map[string]*string `json:"arguments,omitempty"`
	Prefix     string             `json:"prefix,omitempty"`
}

// serviceResponse is one line read from the helper
type serviceResponse struct {
	Sequence int64           `json:"sequence"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// AzService talks to a long-running helper process over stdin/stdout using
// one JSON object per line. Responses are matched to requests by sequence
// number, so requests may overlap. The process is started on first use and
// restarted after it exits.
type AzService struct {
	opts         AzServiceOptions
	notFoundOnce sync.Once

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	pending     map[int64]chan serviceResponse
	sequence    int64
	unavailable bool
	closed      bool

	readers sync.WaitGroup
}

// NewAzService creates a service; the process is not started yet
func NewAzService(opts AzServiceOptions) *AzService {
	if opts.Command == "" {
		opts.Command = DefaultServiceCommand
		if opts.Args == nil {
			opts.Args = DefaultServiceArgs
		}
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = maxResponseSize
	}
	return &AzService{
		opts:    opts,
		pending: make(map[int64]chan serviceResponse),
	}
}

// Completions asks the helper for completion candidates
func (s *AzService) Completions(ctx context.Context, q CompletionQuery) ([]Completion, error) {
	raw, err := s.request(ctx, serviceQuery{
		Request:    "completions",
		Subcommand: q.Subcommand,
		Argument:   q.Argument,
		Arguments:  q.Arguments,
		Prefix:     q.Prefix,
	})
	if err != nil {
		return nil, err
	}
	var out []Completion
	if err := decodeResult(raw, &out); err != nil {
		return nil, azerrors.NewBackendError("completions", err)
	}
	return out, nil
}

// Hover asks the helper for documentation
func (s *AzService) Hover(ctx context.Context, q HoverQuery) (*Hover, error) {
	raw, err := s.request(ctx, serviceQuery{
		Request:    "hover",
		Subcommand: q.Subcommand,
		Argument:   q.Argument,
	})
	if err != nil {
		return nil, err
	}
	var out *Hover
	if err := decodeResult(raw, &out); err != nil {
		return nil, azerrors.NewBackendError("hover", err)
	}
	return out, nil
}

// Status asks the helper for its status line
func (s *AzService) Status(ctx context.Context) (Status, error) {
	raw, err := s.request(ctx, serviceQuery{Request: "status"})
	if err != nil {
		return Status{}, err
	}
	var out Status
	if err := decodeResult(raw, &out); err != nil {
		return Status{}, azerrors.NewBackendError("status", err)
	}
	return out, nil
}

func decodeResult(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Unavailable reports whether the helper command was not found
func (s *AzService) Unavailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}

func (s *AzService) request(ctx context.Context, q serviceQuery) (json.RawMessage, error) {
	s.mu.Lock()
	if err := s.ensureStartedLocked(q.Request); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.sequence++
	seq := s.sequence
	ch := make(chan serviceResponse, 1)
	s.pending[seq] = ch

	line, err := json.Marshal(serviceRequest{Sequence: seq, Query: q})
	if err == nil {
		line = append(line, '\n')
		_, err = s.stdin.Write(line)
	}
	if err != nil {
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, azerrors.NewBackendError(q.Request, err).WithRecoverable(true)
	}
	s.mu.Unlock()

	debug.LogBackend("request %d: %s %q", seq, q.Request, q.Subcommand)

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != "" {
			return nil, azerrors.NewBackendError(q.Request, errors.New(resp.Error))
		}
		return resp.Result, nil
	}
}

// ensureStartedLocked starts the helper if it is not running
func (s *AzService) ensureStartedLocked(request string) error {
	if s.closed {
		return azerrors.NewBackendError(request, errors.New("service closed"))
	}
	if s.unavailable {
		return azerrors.NewBackendError(request, ErrUnavailable).WithUnavailable()
	}
	if s.cmd != nil {
		return nil
	}

	cmd := exec.Command(s.opts.Command, s.opts.Args...)
	if len(s.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), s.opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return azerrors.NewBackendError(request, err).WithRecoverable(true)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return azerrors.NewBackendError(request, err).WithRecoverable(true)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			s.unavailable = true
			debug.LogBackend("%s not found: %v", s.opts.Command, err)
			if s.opts.OnNotFound != nil {
				s.notFoundOnce.Do(s.opts.OnNotFound)
			}
			return azerrors.NewBackendError(request, fmt.Errorf("%w: %v", ErrUnavailable, err)).WithUnavailable()
		}
		return azerrors.NewBackendError(request, err).WithRecoverable(true)
	}

	debug.LogBackend("started %s (pid %d)", s.opts.Command, cmd.Process.Pid)
	s.cmd = cmd
	s.stdin = stdin
	s.readers.Add(1)
	go s.readResponses(cmd, stdout)
	return nil
}

// readResponses dispatches response lines until the helper exits
func (s *AzService) readResponses(cmd *exec.Cmd, stdout io.Reader) {
	defer s.readers.Done()

	limit := s.opts.MaxResponseSize
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, min(64*1024, limit)), limit)
	for scanner.Scan() {
		var resp serviceResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			debug.LogBackend("ignoring malformed response: %v", err)
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.Sequence]
		delete(s.pending, resp.Sequence)
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	// A reader that stopped early leaves the helper writing to a pipe
	// nobody drains; kill it so the next request starts a fresh one.
	if err := scanner.Err(); err != nil {
		debug.LogBackend("reading helper output failed: %v", err)
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}

	err := cmd.Wait()
	debug.LogBackend("helper exited: %v", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == cmd {
		s.cmd = nil
		s.stdin = nil
	}
	for seq, ch := range s.pending {
		ch <- serviceResponse{Sequence: seq, Error: "backend process exited"}
		delete(s.pending, seq)
	}
}

// closeTimeout is how long Close waits for the helper to exit on its own
const closeTimeout = 2 * time.Second

// Close stops the helper process and waits for its reader
func (s *AzService) Close() error {
	s.mu.Lock()
	s.closed = true
	stdin, cmd := s.stdin, s.cmd
	s.mu.Unlock()

	var err error
	if stdin != nil {
		err = stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeTimeout):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	return err
}
