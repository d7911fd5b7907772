// Package session wires the parser, knowledge backend, completion provider,
// live result pipeline and status poller for one workspace.
package session

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/completion"
	"github.com/standardbeagle/azline/internal/config"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/execute"
	"github.com/standardbeagle/azline/internal/parser"
	"github.com/standardbeagle/azline/internal/pipeline"
	"github.com/standardbeagle/azline/internal/query"
	"github.com/standardbeagle/azline/internal/status"
)

// Options overrides the collaborators a session builds from config.
// Zero values select the defaults.
type Options struct {
	Host            editor.Host
	Executor        execute.Executor
	Service         backend.Service
	QueryIndicator  editor.Indicator
	StatusIndicator editor.Indicator
	Diagnostics     pipeline.DiagnosticFunc
	OnNotFound      backend.NotFoundHandler
}

// Session is the per-workspace set of collaborators
type Session struct {
	cfg      *config.Config
	service  *backend.Degraded
	closer   io.Closer
	provider *completion.Provider
	pipeline *pipeline.Pipeline
	poller   *status.Poller
	host     editor.Host

	queryIndicator  editor.Indicator
	statusIndicator editor.Indicator

	active  atomic.Bool
	started time.Time
}

// New creates a session for cfg
func New(cfg *config.Config, opts Options) (*Session, error) {
	s := &Session{cfg: cfg, started: time.Now()}

	service := opts.Service
	if service == nil {
		var err error
		service, s.closer, err = NewService(cfg.Backend, opts.OnNotFound)
		if err != nil {
			return nil, err
		}
	}
	s.service = backend.Degrade(service)

	s.host = opts.Host
	if s.host == nil {
		s.host = editor.NewMemoryHost()
	}
	exec := opts.Executor
	if exec == nil {
		shell := execute.NewShell(cfg.Execute.Shell)
		shell.Dir = cfg.Project.Root
		exec = shell
	}
	s.queryIndicator = opts.QueryIndicator
	if s.queryIndicator == nil {
		s.queryIndicator = &editor.MemoryIndicator{}
	}
	s.statusIndicator = opts.StatusIndicator
	if s.statusIndicator == nil {
		s.statusIndicator = &editor.MemoryIndicator{}
	}

	pipelineOpts := []pipeline.Option{pipeline.WithIndicator(s.queryIndicator)}
	if opts.Diagnostics != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithDiagnostics(opts.Diagnostics))
	}

	s.provider = completion.NewProvider(s.service, cfg.Root)
	s.pipeline = pipeline.New(s.host, exec, query.NewJMESPath(), pipelineOpts...)
	s.poller = status.NewPoller(s.service, s.statusIndicator, s.active.Load,
		time.Duration(cfg.Status.IntervalMs)*time.Millisecond)

	debug.Log("SESSION", "session for %s (backend %s, root %q)", cfg.Project.Root, cfg.Backend.Kind, cfg.Root)
	return s, nil
}

// NewService builds the knowledge backend named by cfg. The closer is nil
// when the backend holds no process.
func NewService(cfg config.Backend, onNotFound backend.NotFoundHandler) (backend.Service, io.Closer, error) {
	switch cfg.Kind {
	case config.BackendCatalog:
		var (
			c   *backend.Catalog
			err error
		)
		if cfg.Catalog != "" {
			c, err = backend.LoadCatalog(cfg.Catalog)
		} else {
			c, err = backend.DefaultCatalog()
		}
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case config.BackendAzService, "":
		s := backend.NewAzService(backend.AzServiceOptions{
			Command:    cfg.Command,
			Args:       cfg.Args,
			OnNotFound: onNotFound,
		})
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// Config returns the session configuration
func (s *Session) Config() *config.Config {
	return s.cfg
}

func (s *Session) Provider() *completion.Provider {
	return s.provider
}

func (s *Session) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Session) Poller() *status.Poller {
	return s.poller
}

// Host returns the editor host side views are opened in
func (s *Session) Host() editor.Host {
	return s.host
}

// Service returns the degraded backend every caller goes through
func (s *Session) Service() *backend.Degraded {
	return s.service
}

func (s *Session) QueryIndicator() editor.Indicator {
	return s.queryIndicator
}

func (s *Session) StatusIndicator() editor.Indicator {
	return s.statusIndicator
}

// SetActive marks whether a DSL document is focused; status polls only while it is
func (s *Session) SetActive(active bool) {
	s.active.Store(active)
}

// Active reports whether a DSL document is focused
func (s *Session) Active() bool {
	return s.active.Load()
}

// Parse returns the command tree of line
func (s *Session) Parse(line string) *parser.Command {
	return parser.Parse(line)
}

// Complete returns completion items for the cursor in line
func (s *Session) Complete(ctx context.Context, line string, cursor int) ([]completion.Item, error) {
	s.SetActive(true)
	return s.provider.Complete(ctx, line, cursor)
}

// Hover returns documentation for the token at offset, or nil
func (s *Session) Hover(ctx context.Context, line string, offset int) (*completion.HoverResult, error) {
	s.SetActive(true)
	return s.provider.Hover(ctx, line, offset)
}

// Run executes line through the live result pipeline
func (s *Session) Run(ctx context.Context, line string) (<-chan struct{}, error) {
	s.SetActive(true)
	return s.pipeline.Run(ctx, line)
}

// Edit feeds an editor change to the pipeline. text is the whole document
// after the change.
func (s *Session) Edit(ctx context.Context, path, text string, changes []editor.Range) {
	s.pipeline.HandleChange(ctx, editor.ChangeEvent{Path: path, Changes: changes}, editor.NewTextDocument(text))
}

// ToggleQuery flips live filtering and returns the new state
func (s *Session) ToggleQuery(ctx context.Context) bool {
	return s.pipeline.ToggleQuery(ctx)
}

// Result returns the pipeline state
func (s *Session) Result() pipeline.State {
	return s.pipeline.Snapshot()
}

// Status asks the backend for its status line. Failures yield an empty status.
func (s *Session) Status(ctx context.Context) backend.Status {
	st, _ := s.service.Status(ctx)
	return st
}

// StartStatus begins status polling until ctx ends or Close is called
func (s *Session) StartStatus(ctx context.Context) {
	s.poller.Start(ctx)
}

// Stats summarises the session for diagnostics
type Stats struct {
	Root            string  `json:"root"`
	Backend         string  `json:"backend"`
	BackendFailures int64   `json:"backend_failures"`
	StatusPolls     int64   `json:"status_polls"`
	Phase           string  `json:"phase"`
	RunsInFlight    int     `json:"runs_in_flight"`
	QueryEnabled    bool    `json:"query_enabled"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Stats returns the current session statistics
func (s *Session) Stats() Stats {
	state := s.pipeline.Snapshot()
	return Stats{
		Root:            s.cfg.Project.Root,
		Backend:         s.cfg.Backend.Kind,
		BackendFailures: s.service.Failures(),
		StatusPolls:     s.poller.Polls(),
		Phase:           state.Phase.String(),
		RunsInFlight:    state.InFlight,
		QueryEnabled:    state.QueryEnabled,
		UptimeSeconds:   time.Since(s.started).Seconds(),
	}
}

// Close stops polling, waits for runs in flight and stops the backend
func (s *Session) Close() error {
	s.poller.Stop()
	s.pipeline.Wait()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
