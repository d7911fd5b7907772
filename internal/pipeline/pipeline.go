package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/editor"
	azerrors "github.com/standardbeagle/azline/internal/errors"
	"github.com/standardbeagle/azline/internal/execute"
	"github.com/standardbeagle/azline/internal/parser"
	"github.com/standardbeagle/azline/internal/query"
)

// QueryIndicatorText is shown while live filtering is on
const QueryIndicatorText = "$(filter) JMESPath"

// DiagnosticFunc receives evaluator failures that are not parse errors
type DiagnosticFunc func(err error)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithIndicator sets the live query indicator
func WithIndicator(ind editor.Indicator) Option {
	return func(p *Pipeline) { p.indicator = ind }
}

// WithDiagnostics sets the diagnostic channel for evaluator failures
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(p *Pipeline) { p.diagnose = fn }
}

// WithQueryEnabled sets the initial live filtering flag
func WithQueryEnabled(enabled bool) Option {
	return func(p *Pipeline) { p.state.QueryEnabled = enabled }
}

// Pipeline owns the live result state. Every handler holds mu for its whole
// transition so the state is never observed half updated.
type Pipeline struct {
	host      editor.Host
	exec      execute.Executor
	eval      query.Evaluator
	indicator editor.Indicator
	diagnose  DiagnosticFunc

	mu    sync.Mutex
	state State
	view  editor.SideView

	runs sync.WaitGroup
}

// New creates a pipeline
func New(host editor.Host, exec execute.Executor, eval query.Evaluator, opts ...Option) *Pipeline {
	p := &Pipeline{
		host: host,
		exec: exec,
		eval: eval,
		diagnose: func(err error) {
			debug.Warn("QUERY", "query evaluation failed: %v", err)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes line and shows its output in the side view. The returned
// channel is closed once the output has been captured and written. A new
// run never cancels one already in flight; whichever finishes last owns
// the side view.
func (p *Pipeline) Run(ctx context.Context, line string) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	view, err := p.ensureViewLocked(ctx)
	if err != nil {
		return nil, err
	}

	placeholder, err := formatJSON(map[string]string{"Running command": line})
	if err != nil {
		return nil, err
	}
	if err := p.replaceLocked(ctx, view, placeholder); err != nil {
		return nil, err
	}

	p.state.SourceLine = line
	p.state.Phase = PhaseRunning
	p.state.InFlight++

	// With live filtering on, the command must return the unfiltered data
	// so the local query can be applied on top of it.
	commandLine := line
	if p.state.QueryEnabled {
		commandLine = parser.StripQuery(line)
	}

	debug.LogPipeline("run started: %q (in flight: %d)", commandLine, p.state.InFlight)

	done := make(chan struct{})
	runCtx := context.WithoutCancel(ctx)
	p.runs.Add(1)
	go func() {
		defer p.runs.Done()
		defer close(done)
		outcome := p.exec.Execute(runCtx, commandLine)
		p.complete(runCtx, line, outcome)
	}()
	return done, nil
}

// complete records the outcome of one run and writes it to the side view
func (p *Pipeline) complete(ctx context.Context, line string, outcome execute.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.InFlight--
	if p.state.InFlight == 0 {
		p.state.Phase = PhaseRendered
	}

	var content string
	if outcome.Failed() {
		body, err := formatJSON(struct {
			Stderr string `json:"stderr"`
			Stdout string `json:"stdout"`
		}{outcome.Stderr, outcome.Stdout})
		if err != nil {
			debug.LogPipeline("failed to format failure output for %q: %v", line, err)
			return
		}
		content = body
		p.state.RawOutput = body
		p.state.ParsedResult = nil
		p.state.HasResult = false
		debug.LogPipeline("run failed: %q: %v", line, outcome.Err)
	} else {
		content = outcome.Stdout
		p.state.RawOutput = outcome.Stdout
		p.state.ParsedResult, p.state.HasResult = parseOutput(outcome.Stdout)
		debug.LogPipeline("run finished: %q (json: %v)", line, p.state.HasResult)
	}

	view := p.currentViewLocked()
	if view == nil {
		return
	}
	if err := p.replaceLocked(ctx, view, content); err != nil {
		debug.LogPipeline("failed to write output of %q: %v", line, err)
		return
	}

	if p.state.Filtering() {
		p.renderLocked(ctx)
	}
}

// HandleChange reacts to an edit of the source document. Only edits that
// touch a single line are considered; the --query expression on that line
// becomes the cached query.
func (p *Pipeline) HandleChange(ctx context.Context, ev editor.ChangeEvent, doc editor.Document) {
	row, ok := ev.EditedRow()
	if !ok {
		return
	}
	line, ok := doc.Line(row)
	if !ok {
		return
	}
	expr, found := parser.ExtractQuery(line)

	p.mu.Lock()
	defer p.mu.Unlock()

	if expr == p.state.QueryExpression && found == p.state.HasQuery {
		return
	}
	p.state.QueryExpression = expr
	p.state.HasQuery = found
	debug.LogPipeline("query changed to %q (present: %v)", expr, found)

	if p.state.QueryEnabled && p.state.HasResult && p.state.Phase == PhaseRendered {
		p.renderLocked(ctx)
	}
}

// ToggleQuery flips live filtering and re-renders from the cached state.
// It returns the new setting.
func (p *Pipeline) ToggleQuery(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.QueryEnabled = !p.state.QueryEnabled
	if p.indicator != nil {
		if p.state.QueryEnabled {
			p.indicator.Show(QueryIndicatorText)
		} else {
			p.indicator.Hide()
		}
	}
	debug.LogPipeline("live query enabled: %v", p.state.QueryEnabled)

	if p.state.Phase == PhaseRendered && p.state.HasResult {
		p.renderLocked(ctx)
	}
	return p.state.QueryEnabled
}

// Snapshot returns a copy of the current state
func (p *Pipeline) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Wait blocks until every run started so far has completed
func (p *Pipeline) Wait() {
	p.runs.Wait()
}

// renderLocked replaces the side view with the rendered state. Partial
// query expressions are expected while typing and leave the view alone
// silently; other evaluator failures go to the diagnostic channel.
func (p *Pipeline) renderLocked(ctx context.Context) {
	value, err := Render(p.state, p.eval)
	if err != nil {
		if !query.IsParseError(err) && p.diagnose != nil {
			p.diagnose(err)
		}
		return
	}

	content, err := formatJSON(value)
	if err != nil {
		p.diagnose(fmt.Errorf("failed to format result: %w", err))
		return
	}

	view := p.currentViewLocked()
	if view == nil {
		return
	}
	if err := p.replaceLocked(ctx, view, content); err != nil {
		debug.LogPipeline("render failed: %v", err)
	}
}

// currentViewLocked returns the side view, forgetting it if the user closed it
func (p *Pipeline) currentViewLocked() editor.SideView {
	if p.view != nil && p.view.Closed() {
		debug.LogPipeline("side view %s was closed", p.view.ID())
		p.view = nil
		p.state.SideViewID = ""
	}
	return p.view
}

func (p *Pipeline) ensureViewLocked(ctx context.Context) (editor.SideView, error) {
	if view := p.currentViewLocked(); view != nil {
		return view, nil
	}
	view, err := p.host.OpenSideView(ctx)
	if err != nil {
		return nil, azerrors.NewRenderError("open", "", err)
	}
	p.view = view
	p.state.SideViewID = view.ID()
	return view, nil
}

func (p *Pipeline) replaceLocked(ctx context.Context, view editor.SideView, content string) error {
	if err := view.Replace(ctx, content); err != nil {
		return azerrors.NewRenderError("replace", view.ID(), err)
	}
	p.state.ViewContent = content
	return nil
}
