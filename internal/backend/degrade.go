package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/azline/internal/debug"
)

// Degraded wraps a Service so that failures never reach the editor:
// completions become empty, hover becomes nil and status becomes empty.
// The first failure is written to the diagnostic log; later ones only
// appear with debug logging on.
type Degraded struct {
	inner    Service
	reported sync.Once
	failures atomic.Int64
}

// Degrade wraps s
func Degrade(s Service) *Degraded {
	return &Degraded{inner: s}
}

// Unwrap returns the wrapped service
func (d *Degraded) Unwrap() Service {
	return d.inner
}

// Failures returns how many calls failed
func (d *Degraded) Failures() int64 {
	return d.failures.Load()
}

func (d *Degraded) fail(request string, err error) {
	d.failures.Add(1)
	if errors.Is(err, context.Canceled) {
		return
	}
	d.reported.Do(func() {
		debug.Warn("BACKEND", "%s request failed, further failures are silent: %v", request, err)
	})
	debug.LogBackend("%s request failed: %v", request, err)
}

// Completions returns no candidates on failure
func (d *Degraded) Completions(ctx context.Context, q CompletionQuery) ([]Completion, error) {
	out, err := d.inner.Completions(ctx, q)
	if err != nil {
		d.fail("completions", err)
		return nil, nil
	}
	return out, nil
}

// Hover returns nil on failure
func (d *Degraded) Hover(ctx context.Context, q HoverQuery) (*Hover, error) {
	out, err := d.inner.Hover(ctx, q)
	if err != nil {
		d.fail("hover", err)
		return nil, nil
	}
	return out, nil
}

// Status returns an empty status on failure
func (d *Degraded) Status(ctx context.Context) (Status, error) {
	out, err := d.inner.Status(ctx)
	if err != nil {
		d.fail("status", err)
		return Status{}, nil
	}
	return out, nil
}
