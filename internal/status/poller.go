// Package status keeps a status bar indicator updated with the backend's
// status message while a command script is the active document.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/editor"
)

// DefaultInterval is the delay between the end of one poll and the next
const DefaultInterval = 5 * time.Second

// ActiveFunc reports whether a document of the DSL currently has focus
type ActiveFunc func() bool

// Poller polls the backend status. A poll is only scheduled after the
// previous one resolved, so at most one is in flight.
type Poller struct {
	service   backend.Service
	indicator editor.Indicator
	active    ActiveFunc
	interval  time.Duration

	mu     sync.RWMutex
	last   backend.Status
	polls  int64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. A nil active func means always active.
func NewPoller(service backend.Service, indicator editor.Indicator, active ActiveFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if active == nil {
		active = func() bool { return true }
	}
	return &Poller{
		service:   service,
		indicator: indicator,
		active:    active,
		interval:  interval,
	}
}

// Start polls immediately and then keeps polling until Stop or ctx ends
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go p.loop(ctx, done)
}

// Stop ends polling and waits for an in-flight poll to return
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.Poll(ctx)
			timer.Reset(p.interval)
		}
	}
}

// Poll performs one status update
func (p *Poller) Poll(ctx context.Context) {
	if !p.active() {
		p.indicator.Hide()
		return
	}

	st, err := p.service.Status(ctx)

	p.mu.Lock()
	p.polls++
	if err == nil {
		p.last = st
	}
	p.mu.Unlock()

	if err != nil {
		debug.LogBackend("status poll failed: %v", err)
		p.indicator.Hide()
		return
	}
	if st.Message == "" {
		p.indicator.Hide()
		return
	}
	p.indicator.Show(st.Message)
}

// Last returns the most recent successful status
func (p *Poller) Last() backend.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Polls returns how many backend status calls were made
func (p *Poller) Polls() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polls
}
