package editor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryView is an in-process side view
type MemoryView struct {
	id string

	mu        sync.RWMutex
	content   string
	cursor    Position
	revisions int
	closed    bool
}

// NewMemoryView creates an open, empty view with a fresh identity
func NewMemoryView() *MemoryView {
	return &MemoryView{id: uuid.NewString()}
}

// ID returns the view identity
func (v *MemoryView) ID() string {
	return v.id
}

// Replace swaps the content and moves the cursor back to the start
func (v *MemoryView) Replace(ctx context.Context, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrViewClosed
	}
	v.content = content
	v.cursor = Position{}
	v.revisions++
	return nil
}

// Content returns the current text
func (v *MemoryView) Content() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.content
}

// Cursor returns the cursor position
func (v *MemoryView) Cursor() Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cursor
}

// MoveCursor simulates the user moving the cursor within the view
func (v *MemoryView) MoveCursor(p Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cursor = p
}

// Revisions returns how many times the content was replaced
func (v *MemoryView) Revisions() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revisions
}

// Close marks the view as closed by the user
func (v *MemoryView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

// Closed reports whether the view was closed
func (v *MemoryView) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}

// MemoryHost creates MemoryViews and remembers every view it opened
type MemoryHost struct {
	mu    sync.Mutex
	views []*MemoryView
}

// NewMemoryHost creates an empty host
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{}
}

// OpenSideView creates a new view
func (h *MemoryHost) OpenSideView(ctx context.Context) (SideView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := NewMemoryView()
	h.mu.Lock()
	h.views = append(h.views, v)
	h.mu.Unlock()
	return v, nil
}

// Views returns every view opened so far, oldest first
func (h *MemoryHost) Views() []*MemoryView {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*MemoryView, len(h.views))
	copy(out, h.views)
	return out
}

// Latest returns the most recently opened view, or nil
func (h *MemoryHost) Latest() *MemoryView {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.views) == 0 {
		return nil
	}
	return h.views[len(h.views)-1]
}
