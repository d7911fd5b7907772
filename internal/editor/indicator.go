package editor

import "sync"

// Indicator is a status bar item that can be shown with text or hidden
type Indicator interface {
	Show(text string)
	Hide()
}

// MemoryIndicator records the indicator state in memory
type MemoryIndicator struct {
	mu      sync.RWMutex
	text    string
	visible bool
}

// Show makes the indicator visible with text
func (i *MemoryIndicator) Show(text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.text = text
	i.visible = true
}

// Hide hides the indicator and keeps its last text
func (i *MemoryIndicator) Hide() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.visible = false
}

// State returns the current text and visibility
func (i *MemoryIndicator) State() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.text, i.visible
}
