package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/azline/internal/debug"
	"github.com/standardbeagle/azline/internal/security"
)

// DefaultPatterns selects the source documents to watch
var DefaultPatterns = []string{"**/*.azcli"}

// ChangeHandler receives one change event with the document text after the change
type ChangeHandler func(ev ChangeEvent, doc Document)

// Watcher turns file writes into editor change events. Each write is diffed
// against the last seen content and reported as one replaced range.
type Watcher struct {
	watcher   *fsnotify.Watcher
	root      string
	patterns  []string
	exclude   []string
	debouncer *eventDebouncer
	onChange  ChangeHandler
	validator *security.FileValidator
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	snapshots map[string]string

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time
}

// NewWatcher creates a watcher for files under root matching patterns
func NewWatcher(root string, patterns []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			fsw.Close()
			return nil, fmt.Errorf("invalid watch pattern %q", p)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:   fsw,
		root:      absRoot,
		patterns:  patterns,
		validator: security.NewFileValidator(0),
		ctx:       ctx,
		cancel:    cancel,
		snapshots: make(map[string]string),
	}
	w.debouncer = newEventDebouncer(debounce, w.process, &w.wg)
	return w, nil
}

// OnChange registers the change handler. Must be called before Start.
func (w *Watcher) OnChange(fn ChangeHandler) {
	w.onChange = fn
}

// Exclude skips files and directories matching any of patterns.
// Must be called before Start.
func (w *Watcher) Exclude(patterns []string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	w.exclude = append(w.exclude, patterns...)
	return nil
}

// Track records the current content of path as the diff baseline and
// returns it as a document. Files outside the patterns are accepted too,
// so a single explicitly named file can be watched.
func (w *Watcher) Track(path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := w.validator.Validate(abs); err != nil {
		return nil, fmt.Errorf("cannot watch %s: %w", abs, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.snapshots[abs] = string(data)
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return NewTextDocument(string(data)), nil
}

// Start seeds baselines for matching files and begins watching
func (w *Watcher) Start() error {
	debug.Log("WATCH", "starting watcher for %s patterns=%v", w.root, w.patterns)

	if err := w.addWatches(); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", w.root, err)
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching; pending debounced events are dropped and a change
// handler already running finishes before Stop returns
func (w *Watcher) Stop() error {
	w.cancel()
	w.debouncer.stop()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addWatches() error {
	visited := make(map[string]bool)

	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if w.matches(path) && !w.excluded(path) {
				if data, err := os.ReadFile(path); err == nil {
					w.mu.Lock()
					w.snapshots[path] = string(data)
					w.mu.Unlock()
				}
			}
			return nil
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil || visited[resolved] {
			return filepath.SkipDir
		}
		visited[resolved] = true

		if path != w.root && (skipDir(d.Name()) || w.excluded(path)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			debug.Log("WATCH", "failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

func (w *Watcher) matches(path string) bool {
	return matchAny(w.root, w.patterns, path)
}

func (w *Watcher) excluded(path string) bool {
	return matchAny(w.root, w.exclude, path)
}

func matchAny(root string, patterns []string, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) tracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.snapshots[path]
	return ok
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.incrementStats(0, 1)
			debug.Log("WATCH", "watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !skipDir(info.Name()) && !w.excluded(path) {
			if err := w.watcher.Add(path); err != nil {
				debug.Log("WATCH", "failed to add watch for new directory %s: %v", path, err)
			}
		}
		return
	}

	if !w.tracked(path) && (!w.matches(path) || w.excluded(path)) {
		return
	}
	w.debouncer.addEvent(path)
}

// process diffs the file against its baseline and emits the change
func (w *Watcher) process(path string) {
	if w.ctx.Err() != nil {
		return
	}

	if err := w.validator.Validate(path); err != nil {
		w.incrementStats(0, 1)
		debug.Log("WATCH", "skipping %s: %v", path, err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.incrementStats(0, 1)
		return
	}
	newText := string(data)

	w.mu.Lock()
	oldText, seen := w.snapshots[path]
	w.snapshots[path] = newText
	w.mu.Unlock()

	// a file created after Start has nothing to diff against yet
	if !seen {
		debug.Log("WATCH", "baseline recorded for new file %s", path)
		return
	}

	r, changed := Diff(oldText, newText)
	if !changed {
		return
	}

	w.incrementStats(1, 0)
	debug.Log("WATCH", "%s changed at %d:%d-%d:%d", path, r.Start.Row, r.Start.Column, r.End.Row, r.End.Column)
	if w.onChange != nil {
		w.onChange(ChangeEvent{Path: path, Changes: []Range{r}}, NewTextDocument(newText))
	}
}

func (w *Watcher) incrementStats(events, errors int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.errorCount += errors
	w.lastEventTime = time.Now()
}

// WatchStats contains statistics about watching
type WatchStats struct {
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
	IsActive        bool
}

// Stats returns current statistics
func (w *Watcher) Stats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return WatchStats{
		EventsProcessed: w.eventsProcessed,
		ErrorCount:      w.errorCount,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// eventDebouncer coalesces bursts of writes per path
type eventDebouncer struct {
	mutex    sync.Mutex
	pending  map[string]struct{}
	debounce time.Duration
	timer    *time.Timer
	stopped  bool
	flushFn  func(path string)
	inflight *sync.WaitGroup
}

func newEventDebouncer(debounce time.Duration, flush func(path string), inflight *sync.WaitGroup) *eventDebouncer {
	return &eventDebouncer{
		pending:  make(map[string]struct{}),
		debounce: debounce,
		flushFn:  flush,
		inflight: inflight,
	}
}

func (d *eventDebouncer) addEvent(path string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// flush registers on inflight while still holding the mutex, so a flush
// either sees stopped or is counted before stop returns
func (d *eventDebouncer) flush() {
	d.mutex.Lock()
	if d.stopped {
		d.mutex.Unlock()
		return
	}
	pending := d.pending
	d.pending = make(map[string]struct{})
	d.inflight.Add(1)
	d.mutex.Unlock()
	defer d.inflight.Done()

	for path := range pending {
		d.flushFn(path)
	}
}

func (d *eventDebouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
