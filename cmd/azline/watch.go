package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/azline/internal/config"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/session"
	"github.com/standardbeagle/azline/pkg/pathutil"
)

// errQuit ends the watch loop without an error
var errQuit = errors.New("quit")

const watchHelp = `commands:
  run [N]   run line N (default: the last edited line)
  toggle    turn live filtering on or off
  show      print the result file content
  status    print the backend status line
  quit      stop watching`

// syncWriter serializes writes from the watcher, the poller and the command loop
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// lineIndicator prints indicator changes as tagged lines
type lineIndicator struct {
	label string
	out   io.Writer

	mu      sync.Mutex
	text    string
	visible bool
}

func (i *lineIndicator) Show(text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.visible && i.text == text {
		return
	}
	i.text, i.visible = text, true
	fmt.Fprintf(i.out, "[%s] %s\n", i.label, text)
}

func (i *lineIndicator) Hide() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.visible {
		return
	}
	i.visible = false
	fmt.Fprintf(i.out, "[%s] off\n", i.label)
}

// watchCommand follows edits of FILE and keeps FILE's result file current.
// Commands are read from stdin.
func watchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: watch expects exactly one FILE", errUsage)
	}
	path, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	out := &syncWriter{w: c.App.Writer}
	sess, err := openSession(c, session.Options{
		Host:            editor.NewFileHost(path),
		QueryIndicator:  &lineIndicator{label: "query", out: out},
		StatusIndicator: &lineIndicator{label: "az", out: out},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	commands := make(chan string)
	go readCommands(c.App.Reader, commands)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shown := pathutil.ToRelativeAll([]string{path, editor.ResultPath(path)}, sess.Config().Project.Root)
	fmt.Fprintf(out, "watching %s, results in %s\n", shown[0], shown[1])
	return runWatch(ctx, sess, path, watchOptions{
		RunLine:   c.Int("run-line"),
		LiveQuery: c.Bool("live-query"),
	}, commands, out)
}

// readCommands forwards input lines until EOF
func readCommands(r io.Reader, commands chan<- string) {
	defer close(commands)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		commands <- strings.TrimSpace(scanner.Text())
	}
}

type watchOptions struct {
	RunLine   int // 1-based; 0 runs nothing on start
	LiveQuery bool
}

// watchState is the source document as last seen by the watcher
type watchState struct {
	mu      sync.Mutex
	doc     editor.Document
	lastRow int
}

func (s *watchState) set(doc editor.Document, row int, rowKnown bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	if rowKnown {
		s.lastRow = row
	}
}

func (s *watchState) line(row int) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 {
		row = s.lastRow
	}
	text, ok := s.doc.Line(row)
	return text, row, ok
}

// runWatch drives one watched document until ctx ends or a quit command
func runWatch(ctx context.Context, sess *session.Session, path string, opts watchOptions, commands <-chan string, out io.Writer) error {
	cfg := sess.Config()
	w, err := editor.NewWatcher(filepath.Dir(path), cfg.Watch.Patterns,
		time.Duration(cfg.Watch.DebounceMs)*time.Millisecond)
	if err != nil {
		return err
	}
	if err := w.Exclude(excludeWithResults(cfg)); err != nil {
		w.Stop()
		return err
	}

	doc, err := w.Track(path)
	if err != nil {
		w.Stop()
		return err
	}
	state := &watchState{doc: doc}

	w.OnChange(func(ev editor.ChangeEvent, doc editor.Document) {
		if ev.Path != path {
			return
		}
		row, ok := ev.EditedRow()
		state.set(doc, row, ok)
		sess.Pipeline().HandleChange(ctx, ev, doc)
	})
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}

	sess.SetActive(true)
	sess.StartStatus(ctx)

	g, gctx := errgroup.WithContext(ctx)
	run := func(row int) {
		line, row, ok := state.line(row)
		if !ok || strings.TrimSpace(line) == "" {
			fmt.Fprintf(out, "line %d is empty\n", row+1)
			return
		}
		done, err := sess.Run(gctx, line)
		if err != nil {
			fmt.Fprintf(out, "run failed: %v\n", err)
			return
		}
		g.Go(func() error {
			select {
			case <-done:
				fmt.Fprintf(out, "ran line %d: %s\n", row+1, sess.Result().Phase)
			case <-gctx.Done():
			}
			return nil
		})
	}

	if opts.RunLine > 0 {
		row := opts.RunLine - 1
		state.set(doc, row, true)
		at := editor.Position{Row: row}
		sess.Pipeline().HandleChange(ctx, editor.ChangeEvent{Path: path, Changes: []editor.Range{{Start: at, End: at}}}, doc)
		if opts.LiveQuery {
			sess.ToggleQuery(ctx)
		}
		run(row)
	} else if opts.LiveQuery {
		sess.ToggleQuery(ctx)
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case cmd, ok := <-commands:
				if !ok {
					commands = nil
					continue
				}
				if err := handleWatchCommand(gctx, sess, cmd, run, out); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.Stop()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// excludeWithResults keeps result files out of the watch set
func excludeWithResults(cfg *config.Config) []string {
	return config.DeduplicatePatterns(append(append([]string{}, cfg.Watch.Exclude...), "**/*"+editor.ResultSuffix))
}

func handleWatchCommand(ctx context.Context, sess *session.Session, cmd string, run func(row int), out io.Writer) error {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "run", "r":
		row := -1
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 1 {
				fmt.Fprintf(out, "bad line number %q\n", fields[1])
				return nil
			}
			row = n - 1
		}
		run(row)
	case "toggle", "t":
		sess.ToggleQuery(ctx)
	case "show":
		fmt.Fprintln(out, sess.Result().ViewContent)
	case "status", "s":
		msg := sess.Status(ctx).Message
		if msg == "" {
			msg = "(backend unavailable)"
		}
		fmt.Fprintln(out, msg)
	case "quit", "q", "exit":
		return errQuit
	default:
		fmt.Fprintln(out, watchHelp)
	}
	return nil
}
