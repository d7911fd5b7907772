package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/azline/internal/completion"
	"github.com/standardbeagle/azline/internal/editor"
	"github.com/standardbeagle/azline/internal/pipeline"
	"github.com/standardbeagle/azline/internal/server"
	"github.com/standardbeagle/azline/internal/session"
)

// lineArg returns the command line given as arguments; several words are
// joined so that quoting the whole line is optional
func lineArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("%w: %s expects a command line", errUsage, c.Command.Name)
	}
	return strings.Join(c.Args().Slice(), " "), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseCommand prints the nodes of a line. Parsing is local even with --server.
func parseCommand(c *cli.Context) error {
	line, err := lineArg(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	resp := server.NewParseResponse(line, cfg.Root)
	out := c.App.Writer
	if c.Bool("json") {
		return writeJSON(out, resp)
	}

	for _, n := range resp.Nodes {
		fmt.Fprintf(out, "%4d %3d  %-16s %s\n", n.Offset, n.Length, n.Kind, n.Text)
	}
	if !resp.HasRoot {
		fmt.Fprintf(out, "(line does not start with %q)\n", cfg.Root)
	}
	return nil
}

func completeCommand(c *cli.Context) error {
	line, err := lineArg(c)
	if err != nil {
		return err
	}
	cursor := c.Int("cursor")
	if cursor < 0 {
		cursor = len(line)
	}
	if cursor > len(line) {
		return fmt.Errorf("cursor %d is past the end of the line (%d bytes)", cursor, len(line))
	}

	ctx := c.Context
	var items []completion.Item
	if c.Bool("server") {
		client, err := clientFor(c)
		if err != nil {
			return err
		}
		items, err = client.Complete(ctx, line, cursor)
		if err != nil {
			return err
		}
	} else {
		sess, err := openSession(c, session.Options{})
		if err != nil {
			return err
		}
		defer sess.Close()
		items, err = sess.Complete(ctx, line, cursor)
		if err != nil {
			return err
		}
	}

	out := c.App.Writer
	if c.Bool("json") {
		if items == nil {
			items = []completion.Item{}
		}
		return writeJSON(out, items)
	}
	for _, it := range items {
		if it.Detail != "" {
			fmt.Fprintf(out, "%-28s %-16s %s\n", it.Label, it.Kind, it.Detail)
		} else {
			fmt.Fprintf(out, "%-28s %s\n", it.Label, it.Kind)
		}
	}
	return nil
}

func hoverCommand(c *cli.Context) error {
	line, err := lineArg(c)
	if err != nil {
		return err
	}
	offset := c.Int("offset")

	ctx := c.Context
	var h *completion.HoverResult
	if c.Bool("server") {
		client, err := clientFor(c)
		if err != nil {
			return err
		}
		h, err = client.Hover(ctx, line, offset)
		if err != nil {
			return err
		}
	} else {
		sess, err := openSession(c, session.Options{})
		if err != nil {
			return err
		}
		defer sess.Close()
		h, err = sess.Hover(ctx, line, offset)
		if err != nil {
			return err
		}
	}

	out := c.App.Writer
	if c.Bool("json") {
		return writeJSON(out, h)
	}
	if h == nil {
		fmt.Fprintln(out, "no documentation")
		return nil
	}
	fmt.Fprintln(out, strings.Join(h.Paragraphs, "\n\n"))
	return nil
}

// runCommand runs a line and prints the side view content. With
// --live-query the --query expression is stripped from the executed line
// and evaluated locally on the full output.
func runCommand(c *cli.Context) error {
	line, err := lineArg(c)
	if err != nil {
		return err
	}
	live := c.Bool("live-query")

	if c.Bool("server") {
		client, err := clientFor(c)
		if err != nil {
			return err
		}
		state, err := runViaServer(c.Context, client, line, live)
		if err != nil {
			return err
		}
		return printState(c.App.Writer, state)
	}

	host := editor.NewMemoryHost()
	sess, err := openSession(c, session.Options{Host: host})
	if err != nil {
		return err
	}
	defer sess.Close()

	state, err := runLocal(c.Context, sess, line, live)
	if err != nil {
		return err
	}
	return printState(c.App.Writer, state)
}

// runLocal runs line through sess and waits for the output
func runLocal(ctx context.Context, sess *session.Session, line string, live bool) (*pipeline.State, error) {
	if live {
		sess.Edit(ctx, "", line, []editor.Range{{}})
		if !sess.Result().QueryEnabled {
			sess.ToggleQuery(ctx)
		}
	}
	done, err := sess.Run(ctx, line)
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	state := sess.Result()
	return &state, nil
}

func runViaServer(ctx context.Context, client *server.Client, line string, live bool) (*pipeline.State, error) {
	if live {
		if _, err := client.Edit(ctx, "", line, []editor.Range{{}}); err != nil {
			return nil, err
		}
		state, err := client.Result(ctx)
		if err != nil {
			return nil, err
		}
		if !state.QueryEnabled {
			if _, err := client.ToggleQuery(ctx); err != nil {
				return nil, err
			}
		}
	}
	return client.Run(ctx, line, true)
}

func printState(w io.Writer, state *pipeline.State) error {
	if state.ViewContent != "" {
		fmt.Fprintln(w, state.ViewContent)
	}
	return nil
}
