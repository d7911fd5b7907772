package completion

import (
	"context"
	"strings"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/parser"
)

// TriggerCharacters are the characters after which an editor should ask for completions
var TriggerCharacters = []string{" "}

// Item is a completion candidate ready for display and insertion
type Item struct {
	Label         string                 `json:"label"`
	Kind          backend.CompletionKind `json:"kind"`
	Detail        string                 `json:"detail,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	InsertText    string                 `json:"insert_text"`
	IsSnippet     bool                   `json:"is_snippet,omitempty"`
	SortText      string                 `json:"sort_text,omitempty"`
}

// Range is a half-open byte range [Start, End) within a line
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// HoverResult is hover documentation anchored to a range of the line
type HoverResult struct {
	Paragraphs []string `json:"paragraphs"`
	Range      Range    `json:"range"`
}

// InsertText computes the text to insert for c so that characters already
// typed at the cursor are not duplicated. Snippets are inserted unchanged.
func InsertText(c backend.Completion, ctx CursorContext) (text string, snippet bool) {
	if c.Snippet != "" {
		return c.Snippet, true
	}
	if ctx.TypedPrefix != "" && strings.HasPrefix(c.Name, ctx.TypedPrefix) {
		return c.Name[len(ctx.TypedPrefix):], false
	}
	if ctx.Lead != "" && strings.HasPrefix(c.Name, ctx.Lead) {
		return c.Name[len(ctx.Lead):], false
	}
	return c.Name, false
}

// Query converts a recognised cursor context into a backend completion query
func (c CursorContext) Query() backend.CompletionQuery {
	return backend.CompletionQuery{
		Subcommand: c.SubcommandPath,
		Argument:   c.ActiveParameter,
		Arguments:  c.Arguments,
		Prefix:     c.TypedPrefix,
	}
}

// Provider answers completion and hover requests for single command lines
type Provider struct {
	service backend.Service
	root    string
}

// NewProvider creates a provider querying service for lines that start with root
func NewProvider(service backend.Service, root string) *Provider {
	if root == "" {
		root = parser.DefaultRoot
	}
	return &Provider{service: service, root: root}
}

// Root returns the invocation name this provider recognises
func (p *Provider) Root() string {
	return p.root
}

// Context resolves the cursor context without querying the backend
func (p *Provider) Context(line string, cursor int) CursorContext {
	return Resolve(line, cursor, p.root)
}

// Complete returns completion items for the cursor position. Lines that do not
// start with the root invocation yield no items and no backend call.
func (p *Provider) Complete(ctx context.Context, line string, cursor int) ([]Item, error) {
	cc := p.Context(line, cursor)
	if !cc.Recognized {
		return nil, nil
	}

	candidates, err := p.service.Completions(ctx, cc.Query())
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(candidates))
	for _, c := range candidates {
		text, snippet := InsertText(c, cc)
		items = append(items, Item{
			Label:         c.Name,
			Kind:          c.Kind,
			Detail:        c.Detail,
			Documentation: c.Documentation,
			InsertText:    text,
			IsSnippet:     snippet,
			SortText:      c.SortText,
		})
	}
	return items, nil
}

// HoverTarget resolves what a hover at offset refers to, using the parsed
// command tree. ok is false for the root token, values, whitespace and lines
// without the root invocation.
func (p *Provider) HoverTarget(line string, offset int) (q backend.HoverQuery, r Range, ok bool) {
	cmd := parser.Parse(line)
	if !cmd.HasRoot(p.root) {
		return q, r, false
	}
	node, found := parser.FindNode(cmd, offset)
	if !found {
		return q, r, false
	}

	switch node.Kind {
	case parser.KindSubcommand:
		i := cmd.SubcommandIndex(node)
		if i < 1 {
			return q, r, false
		}
		words := cmd.Path()[:i]
		q = backend.HoverQuery{Subcommand: strings.Join(words, " ")}
		r = Range{Start: cmd.Subcommand[1].Offset, End: node.End()}
		return q, r, true
	case parser.KindParameterName:
		q = backend.HoverQuery{
			Subcommand: strings.Join(cmd.Path(), " "),
			Argument:   node.Text,
		}
		r = Range{Start: node.Offset, End: node.End()}
		return q, r, true
	default:
		return q, r, false
	}
}

// Hover returns documentation for the token at offset, or nil when there is none
func (p *Provider) Hover(ctx context.Context, line string, offset int) (*HoverResult, error) {
	q, r, ok := p.HoverTarget(line, offset)
	if !ok {
		return nil, nil
	}

	h, err := p.service.Hover(ctx, q)
	if err != nil || h == nil || len(h.Paragraphs) == 0 {
		return nil, err
	}
	return &HoverResult{Paragraphs: h.Paragraphs, Range: r}, nil
}
