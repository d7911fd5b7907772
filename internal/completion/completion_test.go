package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/azline/internal/backend"
	"github.com/standardbeagle/azline/internal/parser"
)

type recordingService struct {
	completions []backend.Completion
	hover       *backend.Hover
	err         error

	completionCalls []backend.CompletionQuery
	hoverCalls      []backend.HoverQuery
}

func (s *recordingService) Completions(_ context.Context, q backend.CompletionQuery) ([]backend.Completion, error) {
	s.completionCalls = append(s.completionCalls, q)
	return s.completions, s.err
}

func (s *recordingService) Hover(_ context.Context, q backend.HoverQuery) (*backend.Hover, error) {
	s.hoverCalls = append(s.hoverCalls, q)
	return s.hover, s.err
}

func (s *recordingService) Status(context.Context) (backend.Status, error) {
	return backend.Status{}, s.err
}

func TestResolve_CompletedPair(t *testing.T) {
	ctx := ResolveText("az vm create --name foo", "az")

	assert.True(t, ctx.Recognized)
	assert.Equal(t, "vm create", ctx.SubcommandPath)
	assert.Empty(t, ctx.ActiveParameter)
	assert.Equal(t, "", ctx.TypedPrefix)

	value, present := ctx.Arguments.Get("--name")
	assert.True(t, present)
	assert.Equal(t, "foo", value)
	assert.Len(t, ctx.Arguments, 1)
}

func TestResolve_PartialFlag(t *testing.T) {
	ctx := ResolveText("az vm create --na", "az")

	assert.True(t, ctx.Recognized)
	assert.Equal(t, "vm create", ctx.SubcommandPath)
	assert.Equal(t, "--na", ctx.TypedPrefix)
	assert.Equal(t, "--", ctx.Lead)
	assert.Empty(t, ctx.ActiveParameter)

	text, snippet := InsertText(backend.Completion{Name: "--name", Kind: backend.KindParameterName}, ctx)
	assert.False(t, snippet)
	assert.Equal(t, "me", text)
}

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		cursor     int // -1 means end of line
		recognized bool
		path       string
		active     string
		prefix     string
		lead       string
	}{
		{"root only", "az", -1, false, "", "", "", ""},
		{"root and space", "az ", -1, true, "", "", "", ""},
		{"partial group", "az vm cr", -1, true, "vm", "", "cr", ""},
		{"value pending", "az vm create --name ", -1, true, "vm create", "--name", "", ""},
		{"short flag pending", "az vm list -g  ", -1, true, "vm list", "-g", "", ""},
		{"after value and space", "az vm create --name foo ", -1, true, "vm create", "", "", ""},
		{"single dash", "az vm create -", -1, true, "vm create", "", "-", "-"},
		{"other tool", "kubectl get pods ", -1, false, "", "", "", ""},
		{"leading whitespace", "   az group ", -1, true, "group", "", "", ""},
		{"cursor mid line", "az vm create --name foo", len("az vm cr"), true, "vm", "", "cr", ""},
		{"cursor past end", "az vm ", 100, true, "vm", "", "", ""},
		{"negative cursor", "az vm ", -5, false, "", "", "", ""},
		{"empty", "", -1, false, "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor := tt.cursor
			if cursor == -1 {
				cursor = len(tt.line)
			}
			if tt.cursor < -1 {
				cursor = tt.cursor
			}
			ctx := Resolve(tt.line, cursor, "az")
			assert.Equal(t, tt.recognized, ctx.Recognized)
			assert.Equal(t, tt.path, ctx.SubcommandPath)
			assert.Equal(t, tt.active, ctx.ActiveParameter)
			assert.Equal(t, tt.prefix, ctx.TypedPrefix)
			assert.Equal(t, tt.lead, ctx.Lead)
		})
	}
}

func TestResolve_ConsistentWithParser(t *testing.T) {
	// At word boundaries the resolver and the tree parser must agree on
	// the subcommand path and on which flag a value belongs to.
	lines := []string{
		"az ",
		"az vm ",
		"az vm create ",
		"az vm create --name ",
		"az vm create --name foo ",
		"az vm create --name foo --resource-group ",
		"az vm create --force --name ",
		"az network vnet subnet create -g rg --vnet-name ",
		`az group create --name "my group" --location `,
	}

	for _, line := range lines {
		ctx := ResolveText(line, "az")
		cmd := parser.Parse(line)

		require.True(t, ctx.Recognized, line)
		assert.Equal(t, strings.Join(cmd.Path(), " "), ctx.SubcommandPath, line)

		var pending string
		if n := len(cmd.Nodes); n > 0 && cmd.Nodes[n-1].Kind == parser.KindParameterName {
			pending = cmd.Nodes[n-1].Text
		}
		assert.Equal(t, pending, ctx.ActiveParameter, line)

		for _, arg := range cmd.Arguments {
			value, present := ctx.Arguments.Get(arg.Name.Text)
			require.True(t, present, line)
			if arg.Value != nil {
				assert.Equal(t, arg.Value.Text, value, line)
			}
		}
	}
}

func TestInsertText(t *testing.T) {
	tests := []struct {
		name    string
		c       backend.Completion
		ctx     CursorContext
		want    string
		snippet bool
	}{
		{"snippet wins", backend.Completion{Name: "--name", Snippet: "--name ${1:name}"}, CursorContext{TypedPrefix: "--n", Lead: "--"}, "--name ${1:name}", true},
		{"prefix trimmed", backend.Completion{Name: "create"}, CursorContext{TypedPrefix: "cr"}, "ate", false},
		{"lead trimmed when prefix differs", backend.Completion{Name: "--location"}, CursorContext{TypedPrefix: "--na", Lead: "--"}, "location", false},
		{"no prefix", backend.Completion{Name: "list"}, CursorContext{}, "list", false},
		{"unrelated name", backend.Completion{Name: "show"}, CursorContext{TypedPrefix: "cr"}, "show", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, snippet := InsertText(tt.c, tt.ctx)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.snippet, snippet)
		})
	}
}

func TestProvider_Complete(t *testing.T) {
	svc := &recordingService{completions: []backend.Completion{
		{Name: "--name", Kind: backend.KindParameterName, Detail: "Name of the VM"},
		{Name: "--nics", Kind: backend.KindParameterName},
	}}
	p := NewProvider(svc, "")

	items, err := p.Complete(context.Background(), "az vm create --n", len("az vm create --n"))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ame", items[0].InsertText)
	assert.Equal(t, "Name of the VM", items[0].Detail)
	assert.Equal(t, "ics", items[1].InsertText)

	require.Len(t, svc.completionCalls, 1)
	assert.Equal(t, "vm create", svc.completionCalls[0].Subcommand)
	assert.Empty(t, svc.completionCalls[0].Argument)
}

func TestProvider_CompleteSkipsForeignLines(t *testing.T) {
	svc := &recordingService{}
	p := NewProvider(svc, "az")

	items, err := p.Complete(context.Background(), "echo hello ", 11)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, svc.completionCalls, "no backend query for unrecognised lines")
}

func TestProvider_CompletePropagatesBackendError(t *testing.T) {
	svc := &recordingService{err: errors.New("boom")}
	p := NewProvider(svc, "az")

	items, err := p.Complete(context.Background(), "az ", 3)
	assert.Error(t, err)
	assert.Empty(t, items)
}

func TestProvider_HoverTarget(t *testing.T) {
	p := NewProvider(&recordingService{}, "az")
	line := "az vm create --name foo"

	q, r, ok := p.HoverTarget(line, 7) // inside "create"
	require.True(t, ok)
	assert.Equal(t, backend.HoverQuery{Subcommand: "vm create"}, q)
	assert.Equal(t, Range{Start: 3, End: 12}, r)

	q, r, ok = p.HoverTarget(line, 3) // start of "vm"
	require.True(t, ok)
	assert.Equal(t, "vm", q.Subcommand)
	assert.Equal(t, Range{Start: 3, End: 5}, r)

	q, r, ok = p.HoverTarget(line, 15) // inside "--name"
	require.True(t, ok)
	assert.Equal(t, backend.HoverQuery{Subcommand: "vm create", Argument: "--name"}, q)
	assert.Equal(t, Range{Start: 13, End: 19}, r)

	_, _, ok = p.HoverTarget(line, 0) // root token
	assert.False(t, ok)
	_, _, ok = p.HoverTarget(line, 21) // value
	assert.False(t, ok)
	_, _, ok = p.HoverTarget(line, 12) // whitespace
	assert.False(t, ok)
	_, _, ok = p.HoverTarget("vm create", 1)
	assert.False(t, ok)
}

func TestProvider_Hover(t *testing.T) {
	svc := &recordingService{hover: &backend.Hover{Paragraphs: []string{"Create a VM."}}}
	p := NewProvider(svc, "az")

	h, err := p.Hover(context.Background(), "az vm create", 8)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, []string{"Create a VM."}, h.Paragraphs)
	assert.Equal(t, Range{Start: 3, End: 12}, h.Range)

	svc.hover = &backend.Hover{}
	h, err = p.Hover(context.Background(), "az vm create", 8)
	require.NoError(t, err)
	assert.Nil(t, h, "empty documentation is no hover")

	h, err = p.Hover(context.Background(), "az vm create", 1)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Len(t, svc.hoverCalls, 2, "root token does not reach the backend")
}
