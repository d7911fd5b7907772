package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineCorpus covers well-formed, partial and malformed input
var lineCorpus = []string{
	"",
	"   ",
	"az",
	"az ",
	"az vm",
	"az vm create --name foo",
	"az vm create --name foo --resource-group rg --no-wait",
	`az vm list --query "[].{name:name}" -o table`,
	`az vm list --query '[0]'`,
	"az vm create --na",
	"az vm create --name",
	`az group create --name "my group" --location westus`,
	`az webapp config set --startup-file "unterminated`,
	`az storage blob upload --file 'a b' --name x y z`,
	`vm create --name foo`,
	`--name foo bar`,
	`az  vm   show\t--ids  /subscriptions/x`,
	`az "quoted sub" --x`,
	`az vm create --tags a=b c=d --force`,
	`az a--b -x-"y" '' ""`,
	`"`,
	`'`,
	`az --query`,
	`az x --query='[0].name'`,
	`az x --name=a'b c`,
}

func TestTokenize_Kinds(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"az vm create", []string{"az", "vm", "create"}},
		{`--name "a b" --force`, []string{"--name", `"a b"`, "--force"}},
		{`--name 'a b'`, []string{"--name", "'a b'"}},
		{`-g rg`, []string{"-g", "rg"}},
		{`--tag"x y"`, []string{`--tag"x y"`}},
		{`az x --query='[0].name'`, []string{"az", "x", `--query='[0].name'`}},
		{`az x --name=a'b`, []string{"az", "x", `--name=a'b`}},
		{`ab"c d"e`, []string{"ab", `"c d"`, "e"}},
		{`az "open quote here`, []string{"az", `"open`, "quote", "here"}},
		{`az 'open`, []string{"az", "'open"}},
		{"  \t ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var got []string
			for _, tok := range Tokenize(tt.line) {
				got = append(got, tok.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_OffsetsMatchSource(t *testing.T) {
	for _, line := range lineCorpus {
		for _, tok := range Tokenize(line) {
			require.LessOrEqual(t, tok.End(), len(line), "line %q", line)
			assert.Equal(t, tok.Text, line[tok.Offset:tok.End()], "line %q", line)
			assert.Equal(t, len(tok.Text), tok.Length)
		}
	}
}

func TestTokenize_OnlyWhitespaceIsSkipped(t *testing.T) {
	for _, line := range lineCorpus {
		covered := make([]bool, len(line))
		for _, tok := range Tokenize(line) {
			for i := tok.Offset; i < tok.End(); i++ {
				covered[i] = true
			}
		}
		for i := range line {
			if !covered[i] {
				assert.True(t, isSpace(line[i]), "line %q: byte %d (%q) was skipped", line, i, line[i])
			}
		}
	}
}

func TestTokenize_Restartable(t *testing.T) {
	for _, line := range lineCorpus {
		assert.Equal(t, Tokenize(line), Tokenize(line), "line %q", line)
	}
}

func TestParse_NodeKinds(t *testing.T) {
	cmd := Parse("az vm create --name foo --force --tags a b")

	type kinded struct {
		text string
		kind NodeKind
	}
	var got []kinded
	for _, n := range cmd.Nodes {
		got = append(got, kinded{n.Text, n.Kind})
	}

	assert.Equal(t, []kinded{
		{"az", KindSubcommand},
		{"vm", KindSubcommand},
		{"create", KindSubcommand},
		{"--name", KindParameterName},
		{"foo", KindParameterValue},
		{"--force", KindParameterName},
		{"--tags", KindParameterName},
		{"a", KindParameterValue},
	}, got, "the stray word b is not modelled")

	assert.True(t, cmd.HasRoot("az"))
	assert.Equal(t, []string{"vm", "create"}, cmd.Path())

	require.Len(t, cmd.Arguments, 3)
	require.NotNil(t, cmd.Arguments[0].Value)
	assert.Equal(t, "foo", cmd.Arguments[0].Value.Text)
	assert.Nil(t, cmd.Arguments[1].Value)
	assert.Equal(t, "a", cmd.Arguments[2].Value.Text)
}

func TestParse_WithoutRoot(t *testing.T) {
	cmd := Parse("vm cre")
	assert.False(t, cmd.HasRoot("az"))
	assert.Len(t, cmd.Subcommand, 2)

	cmd = Parse("--name foo")
	assert.Empty(t, cmd.Subcommand)
	assert.Len(t, cmd.Arguments, 1)
}

func TestFindNode_Boundaries(t *testing.T) {
	line := "az vm create --name foo"
	cmd := Parse(line)

	n, ok := FindNode(cmd, 3)
	require.True(t, ok)
	assert.Equal(t, "vm", n.Text)

	n, ok = FindNode(cmd, 4)
	require.True(t, ok)
	assert.Equal(t, "vm", n.Text)

	// offset 5 is one past "vm", which is the space before "create"
	_, ok = FindNode(cmd, 5)
	assert.False(t, ok)

	n, ok = FindNode(cmd, 13)
	require.True(t, ok)
	assert.Equal(t, KindParameterName, n.Kind)

	_, ok = FindNode(cmd, len(line))
	assert.False(t, ok)
	_, ok = FindNode(cmd, -1)
	assert.False(t, ok)
	_, ok = FindNode(nil, 0)
	assert.False(t, ok)
}

func TestFindNode_AdjacentTokens(t *testing.T) {
	// ab and "c d" touch: offset 5 belongs to the quoted token only
	cmd := Parse(`az ab"c d"`)
	n, ok := FindNode(cmd, 5)
	require.True(t, ok)
	assert.Equal(t, `"c d"`, n.Text)
	n, ok = FindNode(cmd, 4)
	require.True(t, ok)
	assert.Equal(t, "ab", n.Text)
}

func TestParse_DashRunKeepsQuotes(t *testing.T) {
	cmd := Parse(`az x --query='[0].name' --name=a'b`)

	require.Len(t, cmd.Nodes, 4)
	assert.Equal(t, `--query='[0].name'`, cmd.Nodes[2].Text)
	assert.Equal(t, KindParameterName, cmd.Nodes[2].Kind)
	assert.Equal(t, `--name=a'b`, cmd.Nodes[3].Text)
	assert.Equal(t, KindParameterName, cmd.Nodes[3].Kind)

	args := BuildArguments(`az x --query='[0].name' --name=a'b`)
	assert.Len(t, args, 2)
	assert.Contains(t, args, `--query='[0].name'`)
	assert.Nil(t, args[`--name=a'b`])
	assert.NotContains(t, args, "--query=")
}

func TestFindNode_Properties(t *testing.T) {
	for _, line := range lineCorpus {
		cmd := Parse(line)

		for i := 1; i < len(cmd.Nodes); i++ {
			assert.LessOrEqual(t, cmd.Nodes[i-1].End(), cmd.Nodes[i].Offset, "line %q: nodes overlap", line)
		}

		for offset := 0; offset <= len(line); offset++ {
			n, ok := FindNode(cmd, offset)
			if !ok {
				continue
			}
			assert.True(t, n.Contains(offset), "line %q offset %d: node %q does not contain it", line, offset, n.Text)
		}
	}
}

func TestBuildArguments(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name string
		line string
		want Arguments
	}{
		{"quoted value and bare flag", `--name "a b" --force`, Arguments{"--name": str(`"a b"`), "--force": nil}},
		{"full command", "az vm create --name foo", Arguments{"--name": str("foo")}},
		{"consecutive flags", "--a --b x", Arguments{"--a": nil, "--b": str("x")}},
		{"later value wins", "--a x --a y", Arguments{"--a": str("y")}},
		{"bare repeat keeps value", "--a x --a", Arguments{"--a": str("x")}},
		{"only first word is a value", "--a x y", Arguments{"--a": str("x")}},
		{"no flags", "az vm list", Arguments{}},
		{"empty", "", Arguments{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildArguments(tt.line))
		})
	}
}

func TestBuildArguments_AgreesWithParse(t *testing.T) {
	for _, line := range lineCorpus {
		args := BuildArguments(line)
		cmd := Parse(line)
		for _, arg := range cmd.Arguments {
			_, present := args[arg.Name.Text]
			assert.True(t, present, "line %q: %s missing", line, arg.Name.Text)
		}
	}
}

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		line  string
		want  string
		found bool
	}{
		{`az vm list --query "[].name"`, "[].name", true},
		{`az vm list --query '[0].id' -o tsv`, "[0].id", true},
		{`az vm list --query value[0]`, "value[0]", true},
		{`az vm list --query ""`, "", true},
		{`az vm list`, "", false},
		{`az vm list --query`, "", false},
		{`--query value`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, found := ExtractQuery(tt.line)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripQuery(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`az vm list --query "[].name" -o json`, "az vm list -o json"},
		{`az vm list --query '[0].id'`, "az vm list"},
		{`az vm list --query value[0]`, "az vm list"},
		{`az vm list`, "az vm list"},
		{`az vm list --query`, "az vm list --query"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, StripQuery(tt.line))
		})
	}
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "a b", Unquote(`"a b"`))
	assert.Equal(t, "a b", Unquote(`'a b'`))
	assert.Equal(t, `"a b'`, Unquote(`"a b'`))
	assert.Equal(t, `"`, Unquote(`"`))
	assert.Equal(t, "plain", Unquote("plain"))
}

func TestNodeKind_String(t *testing.T) {
	assert.Equal(t, "subcommand", KindSubcommand.String())
	assert.Equal(t, "parameter_name", KindParameterName.String())
	assert.Equal(t, "parameter_value", KindParameterValue.String())
}
