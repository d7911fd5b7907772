package parser

import "sort"

// DefaultRoot is the invocation name of the tool whose command lines are parsed
const DefaultRoot = "az"

// NodeKind classifies a token within a command
type NodeKind int

const (
	KindSubcommand NodeKind = iota
	KindParameterName
	KindParameterValue
)

// String returns the wire name of the kind
func (k NodeKind) String() string {
	switch k {
	case KindSubcommand:
		return "subcommand"
	case KindParameterName:
		return "parameter_name"
	case KindParameterValue:
		return "parameter_value"
	default:
		return "unknown"
	}
}

// MarshalText lets kinds appear by name in JSON responses
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Node is a token annotated with its role in the command
type Node struct {
	Token
	Kind NodeKind `json:"kind"`
}

// Argument pairs a parameter name node with its value node, if one follows
type Argument struct {
	Name  Node
	Value *Node
}

// Command is the parsed form of one line: nodes in source order plus
// the derived subcommand and argument views.
type Command struct {
	Line       string
	Nodes      []Node
	Subcommand []Node
	Arguments  []Argument
}

// Parse builds a Command in a single left-to-right pass over the tokens of line.
// It never fails: text that does not fit the grammar is left out of the node list.
func Parse(line string) *Command {
	cmd := &Command{Line: line}

	inPath := true
	pending := -1 // index into cmd.Arguments of a name still waiting for its value
	sc := NewScanner(line)
	for {
		tok, ok := sc.Next()
		if !ok {
			break
		}

		switch {
		case tok.IsFlag():
			inPath = false
			node := Node{Token: tok, Kind: KindParameterName}
			cmd.Nodes = append(cmd.Nodes, node)
			cmd.Arguments = append(cmd.Arguments, Argument{Name: node})
			pending = len(cmd.Arguments) - 1
		case inPath:
			node := Node{Token: tok, Kind: KindSubcommand}
			cmd.Nodes = append(cmd.Nodes, node)
			cmd.Subcommand = append(cmd.Subcommand, node)
		case pending >= 0:
			node := Node{Token: tok, Kind: KindParameterValue}
			cmd.Nodes = append(cmd.Nodes, node)
			cmd.Arguments[pending].Value = &node
			pending = -1
		default:
			// stray positional word after the path; not part of the model
		}
	}

	return cmd
}

// FindNode returns the node whose [Offset, Offset+Length) interval contains offset.
// Offsets in whitespace or past the end of the line yield false.
func FindNode(cmd *Command, offset int) (Node, bool) {
	if cmd == nil {
		return Node{}, false
	}
	nodes := cmd.Nodes
	i := sort.Search(len(nodes), func(i int) bool {
		return nodes[i].End() > offset
	})
	if i < len(nodes) && nodes[i].Contains(offset) {
		return nodes[i], true
	}
	return Node{}, false
}

// HasRoot reports whether the first subcommand node is the given invocation name
func (c *Command) HasRoot(root string) bool {
	return len(c.Subcommand) > 0 && c.Subcommand[0].Text == root
}

// Path returns the subcommand words after the root token
func (c *Command) Path() []string {
	if len(c.Subcommand) < 2 {
		return nil
	}
	words := make([]string, 0, len(c.Subcommand)-1)
	for _, n := range c.Subcommand[1:] {
		words = append(words, n.Text)
	}
	return words
}

// SubcommandIndex returns the position of node within the subcommand path, or -1
func (c *Command) SubcommandIndex(node Node) int {
	for i, n := range c.Subcommand {
		if n.Offset == node.Offset {
			return i
		}
	}
	return -1
}
