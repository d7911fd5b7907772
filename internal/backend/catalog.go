package backend

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/pelletier/go-toml/v2"
)

//go:embed default_catalog.toml
var defaultCatalog []byte

// CatalogFile is the TOML layout of a command catalog
type CatalogFile struct {
	Status   string         `toml:"status"`
	Groups   []GroupEntry   `toml:"group"`
	Commands []CommandEntry `toml:"command"`
}

// GroupEntry is a command group such as "network vnet"
type GroupEntry struct {
	Name    string `toml:"name"`
	Summary string `toml:"summary"`
}

// CommandEntry is a leaf command with its parameters
type CommandEntry struct {
	Name        string           `toml:"name"`
	Summary     string           `toml:"summary"`
	Description string           `toml:"description"`
	Parameters  []ParameterEntry `toml:"parameter"`
}

// ParameterEntry describes one parameter and its aliases; Names[0] is canonical
type ParameterEntry struct {
	Names    []string `toml:"names"`
	Summary  string   `toml:"summary"`
	Required bool     `toml:"required"`
	Values   []string `toml:"values"`
}

// Catalog is an offline Service answering from a static command catalog
type Catalog struct {
	status   string
	groups   map[string]*GroupEntry
	commands map[string]*CommandEntry
	// children lists direct subgroups and commands per path, in file order
	children map[string][]string
}

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a TOML catalog from path
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog builds a catalog from TOML data
func ParseCatalog(data []byte) (*Catalog, error) {
	var file CatalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	c := &Catalog{
		status:   file.Status,
		groups:   make(map[string]*GroupEntry),
		commands: make(map[string]*CommandEntry),
		children: make(map[string][]string),
	}

	for i := range file.Groups {
		g := &file.Groups[i]
		g.Name = normalizePath(g.Name)
		if g.Name == "" {
			return nil, fmt.Errorf("group %d has no name", i)
		}
		c.groups[g.Name] = g
		c.addChild(g.Name)
	}
	for i := range file.Commands {
		cmd := &file.Commands[i]
		cmd.Name = normalizePath(cmd.Name)
		if cmd.Name == "" {
			return nil, fmt.Errorf("command %d has no name", i)
		}
		for j, p := range cmd.Parameters {
			if len(p.Names) == 0 {
				return nil, fmt.Errorf("command %q parameter %d has no names", cmd.Name, j)
			}
		}
		c.commands[cmd.Name] = cmd
		c.addChild(cmd.Name)
	}

	if c.status == "" {
		c.status = fmt.Sprintf("az catalog (%d commands)", len(c.commands))
	}
	return c, nil
}

func normalizePath(path string) string {
	return strings.Join(strings.Fields(path), " ")
}

func (c *Catalog) addChild(name string) {
	parent := ""
	if i := strings.LastIndexByte(name, ' '); i >= 0 {
		parent = name[:i]
	}
	for _, existing := range c.children[parent] {
		if existing == name {
			return
		}
	}
	c.children[parent] = append(c.children[parent], name)
}

// Len returns the number of commands in the catalog
func (c *Catalog) Len() int {
	return len(c.commands)
}

// Completions lists subgroups, commands, parameters or parameter values
// for the query, ranked against the typed prefix.
func (c *Catalog) Completions(ctx context.Context, q CompletionQuery) ([]Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := normalizePath(q.Subcommand)
	var out []Completion

	if q.Argument != "" {
		cmd := c.commands[path]
		if cmd == nil {
			return nil, nil
		}
		if p := findParameter(cmd, q.Argument); p != nil {
			for _, v := range p.Values {
				out = append(out, Completion{Name: v, Kind: KindParameterValue, Detail: p.Summary})
			}
		}
		return rank(out, q.Prefix), nil
	}

	for _, child := range c.children[path] {
		name := child[strings.LastIndexByte(child, ' ')+1:]
		if g, ok := c.groups[child]; ok {
			out = append(out, Completion{Name: name, Kind: KindGroup, Detail: g.Summary})
			continue
		}
		cmd := c.commands[child]
		out = append(out, Completion{Name: name, Kind: KindCommand, Detail: cmd.Summary, Documentation: cmd.Description})
	}

	if cmd, ok := c.commands[path]; ok {
		var missing []ParameterEntry
		for _, p := range cmd.Parameters {
			if supplied(p, q.Arguments) {
				continue
			}
			doc := ""
			if p.Required {
				doc = "Required."
				missing = append(missing, p)
			}
			out = append(out, Completion{Name: p.Names[0], Kind: KindParameterName, Detail: p.Summary, Documentation: doc})
		}
		if len(missing) > 0 && q.Prefix == "" {
			out = append(out, requiredSnippet(missing))
		}
	}

	return rank(out, q.Prefix), nil
}

// requiredSnippet inserts every missing required parameter with placeholders
func requiredSnippet(params []ParameterEntry) Completion {
	names := make([]string, len(params))
	parts := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Names[0]
		parts[i] = fmt.Sprintf("%s ${%d:%s}", p.Names[0], i+1, strings.TrimLeft(p.Names[0], "-"))
	}
	return Completion{
		Name:    strings.Join(names, " "),
		Kind:    KindSnippet,
		Detail:  "Required parameters",
		Snippet: strings.Join(parts, " "),
	}
}

func findParameter(cmd *CommandEntry, name string) *ParameterEntry {
	for i := range cmd.Parameters {
		for _, n := range cmd.Parameters[i].Names {
			if n == name {
				return &cmd.Parameters[i]
			}
		}
	}
	return nil
}

func supplied(p ParameterEntry, args map[string]*string) bool {
	for _, n := range p.Names {
		if _, ok := args[n]; ok {
			return true
		}
	}
	return false
}

// rank orders candidates: names starting with prefix first, then by
// Jaro-Winkler similarity to prefix. Ties keep catalog order.
func rank(items []Completion, prefix string) []Completion {
	if len(items) == 0 {
		return items
	}
	if prefix != "" {
		scores := make(map[string]float64, len(items))
		for _, it := range items {
			scores[it.Name] = score(it.Name, prefix)
		}
		sort.SliceStable(items, func(i, j int) bool {
			return scores[items[i].Name] > scores[items[j].Name]
		})
	}
	for i := range items {
		items[i].SortText = fmt.Sprintf("%04d", i)
	}
	return items
}

func score(name, prefix string) float64 {
	similarity, err := edlib.StringsSimilarity(strings.ToLower(prefix), strings.ToLower(name), edlib.JaroWinkler)
	if err != nil {
		similarity = 0
	}
	if strings.HasPrefix(name, prefix) {
		return 1 + float64(similarity)
	}
	return float64(similarity)
}

// Hover documents a group, a command, or one parameter of a command
func (c *Catalog) Hover(ctx context.Context, q HoverQuery) (*Hover, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := normalizePath(q.Subcommand)
	if q.Argument != "" {
		cmd := c.commands[path]
		if cmd == nil {
			return nil, nil
		}
		p := findParameter(cmd, q.Argument)
		if p == nil {
			return nil, nil
		}
		paragraphs := []string{p.Summary}
		if p.Required {
			paragraphs = append(paragraphs, "Required.")
		}
		if len(p.Values) > 0 {
			paragraphs = append(paragraphs, "Allowed values: "+strings.Join(p.Values, ", ")+".")
		}
		return &Hover{Paragraphs: paragraphs}, nil
	}

	if cmd, ok := c.commands[path]; ok {
		paragraphs := []string{cmd.Summary}
		if cmd.Description != "" {
			paragraphs = append(paragraphs, cmd.Description)
		}
		return &Hover{Paragraphs: paragraphs}, nil
	}
	if g, ok := c.groups[path]; ok {
		return &Hover{Paragraphs: []string{g.Summary}}, nil
	}
	return nil, nil
}

// Status reports the catalog's status line
func (c *Catalog) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	return Status{Message: c.status}, nil
}
