package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/azline/internal/debug"
)

// LoadKDL attempts to load configuration from the .azline.kdl file in dir
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil // No KDL config found, use defaults
	}
	return LoadKDLFile(kdlPath, dir)
}

// LoadKDLFile loads a KDL config file. Relative paths inside it resolve
// against the file's directory; projectRoot is used when it sets no root.
func LoadKDLFile(path, projectRoot string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Project.Root != "" {
		cfg.Project.Root = resolve(base, cfg.Project.Root)
	} else {
		cfg.Project.Root = absOrSelf(projectRoot)
	}
	if cfg.Backend.Catalog != "" {
		cfg.Backend.Catalog = resolve(base, cfg.Backend.Catalog)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = resolve(base, cfg.Log.File)
	}
	return cfg, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}

// parseKDL reads a config document. Unknown nodes are ignored; values of
// the wrong type leave the field at its zero value for the validator.
func parseKDL(content string) (*Config, error) {
	cfg := &Config{Version: 1}

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "root":
			if s, ok := firstStringArg(n); ok {
				cfg.Root = s
			}
		case "project":
			for _, cn := range n.Children { // project { root "." name "infra" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "backend":
			// backend "catalog" { catalog "az.toml" } or backend { kind "azservice" }
			if s, ok := firstStringArg(n); ok {
				cfg.Backend.Kind = s
			}
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "kind":
					if s, ok := firstStringArg(cn); ok {
						cfg.Backend.Kind = s
					}
				case "command":
					args := collectStringArgs(cn)
					if len(args) > 0 {
						cfg.Backend.Command = args[0]
						cfg.Backend.Args = args[1:]
					}
				case "args":
					cfg.Backend.Args = collectStringArgs(cn)
				case "catalog":
					if s, ok := firstStringArg(cn); ok {
						cfg.Backend.Catalog = s
					}
				}
			}
		case "execute":
			for _, cn := range n.Children {
				assignSimpleString(cn, "shell", func(v string) { cfg.Execute.Shell = v })
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "patterns", "include":
					cfg.Watch.Patterns = append(cfg.Watch.Patterns, collectStringArgs(cn)...)
				case "exclude":
					cfg.Watch.Exclude = append(cfg.Watch.Exclude, collectStringArgs(cn)...)
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "status":
			for _, cn := range n.Children {
				if nodeName(cn) == "interval_ms" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Status.IntervalMs = v
					}
				}
			}
		case "log":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "level":
					if s, ok := firstStringArg(cn); ok {
						cfg.Log.Level = s
					}
				case "file":
					if s, ok := firstStringArg(cn); ok {
						cfg.Log.File = s
					}
				case "max_size_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Log.MaxSizeMB = v
					}
				case "max_backups":
					if v, ok := firstIntArg(cn); ok {
						cfg.Log.MaxBackups = v
					}
				}
			}
		default:
			debug.Log("CONFIG", "ignoring unknown config node %q", nodeName(n))
		}
	}

	return cfg, nil
}

// Helper functions over the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}
func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: exclude { "dist/**"; "build/**" }
	if len(out) == 0 && len(n.Children) > 0 {
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
