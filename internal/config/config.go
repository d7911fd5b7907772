package config

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/azline/internal/debug"
)

// FileName is the per-directory configuration file
const FileName = ".azline.kdl"

// Backend kinds
const (
	BackendAzService = "azservice"
	BackendCatalog   = "catalog"
)

// Defaults applied by the validator when a value is left unset
const (
	DefaultRoot             = "az"
	DefaultWatchDebounceMs  = 150
	DefaultStatusIntervalMs = 5000
	DefaultLogLevel         = "info"
	DefaultLogMaxSizeMB     = 10
	DefaultLogMaxBackups    = 3
)

type Config struct {
	Version int
	// Root is the command word that starts a DSL line
	Root    string
	Project Project
	Backend Backend
	Execute Execute
	Watch   Watch
	Status  Status
	Log     Log
}

type Project struct {
	Root string
	Name string
}

// Backend selects where completion, hover and status answers come from
type Backend struct {
	Kind    string   // "azservice" or "catalog"
	Command string   // helper command for azservice
	Args    []string // helper arguments for azservice
	Catalog string   // TOML catalog path; empty uses the built-in catalog
}

type Execute struct {
	Shell string // empty picks sh or cmd for the platform
}

type Watch struct {
	Patterns   []string
	Exclude    []string
	DebounceMs int
}

type Status struct {
	IntervalMs int
}

type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads the home config and the project config under rootDir
// and merges them. When path is set it is used instead of the project file.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	// Step 1: global base config from ~/.azline.kdl (if exists)
	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		} else if err != nil {
			debug.Log("CONFIG", "ignoring home config: %v", err)
		}
	}

	// Step 2: project config, or the explicitly named file
	var projectConfig *Config
	var err error
	if path != "" {
		projectConfig, err = LoadKDLFile(path, searchDir)
	} else {
		projectConfig, err = LoadKDL(searchDir)
	}
	if err != nil {
		return nil, err
	}

	// Step 3: project overrides base, but base exclusions are preserved
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = absOrSelf(searchDir)
		cfg = baseConfig
	default:
		cfg = Default(absOrSelf(searchDir))
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present
func Default(root string) *Config {
	return &Config{
		Version: 1,
		Root:    DefaultRoot,
		Project: Project{Root: root},
		Backend: Backend{Kind: BackendAzService},
		Watch: Watch{
			Exclude: []string{"**/node_modules/**", "**/.git/**"},
		},
	}
}

func absOrSelf(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// mergeConfigs merges a base config with a project config.
// Project config takes precedence, but base exclusions are preserved and
// sections the project leaves empty fall back to the base.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Watch.Exclude) > 0 {
		merged.Watch.Exclude = DeduplicatePatterns(append(append([]string{}, base.Watch.Exclude...), project.Watch.Exclude...))
	}
	if len(project.Watch.Patterns) == 0 && len(base.Watch.Patterns) > 0 {
		merged.Watch.Patterns = base.Watch.Patterns
	}

	if merged.Root == "" {
		merged.Root = base.Root
	}
	if merged.Backend.Kind == "" {
		merged.Backend.Kind = base.Backend.Kind
	}
	if merged.Backend.Command == "" && merged.Backend.Kind == base.Backend.Kind {
		merged.Backend.Command = base.Backend.Command
		merged.Backend.Args = base.Backend.Args
	}
	if merged.Backend.Catalog == "" {
		merged.Backend.Catalog = base.Backend.Catalog
	}
	if merged.Execute.Shell == "" {
		merged.Execute.Shell = base.Execute.Shell
	}
	if merged.Watch.DebounceMs == 0 {
		merged.Watch.DebounceMs = base.Watch.DebounceMs
	}
	if merged.Status.IntervalMs == 0 {
		merged.Status.IntervalMs = base.Status.IntervalMs
	}
	if merged.Log == (Log{}) {
		merged.Log = base.Log
	}

	return &merged
}

// DeduplicatePatterns removes repeated patterns, keeping first occurrence order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
