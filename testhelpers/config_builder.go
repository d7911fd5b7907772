// Package testhelpers provides shared utilities for azline tests
package testhelpers

import (
	"github.com/standardbeagle/azline/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// Tests get the offline catalog backend and short timings so nothing waits on az.
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder(projectPath).
//		WithExclusions("**/tmp/**").
//		WithDebounceMs(10).
//		Build()
type TestConfigBuilder struct {
	projectRoot string
	backend     config.Backend
	patterns    []string
	exclusions  []string
	debounceMs  int
	intervalMs  int
	shell       string
}

// NewTestConfigBuilder creates a config builder with safe defaults for a project path
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	return &TestConfigBuilder{
		projectRoot: projectRoot,
		backend:     config.Backend{Kind: config.BackendCatalog},
		patterns:    []string{"**/*.azcli"},
		exclusions:  []string{"**/.git/**", "**/node_modules/**"},
		debounceMs:  20,
		intervalMs:  100,
	}
}

// WithExclusions adds additional exclusion patterns
func (b *TestConfigBuilder) WithExclusions(patterns ...string) *TestConfigBuilder {
	b.exclusions = append(b.exclusions, patterns...)
	return b
}

// WithPatterns sets the watch patterns (replaces defaults)
func (b *TestConfigBuilder) WithPatterns(patterns ...string) *TestConfigBuilder {
	b.patterns = patterns
	return b
}

// WithCatalog points the catalog backend at a TOML file
func (b *TestConfigBuilder) WithCatalog(path string) *TestConfigBuilder {
	b.backend = config.Backend{Kind: config.BackendCatalog, Catalog: path}
	return b
}

// WithDebounceMs sets the watcher debounce
func (b *TestConfigBuilder) WithDebounceMs(ms int) *TestConfigBuilder {
	b.debounceMs = ms
	return b
}

// WithStatusIntervalMs sets the status poll interval (at least 100)
func (b *TestConfigBuilder) WithStatusIntervalMs(ms int) *TestConfigBuilder {
	b.intervalMs = ms
	return b
}

// WithShell sets the program lines are run through
func (b *TestConfigBuilder) WithShell(shell string) *TestConfigBuilder {
	b.shell = shell
	return b
}

// Build creates the config with validator defaults applied.
// It panics if the assembled config is invalid.
func (b *TestConfigBuilder) Build() *config.Config {
	cfg := config.Default(b.projectRoot)
	cfg.Backend = b.backend
	cfg.Execute.Shell = b.shell
	cfg.Watch.Patterns = append([]string{}, b.patterns...)
	cfg.Watch.Exclude = config.DeduplicatePatterns(append([]string{}, b.exclusions...))
	cfg.Watch.DebounceMs = b.debounceMs
	cfg.Status.IntervalMs = b.intervalMs

	if err := config.ValidateConfig(cfg); err != nil {
		panic("testhelpers: invalid test config: " + err.Error())
	}
	return cfg
}
