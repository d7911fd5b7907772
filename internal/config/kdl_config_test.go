package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDL_Empty(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)
	assert.Empty(t, cfg.Root)
	assert.Empty(t, cfg.Backend.Kind)
	assert.Empty(t, cfg.Watch.Patterns)
}

func TestParseKDL_AllSections(t *testing.T) {
	kdlContent := `
version 1
root "az"
project {
    root "infra"
    name "landing-zone"
}
backend {
    kind "azservice"
    command "python3" "-m" "azservice"
}
execute {
    shell "/bin/bash"
}
watch {
    patterns "**/*.azcli" "scripts/*.sh"
    exclude {
        "generated/**"
        "tmp/**"
    }
    debounce_ms 250
}
status {
    interval_ms 2000
}
log {
    level "debug"
    file "logs/azline.log"
    max_size_mb 5
    max_backups 2
}
`
	cfg, err := parseKDL(kdlContent)
	require.NoError(t, err)

	assert.Equal(t, "az", cfg.Root)
	assert.Equal(t, "infra", cfg.Project.Root)
	assert.Equal(t, "landing-zone", cfg.Project.Name)
	assert.Equal(t, BackendAzService, cfg.Backend.Kind)
	assert.Equal(t, "python3", cfg.Backend.Command)
	assert.Equal(t, []string{"-m", "azservice"}, cfg.Backend.Args)
	assert.Equal(t, "/bin/bash", cfg.Execute.Shell)
	assert.Equal(t, []string{"**/*.azcli", "scripts/*.sh"}, cfg.Watch.Patterns)
	assert.Equal(t, []string{"generated/**", "tmp/**"}, cfg.Watch.Exclude)
	assert.Equal(t, 250, cfg.Watch.DebounceMs)
	assert.Equal(t, 2000, cfg.Status.IntervalMs)
	assert.Equal(t, Log{Level: "debug", File: "logs/azline.log", MaxSizeMB: 5, MaxBackups: 2}, cfg.Log)
}

func TestParseKDL_BackendShorthand(t *testing.T) {
	cfg, err := parseKDL(`backend "catalog" { catalog "az.toml"; }`)
	require.NoError(t, err)

	assert.Equal(t, BackendCatalog, cfg.Backend.Kind)
	assert.Equal(t, "az.toml", cfg.Backend.Catalog)
}

func TestParseKDL_WrongTypesIgnored(t *testing.T) {
	cfg, err := parseKDL(`
watch {
    debounce_ms "fast"
}
status {
    interval_ms true
}
unknown_section 42
`)
	require.NoError(t, err)
	assert.Zero(t, cfg.Watch.DebounceMs)
	assert.Zero(t, cfg.Status.IntervalMs)
}

func TestParseKDL_Invalid(t *testing.T) {
	_, err := parseKDL(`project {`)
	assert.Error(t, err)
}

func TestLoadKDL_Missing(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDL_ResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	content := `
backend "catalog" {
    catalog "catalogs/az.toml"
}
log {
    file "/var/log/azline.log"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, dir, cfg.Project.Root)
	assert.Equal(t, filepath.Join(dir, "catalogs", "az.toml"), cfg.Backend.Catalog)
	assert.Equal(t, "/var/log/azline.log", cfg.Log.File)
}

func TestLoadKDL_RelativeProjectRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`project { root "./src/.."; }`), 0644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Project.Root)
}

func TestLoadKDLFile_ErrorNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.kdl")
	require.NoError(t, os.WriteFile(path, []byte(`log {`), 0644))

	_, err := LoadKDLFile(path, ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.kdl")

	_, err = LoadKDLFile(filepath.Join(t.TempDir(), "absent.kdl"), ".")
	assert.Error(t, err)
}
