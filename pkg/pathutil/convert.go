// Package pathutil converts workspace paths for display.
//
// Paths are absolute inside azline. Output meant for people (watch
// banners, daemon status) shows them relative to the workspace root.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/work/infra/deploy.azcli", "/work/infra") → "deploy.azcli"
//   - ToRelative("/tmp/other.azcli", "/work/infra") → "/tmp/other.azcli" (outside root)
//   - ToRelative("deploy.azcli", "/work/infra") → "deploy.azcli" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// different volumes on Windows
		return absPath
	}

	// outside the root the absolute path is clearer
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}
	return relPath
}

// ToRelativeAll converts every path in paths. The input slice is not modified.
func ToRelativeAll(paths []string, rootDir string) []string {
	if len(paths) == 0 {
		return paths
	}
	converted := make([]string, len(paths))
	for i, p := range paths {
		converted[i] = ToRelative(p, rootDir)
	}
	return converted
}
