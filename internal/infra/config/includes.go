package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// processIncludes overlays every file named by cfg.Includes onto cfg, in
// order. Patterns are resolved relative to baseDir and may be globs.
// visited holds absolute paths already loaded and is used to reject cycles.
func processIncludes(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: nesting deeper than %d", maxIncludeDepth)
	}
	if visited == nil {
		visited = make(map[string]bool)
	}

	patterns := cfg.Includes
	cfg.Includes = nil

	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("config includes: abs path %q: %w", p, err)
			}
			if visited[abs] {
				return fmt.Errorf("config includes: %q included twice (cycle?)", abs)
			}
			visited[abs] = true

			if err := overlayFile(cfg, abs, visited, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandInclude turns one include pattern into file paths. Relative
// patterns may not climb out of baseDir. A glob that matches nothing is
// not an error; a literal path that does not exist is reported when read.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return matches, nil
}

// overlayFile unmarshals one YAML file on top of cfg and follows its own
// includes.
func overlayFile(cfg *Config, path string, visited map[string]bool, depth int) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	if len(cfg.Includes) == 0 {
		return nil
	}
	return processIncludes(cfg, filepath.Dir(path), visited, depth)
}
