package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIncludesSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "llm.yaml", `
llm:
  providers:
    - name: "openai"
      api_key: "sk-from-include"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "llm.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].APIKey != "sk-from-include" {
		t.Errorf("provider not loaded from include: %+v", cfg.LLM.Providers)
	}
}

func TestIncludesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(subdir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, subdir, "logger.yaml", `
logger:
  level: "warn"
`)
	writeConfigFile(t, subdir, "tracer.yaml", `
tracer:
  enabled: true
  exporter: "stdout"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, want warn", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter != "stdout" {
		t.Errorf("Tracer = %+v", cfg.Tracer)
	}
}

func TestIncludesMainFileWins(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", `
logger:
  level: "debug"
  format: "json"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "base.yaml"
logger:
  level: "error"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "error" {
		t.Errorf("Logger.Level = %q, want error (main file wins)", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Logger.Format = %q, want json (from include)", cfg.Logger.Format)
	}
}

func TestIncludesNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "leaf.yaml", `
logger:
  format: "json"
`)
	writeConfigFile(t, dir, "middle.yaml", `
includes:
  - "leaf.yaml"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "middle.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Logger.Format = %q, want json", cfg.Logger.Format)
	}
}

func TestIncludesCircular(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", `
includes:
  - "b.yaml"
`)
	writeConfigFile(t, dir, "b.yaml", `
includes:
  - "a.yaml"
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "a.yaml"
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "included twice") {
		t.Fatalf("err = %v, want cycle error", err)
	}
}

func TestIncludesMaxDepth(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < maxIncludeDepth+2; i++ {
		writeConfigFile(t, dir, fmt.Sprintf("f%d.yaml", i), fmt.Sprintf("includes:\n  - \"f%d.yaml\"\n", i+1))
	}
	writeConfigFile(t, dir, fmt.Sprintf("f%d.yaml", maxIncludeDepth+2), "logger:\n  level: info\n")
	path := writeConfigFile(t, dir, "config.yaml", "includes:\n  - \"f0.yaml\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "nesting deeper") {
		t.Fatalf("err = %v, want depth error", err)
	}
}

func TestIncludesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "../outside.yaml"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "escapes config directory") {
		t.Fatalf("err = %v, want traversal error", err)
	}
}

func TestIncludesMissingLiteral(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "nope.yaml"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing literal include")
	}
}

func TestIncludesEmptyGlob(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("empty glob should not fail: %v", err)
	}
}
