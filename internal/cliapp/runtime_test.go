package cliapp

import (
	"os"
	"path/filepath"
	"testing"

	"docwatch/internal/core/config"
)

func TestApplyModeOptions_OverridesSourceGlobs(t *testing.T) {
	opts := cliOptions{args: []string{"./docs/*.md", "./guides/*.md"}}
	cfg := &config.Config{}
	cfg.Scopes.Source.Globs = []string{"./original/*.md"}

	applyModeOptions(opts, cfg)
	if len(cfg.Scopes.Source.Globs) != 2 || cfg.Scopes.Source.Globs[0] != "./docs/*.md" {
		t.Fatalf("unexpected source globs: %v", cfg.Scopes.Source.Globs)
	}
}

func TestApplyModeOptions_NoConsole(t *testing.T) {
	opts := cliOptions{noConsole: true}
	cfg := &config.Config{}

	applyModeOptions(opts, cfg)
	if cfg.Console.IsEnabled() {
		t.Fatal("expected console to be disabled")
	}
}

func TestApplyModeOptions_KeepsConfigWithoutOverrides(t *testing.T) {
	opts := cliOptions{}
	cfg := &config.Config{}
	cfg.Scopes.Source.Globs = []string{"./original/*.md"}

	applyModeOptions(opts, cfg)
	if len(cfg.Scopes.Source.Globs) != 1 || cfg.Scopes.Source.Globs[0] != "./original/*.md" {
		t.Fatalf("unexpected source globs: %v", cfg.Scopes.Source.Globs)
	}
	if !cfg.Console.IsEnabled() {
		t.Fatal("expected console to stay enabled")
	}
}

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.configPath != defaultConfigPath {
		t.Fatalf("unexpected config path: %q", opts.configPath)
	}
	if opts.noConsole || opts.verbose || opts.version {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.toml")
	content := []byte("version = 1\n\n[scopes.source]\nglobs = [\"./docs/*.md\"]\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Scopes.Source.Globs) != 1 {
		t.Fatalf("unexpected globs: %v", cfg.Scopes.Source.Globs)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}
