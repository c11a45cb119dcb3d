package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Version   int     `toml:"version"`
	IndexFile string  `toml:"index_file"`
	Manual    Manual  `toml:"manual"`
	Scopes    Scopes  `toml:"scopes"`
	Watch     Watch   `toml:"watch"`
	Console   Console `toml:"console"`
}

// Manual describes the manual pages: a flat glob list plus named
// sections used to resolve a changed path back to its section.
type Manual struct {
	All      []string            `toml:"all"`
	Sections map[string][]string `toml:"sections"`
}

type Scopes struct {
	Source Scope `toml:"source"`
	Test   Scope `toml:"test"`
}

// Scope carries the watch globs and the include/exclude pattern sets
// for one source tree. Includes and excludes are independent of the
// watch globs: a path must match an include (when any are configured)
// and must not match an exclude to produce events.
type Scope struct {
	Globs    []string `toml:"globs"`
	Includes []string `toml:"includes"`
	Excludes []string `toml:"excludes"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Console struct {
	Enabled *bool  `toml:"enabled"`
	Prompt  string `toml:"prompt"`
}

func (c Console) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validateScopes(&cfg); err != nil {
		return nil, err
	}
	if err := validateManual(&cfg); err != nil {
		return nil, err
	}
	if err := validateConsole(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	// Dedupe window for repeated same-action notifications on one path.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 100 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Console.Prompt) == "" {
		cfg.Console.Prompt = "> "
	}
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateScopes(cfg *Config) error {
	if err := validateScope("scopes.source", cfg.Scopes.Source); err != nil {
		return err
	}
	return validateScope("scopes.test", cfg.Scopes.Test)
}

func validateScope(ref string, scope Scope) error {
	for i, pattern := range scope.Globs {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("%s.globs[%d] must not be empty", ref, i)
		}
	}
	for i, pattern := range scope.Includes {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("%s.includes[%d] must not be empty", ref, i)
		}
	}
	for i, pattern := range scope.Excludes {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("%s.excludes[%d] must not be empty", ref, i)
		}
	}
	return nil
}

func validateManual(cfg *Config) error {
	for i, pattern := range cfg.Manual.All {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("manual.all[%d] must not be empty", i)
		}
	}
	for section, patterns := range cfg.Manual.Sections {
		if strings.TrimSpace(section) == "" {
			return fmt.Errorf("manual.sections key must not be empty")
		}
		if len(patterns) == 0 {
			return fmt.Errorf("manual.sections.%s must list at least one pattern", section)
		}
		for i, pattern := range patterns {
			if strings.TrimSpace(pattern) == "" {
				return fmt.Errorf("manual.sections.%s[%d] must not be empty", section, i)
			}
		}
	}
	if len(cfg.Manual.Sections) > 0 && len(cfg.Manual.All) == 0 {
		return fmt.Errorf("manual.sections requires manual.all to define the watched globs")
	}
	return nil
}

func validateConsole(cfg *Config) error {
	if strings.TrimSpace(cfg.Console.Prompt) == "" {
		return fmt.Errorf("console.prompt must not be empty")
	}
	return nil
}
