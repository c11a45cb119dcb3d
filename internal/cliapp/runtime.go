package cliapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"docwatch/internal/core/bus"
	"docwatch/internal/core/config"
	"docwatch/internal/core/watcher"
)

// Exit codes. A wrapping script can use exitRegenerate to run the
// documentation build after the watcher asked for it.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitRegenerate = 3
)

func Run(args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return exitUsage
	}

	if opts.version {
		fmt.Printf("docwatch v%s\n", versionString)
		return exitOK
	}

	configureLogging(opts.verbose)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFailure
	}

	applyModeOptions(opts, cfg)

	b := bus.New()
	w, err := watcher.New(cfg, b, slog.Default())
	if err != nil {
		slog.Error("failed to initialize watcher", "error", err)
		return exitFailure
	}

	// The terminal event is published on the Run goroutine, so this
	// is settled by the time Run returns.
	regenerate := false
	b.Subscribe(watcher.EventRegenerate, func(bus.Event) {
		regenerate = true
	})

	if err := w.Run(context.Background()); err != nil {
		slog.Error("watcher failed", "error", err)
		return exitFailure
	}

	if regenerate {
		slog.Info("full documentation rebuild requested")
		return exitRegenerate
	}
	return exitOK
}

// applyModeOptions folds command-line overrides into the loaded
// config. Positional arguments replace the source watch globs.
func applyModeOptions(opts cliOptions, cfg *config.Config) {
	if len(opts.args) > 0 {
		cfg.Scopes.Source.Globs = opts.args
	}
	if opts.noConsole {
		disabled := false
		cfg.Console.Enabled = &disabled
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path != defaultConfigPath {
		return nil, err
	}

	cfg, fallbackErr := config.Load("./docwatch.example.toml")
	if fallbackErr != nil {
		return nil, fallbackErr
	}
	return cfg, nil
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	// Logs go to stderr so the console prompt on stdout stays clean.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
