package watcher

import (
	"fmt"
	"sort"

	"docwatch/internal/core/console"
	"docwatch/internal/shared/util"
)

// registerCommands wires the built-in console surface. All handlers
// run on the control loop, so they may touch loop state directly.
func (w *Watcher) registerCommands() error {
	commands := []console.Command{
		{
			Name:        "exit",
			Description: "stop watching and shut down",
			Exec: func(console.Context) error {
				w.beginShutdown(false)
				return nil
			},
		},
		{
			Name:        "regen",
			Description: "stop watching and regenerate all docs",
			Exec: func(console.Context) error {
				w.beginShutdown(true)
				return nil
			},
		},
		{
			Name:        "help",
			Description: "list available commands",
			Exec:        w.cmdHelp,
		},
		{
			Name:        "status",
			Description: "show watcher state and options",
			Exec:        w.cmdStatus,
		},
		{
			Name:        "globs",
			Description: "show the configured glob patterns per scope",
			Exec:        w.cmdGlobs,
		},
		{
			Name:        "watching",
			Description: "list every watched directory and file",
			Exec:        w.cmdWatching,
		},
		{
			Name:        "silent",
			Description: "suppress per-change log output",
			Type:        console.TypeOptional,
		},
		{
			Name:        "verbose",
			Description: "log extra detail per change",
			Type:        console.TypeOptional,
		},
		{
			Name:        "trigger",
			Description: "emit update events on file changes",
			Type:        console.TypeOptional,
			OnToggle: func(on bool) {
				if on {
					w.log.Info("file triggering enabled")
				} else {
					w.log.Info("file triggering paused")
				}
			},
		},
		{
			Name:        "paused",
			Description: "pause update events (inverse of trigger)",
			Type:        console.TypeOptional,
		},
	}
	for _, cmd := range commands {
		if err := w.registry.Add(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) cmdHelp(ctx console.Context) error {
	for _, cmd := range w.registry.Commands() {
		name := cmd.Name
		if cmd.Type == console.TypeOptional {
			name += " on|off"
		}
		fmt.Fprintf(ctx.Out, "  %-14s %s\n", name, cmd.Description)
	}
	return nil
}

func (w *Watcher) cmdStatus(ctx console.Context) error {
	fmt.Fprintf(ctx.Out, "state: %s\n", w.state)

	names := []string{"trigger", "silent", "verbose"}
	for _, name := range w.opts.Names() {
		if name == "trigger" || name == "silent" || name == "verbose" {
			continue
		}
		names = append(names, name)
	}
	for _, name := range names {
		value, _ := ctx.Options.Get(name)
		fmt.Fprintf(ctx.Out, "%s: %t\n", name, value)
	}

	ready := 0
	for _, entry := range w.groups {
		if entry.ready && !entry.closed {
			ready++
		}
	}
	fmt.Fprintf(ctx.Out, "groups: %d of %d watching\n", ready, len(w.groups))
	return nil
}

func (w *Watcher) cmdGlobs(ctx console.Context) error {
	for _, entry := range w.groups {
		desc := entry.source.Descriptor()
		fmt.Fprintf(ctx.Out, "%s:\n", desc.Type)
		for _, pattern := range desc.Globs {
			fmt.Fprintf(ctx.Out, "  %s\n", pattern)
		}
	}
	return nil
}

func (w *Watcher) cmdWatching(ctx console.Context) error {
	for _, entry := range w.groups {
		if entry.failed || entry.closed {
			continue
		}
		watched := entry.source.Watched()
		fmt.Fprintf(ctx.Out, "%s:\n", entry.source.Descriptor().Type)
		for _, dir := range util.SortedStringKeys(watched) {
			fmt.Fprintf(ctx.Out, "  %s\n", dir)
			files := append([]string(nil), watched[dir]...)
			sort.Strings(files)
			for _, file := range files {
				fmt.Fprintf(ctx.Out, "    %s\n", file)
			}
		}
	}
	return nil
}

// showPrompt re-prints the console prompt unless output is silenced
// or the watcher is already winding down.
func (w *Watcher) showPrompt() {
	if w.state != stateRunning {
		return
	}
	if w.opts.Snapshot().Silent {
		return
	}
	fmt.Fprint(w.consoleOut, w.cfg.Console.Prompt)
}
