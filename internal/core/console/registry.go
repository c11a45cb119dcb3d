package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"docwatch/internal/core/config"
	"docwatch/internal/core/errors"
	"docwatch/internal/core/options"
	"docwatch/internal/shared/observability"
)

// TypeOptional selects the generated "<name> on|off" command shape.
const TypeOptional = "optional"

// Context carries everything a command handler may need for one
// dispatched line.
type Context struct {
	Command    string
	Line       string
	Fields     []string
	Config     *config.Config
	Options    options.Options
	Out        io.Writer
	ShowPrompt func()
}

type Exec func(Context) error

type Command struct {
	Name        string
	Description string
	Type        string
	Exec        Exec
	// OnToggle runs after an optional command applied its new value.
	OnToggle func(bool)
}

// Registry maps console input tokens to handlers. Optional commands
// get a generated handler that parses a trailing on/off token and
// flips the matching toggle in the shared options state.
type Registry struct {
	mu    sync.Mutex
	order []string
	cmds  map[string]Command
	opts  *options.State
}

func NewRegistry(opts *options.State) *Registry {
	return &Registry{
		cmds: make(map[string]Command),
		opts: opts,
	}
}

func (r *Registry) Add(cmd Command) error {
	if strings.TrimSpace(cmd.Name) == "" {
		return errors.New(errors.CodeValidationError, "command name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cmds[cmd.Name]; exists {
		return errors.Newf(errors.CodeValidationError, "command %q already registered", cmd.Name)
	}

	switch cmd.Type {
	case "":
		if cmd.Exec == nil {
			return errors.Newf(errors.CodeValidationError, "command %q requires an exec", cmd.Name)
		}
	case TypeOptional:
		if !r.opts.Has(cmd.Name) {
			if err := r.opts.Register(cmd.Name, false); err != nil {
				return err
			}
		}
		cmd.Exec = r.toggleExec(cmd)
	default:
		return errors.Newf(errors.CodeValidationError, "unknown command type %q", cmd.Type)
	}

	r.cmds[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	return nil
}

func (r *Registry) toggleExec(cmd Command) Exec {
	name := cmd.Name
	hook := cmd.OnToggle
	return func(ctx Context) error {
		if len(ctx.Fields) != 2 {
			return errors.Newf(errors.CodeBadArgument, "usage: %s on|off", name)
		}
		var value bool
		switch ctx.Fields[1] {
		case "on":
			value = true
		case "off":
			value = false
		default:
			return errors.Newf(errors.CodeBadArgument, "%s: expected on or off, got %q", name, ctx.Fields[1])
		}
		if _, err := r.opts.SetToggle(name, value); err != nil {
			return err
		}
		if hook != nil {
			hook(value)
		}
		return nil
	}
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.cmds[name])
	}
	return out
}

// Dispatch runs one console line. Errors from a single command are
// reported on the console and never escape; the prompt is re-shown
// after every outcome.
func (r *Registry) Dispatch(line string, ctx Context) {
	defer ctx.ShowPrompt()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	r.mu.Lock()
	cmd, ok := r.cmds[fields[0]]
	r.mu.Unlock()
	if !ok {
		observability.ConsoleCommandsTotal.WithLabelValues("unknown").Inc()
		fmt.Fprintf(ctx.Out, "unknown command: %s\n", fields[0])
		return
	}

	ctx.Command = cmd.Name
	ctx.Line = line
	ctx.Fields = fields
	ctx.Options = r.opts.Snapshot()

	if err := cmd.Exec(ctx); err != nil {
		observability.ConsoleCommandsTotal.WithLabelValues("error").Inc()
		fmt.Fprintln(ctx.Out, err.Error())
		return
	}
	observability.ConsoleCommandsTotal.WithLabelValues("ok").Inc()
}
