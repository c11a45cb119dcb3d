package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"docwatch/internal/core/bus"
	"docwatch/internal/core/config"
	"docwatch/internal/core/console"
	"docwatch/internal/core/errors"
	"docwatch/internal/core/ignore"
	"docwatch/internal/core/options"
	"docwatch/internal/core/watchgroup"
	"docwatch/internal/shared/observability"
	"docwatch/internal/shared/util"
)

// Event names published on the bus.
const (
	EventInitialized    = "watcher:initialized"
	EventStarted        = "watcher:started"
	EventUpdate         = "watcher:update"
	EventOptionsChanged = "watcher:options:changed"
	EventStopped        = "watcher:stopped"
	EventRegenerate     = "regenerate:all:docs"
	EventShutdown       = "shutdown"
)

// UpdatePayload is the payload of one watcher:update event.
type UpdatePayload struct {
	Action  watchgroup.Action
	Type    watchgroup.Type
	Path    string
	Section string
	Options options.Options
}

type state int

const (
	stateConstructed state = iota
	stateInitializing
	stateRunning
	stateShuttingDown
	stateStopped
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateConstructed:
		return "constructed"
	case stateInitializing:
		return "initializing"
	case stateRunning:
		return "running"
	case stateShuttingDown:
		return "shutting down"
	case stateStopped:
		return "stopped"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// watchSource is what the orchestrator needs from a watch group;
// satisfied by both Group and ManualGroup.
type watchSource interface {
	Descriptor() watchgroup.Descriptor
	Initialize(ctx context.Context, sink watchgroup.Sink, ignore watchgroup.IgnoreFunc) (watchgroup.StartData, error)
	Close() error
	Watched() map[string][]string
}

type groupEntry struct {
	source watchSource
	ignore watchgroup.IgnoreFunc
	ready  bool
	failed bool
	closed bool
}

// Control-loop messages. Watch-group callbacks, console lines, host
// option changes and signals all funnel through one channel so every
// state transition happens on a single goroutine.
type (
	msgReady    struct{ idx int; data watchgroup.StartData }
	msgFailed   struct{ idx int; err error }
	msgChange   struct{ change watchgroup.Change }
	msgLine     struct{ line string }
	msgShutdown struct{ regenerate bool }
	msgClosed   struct{ idx int }
)

// Watcher owns the watch groups, aggregates their readiness into one
// started event, routes change events through the trigger gate and
// drives the shutdown/regenerate state machine.
type Watcher struct {
	cfg  *config.Config
	bus  *bus.Bus
	log  *slog.Logger
	opts *options.State

	consoleIn  io.Reader
	consoleOut io.Writer

	registry *console.Registry
	cons     *console.Console
	limiter  *util.Limiter

	ctrl chan any
	done chan struct{}
	sigs chan os.Signal

	// Option broadcasts bypass ctrl: toggle commands run on the
	// control loop itself, and a bounded send from there could wedge
	// the loop against a full change backlog.
	optMu      sync.Mutex
	optPending []options.Options
	optNudge   chan struct{}

	// Mutated only on the control loop.
	state        state
	groups       []*groupEntry
	startData    map[string]watchgroup.StartData
	pendingInit  int
	pendingClose int
	initErr      error
	regenerate   bool
}

func New(cfg *config.Config, b *bus.Bus, log *slog.Logger) (*Watcher, error) {
	if cfg == nil {
		return nil, errors.New(errors.CodeValidationError, "config must not be nil")
	}
	if b == nil {
		return nil, errors.New(errors.CodeValidationError, "bus must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	opts := options.NewState()
	if err := opts.RegisterInverse("paused", "trigger"); err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:        cfg,
		bus:        b,
		log:        log,
		opts:       opts,
		consoleIn:  os.Stdin,
		consoleOut: os.Stdout,
		registry:   console.NewRegistry(opts),
		limiter:    util.NewLimiter(8, 16),
		ctrl:       make(chan any, 128),
		done:       make(chan struct{}),
		sigs:       make(chan os.Signal, 1),
		optNudge:   make(chan struct{}, 1),
		startData:  make(map[string]watchgroup.StartData),
	}

	opts.OnChange(w.queueOptionsChange)

	if err := w.registerCommands(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetConsoleIO replaces the console endpoints; call before Run.
func (w *Watcher) SetConsoleIO(in io.Reader, out io.Writer) {
	w.consoleIn = in
	w.consoleOut = out
}

// Config exposes the loaded configuration to the host.
func (w *Watcher) Config() *config.Config { return w.cfg }

// Options returns a snapshot of the runtime flags.
func (w *Watcher) Options() options.Options { return w.opts.Snapshot() }

// SetOptions applies a partial option update on behalf of the host.
// Validation errors surface synchronously; the resulting snapshot is
// broadcast as watcher:options:changed.
func (w *Watcher) SetOptions(changes map[string]bool) error {
	_, err := w.opts.Set(changes)
	return err
}

// RequestShutdown asks the watcher to stop; with regenerate set the
// terminal event requests a full documentation rebuild instead of
// shutdown. Requests after the first are ignored.
func (w *Watcher) RequestShutdown(regenerate bool) {
	w.post(msgShutdown{regenerate: regenerate})
}

// Done is closed once the watcher reached its terminal state.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Run builds the configured watch groups and blocks until the
// terminal state. It returns a watch-initialization error when any
// group fails before the aggregate start, nil otherwise.
func (w *Watcher) Run(ctx context.Context) error {
	if w.state != stateConstructed {
		return errors.New(errors.CodeInternal, "watcher already ran")
	}

	if err := w.buildGroups(); err != nil {
		return err
	}

	initialized := make(map[string][]string, len(w.groups))
	for _, entry := range w.groups {
		desc := entry.source.Descriptor()
		initialized[string(desc.Type)] = desc.Globs
	}
	w.bus.Publish(EventInitialized, initialized)

	if len(w.groups) == 0 {
		w.log.Info("nothing to watch")
		w.state = stateStopped
		close(w.done)
		return nil
	}

	w.state = stateInitializing
	// The full pending count is fixed before any initialization is
	// scheduled so an early readiness cannot race the last schedule.
	w.pendingInit = len(w.groups)

	signal.Notify(w.sigs, os.Interrupt, syscall.SIGTERM)
	go w.forwardSignals()

	for idx, entry := range w.groups {
		go func(idx int, entry *groupEntry) {
			data, err := entry.source.Initialize(ctx, w.sink(), entry.ignore)
			if err != nil {
				w.post(msgFailed{idx: idx, err: err})
				return
			}
			w.post(msgReady{idx: idx, data: data})
		}(idx, entry)
	}

	return w.loop(ctx)
}

func (w *Watcher) buildGroups() error {
	debounce := w.cfg.Watch.Debounce

	if w.cfg.IndexFile != "" {
		if _, err := os.Stat(w.cfg.IndexFile); err == nil {
			group, err := watchgroup.New(watchgroup.Descriptor{
				Type:        watchgroup.TypeIndex,
				Globs:       []string{w.cfg.IndexFile},
				OnlyChanges: true,
			}, debounce, w.log)
			if err != nil {
				return err
			}
			w.groups = append(w.groups, &groupEntry{source: group})
		} else {
			w.log.Debug("index file not found, not watching", "path", w.cfg.IndexFile)
		}
	}

	if len(w.cfg.Manual.All) > 0 {
		group, err := watchgroup.NewManual(watchgroup.ManualGlobs{
			All:      w.cfg.Manual.All,
			Sections: w.cfg.Manual.Sections,
		}, debounce, w.log)
		if err != nil {
			return err
		}
		w.groups = append(w.groups, &groupEntry{source: group})
	}

	if err := w.buildScopeGroup(watchgroup.TypeSource, w.cfg.Scopes.Source); err != nil {
		return err
	}
	return w.buildScopeGroup(watchgroup.TypeTest, w.cfg.Scopes.Test)
}

func (w *Watcher) buildScopeGroup(t watchgroup.Type, scope config.Scope) error {
	if len(scope.Globs) == 0 {
		return nil
	}
	policy, err := ignore.NewScope(string(t), scope.Includes, scope.Excludes)
	if err != nil {
		return err
	}
	group, err := watchgroup.New(watchgroup.Descriptor{
		Type:  t,
		Globs: scope.Globs,
	}, w.cfg.Watch.Debounce, w.log)
	if err != nil {
		return err
	}
	w.groups = append(w.groups, &groupEntry{source: group, ignore: policy.Ignored})
	return nil
}

func (w *Watcher) forwardSignals() {
	for {
		select {
		case <-w.sigs:
			w.post(msgShutdown{regenerate: false})
		case <-w.done:
			return
		}
	}
}

// sink delivers group changes onto the control loop; blocking sends
// keep per-group ordering intact.
func (w *Watcher) sink() watchgroup.Sink {
	return func(change watchgroup.Change) {
		w.post(msgChange{change: change})
	}
}

func (w *Watcher) post(m any) {
	select {
	case w.ctrl <- m:
	case <-w.done:
	}
}

// queueOptionsChange records a broadcast without ever blocking the
// caller; the control loop drains the queue on the next iteration.
func (w *Watcher) queueOptionsChange(snapshot options.Options) {
	w.optMu.Lock()
	w.optPending = append(w.optPending, snapshot)
	w.optMu.Unlock()
	select {
	case w.optNudge <- struct{}{}:
	default:
	}
}

func (w *Watcher) flushOptionsChanges() {
	w.optMu.Lock()
	pending := w.optPending
	w.optPending = nil
	w.optMu.Unlock()
	for _, snapshot := range pending {
		w.bus.Publish(EventOptionsChanged, snapshot)
	}
}

func (w *Watcher) loop(ctx context.Context) error {
	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			w.beginShutdown(false)
		case <-w.optNudge:
			w.flushOptionsChanges()
		case m := <-w.ctrl:
			switch msg := m.(type) {
			case msgReady:
				w.onReady(msg.idx, msg.data)
			case msgFailed:
				w.onFailed(msg.idx, msg.err)
			case msgChange:
				w.onChange(msg.change)
			case msgLine:
				w.onLine(msg.line)
			case msgShutdown:
				w.beginShutdown(msg.regenerate)
			case msgClosed:
				w.onClosed(msg.idx)
			}
		}
		if w.state == stateStopped {
			return nil
		}
		if w.state == stateFailed {
			// Initialization aborted before the aggregate start.
			return w.initErr
		}
	}
}

func (w *Watcher) onReady(idx int, data watchgroup.StartData) {
	entry := w.groups[idx]
	entry.ready = true
	if !entry.closed {
		observability.ActiveGroups.Inc()
	}

	if w.state != stateInitializing {
		return
	}

	w.startData[string(entry.source.Descriptor().Type)] = data
	w.pendingInit--
	if w.pendingInit == 0 {
		w.settleInitialization()
	}
}

func (w *Watcher) onFailed(idx int, err error) {
	entry := w.groups[idx]
	entry.failed = true

	if w.state != stateInitializing {
		// Failure caused by closing mid-initialization; already counted.
		return
	}

	if w.initErr == nil {
		w.initErr = errors.Wrap(err, errors.CodeWatchInit, "watch group failed to start")
	}
	w.log.Error("watch group failed to start",
		"type", entry.source.Descriptor().Type, "error", err)

	w.pendingInit--
	if w.pendingInit == 0 {
		w.settleInitialization()
	}
}

// settleInitialization runs once every scheduled group reported
// readiness or failure.
func (w *Watcher) settleInitialization() {
	if w.initErr != nil {
		// No watcher:started, no watcher:stopped: startup never
		// completed. Tear down whatever did start and surface the
		// failure to the host.
		for _, entry := range w.groups {
			if entry.ready && !entry.closed {
				entry.closed = true
				observability.ActiveGroups.Dec()
				_ = entry.source.Close()
			}
		}
		signal.Stop(w.sigs)
		w.state = stateFailed
		close(w.done)
		return
	}

	w.state = stateRunning
	w.bus.Publish(EventStarted, w.copyStartData())

	if w.cfg.Console.IsEnabled() {
		w.cons = console.New(w.consoleIn, func(line string) {
			w.post(msgLine{line: line})
		})
		go w.cons.Run()
		w.showPrompt()
	}
}

func (w *Watcher) copyStartData() map[string]watchgroup.StartData {
	out := make(map[string]watchgroup.StartData, len(w.startData))
	for k, v := range w.startData {
		out[k] = v
	}
	return out
}

func (w *Watcher) onChange(change watchgroup.Change) {
	if w.state != stateRunning {
		return
	}

	snapshot := w.opts.Snapshot()
	if !snapshot.Trigger {
		// Paused: neither events nor per-change log lines go out.
		// Warnings from the groups themselves stay visible.
		observability.UpdatesSuppressedTotal.Inc()
		return
	}

	observability.UpdatesEmittedTotal.WithLabelValues(string(change.Type)).Inc()
	w.bus.Publish(EventUpdate, UpdatePayload{
		Action:  change.Action,
		Type:    change.Type,
		Path:    change.Path,
		Section: change.Section,
		Options: snapshot,
	})

	if snapshot.Silent {
		return
	}
	if w.limiter.Allow(1) {
		w.log.Info("file "+string(change.Action), "type", change.Type, "path", change.Path)
	}
	if snapshot.Verbose {
		args := []any{"action", change.Action, "type", change.Type, "path", change.Path}
		if change.Section != "" {
			args = append(args, "section", change.Section)
		}
		w.log.Info("update", args...)
	}
}

func (w *Watcher) onLine(line string) {
	if w.state != stateRunning {
		return
	}
	w.registry.Dispatch(line, console.Context{
		Config:     w.cfg,
		Out:        w.consoleOut,
		ShowPrompt: w.showPrompt,
	})
}

func (w *Watcher) beginShutdown(regenerate bool) {
	if w.state != stateInitializing && w.state != stateRunning {
		return
	}

	w.regenerate = regenerate
	w.state = stateShuttingDown

	if w.cons != nil {
		w.cons.Stop()
	}
	signal.Stop(w.sigs)

	active := 0
	for idx, entry := range w.groups {
		if entry.failed || entry.closed {
			continue
		}
		active++
		go func(idx int, entry *groupEntry) {
			// Safe on groups that never reached readiness.
			_ = entry.source.Close()
			w.post(msgClosed{idx: idx})
		}(idx, entry)
	}
	w.pendingClose = active

	if active == 0 {
		w.finishShutdown()
	}
}

func (w *Watcher) onClosed(idx int) {
	entry := w.groups[idx]
	if entry.closed {
		return
	}
	entry.closed = true
	if entry.ready {
		observability.ActiveGroups.Dec()
	}

	w.pendingClose--
	if w.pendingClose == 0 {
		w.finishShutdown()
	}
}

func (w *Watcher) finishShutdown() {
	w.bus.Publish(EventStopped, nil)
	if w.regenerate {
		w.bus.Publish(EventRegenerate, nil)
	} else {
		w.bus.Publish(EventShutdown, nil)
	}
	w.state = stateStopped
	close(w.done)
}
