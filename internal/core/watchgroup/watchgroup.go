package watchgroup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"docwatch/internal/core/errors"
	"docwatch/internal/shared/observability"
	"docwatch/internal/shared/util"
)

type Type string

const (
	TypeIndex  Type = "index"
	TypeManual Type = "manual"
	TypeSource Type = "source"
	TypeTest   Type = "test"
)

type Action string

const (
	ActionAdded   Action = "added"
	ActionChanged Action = "changed"
	ActionDeleted Action = "deleted"
)

// Change is one normalized filesystem change produced by a group.
// Section is only set by manual groups.
type Change struct {
	Action  Action
	Type    Type
	Path    string
	Section string
}

// Sink receives translated changes. Calls for one group arrive in
// notification order from a single goroutine.
type Sink func(Change)

// IgnoreFunc reports whether a path is filtered out of the group.
type IgnoreFunc func(path string) bool

// Descriptor fixes a group's identity for its lifetime. OnlyChanges
// groups track modifications to the initially matched files only;
// add/delete activity is out of scope for them.
type Descriptor struct {
	Type        Type
	Globs       []string
	OnlyChanges bool
}

// StartData is what a group reports when it reaches readiness.
type StartData struct {
	Globs []string
	Files map[string][]string
}

type eventStamp struct {
	action Action
	at     time.Time
}

type Group struct {
	desc     Descriptor
	debounce time.Duration
	log      *slog.Logger
	matchers []glob.Glob

	fsw    *fsnotify.Watcher
	sink   Sink
	ignore IgnoreFunc
	done   chan struct{}

	mu          sync.Mutex
	files       map[string]map[string]struct{}
	lastEvent   map[string]eventStamp
	initialized bool
	closed      bool
}

func New(desc Descriptor, debounce time.Duration, log *slog.Logger) (*Group, error) {
	if len(desc.Globs) == 0 {
		return nil, errors.Newf(errors.CodeValidationError, "%s group requires at least one glob", desc.Type)
	}

	matchers := make([]glob.Glob, 0, len(desc.Globs))
	for _, pattern := range desc.Globs {
		g, err := glob.Compile(util.NormalizePatternPath(pattern), '/')
		if err != nil {
			wrapped := errors.Wrap(err, errors.CodeValidationError, "invalid glob "+pattern)
			return nil, errors.AddContext(wrapped, errors.CtxGroup, string(desc.Type))
		}
		matchers = append(matchers, g)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Group{
		desc:      desc,
		debounce:  debounce,
		log:       log,
		matchers:  matchers,
		done:      make(chan struct{}),
		files:     make(map[string]map[string]struct{}),
		lastEvent: make(map[string]eventStamp),
	}, nil
}

func (g *Group) Descriptor() Descriptor { return g.desc }

// Initialize scans the glob roots, records the matched files and
// starts delivering changes to sink. It returns once the group is
// ready; a failure before readiness is fatal for the group and is not
// retried.
func (g *Group) Initialize(ctx context.Context, sink Sink, ignore IgnoreFunc) (StartData, error) {
	if sink == nil {
		return StartData{}, errors.New(errors.CodeValidationError, "sink must not be nil")
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return StartData{}, errors.Newf(errors.CodeWatchInit, "%s group already closed", g.desc.Type)
	}
	if g.initialized {
		g.mu.Unlock()
		return StartData{}, errors.Newf(errors.CodeWatchInit, "%s group already initialized", g.desc.Type)
	}
	g.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return StartData{}, errors.Wrap(err, errors.CodeWatchInit, "cannot create notifier")
	}

	for _, root := range roots(g.desc.Globs) {
		if err := ctx.Err(); err != nil {
			_ = fsw.Close()
			return StartData{}, errors.Wrap(err, errors.CodeWatchInit, "initialization canceled")
		}
		if err := g.scanRoot(fsw, root, ignore); err != nil {
			_ = fsw.Close()
			wrapped := errors.Wrap(err, errors.CodeWatchInit, "initial scan failed")
			return StartData{}, errors.AddContext(wrapped, errors.CtxGroup, string(g.desc.Type))
		}
	}

	g.mu.Lock()
	if g.closed {
		// Closed while scanning; do not start delivery.
		g.mu.Unlock()
		_ = fsw.Close()
		return StartData{}, errors.Newf(errors.CodeWatchInit, "%s group closed during initialization", g.desc.Type)
	}
	g.fsw = fsw
	g.sink = sink
	g.ignore = ignore
	g.initialized = true
	data := StartData{Globs: g.desc.Globs, Files: g.snapshotLocked()}
	g.mu.Unlock()

	go g.run()
	return data, nil
}

func (g *Group) scanRoot(fsw *fsnotify.Watcher, root string, ignore IgnoreFunc) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		// A literal file glob: watch its directory and record the file.
		if err := fsw.Add(filepath.Dir(root)); err != nil {
			return err
		}
		if g.matches(root) {
			g.recordFile(root)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && ignore != nil && ignore(path) {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		if g.matches(path) && (ignore == nil || !ignore(path)) {
			g.recordFile(path)
		}
		return nil
	})
}

func (g *Group) run() {
	for {
		select {
		case event, ok := <-g.fsw.Events:
			if !ok {
				return
			}
			observability.FsEventsTotal.Inc()
			g.handleEvent(event)
		case err, ok := <-g.fsw.Errors:
			if !ok {
				return
			}
			g.log.Warn("watch error", "type", g.desc.Type, "error", err)
		case <-g.done:
			return
		}
	}
}

func (g *Group) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			g.watchNewDir(path)
			return
		}
	}

	if !g.matches(path) {
		return
	}
	if g.ignore != nil && g.ignore(path) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		g.apply(ActionAdded, path)
	case event.Op&fsnotify.Write != 0:
		g.apply(ActionChanged, path)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		g.apply(ActionDeleted, path)
	}
}

// apply updates the file index and forwards one change, honoring the
// OnlyChanges policy and the same-action dedupe window.
func (g *Group) apply(action Action, path string) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}

	if g.desc.OnlyChanges {
		if action != ActionChanged || !g.knownLocked(path) {
			g.mu.Unlock()
			return
		}
	}

	now := time.Now()
	if stamp, ok := g.lastEvent[path]; ok && stamp.action == action && now.Sub(stamp.at) < g.debounce {
		g.mu.Unlock()
		return
	}
	g.lastEvent[path] = eventStamp{action: action, at: now}

	if !g.desc.OnlyChanges {
		switch action {
		case ActionAdded:
			g.recordFile(path)
		case ActionDeleted:
			g.dropFile(path)
		}
	}
	sink := g.sink
	g.mu.Unlock()

	sink(Change{Action: action, Type: g.desc.Type, Path: path})
}

func (g *Group) watchNewDir(path string) {
	if g.ignore != nil && g.ignore(path) {
		return
	}
	err := filepath.WalkDir(path, func(sub string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if sub != path && g.ignore != nil && g.ignore(sub) {
				return filepath.SkipDir
			}
			return g.fsw.Add(sub)
		}
		if g.matches(sub) && (g.ignore == nil || !g.ignore(sub)) {
			g.apply(ActionAdded, sub)
		}
		return nil
	})
	if err != nil {
		g.log.Warn("failed to watch new directory", "type", g.desc.Type, "path", path, "error", err)
	}
}

// Close stops the underlying notifier. Safe to call before readiness
// and safe to call twice.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	fsw := g.fsw
	g.mu.Unlock()

	close(g.done)
	if fsw != nil {
		return fsw.Close()
	}
	return nil
}

// Watched returns the current directory-to-files snapshot. It is empty
// before initialization; after Close it keeps reporting the last known
// state.
func (g *Group) Watched() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Group) snapshotLocked() map[string][]string {
	out := make(map[string][]string, len(g.files))
	for dir, names := range g.files {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		sort.Strings(list)
		out[dir] = list
	}
	return out
}

func (g *Group) matches(path string) bool {
	normalized := util.NormalizePatternPath(path)
	for _, m := range g.matchers {
		if m.Match(normalized) {
			return true
		}
	}
	return false
}

func (g *Group) recordFile(path string) {
	dir := filepath.Dir(path)
	if g.files[dir] == nil {
		g.files[dir] = make(map[string]struct{})
	}
	g.files[dir][filepath.Base(path)] = struct{}{}
}

func (g *Group) dropFile(path string) {
	dir := filepath.Dir(path)
	if names, ok := g.files[dir]; ok {
		delete(names, filepath.Base(path))
		if len(names) == 0 {
			delete(g.files, dir)
		}
	}
}

func (g *Group) knownLocked(path string) bool {
	names, ok := g.files[filepath.Dir(path)]
	if !ok {
		return false
	}
	_, ok = names[filepath.Base(path)]
	return ok
}

// roots derives the deduplicated walk roots from the glob patterns:
// the static prefix of each pattern up to its first wildcard.
func roots(globs []string) []string {
	seen := make(map[string]struct{}, len(globs))
	out := make([]string, 0, len(globs))
	for _, pattern := range globs {
		root := staticRoot(pattern)
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		out = append(out, root)
	}
	return out
}

func staticRoot(pattern string) string {
	normalized := util.NormalizePatternPath(pattern)
	if normalized == "" {
		return "."
	}
	idx := strings.IndexAny(normalized, "*?[]{}")
	if idx == -1 {
		return filepath.FromSlash(normalized)
	}
	prefix := normalized[:idx]
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		prefix = prefix[:i]
	} else {
		prefix = ""
	}
	if prefix == "" {
		prefix = "."
	}
	return filepath.FromSlash(prefix)
}
