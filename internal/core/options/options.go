package options

import (
	"sort"
	"sync"

	"docwatch/internal/core/errors"
)

// Options is a point-in-time snapshot of the runtime flags. Extra
// holds toggles registered beyond the built-in three; callers always
// receive a copy, never live state.
type Options struct {
	Trigger bool
	Silent  bool
	Verbose bool
	Extra   map[string]bool
}

func (o Options) clone() Options {
	out := o
	if o.Extra != nil {
		out.Extra = make(map[string]bool, len(o.Extra))
		for k, v := range o.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Get reads a toggle from the snapshot by name. Unknown names report
// ok=false.
func (o Options) Get(name string) (value, ok bool) {
	switch name {
	case "trigger":
		return o.Trigger, true
	case "silent":
		return o.Silent, true
	case "verbose":
		return o.Verbose, true
	}
	v, ok := o.Extra[name]
	return v, ok
}

// toggle binds a name to a strongly-typed accessor/mutator pair so
// option changes never rely on reflection over field names.
type toggle struct {
	get func(*Options) bool
	set func(*Options, bool)
}

// State is the single shared flag set. All mutation funnels through
// Set/SetToggle; every accepted mutation invokes the change callback
// with the full resulting snapshot.
type State struct {
	mu       sync.Mutex
	current  Options
	toggles  map[string]toggle
	onChange func(Options)
}

func NewState() *State {
	s := &State{
		current: Options{Trigger: true},
		toggles: make(map[string]toggle),
	}
	s.toggles["trigger"] = toggle{
		get: func(o *Options) bool { return o.Trigger },
		set: func(o *Options, v bool) { o.Trigger = v },
	}
	s.toggles["silent"] = toggle{
		get: func(o *Options) bool { return o.Silent },
		set: func(o *Options, v bool) { o.Silent = v },
	}
	s.toggles["verbose"] = toggle{
		get: func(o *Options) bool { return o.Verbose },
		set: func(o *Options, v bool) { o.Verbose = v },
	}
	return s
}

// OnChange installs the broadcast hook. The callback runs outside the
// state lock with a defensive snapshot.
func (s *State) OnChange(fn func(Options)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Register adds a new named boolean toggle with its starting value.
func (s *State) Register(name string, initial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.toggles[name]; exists {
		return errors.Newf(errors.CodeValidationError, "toggle %q already registered", name)
	}
	if s.current.Extra == nil {
		s.current.Extra = make(map[string]bool)
	}
	s.current.Extra[name] = initial
	key := name
	s.toggles[name] = toggle{
		get: func(o *Options) bool { return o.Extra[key] },
		set: func(o *Options, v bool) {
			if o.Extra == nil {
				o.Extra = make(map[string]bool)
			}
			o.Extra[key] = v
		},
	}
	return nil
}

// RegisterInverse adds a toggle that reads and writes the logical
// negation of an existing one ("paused" over "trigger").
func (s *State) RegisterInverse(name, of string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.toggles[name]; exists {
		return errors.Newf(errors.CodeValidationError, "toggle %q already registered", name)
	}
	base, ok := s.toggles[of]
	if !ok {
		return errors.Newf(errors.CodeValidationError, "toggle %q not registered", of)
	}
	s.toggles[name] = toggle{
		get: func(o *Options) bool { return !base.get(o) },
		set: func(o *Options, v bool) { base.set(o, !v) },
	}
	return nil
}

func (s *State) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.toggles[name]
	return ok
}

// Names lists registered toggle names, sorted.
func (s *State) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.toggles))
	for name := range s.toggles {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// Set applies a partial update. Either every named toggle exists and
// the whole update is applied, or nothing changes and a validation
// error is returned.
func (s *State) Set(changes map[string]bool) (Options, error) {
	s.mu.Lock()
	for name := range changes {
		if _, ok := s.toggles[name]; !ok {
			s.mu.Unlock()
			return Options{}, errors.Newf(errors.CodeValidationError, "unknown option %q", name)
		}
	}
	for name, value := range changes {
		s.toggles[name].set(&s.current, value)
	}
	snapshot := s.snapshotLocked()
	notify := s.onChange
	s.mu.Unlock()

	if len(changes) > 0 && notify != nil {
		notify(snapshot)
	}
	return snapshot, nil
}

// SetToggle applies a single toggle change.
func (s *State) SetToggle(name string, value bool) (Options, error) {
	return s.Set(map[string]bool{name: value})
}

// Snapshot returns a defensive copy of the current state.
func (s *State) Snapshot() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked materializes every registered toggle into the copy,
// so derived toggles like "paused" resolve through Get the same way
// plain ones do.
func (s *State) snapshotLocked() Options {
	out := s.current.clone()
	for name, tg := range s.toggles {
		switch name {
		case "trigger", "silent", "verbose":
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]bool, 1)
		}
		out.Extra[name] = tg.get(&s.current)
	}
	return out
}
