package watchgroup

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"docwatch/internal/core/errors"
	"docwatch/internal/shared/util"
)

// SectionUnknown is reported when a changed manual path maps to no
// configured section. Degraded behavior, not an error.
const SectionUnknown = "unknown"

// ManualGlobs is the manual-glob descriptor: the flat watch list plus
// the per-section pattern lists used for reverse resolution.
type ManualGlobs struct {
	All      []string
	Sections map[string][]string
}

type sectionMatcher struct {
	section string
	matcher glob.Glob
}

// ManualGroup watches manual pages and resolves each changed path to
// its section. Literal section entries resolve through a map built at
// construction; wildcard entries fall back to ordered glob matching.
type ManualGroup struct {
	group   *Group
	lookup  map[string]string
	matched []sectionMatcher
}

func NewManual(mg ManualGlobs, debounce time.Duration, log *slog.Logger) (*ManualGroup, error) {
	group, err := New(Descriptor{Type: TypeManual, Globs: mg.All}, debounce, log)
	if err != nil {
		return nil, err
	}

	m := &ManualGroup{
		group:  group,
		lookup: make(map[string]string),
	}

	sections := make([]string, 0, len(mg.Sections))
	for section := range mg.Sections {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	for _, section := range sections {
		for _, pattern := range mg.Sections[section] {
			normalized := util.NormalizePatternPath(pattern)
			if !strings.ContainsAny(normalized, "*?[]{}") {
				m.lookup[normalized] = section
				continue
			}
			g, err := glob.Compile(normalized, '/')
			if err != nil {
				wrapped := errors.Wrap(err, errors.CodeValidationError, "invalid section pattern "+pattern)
				return nil, errors.AddContext(wrapped, errors.CtxScope, section)
			}
			m.matched = append(m.matched, sectionMatcher{section: section, matcher: g})
		}
	}

	return m, nil
}

func (m *ManualGroup) Descriptor() Descriptor { return m.group.Descriptor() }

func (m *ManualGroup) Initialize(ctx context.Context, sink Sink, ignore IgnoreFunc) (StartData, error) {
	if sink == nil {
		return StartData{}, errors.New(errors.CodeValidationError, "sink must not be nil")
	}
	wrapped := func(change Change) {
		change.Section = m.Resolve(change.Path)
		sink(change)
	}
	return m.group.Initialize(ctx, wrapped, ignore)
}

func (m *ManualGroup) Close() error {
	return m.group.Close()
}

func (m *ManualGroup) Watched() map[string][]string {
	return m.group.Watched()
}

// Resolve maps a changed path to its section name.
func (m *ManualGroup) Resolve(path string) string {
	normalized := util.NormalizePatternPath(path)
	if section, ok := m.lookup[normalized]; ok {
		return section
	}
	for _, sm := range m.matched {
		if sm.matcher.Match(normalized) {
			return sm.section
		}
	}
	return SectionUnknown
}
