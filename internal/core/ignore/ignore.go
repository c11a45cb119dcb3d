package ignore

import (
	"os"

	"github.com/gobwas/glob"

	"docwatch/internal/core/errors"
	"docwatch/internal/shared/util"
)

// Scope holds the include/exclude pattern sets for one watched tree.
// Source and test trees each get their own Scope; they are never
// merged.
type Scope struct {
	name     string
	includes []glob.Glob
	excludes []glob.Glob
}

func NewScope(name string, includes, excludes []string) (*Scope, error) {
	compiledIncludes, err := compile(name, "includes", includes)
	if err != nil {
		return nil, err
	}
	compiledExcludes, err := compile(name, "excludes", excludes)
	if err != nil {
		return nil, err
	}
	return &Scope{
		name:     name,
		includes: compiledIncludes,
		excludes: compiledExcludes,
	}, nil
}

func compile(scope, kind string, patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(util.NormalizePatternPath(pattern), '/')
		if err != nil {
			wrapped := errors.Wrap(err, errors.CodeValidationError, "invalid "+kind+" pattern "+pattern)
			return nil, errors.AddContext(wrapped, errors.CtxScope, scope)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func (s *Scope) Name() string { return s.name }

// Ignored reports whether path is excluded from this scope. A path is
// ignored when it matches no include pattern (if any are configured)
// or matches any exclude pattern; exclude wins over include.
// Directories are only tested against excludes. When the path cannot
// be stat'ed (a deleted file, typically) the decision falls back to
// pattern matching without the file/directory distinction.
func (s *Scope) Ignored(path string) bool {
	normalized := util.NormalizePatternPath(path)

	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return s.matchesExclude(normalized)
	}

	if len(s.includes) > 0 && !s.matchesInclude(normalized) {
		return true
	}
	return s.matchesExclude(normalized)
}

func (s *Scope) matchesInclude(path string) bool {
	for _, g := range s.includes {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (s *Scope) matchesExclude(path string) bool {
	for _, g := range s.excludes {
		if g.Match(path) {
			return true
		}
	}
	return false
}
