// Package glob matches slash-separated relative paths against shell
// patterns. Patterns without '/' match the basename only; patterns with '/'
// match the whole path.
package glob

import (
	"path"
	"strings"
)

type pattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// Matcher checks paths against a set of patterns.
type Matcher struct {
	patterns []pattern
}

// NewMatcher creates a Matcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewMatcher(rawPatterns []string) *Matcher {
	var patterns []pattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, pattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &Matcher{patterns: patterns}
}

// Match reports whether any pattern matches relativePath.
func (m *Matcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 || relativePath == "" {
		return false
	}

	basename := path.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = path.Match(p.pattern, relativePath)
		} else {
			matched, err = path.Match(p.pattern, basename)
		}
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Rules applies a path's include and exclude patterns.
type Rules struct {
	include *Matcher
	exclude *Matcher
}

// NewRules creates Rules. An empty exclude list excludes nothing.
func NewRules(include, exclude []string) *Rules {
	return &Rules{include: NewMatcher(include), exclude: NewMatcher(exclude)}
}

// Excluded reports whether relativePath matches an exclude pattern and no
// include pattern.
func (r *Rules) Excluded(relativePath string) bool {
	return r.exclude.Match(relativePath) && !r.include.Match(relativePath)
}
