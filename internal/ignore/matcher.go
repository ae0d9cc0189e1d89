// Package ignore hides archive entries matching gitignore-style rules.
package ignore

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/morozRed/classlens/internal/archive"
)

// Matcher applies gitignore rules with "last rule wins" behavior.
type Matcher struct {
	rules []string
	gi    *gitignore.GitIgnore
}

// NewMatcher builds a matcher from user-provided rule lines. Blank
// lines and comments are skipped.
func NewMatcher(userRules []string) *Matcher {
	rules := make([]string, 0, len(userRules))
	for _, line := range userRules {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	m := &Matcher{rules: rules}
	if len(rules) > 0 {
		m.gi = gitignore.CompileIgnoreLines(rules...)
	}
	return m
}

// Empty reports whether the matcher has no rules.
func (m *Matcher) Empty() bool { return len(m.rules) == 0 }

// ShouldIgnore returns true when the entry path should be hidden.
func (m *Matcher) ShouldIgnore(path string) bool {
	if m.gi == nil {
		return false
	}
	return m.gi.MatchesPath(strings.TrimPrefix(path, "/"))
}

// Filter returns arc without ignored entries. An empty matcher returns
// arc unchanged.
func (m *Matcher) Filter(arc *archive.Archive) *archive.Archive {
	if m.Empty() {
		return arc
	}
	return arc.Filter(func(path string) bool { return !m.ShouldIgnore(path) })
}
