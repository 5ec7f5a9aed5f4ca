// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns select the archives picked up when none are configured.
var DefaultPatterns = []string{"*.zip"}

// defaultIgnores are always skipped: hidden files, processed markers and
// partial downloads.
var defaultIgnores = []string{
	".*",
	"*.processed",
	"*.part",
	"*.tmp",
	"*.crdownload",
}

// Matcher decides whether a file name is an archive to ingest. Patterns are
// matched against the lower-cased base name.
type Matcher struct {
	patterns []string
	ignores  []string
}

// NewMatcher validates the patterns and returns a Matcher. An empty patterns
// slice falls back to DefaultPatterns.
func NewMatcher(patterns, ignore []string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if err := validatePatterns(patterns, "archive"); err != nil {
		return nil, err
	}
	if err := validatePatterns(ignore, "ignore"); err != nil {
		return nil, err
	}

	m := &Matcher{
		patterns: lowerAll(patterns),
		ignores:  make([]string, 0, len(defaultIgnores)+len(ignore)),
	}
	m.ignores = append(m.ignores, defaultIgnores...)
	m.ignores = append(m.ignores, lowerAll(ignore)...)
	return m, nil
}

// Match reports whether name (a base name) is an ingestible archive.
func (m *Matcher) Match(name string) bool {
	lower := strings.ToLower(name)
	if matchAny(m.ignores, lower) {
		return false
	}
	return matchAny(m.patterns, lower)
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	out := make([]string, len(defaultIgnores))
	copy(out, defaultIgnores)
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, name); err == nil && matched {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// validatePatterns checks that every pattern is a valid doublestar glob.
// The label is used in error messages.
func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}
