package xref

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tracegraph/tracegraph/internal/config"
)

// Extractor scans free text for strategy item keys using an ordered,
// configured pattern set. Pure: no graph access, no state beyond the compiled
// patterns.
type Extractor struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	re    *regexp.Regexp
	group int
}

// NewExtractor compiles the configured pattern set. A pattern that does not
// compile, or names a capture group the expression does not have, is a
// configuration error.
func NewExtractor(patterns []config.Pattern) (*Extractor, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no reference patterns configured")
	}
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid reference pattern %q: %w", p.Regex, err)
		}
		if p.Group < 0 || p.Group > re.NumSubexp() {
			return nil, fmt.Errorf("pattern %q has no capture group %d", p.Regex, p.Group)
		}
		compiled = append(compiled, compiledPattern{re: re, group: p.Group})
	}
	return &Extractor{patterns: compiled}, nil
}

// Extract returns the distinct strategy keys mentioned in text, in first-seen
// order. Identifiers are trimmed but case is preserved: keys are
// case-sensitive in the source tracker. Duplicates across patterns collapse.
func (e *Extractor) Extract(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var keys []string
	for _, p := range e.patterns {
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			if p.group >= len(match) {
				continue
			}
			key := strings.TrimSpace(match[p.group])
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}
