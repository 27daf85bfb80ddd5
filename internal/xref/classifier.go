package xref

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tracegraph/tracegraph/internal/config"
)

// CategoryOther is the sentinel component category for repositories no rule
// matches. Never empty: every repository classifies to something.
const CategoryOther = "other"

// Classifier maps free text to technology tags and repository names to a
// component category. Pure and table-driven; the tables come from
// configuration, not code.
type Classifier struct {
	techPatterns   []compiledTech
	componentRules []config.ComponentRule
}

type compiledTech struct {
	re  *regexp.Regexp
	tag string
}

// NewClassifier compiles the technology pattern table. Component rules are
// plain substring checks and need no compilation.
func NewClassifier(tech []config.TechPattern, components []config.ComponentRule) (*Classifier, error) {
	compiled := make([]compiledTech, 0, len(tech))
	for _, p := range tech {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid technology pattern %q: %w", p.Regex, err)
		}
		if p.Tag == "" && re.NumSubexp() < 1 {
			return nil, fmt.Errorf("technology pattern %q has no tag and no capture group", p.Regex)
		}
		compiled = append(compiled, compiledTech{re: re, tag: p.Tag})
	}
	return &Classifier{techPatterns: compiled, componentRules: components}, nil
}

// Technologies returns the distinct technology tags found in text, in
// first-seen order. All matching patterns fire; this is not first-match-wins.
// A pattern with an explicit tag contributes that tag once; a pattern without
// one contributes each distinct lowercased first capture group.
func (c *Classifier) Technologies(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var tags []string
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, p := range c.techPatterns {
		if p.tag != "" {
			if p.re.MatchString(text) {
				add(strings.ToLower(p.tag))
			}
			continue
		}
		for _, match := range p.re.FindAllStringSubmatch(text, -1) {
			if len(match) > 1 {
				add(strings.ToLower(match[1]))
			}
		}
	}
	return tags
}

// ComponentCategory maps a repository full name onto a single component
// category. First matching substring rule wins; no match falls back to
// CategoryOther, never empty.
func (c *Classifier) ComponentCategory(repoFullName string) string {
	name := strings.ToLower(repoFullName)
	for _, rule := range c.componentRules {
		if strings.Contains(name, strings.ToLower(rule.Match)) {
			return rule.Category
		}
	}
	return CategoryOther
}

// NormalizeComponents lowercases and dedupes tracker-declared component names
// so they share the vocabulary with derived categories.
func NormalizeComponents(raw []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range raw {
		name := strings.ToLower(strings.TrimSpace(r))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
