package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// CypherBuilder builds parameterized Cypher statements. All values travel as
// parameters; labels, property names and relationship types are validated
// against a strict identifier rule so no caller input is ever spliced into
// query text.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a statement builder.
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{params: make(map[string]any)}
}

// AddParam registers a value and returns its placeholder.
func (b *CypherBuilder) AddParam(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

// Params returns the parameters accumulated so far.
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// nodePattern renders "(alias:Label {k1: $p0, k2: $p1})" with keys in sorted
// order so generated statements are deterministic.
func (b *CypherBuilder) nodePattern(alias string, ref EntityRef) (string, error) {
	if !isValidIdentifier(ref.Label) {
		return "", fmt.Errorf("invalid node label: %q", ref.Label)
	}
	if len(ref.Keys) == 0 {
		return "", fmt.Errorf("entity ref %s has no natural key", ref.Label)
	}

	names := make([]string, 0, len(ref.Keys))
	for name := range ref.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		if !isValidIdentifier(name) {
			return "", fmt.Errorf("invalid key property: %q", name)
		}
		pairs = append(pairs, fmt.Sprintf("%s: %s", name, b.AddParam(ref.Keys[name])))
	}

	return fmt.Sprintf("(%s:%s {%s})", alias, ref.Label, strings.Join(pairs, ", ")), nil
}

// BuildMergeNode creates a MERGE-by-natural-key statement that overwrites all
// provided attributes (last-write-wins; callers pass the full record).
func (b *CypherBuilder) BuildMergeNode(ref EntityRef, props map[string]any) (string, error) {
	pattern, err := b.nodePattern("n", ref)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	setClauses := make([]string, 0, len(names))
	for _, name := range names {
		if !isValidIdentifier(name) {
			return "", fmt.Errorf("invalid property key: %q", name)
		}
		if _, isKey := ref.Keys[name]; isKey {
			// Natural key properties are fixed by the MERGE pattern.
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", name, b.AddParam(props[name])))
	}

	if len(setClauses) == 0 {
		return fmt.Sprintf("MERGE %s RETURN count(n) AS merged", pattern), nil
	}
	return fmt.Sprintf("MERGE %s SET %s RETURN count(n) AS merged",
		pattern, strings.Join(setClauses, ", ")), nil
}

// BuildMergeRelationship creates a conditional-create statement keyed on the
// natural keys of both endpoints. MATCH (not MERGE) on the nodes means no
// edge is created when either endpoint is missing; MERGE on the relationship
// means repeated runs never produce parallel duplicate edges.
func (b *CypherBuilder) BuildMergeRelationship(from, to EntityRef, relType string) (string, error) {
	if !isValidIdentifier(relType) {
		return "", fmt.Errorf("invalid relationship type: %q", relType)
	}
	fromPattern, err := b.nodePattern("a", from)
	if err != nil {
		return "", err
	}
	toPattern, err := b.nodePattern("b", to)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH %s MATCH %s MERGE (a)-[r:%s]->(b) RETURN count(r) AS matched",
		fromPattern, toPattern, relType), nil
}

// BuildDeleteRelationship removes a single typed edge between two nodes.
func (b *CypherBuilder) BuildDeleteRelationship(from, to EntityRef, relType string) (string, error) {
	if !isValidIdentifier(relType) {
		return "", fmt.Errorf("invalid relationship type: %q", relType)
	}
	fromPattern, err := b.nodePattern("a", from)
	if err != nil {
		return "", err
	}
	toPattern, err := b.nodePattern("b", to)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH %s-[r:%s]->%s DELETE r",
		fromPattern, relType, toPattern), nil
}

// BuildDetachDelete removes a node and all incident edges atomically.
func (b *CypherBuilder) BuildDetachDelete(ref EntityRef) (string, error) {
	pattern, err := b.nodePattern("n", ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH %s DETACH DELETE n", pattern), nil
}

// BuildExists checks whether a node with the given natural key is present.
func (b *CypherBuilder) BuildExists(ref EntityRef) (string, error) {
	pattern, err := b.nodePattern("n", ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MATCH %s RETURN count(n) AS n", pattern), nil
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier reports whether s is safe to splice into query text as a
// label, property name or relationship type.
func isValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
