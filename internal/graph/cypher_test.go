package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMergeNode(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildMergeNode(StrategyRef("AAPRFE-2174"), map[string]any{
		"summary": "Support execution environments",
		"status":  "Open",
		"key":     "AAPRFE-2174", // natural key must not be re-set
	})
	require.NoError(t, err)

	assert.Equal(t,
		"MERGE (n:StrategyItem {key: $p0}) SET n.status = $p1, n.summary = $p2 RETURN count(n) AS merged",
		query)
	assert.Equal(t, map[string]any{
		"p0": "AAPRFE-2174",
		"p1": "Open",
		"p2": "Support execution environments",
	}, b.Params())
}

func TestBuildMergeNodeCompositeKeySorted(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildMergeNode(ImplementationRef("ansible/ansible", 101), nil)
	require.NoError(t, err)

	// Key order is sorted, so repeated builds emit byte-identical statements.
	assert.Equal(t,
		"MERGE (n:ImplementationItem {number: $p0, repository: $p1}) RETURN count(n) AS merged",
		query)
	assert.Equal(t, 101, b.Params()["p0"])
	assert.Equal(t, "ansible/ansible", b.Params()["p1"])
}

func TestBuildMergeRelationshipMatchesEndpoints(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildMergeRelationship(
		ImplementationRef("ansible/ansible", 101), StrategyRef("AAPRFE-2174"), RelAddresses)
	require.NoError(t, err)

	// MATCH on endpoints, never MERGE: a missing endpoint yields no edge.
	assert.Equal(t,
		"MATCH (a:ImplementationItem {number: $p0, repository: $p1}) "+
			"MATCH (b:StrategyItem {key: $p2}) "+
			"MERGE (a)-[r:ADDRESSES]->(b) RETURN count(r) AS matched",
		query)
}

func TestBuildDeleteRelationship(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildDeleteRelationship(
		ImplementationRef("ansible/awx", 7), StrategyRef("AAPRFE-99"), RelAddresses)
	require.NoError(t, err)
	assert.Contains(t, query, "-[r:ADDRESSES]->")
	assert.Contains(t, query, "DELETE r")
}

func TestBuildDetachDelete(t *testing.T) {
	b := NewCypherBuilder()
	query, err := b.BuildDetachDelete(StrategyRef("AAPRFE-1"))
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:StrategyItem {key: $p0}) DETACH DELETE n", query)
}

func TestBuilderRejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *CypherBuilder) error
	}{
		{
			name: "label with injection",
			build: func(b *CypherBuilder) error {
				_, err := b.BuildMergeNode(EntityRef{
					Label: "StrategyItem) DETACH DELETE (m",
					Keys:  map[string]any{"key": "x"},
				}, nil)
				return err
			},
		},
		{
			name: "key property with space",
			build: func(b *CypherBuilder) error {
				_, err := b.BuildMergeNode(EntityRef{
					Label: LabelStrategyItem,
					Keys:  map[string]any{"bad key": "x"},
				}, nil)
				return err
			},
		},
		{
			name: "attribute with backtick",
			build: func(b *CypherBuilder) error {
				_, err := b.BuildMergeNode(StrategyRef("x"), map[string]any{"a`b": 1})
				return err
			},
		},
		{
			name: "relationship type with dash",
			build: func(b *CypherBuilder) error {
				_, err := b.BuildMergeRelationship(StrategyRef("x"), StrategyRef("y"), "REL-TYPE")
				return err
			},
		},
		{
			name: "empty natural key",
			build: func(b *CypherBuilder) error {
				_, err := b.BuildMergeNode(EntityRef{Label: LabelStrategyItem}, nil)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.build(NewCypherBuilder()))
		})
	}
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, isValidIdentifier("StrategyItem"))
	assert.True(t, isValidIdentifier("_private"))
	assert.True(t, isValidIdentifier("TRACKED_IN"))
	assert.False(t, isValidIdentifier(""))
	assert.False(t, isValidIdentifier("9lives"))
	assert.False(t, isValidIdentifier("a b"))
	assert.False(t, isValidIdentifier("a;b"))
}
