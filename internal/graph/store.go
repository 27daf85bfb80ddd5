package graph

import (
	"context"
	"fmt"
	"time"
)

// Record is one row returned by the store, keyed by return alias.
type Record map[string]any

// Counters summarizes what a write changed. Relationship upserts use
// RelationshipsCreated to distinguish created from already-existed.
type Counters struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
}

// WriteResult carries rows and change counters for one write statement.
type WriteResult struct {
	Records  []Record
	Counters Counters
}

// Store executes parameterized statements against the property graph. One
// Write call is one atomic unit; cross-call atomicity is not provided and the
// callers do not rely on it.
type Store interface {
	Write(ctx context.Context, query string, params map[string]any) (*WriteResult, error)
	Read(ctx context.Context, query string, params map[string]any) ([]Record, error)
	Close(ctx context.Context) error
}

// EntityRef identifies a node by label and natural key. Internal node ids are
// never used as upsert anchors.
type EntityRef struct {
	Label string
	Keys  map[string]any
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s%v", r.Label, r.Keys)
}

// Node labels.
const (
	LabelStrategyItem       = "StrategyItem"
	LabelImplementationItem = "ImplementationItem"
	LabelRepository         = "Repository"
	LabelTechnology         = "Technology"
	LabelComponent          = "Component"
	LabelPerson             = "Person"
	LabelSchemaVersion      = "SchemaVersion"
	LabelRunStats           = "RunStats"
)

// Relationship types.
const (
	RelAddresses  = "ADDRESSES"
	RelTrackedIn  = "TRACKED_IN"
	RelInvolves   = "INVOLVES"
	RelAffects    = "AFFECTS"
	RelRelatesTo  = "RELATES_TO"
	RelBelongsTo  = "BELONGS_TO"
	RelParentOf   = "PARENT_OF"
	RelChildOf    = "CHILD_OF"
	RelReportedBy = "REPORTED_BY"
	RelAssignedTo = "ASSIGNED_TO"
	RelAuthoredBy = "AUTHORED_BY"
	RelDependsOn  = "DEPENDS_ON"
	RelBlocks     = "BLOCKS"
)

// StrategyRef builds a reference to a StrategyItem node.
func StrategyRef(key string) EntityRef {
	return EntityRef{Label: LabelStrategyItem, Keys: map[string]any{"key": key}}
}

// ImplementationRef builds a reference to an ImplementationItem node. The
// natural key is composite: number is scoped per repository.
func ImplementationRef(repository string, number int) EntityRef {
	return EntityRef{Label: LabelImplementationItem, Keys: map[string]any{
		"repository": repository,
		"number":     number,
	}}
}

// RepositoryRef builds a reference to a Repository node.
func RepositoryRef(fullName string) EntityRef {
	return EntityRef{Label: LabelRepository, Keys: map[string]any{"fullName": fullName}}
}

// TechnologyRef builds a reference to a Technology vocabulary node.
func TechnologyRef(name string) EntityRef {
	return EntityRef{Label: LabelTechnology, Keys: map[string]any{"name": name}}
}

// ComponentRef builds a reference to a Component vocabulary node.
func ComponentRef(name string) EntityRef {
	return EntityRef{Label: LabelComponent, Keys: map[string]any{"name": name}}
}

// PersonRef builds a reference to a Person node. Usernames are namespaced by
// source system ("jira:alice", "github:alice"): the two universes carry no
// identity-resolution rule, so they stay distinct.
func PersonRef(system, username string) EntityRef {
	return EntityRef{Label: LabelPerson, Keys: map[string]any{
		"username": system + ":" + username,
	}}
}

// Record value helpers. The driver returns interface{} values; these keep the
// defensive casts in one place.

func recString(rec Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

func recInt(rec Record, key string) int {
	switch v := rec[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func recTime(rec Record, key string) time.Time {
	if v, ok := rec[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
