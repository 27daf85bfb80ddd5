package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
)

// Writer owns all mutations to the property graph: entity upserts,
// relationship upserts and detach-deletes. Upserts are keyed on natural keys
// exclusively and are idempotent, so interrupted runs re-converge on the next
// pass.
type Writer struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a graph writer.
func NewWriter(store Store) *Writer {
	return &Writer{
		store:  store,
		logger: slog.Default().With("component", "graph.writer"),
		now:    time.Now,
	}
}

// UpsertEntity matches or creates the node by natural key, then overwrites
// all provided attributes. Last write wins: a sync that omits a field clears
// it to that fetch's value, so callers always pass the full record. The
// lastSynced stamp is set on every successful upsert and is the sole
// freshness signal.
func (w *Writer) UpsertEntity(ctx context.Context, ref EntityRef, props map[string]any) error {
	all := make(map[string]any, len(props)+1)
	for k, v := range props {
		all[k] = v
	}
	all["lastSynced"] = w.now().UTC()

	builder := NewCypherBuilder()
	query, err := builder.BuildMergeNode(ref, all)
	if err != nil {
		return fmt.Errorf("failed to build upsert for %s: %w", ref, err)
	}

	if _, err := w.store.Write(ctx, query, builder.Params()); err != nil {
		return tgerrors.Constraintf(err, "upsert of %s failed", ref)
	}
	return nil
}

// UpsertRelationship creates at most one logical edge per ordered
// (source, target, type) tuple. Returns true when the edge was created, false
// when it already existed or when either endpoint is missing (MATCH found
// nothing; the caller decides whether that is an unresolved reference).
func (w *Writer) UpsertRelationship(ctx context.Context, from, to EntityRef, relType string) (bool, error) {
	builder := NewCypherBuilder()
	query, err := builder.BuildMergeRelationship(from, to, relType)
	if err != nil {
		return false, fmt.Errorf("failed to build relationship upsert: %w", err)
	}

	result, err := w.store.Write(ctx, query, builder.Params())
	if err != nil {
		return false, tgerrors.Constraintf(err, "relationship %s %s->%s failed", relType, from, to)
	}
	return result.Counters.RelationshipsCreated > 0, nil
}

// DeleteRelationship removes one typed edge between two nodes. Missing edges
// are not an error: deletion is used for compensation and must be idempotent.
func (w *Writer) DeleteRelationship(ctx context.Context, from, to EntityRef, relType string) error {
	builder := NewCypherBuilder()
	query, err := builder.BuildDeleteRelationship(from, to, relType)
	if err != nil {
		return fmt.Errorf("failed to build relationship delete: %w", err)
	}
	if _, err := w.store.Write(ctx, query, builder.Params()); err != nil {
		return fmt.Errorf("delete of %s %s->%s failed: %w", relType, from, to, err)
	}
	return nil
}

// UpsertPair creates the ADDRESSES edge (implementation -> strategy) and its
// TRACKED_IN inverse together. The pair invariant: both exist or neither
// does. If the second half fails after the first was newly created, the first
// half is retracted with a compensating delete.
func (w *Writer) UpsertPair(ctx context.Context, impl, strategy EntityRef) (created bool, err error) {
	addrCreated, err := w.UpsertRelationship(ctx, impl, strategy, RelAddresses)
	if err != nil {
		return false, tgerrors.Pairingf(err, "ADDRESSES %s->%s", impl, strategy)
	}

	_, err = w.UpsertRelationship(ctx, strategy, impl, RelTrackedIn)
	if err == nil {
		return addrCreated, nil
	}

	if addrCreated {
		if delErr := w.DeleteRelationship(ctx, impl, strategy, RelAddresses); delErr != nil {
			// Both halves failed in opposite directions; the next crossref
			// run re-converges because the extractor is idempotent.
			w.logger.Warn("compensating delete failed, pair left inconsistent until next run",
				"impl", impl.String(), "strategy", strategy.String(), "error", delErr)
		}
	}
	return false, tgerrors.Pairingf(err, "TRACKED_IN %s->%s, ADDRESSES retracted", strategy, impl)
}

// DeleteEntity removes the node and all incident edges atomically
// (detach-delete). Returns the number of nodes removed (0 or 1).
func (w *Writer) DeleteEntity(ctx context.Context, ref EntityRef) (int, error) {
	builder := NewCypherBuilder()
	query, err := builder.BuildDetachDelete(ref)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete for %s: %w", ref, err)
	}

	result, err := w.store.Write(ctx, query, builder.Params())
	if err != nil {
		return 0, fmt.Errorf("delete of %s failed: %w", ref, err)
	}
	return result.Counters.NodesDeleted, nil
}

// EntityExists reports whether a node with the given natural key is present.
// The cross-reference step uses this gate: edges are only created toward
// entities that already exist.
func (w *Writer) EntityExists(ctx context.Context, ref EntityRef) (bool, error) {
	builder := NewCypherBuilder()
	query, err := builder.BuildExists(ref)
	if err != nil {
		return false, err
	}
	records, err := w.store.Read(ctx, query, builder.Params())
	if err != nil {
		return false, fmt.Errorf("existence check for %s failed: %w", ref, err)
	}
	if len(records) == 0 {
		return false, nil
	}
	return recInt(records[0], "n") > 0, nil
}
