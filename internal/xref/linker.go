package xref

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
)

// GraphWriter is the slice of the graph writer the linker mutates through.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, ref graph.EntityRef, props map[string]any) error
	UpsertRelationship(ctx context.Context, from, to graph.EntityRef, relType string) (bool, error)
	UpsertPair(ctx context.Context, impl, strategy graph.EntityRef) (bool, error)
	EntityExists(ctx context.Context, ref graph.EntityRef) (bool, error)
}

// UnresolvedSink receives references that pointed at keys absent from the
// graph, for operator inspection. Optional.
type UnresolvedSink interface {
	RecordUnresolved(ctx context.Context, sourceKey, targetKey string) error
}

// Linker runs the cross-reference pass: it reads already-synced items back
// from the graph, extracts mentions of the other system's identifiers, and
// writes the derived relationships. Edges are only created toward entities
// already present; a reference to an absent key is counted, never an error.
type Linker struct {
	store      graph.Store
	writer     GraphWriter
	extractor  *Extractor
	classifier *Classifier
	registry   *metrics.Registry
	unresolved UnresolvedSink
	logger     *slog.Logger
}

// NewLinker creates a cross-reference linker. unresolved may be nil.
func NewLinker(store graph.Store, writer GraphWriter, extractor *Extractor,
	classifier *Classifier, registry *metrics.Registry, unresolved UnresolvedSink) *Linker {
	return &Linker{
		store:      store,
		writer:     writer,
		extractor:  extractor,
		classifier: classifier,
		registry:   registry,
		unresolved: unresolved,
		logger:     slog.Default().With("component", "xref"),
	}
}

// Run executes the full pass: implementation items, strategy items, then the
// strategy hierarchy. Per-item failures are isolated; one bad record never
// aborts the run.
func (l *Linker) Run(ctx context.Context) error {
	if err := l.linkImplementationItems(ctx); err != nil {
		return err
	}
	if err := l.linkStrategyItems(ctx); err != nil {
		return err
	}
	if err := l.linkHierarchy(ctx); err != nil {
		return err
	}
	return l.writeRunStats(ctx)
}

func (l *Linker) linkImplementationItems(ctx context.Context) error {
	records, err := l.store.Read(ctx,
		`MATCH (i:ImplementationItem)
		 RETURN i.repository AS repository, i.number AS number,
		        i.title AS title, i.body AS body`, nil)
	if err != nil {
		return fmt.Errorf("failed to read implementation items: %w", err)
	}
	l.logger.Info("cross-referencing implementation items", "count", len(records))

	for _, rec := range records {
		repository := recString(rec, "repository")
		number := recInt(rec, "number")
		if repository == "" || number == 0 {
			l.registry.Inc(metrics.ItemsFailed)
			continue
		}
		implRef := graph.ImplementationRef(repository, number)
		text := recString(rec, "title") + "\n" + recString(rec, "body")

		if err := l.linkOneImplementation(ctx, implRef, repository, text); err != nil {
			l.logger.Warn("cross-reference failed for item, skipping",
				"repository", repository, "number", number, "error", err)
			l.registry.Inc(metrics.ItemsFailed)
			continue
		}
		l.registry.Inc(metrics.ItemsProcessed)
	}
	return nil
}

func (l *Linker) linkOneImplementation(ctx context.Context, implRef graph.EntityRef, repository, text string) error {
	for _, key := range l.extractor.Extract(text) {
		strategyRef := graph.StrategyRef(key)
		exists, err := l.writer.EntityExists(ctx, strategyRef)
		if err != nil {
			return err
		}
		if !exists {
			l.registry.Inc(metrics.UnresolvedReferences)
			if l.unresolved != nil {
				if recErr := l.unresolved.RecordUnresolved(ctx, implRef.String(), key); recErr != nil {
					l.logger.Warn("failed to record unresolved reference", "key", key, "error", recErr)
				}
			}
			continue
		}
		created, err := l.writer.UpsertPair(ctx, implRef, strategyRef)
		if err != nil {
			return err
		}
		if created {
			l.registry.Add(metrics.RelationshipsCreated, 2)
		}
	}

	if err := l.classifyItem(ctx, implRef, text); err != nil {
		return err
	}

	// Repository category is derived from the repository name alone.
	category := l.classifier.ComponentCategory(repository)
	componentRef := graph.ComponentRef(category)
	if err := l.writer.UpsertEntity(ctx, componentRef, map[string]any{"category": category}); err != nil {
		return err
	}
	created, err := l.writer.UpsertRelationship(ctx, implRef, componentRef, graph.RelAffects)
	if err != nil {
		return err
	}
	if created {
		l.registry.Inc(metrics.ComponentLinks)
	}
	return nil
}

func (l *Linker) linkStrategyItems(ctx context.Context) error {
	records, err := l.store.Read(ctx,
		`MATCH (s:StrategyItem)
		 RETURN s.key AS key, s.summary AS summary, s.description AS description,
		        s.components AS components`, nil)
	if err != nil {
		return fmt.Errorf("failed to read strategy items: %w", err)
	}
	l.logger.Info("cross-referencing strategy items", "count", len(records))

	for _, rec := range records {
		key := recString(rec, "key")
		if key == "" {
			l.registry.Inc(metrics.ItemsFailed)
			continue
		}
		strategyRef := graph.StrategyRef(key)
		text := recString(rec, "summary") + "\n" + recString(rec, "description")

		if err := l.classifyItem(ctx, strategyRef, text); err != nil {
			l.logger.Warn("classification failed for item, skipping", "key", key, "error", err)
			l.registry.Inc(metrics.ItemsFailed)
			continue
		}

		// Tracker-declared components link via RELATES_TO, keeping them
		// distinct from repository-derived AFFECTS edges.
		for _, name := range NormalizeComponents(recStrings(rec, "components")) {
			componentRef := graph.ComponentRef(name)
			if err := l.writer.UpsertEntity(ctx, componentRef, nil); err != nil {
				l.registry.Inc(metrics.Errors)
				continue
			}
			created, err := l.writer.UpsertRelationship(ctx, strategyRef, componentRef, graph.RelRelatesTo)
			if err != nil {
				l.registry.Inc(metrics.Errors)
				continue
			}
			if created {
				l.registry.Inc(metrics.ComponentLinks)
			}
		}
		l.registry.Inc(metrics.ItemsProcessed)
	}
	return nil
}

// classifyItem upserts Technology vocabulary nodes for every tag found in
// text and links the item to each.
func (l *Linker) classifyItem(ctx context.Context, itemRef graph.EntityRef, text string) error {
	for _, tag := range l.classifier.Technologies(text) {
		techRef := graph.TechnologyRef(tag)
		if err := l.writer.UpsertEntity(ctx, techRef, nil); err != nil {
			return err
		}
		created, err := l.writer.UpsertRelationship(ctx, itemRef, techRef, graph.RelInvolves)
		if err != nil {
			return err
		}
		if created {
			l.registry.Inc(metrics.TechnologyLinks)
		}
	}
	return nil
}

// hierarchyRank orders tracker issue types top-down. A mention only becomes a
// PARENT_OF edge when the mentioning item sits strictly above the mentioned
// one, which keeps the hierarchy tree-shaped.
func hierarchyRank(issueType string) int {
	switch issueType {
	case "Epic", "Initiative", "Feature":
		return 0
	case "Story":
		return 1
	case "Task", "Sub-task", "Bug":
		return 2
	default:
		return -1
	}
}

func (l *Linker) linkHierarchy(ctx context.Context) error {
	records, err := l.store.Read(ctx,
		`MATCH (s:StrategyItem)
		 RETURN s.key AS key, s.issueType AS issueType,
		        s.summary AS summary, s.description AS description`, nil)
	if err != nil {
		return fmt.Errorf("failed to read strategy items for hierarchy: %w", err)
	}

	rankByKey := make(map[string]int, len(records))
	for _, rec := range records {
		rankByKey[recString(rec, "key")] = hierarchyRank(recString(rec, "issueType"))
	}

	for _, rec := range records {
		key := recString(rec, "key")
		rank := rankByKey[key]
		if key == "" || rank < 0 {
			continue
		}
		text := recString(rec, "summary") + "\n" + recString(rec, "description")

		for _, mentioned := range l.extractor.Extract(text) {
			if mentioned == key {
				continue
			}
			childRank, known := rankByKey[mentioned]
			if !known || childRank <= rank {
				continue
			}
			parentRef := graph.StrategyRef(key)
			childRef := graph.StrategyRef(mentioned)

			created, err := l.writer.UpsertRelationship(ctx, parentRef, childRef, graph.RelParentOf)
			if err != nil {
				l.logger.Warn("hierarchy link failed, skipping",
					"parent", key, "child", mentioned, "error", err)
				l.registry.Inc(metrics.Errors)
				continue
			}
			if _, err := l.writer.UpsertRelationship(ctx, childRef, parentRef, graph.RelChildOf); err != nil {
				l.logger.Warn("hierarchy inverse link failed",
					"parent", key, "child", mentioned, "error", err)
				l.registry.Inc(metrics.Errors)
				continue
			}
			if created {
				l.registry.Inc(metrics.HierarchyLinks)
			}
		}
	}
	return nil
}

// writeRunStats records the run's counters as a RunStats node so graph
// consumers can see when links were last derived and how many.
func (l *Linker) writeRunStats(ctx context.Context) error {
	snap := l.registry.Snapshot()
	ref := graph.EntityRef{Label: graph.LabelRunStats, Keys: map[string]any{"runId": uuid.NewString()}}
	props := map[string]any{
		"runType":              "crossref",
		"completedAt":          time.Now().UTC(),
		"itemsProcessed":       int(snap[metrics.ItemsProcessed]),
		"itemsFailed":          int(snap[metrics.ItemsFailed]),
		"relationshipsCreated": int(snap[metrics.RelationshipsCreated]),
		"unresolvedReferences": int(snap[metrics.UnresolvedReferences]),
	}
	if err := l.writer.UpsertEntity(ctx, ref, props); err != nil {
		return fmt.Errorf("failed to write run stats: %w", err)
	}
	return nil
}

// Record helpers mirror the graph package's defensive casts for the record
// shapes this package reads.

func recString(rec graph.Record, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

func recInt(rec graph.Record, key string) int {
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

func recStrings(rec graph.Record, key string) []string {
	switch v := rec[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
