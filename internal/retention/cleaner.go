package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/models"
)

// GraphDeleter is the slice of the graph writer the cleaner deletes through.
type GraphDeleter interface {
	DeleteEntity(ctx context.Context, ref graph.EntityRef) (int, error)
}

// Cleaner runs the periodic retention pass. For every candidate it reads the
// current neighborhood, applies the filter, and detach-deletes eligible
// entities one at a time. Per-record isolation: one failed delete is counted
// and skipped, never fatal for the run.
type Cleaner struct {
	store    graph.Store
	deleter  GraphDeleter
	strategy Filter
	impl     Filter
	registry *metrics.Registry
	logger   *slog.Logger
	now      func() time.Time
	dryRun   bool
}

// NewCleaner creates a retention cleaner. With dryRun set, eligible entities
// are logged and counted but not deleted.
func NewCleaner(store graph.Store, deleter GraphDeleter, strategy, impl Filter,
	registry *metrics.Registry, dryRun bool) *Cleaner {
	return &Cleaner{
		store:    store,
		deleter:  deleter,
		strategy: strategy,
		impl:     impl,
		registry: registry,
		logger:   slog.Default().With("component", "retention"),
		now:      time.Now,
		dryRun:   dryRun,
	}
}

// Run evaluates and cleans both entity kinds.
func (c *Cleaner) Run(ctx context.Context) error {
	if err := c.cleanStrategyItems(ctx); err != nil {
		return err
	}
	return c.cleanImplementationItems(ctx)
}

// dependencyEdges are the relationship types whose open referrers protect an
// entity from deletion.
var dependencyEdges = strings.Join(
	[]string{graph.RelDependsOn, graph.RelBlocks, graph.RelRelatesTo}, "|")

// strategyCandidatesQuery reads each strategy item with its live
// neighborhood: open strategy referrers over dependency edges, open
// implementation items addressing it, and whether any tracking edge exists.
var strategyCandidatesQuery = fmt.Sprintf(`
MATCH (s:StrategyItem)
RETURN s.key AS key, s.status AS status, s.updated AS updated,
       count { MATCH (o:StrategyItem)-[:%s]->(s)
               WHERE NOT o.status IN $closedStatuses } +
       count { MATCH (g:ImplementationItem)-[:%s]->(s)
               WHERE NOT g.state IN $closedStates } AS openReferrers,
       exists { MATCH (s)-[:%s]->(:ImplementationItem) } AS tracked`,
	dependencyEdges, graph.RelAddresses, graph.RelTrackedIn)

func (c *Cleaner) cleanStrategyItems(ctx context.Context) error {
	records, err := c.store.Read(ctx, strategyCandidatesQuery, closedParams())
	if err != nil {
		return fmt.Errorf("failed to read strategy candidates: %w", err)
	}
	now := c.now()

	for _, rec := range records {
		key := recString(rec, "key")
		candidate := candidateFrom(rec)
		if !c.strategy.Eligible(candidate, now) {
			c.registry.Inc(metrics.EntitiesRetained)
			continue
		}
		c.delete(ctx, graph.StrategyRef(key), key)
	}
	return nil
}

// implementationCandidatesQuery mirrors the strategy query for the other
// entity kind. Implementation items are referrers, not referents, of
// ADDRESSES, so only dependency edges can protect them; tracking is an
// outgoing ADDRESSES edge.
var implementationCandidatesQuery = fmt.Sprintf(`
MATCH (i:ImplementationItem)
RETURN i.repository AS repository, i.number AS number,
       i.state AS status, i.updated AS updated,
       count { MATCH (o:StrategyItem)-[:%s]->(i)
               WHERE NOT o.status IN $closedStatuses } AS openReferrers,
       exists { MATCH (i)-[:%s]->(:StrategyItem) } AS tracked`,
	dependencyEdges, graph.RelAddresses)

func (c *Cleaner) cleanImplementationItems(ctx context.Context) error {
	records, err := c.store.Read(ctx, implementationCandidatesQuery, closedParams())
	if err != nil {
		return fmt.Errorf("failed to read implementation candidates: %w", err)
	}
	now := c.now()

	for _, rec := range records {
		repository := recString(rec, "repository")
		number := recInt(rec, "number")
		candidate := candidateFrom(rec)
		if !c.impl.Eligible(candidate, now) {
			c.registry.Inc(metrics.EntitiesRetained)
			continue
		}
		c.delete(ctx, graph.ImplementationRef(repository, number),
			fmt.Sprintf("%s#%d", repository, number))
	}
	return nil
}

// delete detach-deletes one entity, or just logs it in dry-run mode.
func (c *Cleaner) delete(ctx context.Context, ref graph.EntityRef, display string) {
	if c.dryRun {
		c.logger.Info("would delete", "entity", display)
		c.registry.Inc(metrics.EntitiesDeleted)
		return
	}
	n, err := c.deleter.DeleteEntity(ctx, ref)
	if err != nil {
		c.logger.Warn("delete failed, skipping entity", "entity", display, "error", err)
		c.registry.Inc(metrics.Errors)
		return
	}
	if n > 0 {
		c.logger.Info("deleted expired entity", "entity", display)
		c.registry.Inc(metrics.EntitiesDeleted)
	}
}

func closedParams() map[string]any {
	// Shared by both candidate queries; split params keep the two closed
	// vocabularies from cross-contaminating.
	return map[string]any{
		"closedStatuses": models.StrategyClosedStatuses,
		"closedStates":   models.ImplementationClosedStates,
	}
}

func candidateFrom(rec graph.Record) Candidate {
	return Candidate{
		Status:  recString(rec, "status"),
		Updated: recTime(rec, "updated"),
		Neighborhood: Neighborhood{
			OpenReferrers: recInt(rec, "openReferrers"),
			Tracked:       recBool(rec, "tracked"),
		},
	}
}

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

func recBool(rec graph.Record, key string) bool {
	if v, ok := rec[key].(bool); ok {
		return v
	}
	return false
}

func recTime(rec graph.Record, key string) time.Time {
	if v, ok := rec[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
