package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/tracegraph/tracegraph/internal/models"
)

// Analytics runs read-only derived queries over the graph. Ordering and
// arithmetic happen in Go so the rules are unit-testable without a live
// database.
type Analytics struct {
	store  Store
	logger *slog.Logger
}

// NewAnalytics creates an analytics engine over the given store.
func NewAnalytics(store Store) *Analytics {
	return &Analytics{
		store:  store,
		logger: slog.Default().With("component", "graph.analytics"),
	}
}

// GapItem is an open strategy item with no tracked implementation work.
type GapItem struct {
	Key      string    `json:"key"`
	Summary  string    `json:"summary"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
	Updated  time.Time `json:"updated"`
}

// GapAnalysis returns open strategy items that have no TRACKED_IN edge,
// ordered most urgent first: priority rank ascending, then most recently
// updated.
func (a *Analytics) GapAnalysis(ctx context.Context) ([]GapItem, error) {
	records, err := a.store.Read(ctx,
		`MATCH (s:StrategyItem)
		 WHERE NOT s.status IN $closed AND NOT (s)-[:TRACKED_IN]->(:ImplementationItem)
		 RETURN s.key AS key, s.summary AS summary, s.status AS status,
		        s.priority AS priority, s.updated AS updated`,
		map[string]any{"closed": models.StrategyClosedStatuses})
	if err != nil {
		return nil, fmt.Errorf("gap analysis query failed: %w", err)
	}

	items := make([]GapItem, 0, len(records))
	for _, rec := range records {
		items = append(items, GapItem{
			Key:      recString(rec, "key"),
			Summary:  recString(rec, "summary"),
			Status:   recString(rec, "status"),
			Priority: recString(rec, "priority"),
			Updated:  recTime(rec, "updated"),
		})
	}
	sortGapItems(items)
	a.logger.Info("gap analysis complete", "untracked", len(items))
	return items, nil
}

func sortGapItems(items []GapItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := models.PriorityRank(items[i].Priority), models.PriorityRank(items[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return items[i].Updated.After(items[j].Updated)
	})
}

// AdoptionRatio is per-technology uptake: open implementation work involving
// the technology as a percentage of the open strategy work involving it.
// Above 100 means implementation is outpacing the planned work.
type AdoptionRatio struct {
	Technology          string  `json:"technology"`
	OpenImplementations int     `json:"openImplementations"`
	OpenStrategies      int     `json:"openStrategies"`
	Ratio               float64 `json:"ratio"`
}

// AdoptionRatios computes the adoption ratio per technology. Technologies
// with no open strategy mentions report 0, never a division error. Ratios
// are percentages rounded to two decimals.
func (a *Analytics) AdoptionRatios(ctx context.Context) ([]AdoptionRatio, error) {
	records, err := a.store.Read(ctx,
		`MATCH (t:Technology)
		 RETURN t.name AS technology,
		        count { MATCH (i:ImplementationItem)-[:INVOLVES]->(t)
		                WHERE NOT i.state IN $closedStates } AS openImplementations,
		        count { MATCH (s:StrategyItem)-[:INVOLVES]->(t)
		                WHERE NOT s.status IN $closedStatuses } AS openStrategies`,
		map[string]any{
			"closedStates":   models.ImplementationClosedStates,
			"closedStatuses": models.StrategyClosedStatuses,
		})
	if err != nil {
		return nil, fmt.Errorf("adoption ratio query failed: %w", err)
	}

	out := make([]AdoptionRatio, 0, len(records))
	for _, rec := range records {
		openImpl := recInt(rec, "openImplementations")
		openStrat := recInt(rec, "openStrategies")
		out = append(out, AdoptionRatio{
			Technology:          recString(rec, "technology"),
			OpenImplementations: openImpl,
			OpenStrategies:      openStrat,
			Ratio:               adoptionRatio(openImpl, openStrat),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Technology < out[j].Technology })
	return out, nil
}

// adoptionRatio is openImplementations over openStrategies as a percentage
// rounded to two decimal places. A zero denominator yields 0 even when
// open implementation work exists.
func adoptionRatio(openImplementations, openStrategies int) float64 {
	if openStrategies == 0 {
		return 0
	}
	return math.Round(float64(openImplementations)/float64(openStrategies)*100*100) / 100
}

// ComponentBreadth is the reach of one component across repository
// categories.
type ComponentBreadth struct {
	Component    string   `json:"component"`
	Categories   []string `json:"categories"`
	Repositories int      `json:"repositories"`
}

// EcosystemBreadth reports, per component, the distinct repository categories
// of the implementation items affecting it. A component touched from many
// categories is ecosystem-wide; one category means it is local concern.
func (a *Analytics) EcosystemBreadth(ctx context.Context) ([]ComponentBreadth, error) {
	records, err := a.store.Read(ctx,
		`MATCH (i:ImplementationItem)-[:AFFECTS]->(c:Component)
		 MATCH (i)-[:BELONGS_TO]->(r:Repository)
		 RETURN c.name AS component,
		        collect(DISTINCT r.category) AS categories,
		        count(DISTINCT r) AS repositories`,
		nil)
	if err != nil {
		return nil, fmt.Errorf("ecosystem breadth query failed: %w", err)
	}

	out := make([]ComponentBreadth, 0, len(records))
	for _, rec := range records {
		row := ComponentBreadth{
			Component:    recString(rec, "component"),
			Repositories: recInt(rec, "repositories"),
		}
		if cats, ok := rec["categories"].([]any); ok {
			for _, c := range cats {
				if s, ok := c.(string); ok && s != "" {
					row.Categories = append(row.Categories, s)
				}
			}
		}
		sort.Strings(row.Categories)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Categories) != len(out[j].Categories) {
			return len(out[i].Categories) > len(out[j].Categories)
		}
		return out[i].Component < out[j].Component
	})
	return out, nil
}

// Summary bundles the graph-level totals the status command prints.
type Summary struct {
	StrategyItems       int `json:"strategyItems"`
	ImplementationItems int `json:"implementationItems"`
	Repositories        int `json:"repositories"`
	CrossReferences     int `json:"crossReferences"`
}

// Counts returns node and cross-reference totals.
func (a *Analytics) Counts(ctx context.Context) (*Summary, error) {
	records, err := a.store.Read(ctx,
		`RETURN count { MATCH (s:StrategyItem) } AS strategies,
		        count { MATCH (i:ImplementationItem) } AS implementations,
		        count { MATCH (r:Repository) } AS repositories,
		        count { MATCH (:ImplementationItem)-[:ADDRESSES]->(:StrategyItem) } AS crossrefs`,
		nil)
	if err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}
	if len(records) == 0 {
		return &Summary{}, nil
	}
	rec := records[0]
	return &Summary{
		StrategyItems:       recInt(rec, "strategies"),
		ImplementationItems: recInt(rec, "implementations"),
		Repositories:        recInt(rec, "repositories"),
		CrossReferences:     recInt(rec, "crossrefs"),
	}, nil
}
