package retention

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
)

type fakeGraph struct {
	strategyRows []graph.Record
	implRows     []graph.Record

	deleted   []string
	deleteErr map[string]error
}

func (f *fakeGraph) Read(_ context.Context, query string, _ map[string]any) ([]graph.Record, error) {
	if strings.Contains(query, "MATCH (i:ImplementationItem)") {
		return f.implRows, nil
	}
	return f.strategyRows, nil
}

func (f *fakeGraph) Write(context.Context, string, map[string]any) (*graph.WriteResult, error) {
	return &graph.WriteResult{}, nil
}

func (f *fakeGraph) Close(context.Context) error { return nil }

func (f *fakeGraph) DeleteEntity(_ context.Context, ref graph.EntityRef) (int, error) {
	display := ref.String()
	if err, ok := f.deleteErr[display]; ok {
		return 0, err
	}
	f.deleted = append(f.deleted, display)
	return 1, nil
}

func newTestCleaner(fake *fakeGraph, registry *metrics.Registry, dryRun bool) *Cleaner {
	c := NewCleaner(fake, fake, NewStrategyFilter(90, 30), NewImplementationFilter(90, 30), registry, dryRun)
	c.now = func() time.Time { return now }
	return c
}

func TestRunDeletesExpiredClosedItem(t *testing.T) {
	fake := &fakeGraph{strategyRows: []graph.Record{
		{"key": "AAPRFE-1", "status": "Closed", "updated": daysAgo(95),
			"openReferrers": int64(0), "tracked": true},
	}}
	registry := metrics.NewRegistry(nil)

	require.NoError(t, newTestCleaner(fake, registry, false).Run(context.Background()))

	require.Len(t, fake.deleted, 1)
	assert.Contains(t, fake.deleted[0], "AAPRFE-1")
	assert.Equal(t, float64(1), registry.Get(metrics.EntitiesDeleted))
}

func TestRunRetainsItemWithOpenReferrer(t *testing.T) {
	fake := &fakeGraph{strategyRows: []graph.Record{
		{"key": "AAPRFE-1", "status": "Closed", "updated": daysAgo(200),
			"openReferrers": int64(1), "tracked": true},
	}}
	registry := metrics.NewRegistry(nil)

	require.NoError(t, newTestCleaner(fake, registry, false).Run(context.Background()))

	assert.Empty(t, fake.deleted)
	assert.Equal(t, float64(1), registry.Get(metrics.EntitiesRetained))
}

func TestRunDeletesOrphanedImplementationItem(t *testing.T) {
	fake := &fakeGraph{implRows: []graph.Record{
		{"repository": "ansible/awx", "number": int64(7), "status": "open",
			"updated": daysAgo(31), "openReferrers": int64(0), "tracked": false},
		{"repository": "ansible/awx", "number": int64(8), "status": "open",
			"updated": daysAgo(31), "openReferrers": int64(0), "tracked": true},
	}}
	registry := metrics.NewRegistry(nil)

	require.NoError(t, newTestCleaner(fake, registry, false).Run(context.Background()))

	require.Len(t, fake.deleted, 1)
	assert.Contains(t, fake.deleted[0], "7")
	assert.Equal(t, float64(1), registry.Get(metrics.EntitiesRetained))
}

func TestRunIsolatesDeleteFailures(t *testing.T) {
	fake := &fakeGraph{
		strategyRows: []graph.Record{
			{"key": "AAPRFE-1", "status": "Closed", "updated": daysAgo(95),
				"openReferrers": int64(0), "tracked": true},
			{"key": "AAPRFE-2", "status": "Closed", "updated": daysAgo(95),
				"openReferrers": int64(0), "tracked": true},
		},
		deleteErr: map[string]error{
			graph.StrategyRef("AAPRFE-1").String(): errors.New("transient"),
		},
	}
	registry := metrics.NewRegistry(nil)

	require.NoError(t, newTestCleaner(fake, registry, false).Run(context.Background()))

	// The failed delete is counted and skipped; the next record still runs.
	require.Len(t, fake.deleted, 1)
	assert.Contains(t, fake.deleted[0], "AAPRFE-2")
	assert.Equal(t, float64(1), registry.Get(metrics.Errors))
	assert.Equal(t, float64(1), registry.Get(metrics.EntitiesDeleted))
}

func TestRunDryRunDeletesNothing(t *testing.T) {
	fake := &fakeGraph{strategyRows: []graph.Record{
		{"key": "AAPRFE-1", "status": "Closed", "updated": daysAgo(95),
			"openReferrers": int64(0), "tracked": true},
	}}
	registry := metrics.NewRegistry(nil)

	require.NoError(t, newTestCleaner(fake, registry, true).Run(context.Background()))

	assert.Empty(t, fake.deleted)
	assert.Equal(t, float64(1), registry.Get(metrics.EntitiesDeleted))
}

func TestCandidateQueriesNameDependencyEdges(t *testing.T) {
	// Both candidate queries are assembled from the shared relationship type
	// constants, so a renamed edge type cannot silently diverge from them.
	want := graph.RelDependsOn + "|" + graph.RelBlocks + "|" + graph.RelRelatesTo
	assert.Contains(t, strategyCandidatesQuery, "[:"+want+"]")
	assert.Contains(t, implementationCandidatesQuery, "[:"+want+"]")
	assert.Contains(t, strategyCandidatesQuery, "[:"+graph.RelTrackedIn+"]")
	assert.Contains(t, implementationCandidatesQuery, "[:"+graph.RelAddresses+"]")
}
