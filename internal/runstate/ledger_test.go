package runstate

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAcquireExcludesSameType(t *testing.T) {
	l := openTestLedger(t)

	first, err := l.Acquire("sync", time.Hour)
	require.NoError(t, err)

	_, err = l.Acquire("sync", time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunActive))

	// A different run type is free to proceed.
	_, err = l.Acquire("cleanup", time.Hour)
	require.NoError(t, err)

	require.NoError(t, l.Release(first, OutcomeCompleted, nil, nil))
	_, err = l.Acquire("sync", time.Hour)
	assert.NoError(t, err, "slot frees on release")
}

func TestAcquireReclaimsStaleSlot(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Acquire("sync", time.Hour)
	require.NoError(t, err)

	// Simulate a crash: the slot was never released. Re-acquire with a
	// shorter staleness bound succeeds.
	_, err = l.Acquire("sync", time.Hour)
	require.Error(t, err)

	_, err = l.Acquire("sync", time.Nanosecond)
	assert.NoError(t, err)
}

func TestReleaseRecordsHistory(t *testing.T) {
	l := openTestLedger(t)

	run, err := l.Acquire("crossref", time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Release(run, OutcomeFailed,
		map[string]float64{"items_processed": 12}, errors.New("neo4j unreachable")))

	last, err := l.LastRuns()
	require.NoError(t, err)
	got, ok := last["crossref"]
	require.True(t, ok)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, float64(12), got.Stats["items_processed"])
	assert.Equal(t, "neo4j unreachable", got.Error)
}

func TestLastRunsKeepsMostRecentPerType(t *testing.T) {
	l := openTestLedger(t)

	older, err := l.Acquire("sync", time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Release(older, OutcomeCompleted, nil, nil))

	newer, err := l.Acquire("sync", time.Hour)
	require.NoError(t, err)
	newer.StartedAt = newer.StartedAt.Add(time.Minute)
	require.NoError(t, l.Release(newer, OutcomeCompleted, nil, nil))

	last, err := l.LastRuns()
	require.NoError(t, err)
	assert.Equal(t, newer.ID, last["sync"].ID)
}

func TestActiveRuns(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Acquire("sync", time.Hour)
	require.NoError(t, err)
	_, err = l.Acquire("cleanup", time.Hour)
	require.NoError(t, err)

	active, err := l.ActiveRuns()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "cleanup", active[0].Type)
	assert.Equal(t, "sync", active[1].Type)
}
