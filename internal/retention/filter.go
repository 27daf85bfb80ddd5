package retention

import (
	"time"

	"github.com/tracegraph/tracegraph/internal/models"
)

// Neighborhood is the read snapshot of an entity's surroundings that the
// eligibility decision needs. It is re-read every run: referrer status
// changes between runs, so eligibility is never cached.
type Neighborhood struct {
	// OpenReferrers counts incoming DEPENDS_ON, BLOCKS or RELATES_TO edges
	// from open strategy items plus open implementation items with an
	// ADDRESSES edge into the entity.
	OpenReferrers int
	// Tracked reports whether the entity has any cross-system tracking edge
	// (ADDRESSES or TRACKED_IN in either role).
	Tracked bool
}

// Candidate is one entity under retention evaluation.
type Candidate struct {
	Status  string // raw source status or state
	Updated time.Time
	Neighborhood
}

// Filter decides, per entity, whether the periodic cleanup may delete it.
// Pure: all graph state arrives through the Candidate snapshot.
type Filter struct {
	RetentionWindow time.Duration
	OrphanWindow    time.Duration
	ClosedSet       []string
}

// NewStrategyFilter builds the filter for strategy items.
func NewStrategyFilter(retentionDays, orphanDays int) Filter {
	return Filter{
		RetentionWindow: time.Duration(retentionDays) * 24 * time.Hour,
		OrphanWindow:    time.Duration(orphanDays) * 24 * time.Hour,
		ClosedSet:       models.StrategyClosedStatuses,
	}
}

// NewImplementationFilter builds the filter for implementation items.
func NewImplementationFilter(retentionDays, orphanDays int) Filter {
	return Filter{
		RetentionWindow: time.Duration(retentionDays) * 24 * time.Hour,
		OrphanWindow:    time.Duration(orphanDays) * 24 * time.Hour,
		ClosedSet:       models.ImplementationClosedStates,
	}
}

// EligibleClosed reports whether the closed-item predicate holds: closed
// status, past the retention window, and no open referrer.
func (f Filter) EligibleClosed(c Candidate, now time.Time) bool {
	if !models.IsClosed(c.Status, f.ClosedSet) {
		return false
	}
	if now.Sub(c.Updated) < f.RetentionWindow {
		return false
	}
	return c.OpenReferrers == 0
}

// EligibleOrphan reports whether the orphan predicate holds: no cross-system
// tracking at all and past the orphan window. Open referrers still protect
// the entity.
func (f Filter) EligibleOrphan(c Candidate, now time.Time) bool {
	if c.Tracked {
		return false
	}
	if now.Sub(c.Updated) < f.OrphanWindow {
		return false
	}
	return c.OpenReferrers == 0
}

// Eligible is the deletion decision: either predicate suffices. An entity
// with any open referrer is never eligible, regardless of age or status.
func (f Filter) Eligible(c Candidate, now time.Time) bool {
	return f.EligibleClosed(c, now) || f.EligibleOrphan(c, now)
}
