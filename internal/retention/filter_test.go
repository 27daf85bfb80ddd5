package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

func TestStrategyFilterEligible(t *testing.T) {
	f := NewStrategyFilter(90, 30)

	tests := []struct {
		name string
		c    Candidate
		want bool
	}{
		{
			name: "closed past window, unreferenced",
			c:    Candidate{Status: "Closed", Updated: daysAgo(95), Neighborhood: Neighborhood{Tracked: true}},
			want: true,
		},
		{
			name: "closed past window but open referrer",
			c: Candidate{Status: "Closed", Updated: daysAgo(95),
				Neighborhood: Neighborhood{OpenReferrers: 1, Tracked: true}},
			want: false,
		},
		{
			name: "closed but inside window",
			c:    Candidate{Status: "Closed", Updated: daysAgo(89), Neighborhood: Neighborhood{Tracked: true}},
			want: false,
		},
		{
			name: "open item never eligible via closed predicate",
			c:    Candidate{Status: "Open", Updated: daysAgo(400), Neighborhood: Neighborhood{Tracked: true}},
			want: false,
		},
		{
			name: "done and resolved count as closed",
			c:    Candidate{Status: "Done", Updated: daysAgo(91), Neighborhood: Neighborhood{Tracked: true}},
			want: true,
		},
		{
			name: "unrecognized status treated as open",
			c:    Candidate{Status: "Wontfix", Updated: daysAgo(400), Neighborhood: Neighborhood{Tracked: true}},
			want: false,
		},
		{
			name: "orphan past orphan window",
			c:    Candidate{Status: "Open", Updated: daysAgo(31)},
			want: true,
		},
		{
			name: "orphan inside orphan window",
			c:    Candidate{Status: "Open", Updated: daysAgo(29)},
			want: false,
		},
		{
			name: "orphan with open referrer protected",
			c:    Candidate{Status: "Open", Updated: daysAgo(31), Neighborhood: Neighborhood{OpenReferrers: 2}},
			want: false,
		},
		{
			name: "tracked item not an orphan",
			c:    Candidate{Status: "Open", Updated: daysAgo(200), Neighborhood: Neighborhood{Tracked: true}},
			want: false,
		},
		{
			name: "closed and orphaned, either predicate deletes",
			c:    Candidate{Status: "Closed", Updated: daysAgo(40)},
			want: true, // inside retention window but past orphan window
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Eligible(tt.c, now))
		})
	}
}

func TestImplementationFilterClosedSet(t *testing.T) {
	f := NewImplementationFilter(90, 30)

	assert.True(t, f.Eligible(Candidate{Status: "closed", Updated: daysAgo(91),
		Neighborhood: Neighborhood{Tracked: true}}, now))
	// The tracker vocabulary does not apply to code-host states.
	assert.False(t, f.Eligible(Candidate{Status: "Closed", Updated: daysAgo(91),
		Neighborhood: Neighborhood{Tracked: true}}, now))
	assert.False(t, f.Eligible(Candidate{Status: "open", Updated: daysAgo(400),
		Neighborhood: Neighborhood{Tracked: true}}, now))
}

func TestPredicatesAreIndependent(t *testing.T) {
	f := NewStrategyFilter(90, 30)
	c := Candidate{Status: "Closed", Updated: daysAgo(40), Neighborhood: Neighborhood{Tracked: true}}

	// Tracked, so not an orphan; inside the retention window, so not closed
	// eligible. Each predicate fails on its own axis.
	assert.False(t, f.EligibleClosed(c, now))
	assert.False(t, f.EligibleOrphan(c, now))
	assert.False(t, f.Eligible(c, now))
}
