package models

import (
	"fmt"
	"time"
)

// StrategyItem is a work item from the strategic-planning tracker.
// Natural key: Key (e.g. "AAPRFE-2174").
type StrategyItem struct {
	Key         string
	Summary     string
	Description string
	Status      string // raw source status; normalized via NormalizeStatus for queries
	Priority    string
	IssueType   string
	Project     string
	Created     time.Time
	Updated     time.Time
	Assignee    string
	Reporter    string
	Labels      []string
	Components  []string
}

// ImplementationItem is an issue or pull request from the code host.
// Natural key: (Repository, Number) — Number is scoped per repository.
type ImplementationItem struct {
	Repository   string // full name, e.g. "ansible/ansible"
	Number       int
	Title        string
	Body         string
	State        string // open, closed
	Created      time.Time
	Updated      time.Time
	Author       string
	URL          string
	Labels       []string
	Organization string
	Type         string // "issue" or "pull_request"
}

// Key returns the composite natural key in "repo#number" form, used in logs
// and staging rows. Graph upserts match on the two properties separately.
func (g ImplementationItem) Key() string {
	return fmt.Sprintf("%s#%d", g.Repository, g.Number)
}

// Repository is a code-host repository. Natural key: FullName.
type Repository struct {
	FullName string
	Owner    string
	Category string // derived from config mapping, never source-of-truth
}

// SchemaVersion is one entry in the append-only migration ledger.
type SchemaVersion struct {
	Version    int
	AppliedAt  time.Time
	Migrations []string
}

// NormalizedStatus is the closed status vocabulary used by queries.
type NormalizedStatus string

const (
	StatusOpen       NormalizedStatus = "open"
	StatusInProgress NormalizedStatus = "in_progress"
	StatusClosed     NormalizedStatus = "closed"
)

// StrategyClosedStatuses are the raw tracker statuses that count as closed
// for retention and gap analysis.
var StrategyClosedStatuses = []string{"Closed", "Done", "Resolved"}

// ImplementationClosedStates are the code-host states that count as closed.
var ImplementationClosedStates = []string{"closed"}

// NormalizeStatus maps a raw tracker status onto the closed vocabulary.
// Unknown statuses are treated as open: retention must never delete an item
// whose status it does not recognize.
func NormalizeStatus(raw string) NormalizedStatus {
	switch raw {
	case "Closed", "Done", "Resolved":
		return StatusClosed
	case "In Progress", "In Review", "Review":
		return StatusInProgress
	default:
		return StatusOpen
	}
}

// IsClosed reports whether a raw status is in the given closed set.
func IsClosed(raw string, closedSet []string) bool {
	for _, s := range closedSet {
		if raw == s {
			return true
		}
	}
	return false
}

// PriorityRank orders tracker priorities for gap analysis:
// Highest > High > Medium > Low > unspecified. Lower rank sorts first.
func PriorityRank(priority string) int {
	switch priority {
	case "Highest", "Blocker", "Critical":
		return 0
	case "High", "Major":
		return 1
	case "Medium":
		return 2
	case "Low", "Minor":
		return 3
	default:
		return 4
	}
}
