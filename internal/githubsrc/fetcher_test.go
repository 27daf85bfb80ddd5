package githubsrc

import (
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegraph/tracegraph/internal/config"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestConvertIssue(t *testing.T) {
	created := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	issue := &github.Issue{
		Number:    intPtr(85274),
		Title:     strPtr("Add EE support"),
		Body:      strPtr("fixes AAPRFE-2174"),
		State:     strPtr("open"),
		HTMLURL:   strPtr("https://github.com/ansible/ansible/issues/85274"),
		User:      &github.User{Login: strPtr("alice")},
		CreatedAt: &github.Timestamp{Time: created},
		UpdatedAt: &github.Timestamp{Time: updated},
		Labels:    []*github.Label{{Name: strPtr("feature")}},
	}

	item := convertIssue("ansible/ansible", "ansible", issue)
	assert.Equal(t, "ansible/ansible", item.Repository)
	assert.Equal(t, 85274, item.Number)
	assert.Equal(t, "issue", item.Type)
	assert.Equal(t, "alice", item.Author)
	assert.Equal(t, created, item.Created)
	assert.Equal(t, updated, item.Updated)
	assert.Equal(t, []string{"feature"}, item.Labels)
	assert.Equal(t, "ansible", item.Organization)
}

func TestConvertIssueDiscriminatesPullRequests(t *testing.T) {
	pr := &github.Issue{
		Number:            intPtr(7),
		PullRequestLinks:  &github.PullRequestLinks{URL: strPtr("https://api.github.com/x")},
	}
	item := convertIssue("ansible/awx", "ansible", pr)
	assert.Equal(t, "pull_request", item.Type)

	plain := &github.Issue{Number: intPtr(8)}
	assert.Equal(t, "issue", convertIssue("ansible/awx", "ansible", plain).Type)
}

func TestExcludedLabels(t *testing.T) {
	f := &Fetcher{cfg: config.GitHubConfig{ExcludeLabels: []string{"bot", "spam"}}}

	withBot := &github.Issue{Labels: []*github.Label{{Name: strPtr("Bot")}}}
	assert.True(t, f.excluded(withBot), "label match is case-insensitive")

	clean := &github.Issue{Labels: []*github.Label{{Name: strPtr("feature")}}}
	assert.False(t, f.excluded(clean))
	assert.False(t, f.excluded(&github.Issue{}))
}

func TestSplitFullName(t *testing.T) {
	owner, name, err := splitFullName("ansible/ansible")
	require.NoError(t, err)
	assert.Equal(t, "ansible", owner)
	assert.Equal(t, "ansible", name)

	_, _, err = splitFullName("not-a-full-name")
	assert.Error(t, err)
	_, _, err = splitFullName("/missing-owner")
	assert.Error(t, err)
}

func TestNewFetcherRequiresToken(t *testing.T) {
	_, err := NewFetcher(config.GitHubConfig{})
	assert.Error(t, err)
}
