package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracegraph/tracegraph/internal/config"
	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
)

func testConfig(baseURL string) config.JiraConfig {
	return config.JiraConfig{
		BaseURL:               baseURL,
		Username:              "bot",
		Token:                 "secret",
		BatchSize:             2,
		RateLimitDelaySeconds: 0.001,
		UpdatedSinceDays:      1,
	}
}

func issueJSON(key, status, updated string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary": "summary of " + key,
			"status":  map[string]any{"name": status},
			"updated": updated,
		},
	}
}

func TestFetchProjectPaginates(t *testing.T) {
	pages := [][]map[string]any{
		{issueJSON("AAPRFE-1", "Open", "2026-02-01T10:00:00.000+0000"),
			issueJSON("AAPRFE-2", "Closed", "2026-02-02T10:00:00.000+0000")},
		{issueJSON("AAPRFE-3", "Open", "2026-02-03T10:00:00.000+0000")},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "bot", user)
		assert.Equal(t, "secret", pass)
		assert.Contains(t, r.URL.Query().Get("jql"), "project = AAPRFE")
		assert.Contains(t, r.URL.Query().Get("jql"), "updated >= -1d")

		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		page := 0
		if startAt >= 2 {
			page = 1
		}
		json.NewEncoder(w).Encode(map[string]any{
			"startAt": startAt,
			"total":   3,
			"issues":  pages[page],
		})
	}))
	defer server.Close()

	c, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	items, err := c.FetchProject(context.Background(), "AAPRFE")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "AAPRFE-1", items[0].Key)
	assert.Equal(t, "AAPRFE-3", items[2].Key)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), items[0].Updated)
}

func TestFetchProjectRetriesTransientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total":  1,
			"issues": []any{issueJSON("AAPRFE-9", "Open", "2026-02-01T10:00:00.000+0000")},
		})
	}))
	defer server.Close()

	c, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	items, err := c.FetchProject(context.Background(), "AAPRFE")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, calls)
}

func TestFetchProjectDoesNotRetryAuthFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = c.FetchProject(context.Background(), "AAPRFE")
	require.Error(t, err)
	assert.Equal(t, tgerrors.TypeSourceFetch, tgerrors.TypeOf(err))
	assert.Equal(t, 1, calls, "credential rejection must not be retried")
}

func TestConvertIssueDefaults(t *testing.T) {
	item, err := convertIssue(apiIssue{
		Key: "AAPRFE-5",
		Fields: apiFields{
			Summary: "bare minimum",
			Updated: "2026-02-01T10:00:00.000+0000",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Unknown", item.Status)
	assert.Equal(t, defaultPriority, item.Priority)
	assert.Equal(t, defaultAssignee, item.Assignee)
	assert.Equal(t, defaultReporter, item.Reporter)
}

func TestConvertIssueFullRecord(t *testing.T) {
	item, err := convertIssue(apiIssue{
		Key: "AAPRFE-6",
		Fields: apiFields{
			Summary:     "full record",
			Description: "details",
			Status:      &namedField{Name: "In Progress"},
			Priority:    &namedField{Name: "High"},
			IssueType:   &namedField{Name: "Story"},
			Project:     &keyedField{Key: "AAPRFE"},
			Created:     "2026-01-01T08:00:00.000+0000",
			Updated:     "2026-02-01T10:00:00.000+0000",
			Assignee:    &userField{Name: "alice"},
			Reporter:    &userField{DisplayName: "Bob B"},
			Labels:      []string{"platform"},
			Components:  []namedField{{Name: "Networking"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "In Progress", item.Status)
	assert.Equal(t, "High", item.Priority)
	assert.Equal(t, "Story", item.IssueType)
	assert.Equal(t, "AAPRFE", item.Project)
	assert.Equal(t, "alice", item.Assignee)
	assert.Equal(t, "Bob B", item.Reporter)
	assert.Equal(t, []string{"Networking"}, item.Components)
}

func TestConvertIssueRejectsMissingUpdated(t *testing.T) {
	_, err := convertIssue(apiIssue{Key: "AAPRFE-7", Fields: apiFields{Summary: "x"}})
	require.Error(t, err)

	_, err = convertIssue(apiIssue{Fields: apiFields{Updated: "2026-02-01T10:00:00.000+0000"}})
	require.Error(t, err, "missing key is unusable")
}

func TestParseJiraTimeFormats(t *testing.T) {
	ts, err := parseJiraTime("2026-02-01T10:00:00.000+0200")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), ts)

	ts, err = parseJiraTime("2026-02-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), ts)

	_, err = parseJiraTime(fmt.Sprintf("%d", 1700000000))
	assert.Error(t, err)
}
