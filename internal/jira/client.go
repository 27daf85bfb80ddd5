package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tracegraph/tracegraph/internal/config"
	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
	"github.com/tracegraph/tracegraph/internal/models"
)

// Field defaults for records with unset optional fields.
const (
	defaultAssignee = "Unassigned"
	defaultReporter = "Unknown"
	defaultPriority = "Undefined"
)

const maxAttempts = 3

// Client fetches strategy items from the tracker's REST search API.
type Client struct {
	baseURL    string
	username   string
	token      string
	batchSize  int
	updatedAge int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient builds a tracker client from configuration.
func NewClient(cfg config.JiraConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, tgerrors.Configf("jira base URL is not configured")
	}
	if cfg.Token == "" {
		return nil, tgerrors.Configf("jira token is not configured")
	}

	interval := time.Duration(cfg.RateLimitDelaySeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		token:      cfg.Token,
		batchSize:  cfg.BatchSize,
		updatedAge: cfg.UpdatedSinceDays,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		logger:     slog.Default().With("component", "jira"),
	}, nil
}

// FetchProject returns the project's strategy items updated within the
// configured window, paging through the search API until exhausted.
func (c *Client) FetchProject(ctx context.Context, project string) ([]models.StrategyItem, error) {
	jql := fmt.Sprintf("project = %s AND updated >= -%dd ORDER BY updated DESC",
		project, c.updatedAge)

	var items []models.StrategyItem
	startAt := 0
	for {
		page, total, err := c.searchPage(ctx, jql, startAt)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		startAt += len(page)
		if startAt >= total || len(page) == 0 {
			break
		}
	}
	c.logger.Info("fetched tracker project", "project", project, "items", len(items))
	return items, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) ([]models.StrategyItem, int, error) {
	query := url.Values{}
	query.Set("jql", jql)
	query.Set("startAt", fmt.Sprintf("%d", startAt))
	query.Set("maxResults", fmt.Sprintf("%d", c.batchSize))
	query.Set("fields", "summary,description,status,priority,issuetype,project,created,updated,assignee,reporter,labels,components")

	endpoint := c.baseURL + "/rest/api/2/search?" + query.Encode()

	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, 0, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, tgerrors.SourceFetchf(err, "malformed search response")
	}

	items := make([]models.StrategyItem, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		item, err := convertIssue(issue)
		if err != nil {
			// One unparseable record never fails the page.
			c.logger.Warn("skipping unparseable issue", "key", issue.Key, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, resp.Total, nil
}

// getWithRetry performs a rate-limited GET with exponential backoff on
// transient failures. Authentication failures do not retry.
func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, tgerrors.SourceFetchf(err, "failed to build request")
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.token)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
				return nil, tgerrors.SourceFetchf(nil, "tracker rejected credentials (HTTP %d)", resp.StatusCode)
			default:
				lastErr = fmt.Errorf("tracker returned HTTP %d", resp.StatusCode)
			}
		}

		if attempt < maxAttempts {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Warn("tracker request failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, tgerrors.SourceFetchf(lastErr, "tracker request failed after %d attempts", maxAttempts)
}

// Wire types for the tracker search API.

type searchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []apiIssue `json:"issues"`
}

type apiIssue struct {
	Key    string    `json:"key"`
	Fields apiFields `json:"fields"`
}

type apiFields struct {
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Status      *namedField   `json:"status"`
	Priority    *namedField   `json:"priority"`
	IssueType   *namedField   `json:"issuetype"`
	Project     *keyedField   `json:"project"`
	Created     string        `json:"created"`
	Updated     string        `json:"updated"`
	Assignee    *userField    `json:"assignee"`
	Reporter    *userField    `json:"reporter"`
	Labels      []string      `json:"labels"`
	Components  []namedField  `json:"components"`
}

type namedField struct {
	Name string `json:"name"`
}

type keyedField struct {
	Key string `json:"key"`
}

type userField struct {
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

// jiraTimeLayout is the tracker's timestamp format, e.g.
// "2024-03-01T12:34:56.000+0000".
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

func convertIssue(issue apiIssue) (models.StrategyItem, error) {
	if issue.Key == "" {
		return models.StrategyItem{}, fmt.Errorf("issue has no key")
	}

	item := models.StrategyItem{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Status:      "Unknown",
		Priority:    defaultPriority,
		Assignee:    defaultAssignee,
		Reporter:    defaultReporter,
		Labels:      issue.Fields.Labels,
	}

	if issue.Fields.Status != nil && issue.Fields.Status.Name != "" {
		item.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Priority != nil && issue.Fields.Priority.Name != "" {
		item.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.IssueType != nil {
		item.IssueType = issue.Fields.IssueType.Name
	}
	if issue.Fields.Project != nil {
		item.Project = issue.Fields.Project.Key
	}
	if issue.Fields.Assignee != nil {
		item.Assignee = userName(*issue.Fields.Assignee)
	}
	if issue.Fields.Reporter != nil {
		item.Reporter = userName(*issue.Fields.Reporter)
	}
	for _, comp := range issue.Fields.Components {
		item.Components = append(item.Components, comp.Name)
	}

	if ts, err := parseJiraTime(issue.Fields.Created); err == nil {
		item.Created = ts
	}
	ts, err := parseJiraTime(issue.Fields.Updated)
	if err != nil {
		// Updated drives retention windows; a record without it is unusable.
		return models.StrategyItem{}, fmt.Errorf("issue %s has unparseable updated timestamp %q",
			issue.Key, issue.Fields.Updated)
	}
	item.Updated = ts
	return item, nil
}

func userName(u userField) string {
	if u.Name != "" {
		return u.Name
	}
	return u.DisplayName
}

func parseJiraTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(jiraTimeLayout, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
