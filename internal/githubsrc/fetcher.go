package githubsrc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/tracegraph/tracegraph/internal/config"
	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
	"github.com/tracegraph/tracegraph/internal/models"
)

// CategoryCollection is the repository category assigned to repositories
// discovered through org sampling rather than explicit configuration.
const CategoryCollection = "collection"

const perPage = 100

// Fetcher pulls issues and pull requests from the code host.
type Fetcher struct {
	client     *github.Client
	cfg        config.GitHubConfig
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewFetcher builds a code-host fetcher from configuration.
func NewFetcher(cfg config.GitHubConfig) (*Fetcher, error) {
	if cfg.Token == "" {
		return nil, tgerrors.Configf("github token is not configured")
	}

	interval := time.Duration(cfg.RateLimitDelaySeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}

	return &Fetcher{
		client:  github.NewClient(nil).WithAuthToken(cfg.Token),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  slog.Default().With("component", "github"),
	}, nil
}

// FetchAll returns items from every configured repository group plus sampled
// collection-org repositories, along with the repository records themselves.
// Per-repository failures are logged and skipped; the fetch keeps going.
func (f *Fetcher) FetchAll(ctx context.Context) ([]models.ImplementationItem, []models.Repository, error) {
	var items []models.ImplementationItem
	var repos []models.Repository

	for _, group := range f.cfg.Repositories {
		for _, fullName := range group.Repositories {
			repoItems, err := f.FetchRepository(ctx, fullName)
			if err != nil {
				f.logger.Warn("repository fetch failed, skipping",
					"repository", fullName, "error", err)
				continue
			}
			items = append(items, repoItems...)
			repos = append(repos, models.Repository{
				FullName: fullName,
				Owner:    ownerOf(fullName),
				Category: group.Category,
			})
		}
	}

	for _, org := range f.cfg.CollectionOrgs {
		sampled, err := f.sampleOrgRepos(ctx, org)
		if err != nil {
			f.logger.Warn("org sampling failed, skipping", "org", org, "error", err)
			continue
		}
		for _, fullName := range sampled {
			repoItems, err := f.FetchRepository(ctx, fullName)
			if err != nil {
				f.logger.Warn("repository fetch failed, skipping",
					"repository", fullName, "error", err)
				continue
			}
			items = append(items, repoItems...)
			repos = append(repos, models.Repository{
				FullName: fullName,
				Owner:    org,
				Category: CategoryCollection,
			})
		}
	}

	f.logger.Info("code host fetch complete", "items", len(items), "repositories", len(repos))
	return items, repos, nil
}

// FetchRepository returns the repository's issues and pull requests updated
// within the configured window, capped at the configured batch size.
func (f *Fetcher) FetchRepository(ctx context.Context, fullName string) ([]models.ImplementationItem, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -f.cfg.UpdatedSinceDays)
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var items []models.ImplementationItem
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		issues, resp, err := f.client.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, tgerrors.SourceFetchf(err, "failed to list issues for %s", fullName)
		}

		for _, issue := range issues {
			if f.excluded(issue) {
				continue
			}
			items = append(items, convertIssue(fullName, owner, issue))
			if len(items) >= f.cfg.BatchSize {
				f.logger.Debug("batch cap reached", "repository", fullName, "cap", f.cfg.BatchSize)
				return items, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return items, nil
}

// sampleOrgRepos lists an org's most recently pushed repositories, up to the
// configured sample size. Archived repositories are skipped.
func (f *Fetcher) sampleOrgRepos(ctx context.Context, org string) ([]string, error) {
	opts := &github.RepositoryListByOrgOptions{
		Sort:        "pushed",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var sampled []string
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		repos, resp, err := f.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, tgerrors.SourceFetchf(err, "failed to list repositories for org %s", org)
		}
		for _, repo := range repos {
			if repo.GetArchived() {
				continue
			}
			sampled = append(sampled, repo.GetFullName())
			if len(sampled) >= f.cfg.OrgSampleRepos {
				return sampled, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return sampled, nil
}

// excluded reports whether any of the issue's labels is in the configured
// exclusion list (bots, spam, release-automation noise).
func (f *Fetcher) excluded(issue *github.Issue) bool {
	for _, label := range issue.Labels {
		for _, skip := range f.cfg.ExcludeLabels {
			if strings.EqualFold(label.GetName(), skip) {
				return true
			}
		}
	}
	return false
}

func convertIssue(fullName, owner string, issue *github.Issue) models.ImplementationItem {
	itemType := "issue"
	if issue.IsPullRequest() {
		itemType = "pull_request"
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, label := range issue.Labels {
		labels = append(labels, label.GetName())
	}

	return models.ImplementationItem{
		Repository:   fullName,
		Number:       issue.GetNumber(),
		Title:        issue.GetTitle(),
		Body:         issue.GetBody(),
		State:        issue.GetState(),
		Created:      issue.GetCreatedAt().Time.UTC(),
		Updated:      issue.GetUpdatedAt().Time.UTC(),
		Author:       issue.GetUser().GetLogin(),
		URL:          issue.GetHTMLURL(),
		Labels:       labels,
		Organization: owner,
		Type:         itemType,
	}
}

func splitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository full name %q, want owner/name", fullName)
	}
	return owner, name, nil
}

func ownerOf(fullName string) string {
	owner, _, _ := strings.Cut(fullName, "/")
	return owner
}
