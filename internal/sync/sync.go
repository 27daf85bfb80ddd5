package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/models"
	"github.com/tracegraph/tracegraph/internal/runstate"
	"github.com/tracegraph/tracegraph/internal/staging"
)

// StrategySource fetches strategy items per tracker project.
type StrategySource interface {
	FetchProject(ctx context.Context, project string) ([]models.StrategyItem, error)
}

// ImplementationSource fetches items and repositories from the code host.
type ImplementationSource interface {
	FetchAll(ctx context.Context) ([]models.ImplementationItem, []models.Repository, error)
}

// GraphWriter is the slice of the graph writer the sync mutates through.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, ref graph.EntityRef, props map[string]any) error
	UpsertRelationship(ctx context.Context, from, to graph.EntityRef, relType string) (bool, error)
}

// staleAfter bounds how long a crashed run blocks its slot.
const staleAfter = 6 * time.Hour

// Syncer runs the ingestion: fetch from both sources concurrently, then load
// into the graph one record at a time. A record that fails to upsert is
// counted and skipped; the sync never aborts on a single record.
type Syncer struct {
	writer   GraphWriter
	strategy StrategySource
	impl     ImplementationSource
	projects []string
	staging  *staging.Store
	ledger   *runstate.Ledger
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewSyncer creates a syncer. staging and ledger may be nil; either source
// may be nil to sync only the other system.
func NewSyncer(writer GraphWriter, strategy StrategySource, impl ImplementationSource,
	projects []string, stg *staging.Store, ledger *runstate.Ledger, registry *metrics.Registry) *Syncer {
	return &Syncer{
		writer:   writer,
		strategy: strategy,
		impl:     impl,
		projects: projects,
		staging:  stg,
		ledger:   ledger,
		registry: registry,
		logger:   slog.Default().With("component", "sync"),
	}
}

// Run executes the full sync under the run ledger: at most one sync in
// flight per host.
func (s *Syncer) Run(ctx context.Context) error {
	if s.ledger == nil {
		return s.run(ctx, "")
	}

	run, err := s.ledger.Acquire("sync", staleAfter)
	if err != nil {
		return err
	}
	runErr := s.run(ctx, run.ID)
	outcome := runstate.OutcomeCompleted
	if runErr != nil {
		outcome = runstate.OutcomeFailed
	}
	if relErr := s.ledger.Release(run, outcome, s.registry.Snapshot(), runErr); relErr != nil {
		s.logger.Warn("failed to release run slot", "run_id", run.ID, "error", relErr)
	}
	return runErr
}

func (s *Syncer) run(ctx context.Context, runID string) error {
	var (
		strategyItems []models.StrategyItem
		implItems     []models.ImplementationItem
		repos         []models.Repository
		strategyErr   error
		implErr       error
	)

	// Both sources fetch concurrently, each on its own fate: a failed fetch
	// skips that source for this run and never cancels or aborts the other.
	// Loading stays sequential so write pressure on the graph is bounded and
	// per-record errors stay ordered.
	var g errgroup.Group
	if s.strategy != nil {
		g.Go(func() error {
			for _, project := range s.projects {
				items, err := s.strategy.FetchProject(ctx, project)
				if err != nil {
					strategyErr = fmt.Errorf("tracker fetch for %s failed: %w", project, err)
					return nil
				}
				strategyItems = append(strategyItems, items...)
			}
			return nil
		})
	}
	if s.impl != nil {
		g.Go(func() error {
			var err error
			implItems, repos, err = s.impl.FetchAll(ctx)
			if err != nil {
				implErr = fmt.Errorf("code host fetch failed: %w", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if strategyErr != nil {
		s.logger.Warn("tracker source skipped for this run", "error", strategyErr)
		s.registry.Inc(metrics.Errors)
		strategyItems = nil
	}
	if implErr != nil {
		s.logger.Warn("code host source skipped for this run", "error", implErr)
		s.registry.Inc(metrics.Errors)
		implItems, repos = nil, nil
	}
	if failed, configured := sourceCounts(strategyErr, implErr, s.strategy != nil, s.impl != nil); failed == configured && configured > 0 {
		return fmt.Errorf("all sources failed, nothing to load: %w", firstErr(strategyErr, implErr))
	}

	s.LoadRepositories(ctx, repos)
	s.LoadStrategyItems(ctx, runID, strategyItems)
	s.LoadImplementationItems(ctx, runID, implItems)
	return nil
}

func sourceCounts(strategyErr, implErr error, strategyOn, implOn bool) (failed, configured int) {
	if strategyOn {
		configured++
		if strategyErr != nil {
			failed++
		}
	}
	if implOn {
		configured++
		if implErr != nil {
			failed++
		}
	}
	return failed, configured
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadRepositories upserts repository nodes.
func (s *Syncer) LoadRepositories(ctx context.Context, repos []models.Repository) {
	for _, repo := range repos {
		err := s.writer.UpsertEntity(ctx, graph.RepositoryRef(repo.FullName), map[string]any{
			"owner":    repo.Owner,
			"category": repo.Category,
		})
		if err != nil {
			s.logger.Warn("repository upsert failed, skipping",
				"repository", repo.FullName, "error", err)
			s.registry.Inc(metrics.ItemsFailed)
		}
	}
}

// LoadStrategyItems upserts strategy items and their people edges.
func (s *Syncer) LoadStrategyItems(ctx context.Context, runID string, items []models.StrategyItem) {
	for _, item := range items {
		if err := s.loadStrategyItem(ctx, item); err != nil {
			s.logger.Warn("strategy item load failed, skipping", "key", item.Key, "error", err)
			s.registry.Inc(metrics.ItemsFailed)
			continue
		}
		s.registry.Inc(metrics.ItemsProcessed)
		s.snapshot(ctx, runID, "jira", item.Key, item)
	}
	s.logger.Info("strategy items loaded", "count", len(items))
}

func (s *Syncer) loadStrategyItem(ctx context.Context, item models.StrategyItem) error {
	ref := graph.StrategyRef(item.Key)
	err := s.writer.UpsertEntity(ctx, ref, map[string]any{
		"summary":     item.Summary,
		"description": item.Description,
		"status":      item.Status,
		"priority":    item.Priority,
		"issueType":   item.IssueType,
		"project":     item.Project,
		"created":     item.Created,
		"updated":     item.Updated,
		"assignee":    item.Assignee,
		"reporter":    item.Reporter,
		"labels":      item.Labels,
		"components":  item.Components,
	})
	if err != nil {
		return err
	}

	if err := s.linkPerson(ctx, ref, "jira", item.Reporter, graph.RelReportedBy); err != nil {
		return err
	}
	if item.Assignee != "Unassigned" {
		if err := s.linkPerson(ctx, ref, "jira", item.Assignee, graph.RelAssignedTo); err != nil {
			return err
		}
	}
	return nil
}

// LoadImplementationItems upserts implementation items with their repository
// and author edges.
func (s *Syncer) LoadImplementationItems(ctx context.Context, runID string, items []models.ImplementationItem) {
	for _, item := range items {
		if err := s.loadImplementationItem(ctx, item); err != nil {
			s.logger.Warn("implementation item load failed, skipping",
				"item", item.Key(), "error", err)
			s.registry.Inc(metrics.ItemsFailed)
			continue
		}
		s.registry.Inc(metrics.ItemsProcessed)
		s.snapshot(ctx, runID, "github", item.Key(), item)
	}
	s.logger.Info("implementation items loaded", "count", len(items))
}

func (s *Syncer) loadImplementationItem(ctx context.Context, item models.ImplementationItem) error {
	ref := graph.ImplementationRef(item.Repository, item.Number)
	err := s.writer.UpsertEntity(ctx, ref, map[string]any{
		"title":        item.Title,
		"body":         item.Body,
		"state":        item.State,
		"created":      item.Created,
		"updated":      item.Updated,
		"author":       item.Author,
		"url":          item.URL,
		"labels":       item.Labels,
		"organization": item.Organization,
		"type":         item.Type,
	})
	if err != nil {
		return err
	}

	if _, err := s.writer.UpsertRelationship(ctx, ref,
		graph.RepositoryRef(item.Repository), graph.RelBelongsTo); err != nil {
		return err
	}
	if item.Author != "" {
		if err := s.linkPerson(ctx, ref, "github", item.Author, graph.RelAuthoredBy); err != nil {
			return err
		}
	}
	return nil
}

// linkPerson upserts the namespaced person node and the edge to it. The two
// systems keep separate person universes; no identity resolution is applied.
func (s *Syncer) linkPerson(ctx context.Context, from graph.EntityRef, system, username, relType string) error {
	if username == "" || username == "Unknown" {
		return nil
	}
	personRef := graph.PersonRef(system, username)
	if err := s.writer.UpsertEntity(ctx, personRef, map[string]any{"system": system}); err != nil {
		return err
	}
	_, err := s.writer.UpsertRelationship(ctx, from, personRef, relType)
	return err
}

func (s *Syncer) snapshot(ctx context.Context, runID, source, key string, payload any) {
	if err := s.staging.RecordSnapshot(ctx, runID, source, key, payload); err != nil {
		s.logger.Warn("staging snapshot failed", "key", key, "error", err)
	}
}
