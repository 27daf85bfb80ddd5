package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracegraph/tracegraph/internal/githubsrc"
	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/jira"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/sync"
)

var (
	syncJiraOnly   bool
	syncGitHubOnly bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch items from both source systems into the graph",
	Long: `Fetch strategy items from the tracker and issues/PRs from the code host,
then upsert them into the graph keyed on their natural identifiers.
Both sources are fetched concurrently; a source that fails to fetch is
skipped for the run while the other still loads. Loading is per-record
with error isolation, so one bad record never aborts the run.

At most one sync runs at a time per host. Other run types may overlap.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJiraOnly, "jira-only", false, "sync only the tracker")
	syncCmd.Flags().BoolVar(&syncGitHubOnly, "github-only", false, "sync only the code host")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncJiraOnly && syncGitHubOnly {
		return fmt.Errorf("--jira-only and --github-only are mutually exclusive")
	}
	ctx := cmd.Context()

	client, err := connectGraph(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	stagingStore := connectStaging(ctx)
	defer stagingStore.Close()

	var strategySource sync.StrategySource
	if !syncGitHubOnly {
		jiraClient, err := jira.NewClient(cfg.Jira)
		if err != nil {
			return err
		}
		strategySource = jiraClient
	}

	var implSource sync.ImplementationSource
	if !syncJiraOnly {
		fetcher, err := githubsrc.NewFetcher(cfg.GitHub)
		if err != nil {
			return err
		}
		implSource = fetcher
	}

	registry := newRunRegistry("sync")
	syncer := sync.NewSyncer(graph.NewWriter(client), strategySource, implSource,
		cfg.Jira.Projects, stagingStore, ledger, registry)

	logger.Info("Starting sync")
	if err := syncer.Run(ctx); err != nil {
		registry.Flush(nil)
		return fmt.Errorf("sync failed: %w", err)
	}
	registry.Flush(metrics.LogSink{})

	snap := registry.Snapshot()
	fmt.Printf("✅ Sync complete: %d items loaded, %d failed\n",
		int(snap[metrics.ItemsProcessed]), int(snap[metrics.ItemsFailed]))
	return nil
}
