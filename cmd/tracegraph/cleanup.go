package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/retention"
	"github.com/tracegraph/tracegraph/internal/runstate"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired closed and orphaned items from the graph",
	Long: `Evaluate every item against the retention rules and detach-delete the
eligible ones: closed items past the retention window and untracked
orphans past the orphan window. Items referenced by any open item are
always retained, regardless of their own age or status.

Eligibility is re-evaluated from the live graph on every run; nothing
is cached between runs.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false,
		"log what would be deleted without deleting")
}

func runCleanup(cmd *cobra.Command, args []string) error {
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

	run, err := ledger.Acquire("cleanup", 6*time.Hour)
	if err != nil {
		return err
	}

	registry := newRunRegistry("cleanup")
	cleaner := retention.NewCleaner(client, graph.NewWriter(client),
		retention.NewStrategyFilter(cfg.Processing.RetentionWindowDays, cfg.Processing.OrphanWindowDays),
		retention.NewImplementationFilter(cfg.Processing.RetentionWindowDays, cfg.Processing.OrphanWindowDays),
		registry, cleanupDryRun)

	logger.WithField("dry_run", cleanupDryRun).Info("Starting cleanup")
	runErr := cleaner.Run(ctx)

	// Staging snapshots age out with the same retention window.
	if runErr == nil && !cleanupDryRun {
		if stagingStore := connectStaging(ctx); stagingStore.Enabled() {
			cutoff := time.Now().AddDate(0, 0, -cfg.Processing.RetentionWindowDays)
			if n, err := stagingStore.PruneSnapshots(ctx, cutoff); err == nil && n > 0 {
				logger.WithField("pruned", n).Info("Pruned staging snapshots")
			}
			stagingStore.Close()
		}
	}

	outcome := runstate.OutcomeCompleted
	if runErr != nil {
		outcome = runstate.OutcomeFailed
	}
	if err := ledger.Release(run, outcome, registry.Snapshot(), runErr); err != nil {
		logger.WithError(err).Warn("Failed to release run slot")
	}
	if runErr != nil {
		return fmt.Errorf("cleanup failed: %w", runErr)
	}
	registry.Flush(metrics.LogSink{})

	snap := registry.Snapshot()
	verb := "deleted"
	if cleanupDryRun {
		verb = "would delete"
	}
	fmt.Printf("✅ Cleanup complete: %s %d entities, retained %d\n",
		verb, int(snap[metrics.EntitiesDeleted]), int(snap[metrics.EntitiesRetained]))
	return nil
}
