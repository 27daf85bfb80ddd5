package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/runstate"
	"github.com/tracegraph/tracegraph/internal/xref"
)

var crossrefCmd = &cobra.Command{
	Use:   "crossref",
	Short: "Derive cross-system relationships from already-synced items",
	Long: `Scan the free text of synced items for mentions of the other system's
identifiers and write the derived edges: ADDRESSES/TRACKED_IN pairs
between implementation and strategy items, technology and component
classifications, and the strategy item hierarchy.

References to keys not present in the graph are counted as unresolved,
never created as dangling edges. Safe to re-run: edges are merged, not
duplicated.`,
	RunE: runCrossref,
}

func runCrossref(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := connectGraph(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	// Everything that can fail on bad configuration is built before the run
	// slot is taken, so an early exit never leaves the slot held.
	extractor, err := xref.NewExtractor(cfg.Processing.JiraReferencePatterns)
	if err != nil {
		return err
	}
	classifier, err := xref.NewClassifier(cfg.Processing.TechnologyPatterns, cfg.Processing.ComponentMapping)
	if err != nil {
		return err
	}

	stagingStore := connectStaging(ctx)
	defer stagingStore.Close()

	ledger, err := openLedger()
	if err != nil {
		return err
	}
	defer ledger.Close()

	run, err := ledger.Acquire("crossref", 6*time.Hour)
	if err != nil {
		return err
	}

	registry := newRunRegistry("crossref")
	var unresolved xref.UnresolvedSink
	if stagingStore.Enabled() {
		unresolved = stagingStore
	}
	linker := xref.NewLinker(client, graph.NewWriter(client), extractor, classifier, registry, unresolved)

	logger.Info("Starting cross-reference run")
	runErr := linker.Run(ctx)

	outcome := runstate.OutcomeCompleted
	if runErr != nil {
		outcome = runstate.OutcomeFailed
	}
	if err := ledger.Release(run, outcome, registry.Snapshot(), runErr); err != nil {
		logger.WithError(err).Warn("Failed to release run slot")
	}
	if runErr != nil {
		return fmt.Errorf("cross-reference run failed: %w", runErr)
	}
	registry.Flush(metrics.LogSink{})

	snap := registry.Snapshot()
	fmt.Printf("✅ Cross-reference complete: %d relationships created, %d unresolved references\n",
		int(snap[metrics.RelationshipsCreated]), int(snap[metrics.UnresolvedReferences]))
	return nil
}
