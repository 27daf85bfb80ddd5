package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracegraph/tracegraph/internal/graph"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show graph totals, schema version and recent runs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := connectGraph(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	fmt.Println("TraceGraph Status")
	fmt.Println("━━━━━━━━━━━━━━━━━")

	analytics := graph.NewAnalytics(client)
	summary, err := analytics.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Strategy items:        %d\n", summary.StrategyItems)
	fmt.Printf("Implementation items:  %d\n", summary.ImplementationItems)
	fmt.Printf("Repositories:          %d\n", summary.Repositories)
	fmt.Printf("Cross-references:      %d\n", summary.CrossReferences)

	version, err := graph.NewSchemaManager(client, "").CurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version:        %d\n", version)

	ledger, err := openLedger()
	if err != nil {
		logger.WithError(err).Warn("Run ledger unavailable")
		return nil
	}
	defer ledger.Close()

	if active, err := ledger.ActiveRuns(); err == nil && len(active) > 0 {
		fmt.Println("\nActive runs:")
		for _, run := range active {
			fmt.Printf("  %-10s %s (started %s)\n", run.Type, run.ID,
				run.StartedAt.Format("2006-01-02 15:04:05"))
		}
	}

	last, err := ledger.LastRuns()
	if err == nil && len(last) > 0 {
		fmt.Println("\nLast runs:")
		for _, runType := range []string{"sync", "crossref", "cleanup"} {
			run, ok := last[runType]
			if !ok {
				continue
			}
			fmt.Printf("  %-10s %-10s %s\n", run.Type, run.Outcome,
				run.FinishedAt.Format("2006-01-02 15:04:05"))
		}
	}

	stagingStore := connectStaging(ctx)
	if stagingStore.Enabled() {
		defer stagingStore.Close()
		if unresolved, err := stagingStore.TopUnresolved(ctx, 5); err == nil && len(unresolved) > 0 {
			fmt.Println("\nTop unresolved references:")
			for _, u := range unresolved {
				fmt.Printf("  %-20s seen %d times, last %s\n",
					u.TargetKey, u.Count, u.LastSeen.Format("2006-01-02"))
			}
		}
	}
	return nil
}
