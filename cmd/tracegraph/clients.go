package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracegraph/tracegraph/internal/graph"
	"github.com/tracegraph/tracegraph/internal/metrics"
	"github.com/tracegraph/tracegraph/internal/runstate"
	"github.com/tracegraph/tracegraph/internal/staging"
)

// connectGraph opens the Neo4j client from the loaded configuration.
func connectGraph(ctx context.Context) (*graph.Client, error) {
	client, err := graph.NewClient(ctx,
		cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the graph database: %w", err)
	}
	return client, nil
}

// connectStaging opens the optional staging store; nil when unconfigured.
func connectStaging(ctx context.Context) *staging.Store {
	store, err := staging.Connect(ctx, cfg.Staging.DSN)
	if err != nil {
		logger.WithError(err).Warn("Staging store unavailable, continuing without it")
		return nil
	}
	return store
}

// openLedger opens the local run ledger.
func openLedger() (*runstate.Ledger, error) {
	ledger, err := runstate.Open(cfg.RunState.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot open run ledger: %w", err)
	}
	return ledger, nil
}

// newRunRegistry builds a metrics registry labeled for one run.
func newRunRegistry(runType string) *metrics.Registry {
	return metrics.NewRegistry(map[string]string{
		"run_type": runType,
		"run_id":   uuid.NewString(),
	})
}
