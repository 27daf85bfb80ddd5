package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
	"github.com/tracegraph/tracegraph/internal/graph"
)

var migrateBackupDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply graph schema constraints and indexes",
	Long: `Bring the graph schema to the current version: uniqueness constraints on
every natural key, plus query indexes. Migrations are versioned and
forward-only; an already-applied version is skipped, so re-running is
always safe.

A JSONL backup of the graph is written before any pending migration and
restored if the migration fails. A failed migration exits non-zero and
records nothing in the version ledger.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateBackupDir, "backup-dir", defaultBackupDir(),
		"directory for pre-migration graph backups (empty disables)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := connectGraph(ctx)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	manager := graph.NewSchemaManager(client, migrateBackupDir)

	before, err := manager.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	after, err := manager.Apply(ctx, graph.DefaultMigrations())
	if err != nil {
		if tgerrors.IsFatal(err) {
			logger.WithError(err).Error("Migration failed, graph restored from backup")
		}
		return err
	}

	if after == before {
		fmt.Printf("✅ Schema already at version %d\n", after)
	} else {
		fmt.Printf("✅ Schema migrated from version %d to %d\n", before, after)
	}
	return nil
}

func defaultBackupDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".tracegraph", "backups")
}
