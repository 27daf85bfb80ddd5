package graph

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	tgerrors "github.com/tracegraph/tracegraph/internal/errors"
)

// Migration is one idempotent schema change. Statements use IF NOT EXISTS
// forms so re-running an already-applied migration is safe.
type Migration struct {
	ID         string // numeric prefix orders application, e.g. "001_core_constraints"
	Statements []string
}

// Version parses the numeric prefix of the migration identifier.
func (m Migration) Version() int {
	prefix, _, _ := strings.Cut(m.ID, "_")
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0
	}
	return v
}

// DefaultMigrations declares the constraints and indexes the writer depends
// on. Uniqueness constraints on natural keys are what make upserts safe to
// repeat; they must exist before any write.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			ID: "001_core_constraints",
			Statements: []string{
				"CREATE CONSTRAINT strategy_item_key IF NOT EXISTS FOR (n:StrategyItem) REQUIRE n.key IS UNIQUE",
				"CREATE CONSTRAINT implementation_item_key IF NOT EXISTS FOR (n:ImplementationItem) REQUIRE (n.repository, n.number) IS UNIQUE",
				"CREATE CONSTRAINT repository_full_name IF NOT EXISTS FOR (n:Repository) REQUIRE n.fullName IS UNIQUE",
				"CREATE CONSTRAINT technology_name IF NOT EXISTS FOR (n:Technology) REQUIRE n.name IS UNIQUE",
				"CREATE CONSTRAINT component_name IF NOT EXISTS FOR (n:Component) REQUIRE n.name IS UNIQUE",
				"CREATE CONSTRAINT person_username IF NOT EXISTS FOR (n:Person) REQUIRE n.username IS UNIQUE",
				"CREATE CONSTRAINT schema_version IF NOT EXISTS FOR (n:SchemaVersion) REQUIRE n.version IS UNIQUE",
			},
		},
		{
			ID: "002_query_indexes",
			Statements: []string{
				"CREATE INDEX strategy_item_status IF NOT EXISTS FOR (n:StrategyItem) ON (n.status)",
				"CREATE INDEX strategy_item_updated IF NOT EXISTS FOR (n:StrategyItem) ON (n.updated)",
				"CREATE INDEX implementation_item_state IF NOT EXISTS FOR (n:ImplementationItem) ON (n.state)",
				"CREATE INDEX implementation_item_updated IF NOT EXISTS FOR (n:ImplementationItem) ON (n.updated)",
			},
		},
	}
}

// SchemaManager applies migrations: versioned, idempotent, forward-only.
type SchemaManager struct {
	store     Store
	logger    *slog.Logger
	backupDir string
}

// NewSchemaManager creates a schema manager. backupDir receives the
// best-effort pre-migration graph export; empty disables backups.
func NewSchemaManager(store Store, backupDir string) *SchemaManager {
	return &SchemaManager{
		store:     store,
		logger:    slog.Default().With("component", "graph.schema"),
		backupDir: backupDir,
	}
}

// CurrentVersion reads the highest recorded schema version, 0 when none.
func (m *SchemaManager) CurrentVersion(ctx context.Context) (int, error) {
	records, err := m.store.Read(ctx,
		"MATCH (v:SchemaVersion) RETURN coalesce(max(v.version), 0) AS version", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return recInt(records[0], "version"), nil
}

// Apply brings the graph to the target version. Migrations run in strict
// numeric order; already-applied versions are skipped. On the first failure
// the backup is restored (best effort), nothing is recorded in the version
// ledger, and a fatal MigrationFailure is returned.
func (m *SchemaManager) Apply(ctx context.Context, migrations []Migration) (int, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version() < sorted[j].Version() })

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return 0, tgerrors.Migrationf(err, "cannot determine current schema version")
	}

	var pending []Migration
	for _, mig := range sorted {
		if mig.Version() > current {
			pending = append(pending, mig)
		}
	}
	if len(pending) == 0 {
		m.logger.Info("schema up to date", "version", current)
		return current, nil
	}

	// Best-effort backup: failure is a warning, not a stop. Trading safety
	// for availability here is deliberate.
	backupPath := m.backup(ctx)

	applied := make([]string, 0, len(pending))
	target := current
	for _, mig := range pending {
		m.logger.Info("applying migration", "id", mig.ID)
		for _, stmt := range mig.Statements {
			if _, err := m.store.Write(ctx, stmt, nil); err != nil {
				m.logger.Error("migration failed", "id", mig.ID, "error", err)
				if backupPath != "" {
					if restoreErr := m.RestoreFromFile(ctx, backupPath); restoreErr != nil {
						m.logger.Error("backup restore failed", "path", backupPath, "error", restoreErr)
					}
				}
				return current, tgerrors.Migrationf(err, "migration %s failed", mig.ID)
			}
		}
		applied = append(applied, mig.ID)
		target = mig.Version()
	}

	if err := m.recordVersion(ctx, target, applied); err != nil {
		return current, tgerrors.Migrationf(err, "failed to record schema version %d", target)
	}
	m.logger.Info("schema migrated", "from", current, "to", target, "applied", applied)
	return target, nil
}

func (m *SchemaManager) recordVersion(ctx context.Context, version int, applied []string) error {
	_, err := m.store.Write(ctx,
		`MERGE (v:SchemaVersion {version: $version})
		 SET v.appliedAt = datetime(), v.migrations = $migrations`,
		map[string]any{"version": version, "migrations": applied})
	return err
}

func (m *SchemaManager) backup(ctx context.Context) string {
	if m.backupDir == "" {
		return ""
	}
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		m.logger.Warn("backup skipped, cannot create directory", "dir", m.backupDir, "error", err)
		return ""
	}
	path := filepath.Join(m.backupDir,
		fmt.Sprintf("graph-%s-%s.jsonl", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8]))

	f, err := os.Create(path)
	if err != nil {
		m.logger.Warn("backup skipped, cannot create file", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	if err := m.Export(ctx, f); err != nil {
		m.logger.Warn("backup export failed, proceeding without backup", "path", path, "error", err)
		os.Remove(path)
		return ""
	}
	m.logger.Info("graph backup written", "path", path)
	return path
}

// exportRow is one line in the JSONL export: a node or a relationship.
type exportRow struct {
	Kind     string         `json:"kind"` // "node" or "rel"
	ID       string         `json:"id,omitempty"`
	Labels   []string       `json:"labels,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	RelType  string         `json:"relType,omitempty"`
	SourceID string         `json:"sourceId,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
}

// Export writes every node and relationship as JSON lines. Used as the
// pre-migration backup artifact.
func (m *SchemaManager) Export(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)

	nodes, err := m.store.Read(ctx,
		"MATCH (n) RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props", nil)
	if err != nil {
		return fmt.Errorf("node export failed: %w", err)
	}
	for _, rec := range nodes {
		row := exportRow{Kind: "node", ID: recString(rec, "id")}
		if labels, ok := rec["labels"].([]any); ok {
			for _, l := range labels {
				if s, ok := l.(string); ok {
					row.Labels = append(row.Labels, s)
				}
			}
		}
		if props, ok := rec["props"].(map[string]any); ok {
			row.Props = props
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("node encode failed: %w", err)
		}
	}

	rels, err := m.store.Read(ctx,
		`MATCH (a)-[r]->(b)
		 RETURN elementId(a) AS sourceId, elementId(b) AS targetId, type(r) AS relType`, nil)
	if err != nil {
		return fmt.Errorf("relationship export failed: %w", err)
	}
	for _, rec := range rels {
		row := exportRow{
			Kind:     "rel",
			RelType:  recString(rec, "relType"),
			SourceID: recString(rec, "sourceId"),
			TargetID: recString(rec, "targetId"),
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("relationship encode failed: %w", err)
		}
	}
	return nil
}

// RestoreFromFile wipes the graph and replays a JSONL export.
func (m *SchemaManager) RestoreFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open backup %s: %w", path, err)
	}
	defer f.Close()
	return m.Restore(ctx, f)
}

// Restore wipes the graph and replays an export stream. Nodes are recreated
// with a temporary import id so relationships can be rebound, then the
// import ids are stripped.
func (m *SchemaManager) Restore(ctx context.Context, r io.Reader) error {
	if _, err := m.store.Write(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return fmt.Errorf("wipe before restore failed: %w", err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row exportRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return fmt.Errorf("malformed backup line: %w", err)
		}

		switch row.Kind {
		case "node":
			if len(row.Labels) == 0 {
				continue
			}
			for _, label := range row.Labels {
				if !isValidIdentifier(label) {
					return fmt.Errorf("invalid label in backup: %q", label)
				}
			}
			query := fmt.Sprintf("CREATE (n:%s) SET n = $props, n.__importId = $id",
				strings.Join(row.Labels, ":"))
			if _, err := m.store.Write(ctx, query, map[string]any{
				"props": row.Props, "id": row.ID,
			}); err != nil {
				return fmt.Errorf("node restore failed: %w", err)
			}
		case "rel":
			if !isValidIdentifier(row.RelType) {
				return fmt.Errorf("invalid relationship type in backup: %q", row.RelType)
			}
			query := fmt.Sprintf(
				`MATCH (a {__importId: $sourceId}) MATCH (b {__importId: $targetId})
				 MERGE (a)-[:%s]->(b)`, row.RelType)
			if _, err := m.store.Write(ctx, query, map[string]any{
				"sourceId": row.SourceID, "targetId": row.TargetID,
			}); err != nil {
				return fmt.Errorf("relationship restore failed: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("backup read failed: %w", err)
	}

	if _, err := m.store.Write(ctx, "MATCH (n) REMOVE n.__importId", nil); err != nil {
		return fmt.Errorf("import id cleanup failed: %w", err)
	}
	return nil
}
