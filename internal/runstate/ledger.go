package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// ErrRunActive is returned when a run of the same type is already in flight.
// Runs of different types may overlap; two syncs may not.
var ErrRunActive = errors.New("a run of this type is already active")

// Run outcome values.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var (
	bucketActive  = []byte("active")
	bucketHistory = []byte("history")
)

// Run is one recorded execution.
type Run struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt,omitempty"`
	Outcome    string             `json:"outcome"`
	Stats      map[string]float64 `json:"stats,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Ledger serializes runs per type through a local bolt database. The
// exclusion is per machine: the deployment model is a single operator host.
type Ledger struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run state directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketActive); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
	}
	return &Ledger{db: db, logger: slog.Default().With("component", "runstate")}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Acquire registers a new run of the given type. Fails with ErrRunActive when
// one is already registered, except a stale entry older than staleAfter,
// which is reclaimed (a crashed run never released its slot).
func (l *Ledger) Acquire(runType string, staleAfter time.Duration) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Type:      runType,
		StartedAt: time.Now().UTC(),
		Outcome:   OutcomeRunning,
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		active := tx.Bucket(bucketActive)
		if existing := active.Get([]byte(runType)); existing != nil {
			var prev Run
			if err := json.Unmarshal(existing, &prev); err == nil {
				if time.Since(prev.StartedAt) < staleAfter {
					return fmt.Errorf("%w: %s started %s", ErrRunActive,
						prev.ID, prev.StartedAt.Format(time.RFC3339))
				}
				l.logger.Warn("reclaiming stale run slot",
					"type", runType, "stale_run", prev.ID, "started", prev.StartedAt)
			}
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return active.Put([]byte(runType), data)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("run started", "type", runType, "run_id", run.ID)
	return run, nil
}

// Release finishes a run: the active slot is freed and the outcome recorded
// in history.
func (l *Ledger) Release(run *Run, outcome string, stats map[string]float64, runErr error) error {
	run.FinishedAt = time.Now().UTC()
	run.Outcome = outcome
	run.Stats = stats
	if runErr != nil {
		run.Error = runErr.Error()
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketActive).Delete([]byte(run.Type)); err != nil {
			return err
		}
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s/%s", run.Type, run.StartedAt.Format(time.RFC3339Nano), run.ID)
		return tx.Bucket(bucketHistory).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to release run %s: %w", run.ID, err)
	}
	l.logger.Info("run finished", "type", run.Type, "run_id", run.ID, "outcome", outcome)
	return nil
}

// LastRuns returns the most recent finished run per type.
func (l *Ledger) LastRuns() (map[string]Run, error) {
	out := make(map[string]Run)
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHistory).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return nil // skip unreadable history entries
			}
			if prev, ok := out[run.Type]; !ok || run.StartedAt.After(prev.StartedAt) {
				out[run.Type] = run
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	return out, nil
}

// ActiveRuns returns in-flight runs, sorted by type.
func (l *Ledger) ActiveRuns() ([]Run, error) {
	var out []Run
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketActive).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err == nil {
				out = append(out, run)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read active runs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}
