package metrics

import (
	"log/slog"
	"sort"
	"sync"
)

// Counter names emitted by the runs. Every failure path increments one of
// these or logs: failures are never silently dropped.
const (
	ItemsProcessed       = "items_processed"
	ItemsFailed          = "items_failed"
	RelationshipsCreated = "relationships_created"
	UnresolvedReferences = "unresolved_references"
	EntitiesDeleted      = "entities_deleted"
	EntitiesRetained     = "entities_retained"
	TechnologyLinks      = "technology_links"
	ComponentLinks       = "component_links"
	HierarchyLinks       = "hierarchy_links"
	Errors               = "errors"
)

// Sink receives metric values for external scraping. Transport is the
// caller's concern.
type Sink interface {
	Emit(name string, value float64, labels map[string]string)
}

// Registry accumulates counters for one run and flushes them to a sink.
type Registry struct {
	mu       sync.Mutex
	counters map[string]float64
	labels   map[string]string
	logger   *slog.Logger
}

// NewRegistry creates a registry; labels are attached to every emitted metric
// (typically run_type and run_id).
func NewRegistry(labels map[string]string) *Registry {
	if labels == nil {
		labels = map[string]string{}
	}
	return &Registry{
		counters: make(map[string]float64),
		labels:   labels,
		logger:   slog.Default().With("component", "metrics"),
	}
}

// Inc increments a counter by 1.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increments a counter by delta.
func (r *Registry) Add(name string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

// Get returns the current value of a counter.
func (r *Registry) Get(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

// Flush emits all counters to the sink and logs a run summary.
func (r *Registry) Flush(sink Sink) {
	snap := r.Snapshot()

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names)*2)
	for _, name := range names {
		if sink != nil {
			sink.Emit(name, snap[name], r.labels)
		}
		args = append(args, name, snap[name])
	}
	r.logger.Info("run counters", args...)
}

// LogSink writes metrics to the structured log. Default sink when no scraper
// is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(name string, value float64, labels map[string]string) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{"metric", name, "value", value}
	for k, v := range labels {
		args = append(args, k, v)
	}
	logger.Info("metric", args...)
}
