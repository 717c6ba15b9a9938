// Package metrics records apply outcomes in a Prometheus registry and exports
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bumpkit"

// Outcome labels an apply result.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRollback Outcome = "rollback"
	OutcomePartial  Outcome = "partial_rollback"
	OutcomeNoop     Outcome = "noop"
	OutcomeError    Outcome = "error"
)

// Recorder owns one registry. Each CLI invocation creates its own.
type Recorder struct {
	registry *prometheus.Registry

	applyDuration   *prometheus.HistogramVec
	applies         *prometheus.CounterVec
	packagesUpdated *prometheus.CounterVec
	rollbacks       prometheus.Counter
	conflicts       *prometheus.CounterVec
	changesets      prometheus.Counter
	lastSuccess     prometheus.Gauge
}

// New creates a Recorder with its collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		applyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "duration_seconds",
			Help:      "Time spent applying a release plan",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		applies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "total",
			Help:      "Apply runs by outcome",
		}, []string{"outcome"}),
		packagesUpdated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "packages_updated_total",
			Help:      "Packages whose manifest was rewritten, by bump",
		}, []string{"bump"}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "rollbacks_total",
			Help:      "Apply runs that restored manifests from backup",
		}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolve",
			Name:      "conflicts_total",
			Help:      "Conflicts recorded in resolved plans, by kind",
		}, []string{"kind"}),
		changesets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "changesets_archived_total",
			Help:      "Changesets moved to the archive",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "apply",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful apply",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveApply records one apply run.
func (r *Recorder) ObserveApply(outcome Outcome, d time.Duration, at time.Time) {
	r.applyDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
	r.applies.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case OutcomeRollback, OutcomePartial:
		r.rollbacks.Inc()
	case OutcomeSuccess:
		r.lastSuccess.Set(float64(at.Unix()))
	}
}

// PackageUpdated counts one rewritten manifest.
func (r *Recorder) PackageUpdated(bump string) {
	r.packagesUpdated.WithLabelValues(bump).Inc()
}

// Conflict counts one plan conflict.
func (r *Recorder) Conflict(kind string) {
	r.conflicts.WithLabelValues(kind).Inc()
}

// ChangesetsArchived counts archived changesets.
func (r *Recorder) ChangesetsArchived(n int) {
	r.changesets.Add(float64(n))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
