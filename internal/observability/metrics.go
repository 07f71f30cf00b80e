// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"

	"mintwatch/internal/breaker"
	"mintwatch/internal/provider"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid everywhere and records nothing, so components keep metrics optional.
type Metrics struct {
	// Resolver metrics
	ResolveRequests *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	BreakerOpens    *prometheus.CounterVec

	// Cache metrics
	CacheFlushes *prometheus.CounterVec

	// Tracker metrics
	PositionsOpen  prometheus.Gauge
	SweepRuns      *prometheus.CounterVec
	SweepDuration  prometheus.Histogram
	CheckpointsSet *prometheus.CounterVec
	SignalsEmitted *prometheus.CounterVec

	// Quality metrics
	QualityFlags *prometheus.CounterVec

	// Mention metrics
	MentionsIngested *prometheus.CounterVec

	// Health metrics
	LastSweepUnix prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
// Call it once per process; promauto registers into the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mintwatch"
	}

	return &Metrics{
		ResolveRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "requests_total",
			Help:      "Total resolve requests by chain and outcome",
		}, []string{"chain", "outcome"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total provider calls by provider, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		BreakerOpens: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "opens_total",
			Help:      "Total circuit breaker trips by breaker key",
		}, []string{"breaker"}),
		CacheFlushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "flushes_total",
			Help:      "Total cache flushes by store and status",
		}, []string{"store", "status"}),
		PositionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "positions_open",
			Help:      "Number of open tracked positions",
		}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "sweep_runs_total",
			Help:      "Total sweep runs by status",
		}, []string{"status"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "sweep_duration_seconds",
			Help:      "Sweep execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		CheckpointsSet: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "checkpoints_set_total",
			Help:      "Total checkpoint ROIs computed by horizon",
		}, []string{"horizon"}),
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "signals_emitted_total",
			Help:      "Total signals emitted by outcome",
		}, []string{"outcome"}),
		QualityFlags: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "flags_total",
			Help:      "Total snapshots flagged suspect by the quality gate, by chain",
		}, []string{"chain"}),
		MentionsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mentions",
			Name:      "ingested_total",
			Help:      "Total token mentions ingested by source kind",
		}, []string{"source"}),
		LastSweepUnix: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_sweep_timestamp",
			Help:      "Unix timestamp of the last completed sweep",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordResolve counts one resolve request.
func (m *Metrics) RecordResolve(chain, outcome string) {
	if m == nil {
		return
	}
	m.ResolveRequests.WithLabelValues(chain, outcome).Inc()
}

// RecordProviderCall counts one provider call and its latency.
func (m *Metrics) RecordProviderCall(provider, operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider, operation).Observe(seconds)
}

// RecordBreakerOpen counts one breaker trip.
func (m *Metrics) RecordBreakerOpen(breakerKey string) {
	if m == nil {
		return
	}
	m.BreakerOpens.WithLabelValues(breakerKey).Inc()
}

// RecordCacheFlush counts one flush attempt.
func (m *Metrics) RecordCacheFlush(store, status string) {
	if m == nil {
		return
	}
	m.CacheFlushes.WithLabelValues(store, status).Inc()
}

// RecordSweep records one sweep run.
func (m *Metrics) RecordSweep(status string, seconds float64, openPositions int, finishedAtUnix int64) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(status).Inc()
	m.SweepDuration.Observe(seconds)
	m.PositionsOpen.Set(float64(openPositions))
	m.LastSweepUnix.Set(float64(finishedAtUnix))
}

// RecordCheckpoint counts one checkpoint ROI computation.
func (m *Metrics) RecordCheckpoint(horizon string) {
	if m == nil {
		return
	}
	m.CheckpointsSet.WithLabelValues(horizon).Inc()
}

// RecordSignal counts one emitted signal.
func (m *Metrics) RecordSignal(outcome string) {
	if m == nil {
		return
	}
	m.SignalsEmitted.WithLabelValues(outcome).Inc()
}

// RecordQualityFlag counts one suspect-flagged snapshot.
func (m *Metrics) RecordQualityFlag(chain string) {
	if m == nil {
		return
	}
	m.QualityFlags.WithLabelValues(chain).Inc()
}

// RecordMention counts one ingested mention.
func (m *Metrics) RecordMention(source string) {
	if m == nil {
		return
	}
	m.MentionsIngested.WithLabelValues(source).Inc()
}

// SetOpenPositions updates the open-position gauge between sweeps.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}
	m.PositionsOpen.Set(float64(n))
}

// OutcomeLabel maps a provider-call error to a low-cardinality metric label.
func OutcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, breaker.ErrOpen) {
		return "breaker_open"
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.Kind.String()
	}
	return "error"
}
