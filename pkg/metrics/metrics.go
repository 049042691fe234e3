package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics (C2/C6)
	StoreCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_store_commits_total",
			Help: "Total number of write-transaction commits by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	StoreCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_store_commit_duration_seconds",
			Help:    "Write-transaction commit duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	StoreMaxRevision = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sink_store_max_revision",
			Help: "Highest revision committed so far, by resource",
		},
		[]string{"resource"},
	)

	StoreCleanedUpRevision = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sink_store_cleaned_up_revision",
			Help: "Low-watermark below which revisions have been garbage collected, by resource",
		},
		[]string{"resource"},
	)

	// Query metrics (C9)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_query_duration_seconds",
			Help:    "Query execution duration in seconds, from plan through emit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	QueryIndexPlanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_query_index_plan_total",
			Help: "Total number of queries resolved by each plan kind",
		},
		[]string{"plan"},
	)

	LiveQueriesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sink_live_queries_active",
			Help: "Number of currently registered live queries across all resources",
		},
	)

	// Garbage collection metrics (§4.6)
	GCCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sink_gc_cycle_duration_seconds",
			Help:    "Time taken for one revision garbage collection cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	GCCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sink_gc_cycles_total",
			Help: "Total number of garbage collection cycles completed",
		},
	)

	GCRevisionsCollectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sink_gc_revisions_collected_total",
			Help: "Total number of revision-log entries removed by garbage collection",
		},
	)

	// Change-replay metrics (C10)
	ChangeReplayLagRevisions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sink_changereplay_lag_revisions",
			Help: "Revisions committed but not yet replayed, by resource",
		},
		[]string{"resource"},
	)

	ChangeReplayCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_changereplay_cycles_total",
			Help: "Total number of change-replay cycles by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	ChangeReplayCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_changereplay_cycle_duration_seconds",
			Help:    "Change-replay cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// Full-text index metrics (C5)
	FulltextQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sink_fulltext_query_duration_seconds",
			Help:    "Full-text query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FulltextDocumentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sink_fulltext_documents_total",
			Help: "Total number of documents currently indexed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StoreCommitsTotal,
		StoreCommitDuration,
		StoreMaxRevision,
		StoreCleanedUpRevision,
		QueryDuration,
		QueryIndexPlanTotal,
		LiveQueriesActive,
		GCCycleDuration,
		GCCyclesTotal,
		GCRevisionsCollectedTotal,
		ChangeReplayLagRevisions,
		ChangeReplayCyclesTotal,
		ChangeReplayCycleDuration,
		FulltextQueryDuration,
		FulltextDocumentsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
