package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/david/quest-radar/internal/ingest"
)

const metricsNamespace = "quest_radar"

// Metrics holds the pipeline counters exposed on /metrics.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RecordsTotal     *prometheus.CounterVec
	DiagnosticsTotal *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRunTier      *prometheus.GaugeVec
}

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"status"}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "records_total",
			Help:      "Records seen at each pipeline stage",
		}, []string{"stage"}),
		DiagnosticsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "diagnostics_total",
			Help:      "Records that needed a default or correction, by kind",
		}, []string{"kind"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one pipeline run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		LastRunTier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "last_run_tier_size",
			Help:      "Unique opportunities per ROI tier in the latest run",
		}, []string{"tier"}),
	}
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(b ingest.Bundle, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues("ok").Inc()
	m.RunDuration.Observe(elapsed.Seconds())

	m.RecordsTotal.WithLabelValues("raw").Add(float64(b.Stats.TotalRaw))
	m.RecordsTotal.WithLabelValues("unique").Add(float64(b.Stats.AfterDeduplication))
	m.RecordsTotal.WithLabelValues("above_threshold").Add(float64(b.Stats.AfterROIFilter))

	d := b.Diagnostics
	m.DiagnosticsTotal.WithLabelValues("skipped").Add(float64(d.Skipped))
	m.DiagnosticsTotal.WithLabelValues("reward_defaulted").Add(float64(d.RewardDefaulted))
	m.DiagnosticsTotal.WithLabelValues("reward_unparsed").Add(float64(d.RewardUnparsed))
	m.DiagnosticsTotal.WithLabelValues("time_defaulted").Add(float64(d.TimeDefaulted))
	m.DiagnosticsTotal.WithLabelValues("time_clamped").Add(float64(d.TimeClamped))
	m.DiagnosticsTotal.WithLabelValues("negative_roi").Add(float64(d.NegativeROI))

	m.LastRunTier.WithLabelValues(string(ingest.TierHigh)).Set(float64(len(b.Categories.High)))
	m.LastRunTier.WithLabelValues(string(ingest.TierMedium)).Set(float64(len(b.Categories.Medium)))
	m.LastRunTier.WithLabelValues(string(ingest.TierLow)).Set(float64(len(b.Categories.Low)))
}

// ObserveFailure records a run that returned an error.
func (m *Metrics) ObserveFailure() {
	m.RunsTotal.WithLabelValues("error").Inc()
}
