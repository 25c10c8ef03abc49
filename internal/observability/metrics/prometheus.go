package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agrisense/agripipe/pkg/constants"
)

// PipelineMetrics collects Prometheus metrics for pipeline runs. Runs push
// their counters here; exposition (push gateway or scrape endpoint) is left
// to the deployment.
type PipelineMetrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	readingsTotal    *prometheus.CounterVec
	rowsDropped      prometheus.Counter
	rowsCorrected    prometheus.Counter
	anomaliesFlagged prometheus.Counter
	coverageGaps     prometheus.Counter
	schemaErrors     prometheus.Counter
}

// NewPipelineMetrics creates and registers the pipeline metric set.
func NewPipelineMetrics() *PipelineMetrics {
	registry := prometheus.NewRegistry()
	namespace := constants.AppName

	m := &PipelineMetrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings processed by stage",
		}, []string{"stage"}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows dropped during cleaning",
		}),
		rowsCorrected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_corrected_total",
			Help:      "Outlier values winsorized during cleaning",
		}),
		anomaliesFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Readings flagged anomalous during enrichment",
		}),
		coverageGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coverage_gap_hours_total",
			Help:      "Missing expected hours detected during validation",
		}),
		schemaErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_errors_total",
			Help:      "Column-level schema violations recorded",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.readingsTotal,
		m.rowsDropped,
		m.rowsCorrected,
		m.anomaliesFlagged,
		m.coverageGaps,
		m.schemaErrors,
	)

	return m
}

// Registry exposes the underlying registry for exposition.
func (m *PipelineMetrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records a run's outcome and duration.
func (m *PipelineMetrics) ObserveRun(status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// ObserveStage records how many readings a stage produced.
func (m *PipelineMetrics) ObserveStage(stage string, readings int) {
	m.readingsTotal.WithLabelValues(stage).Add(float64(readings))
}

// ObserveCleaning records cleaning counters.
func (m *PipelineMetrics) ObserveCleaning(dropped, corrected int) {
	m.rowsDropped.Add(float64(dropped))
	m.rowsCorrected.Add(float64(corrected))
}

// ObserveValidation records validation counters.
func (m *PipelineMetrics) ObserveValidation(anomalies, gapHours, schemaErrors int) {
	m.anomaliesFlagged.Add(float64(anomalies))
	m.coverageGaps.Add(float64(gapHours))
	m.schemaErrors.Add(float64(schemaErrors))
}
