package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers ingestion, species resolution and moderation.
// It implements Recorder for the generic operation counters.
type PipelineMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec

	AutoFlaggedTotal   prometheus.Counter
	SpeciesResolutions *prometheus.CounterVec
	PrimaryConfidence  prometheus.Histogram

	registry *prometheus.Registry
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floranet_operations_total",
			Help: "Total number of pipeline operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floranet_operation_duration_seconds",
			Help:    "Duration of pipeline operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"operation"},
	)

	m.OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floranet_operation_errors_total",
			Help: "Total number of pipeline errors by operation and error category",
		},
		[]string{"operation", "error_type"},
	)

	m.AutoFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "floranet_observations_auto_flagged_total",
		Help: "Total number of ingested observations flagged for review",
	})

	m.SpeciesResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floranet_species_resolutions_total",
			Help: "Species resolutions by how they were answered",
		},
		[]string{"source"},
	)

	m.PrimaryConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "floranet_primary_confidence",
		Help:    "Distribution of normalized rank-1 confidences",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.OperationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordClassification records the primary confidence and flag verdict of an ingestion.
func (m *PipelineMetrics) RecordClassification(confidence float64, autoFlagged bool) {
	m.PrimaryConfidence.Observe(confidence)
	if autoFlagged {
		m.AutoFlaggedTotal.Inc()
	}
}

// RecordResolution counts one species resolution by source.
func (m *PipelineMetrics) RecordResolution(source string) {
	m.SpeciesResolutions.WithLabelValues(source).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.OperationErrors.Describe(ch)
	ch <- m.AutoFlaggedTotal.Desc()
	m.SpeciesResolutions.Describe(ch)
	ch <- m.PrimaryConfidence.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.OperationErrors.Collect(ch)
	ch <- m.AutoFlaggedTotal
	m.SpeciesResolutions.Collect(ch)
	ch <- m.PrimaryConfidence
}
