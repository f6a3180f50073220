package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics contains all Prometheus metrics related to the classifier subprocess.
type WorkerMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	Restarts        prometheus.Counter
	Crashes         prometheus.Counter
	Timeouts        prometheus.Counter
	State           prometheus.Gauge
	QueueDepth      prometheus.Gauge

	registry *prometheus.Registry
}

// NewWorkerMetrics creates and registers the worker metrics.
func NewWorkerMetrics(registry *prometheus.Registry) (*WorkerMetrics, error) {
	m := &WorkerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register worker metrics: %w", err)
	}
	return m, nil
}

func (m *WorkerMetrics) initMetrics() {
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floranet_worker_requests_total",
			Help: "Total number of classifier requests by outcome",
		},
		[]string{"status"},
	)

	m.RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "floranet_worker_request_duration_seconds",
		Help:    "Time from writing a request to reading its response",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.Restarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "floranet_worker_starts_total",
		Help: "Total number of classifier process spawns",
	})

	m.Crashes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "floranet_worker_crashes_total",
		Help: "Total number of unexpected classifier exits or spawn failures",
	})

	m.Timeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "floranet_worker_timeouts_total",
		Help: "Total number of classifier requests that exceeded the configured timeout",
	})

	m.State = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "floranet_worker_state",
		Help: "Current supervisor state (0=not started, 1=starting, 2=running, 3=crashed, 4=stopped)",
	})

	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "floranet_worker_queue_depth",
		Help: "Number of callers waiting for the classifier",
	})
}

// RecordRequest records the outcome and duration of one classifier request.
func (m *WorkerMetrics) RecordRequest(durationSeconds float64, err error) {
	if err != nil {
		m.RequestsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.RequestsTotal.WithLabelValues(StatusSuccess).Inc()
	m.RequestDuration.Observe(durationSeconds)
}

// RecordStart counts a process spawn.
func (m *WorkerMetrics) RecordStart() {
	m.Restarts.Inc()
}

// RecordCrash counts an unexpected exit or spawn failure.
func (m *WorkerMetrics) RecordCrash() {
	m.Crashes.Inc()
}

// RecordTimeout counts a request that hit the timeout.
func (m *WorkerMetrics) RecordTimeout() {
	m.Timeouts.Inc()
}

// SetState exports the supervisor state as a number.
func (m *WorkerMetrics) SetState(state int) {
	m.State.Set(float64(state))
}

// AddWaiting adjusts the number of queued callers.
func (m *WorkerMetrics) AddWaiting(delta int) {
	m.QueueDepth.Add(float64(delta))
}

// Describe implements the prometheus.Collector interface.
func (m *WorkerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	ch <- m.RequestDuration.Desc()
	ch <- m.Restarts.Desc()
	ch <- m.Crashes.Desc()
	ch <- m.Timeouts.Desc()
	ch <- m.State.Desc()
	ch <- m.QueueDepth.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *WorkerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	ch <- m.RequestDuration
	ch <- m.Restarts
	ch <- m.Crashes
	ch <- m.Timeouts
	ch <- m.State
	ch <- m.QueueDepth
}
