// Package metrics provides custom Prometheus metrics for notification operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for review alerts.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec // deliveries by status
	DeliveryDuration prometheus.Histogram   // latency of one send over all URLs
	LastSuccessTime  prometheus.Gauge       // timestamp of last fully successful send
	ServiceErrors    *prometheus.CounterVec // errors by service scheme

	registry *prometheus.Registry
}

// NewNotificationMetrics creates a new instance of NotificationMetrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total number of notification delivery attempts by status",
		},
		[]string{"status"},
	)

	m.DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_delivery_duration_seconds",
		Help:    "Time taken to deliver one notification to all services",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}, // 10ms to 30s
	})

	m.LastSuccessTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_last_success_timestamp_seconds",
		Help: "Timestamp of last successful notification delivery",
	})

	m.ServiceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_service_errors_total",
			Help: "Total number of delivery errors by service",
		},
		[]string{"service"},
	)
}

// RecordDelivery records one send. failedServices lists the schemes that failed.
func (m *NotificationMetrics) RecordDelivery(duration time.Duration, failedServices []string) {
	m.DeliveryDuration.Observe(duration.Seconds())
	if len(failedServices) == 0 {
		m.DeliveriesTotal.WithLabelValues(StatusSuccess).Inc()
		m.LastSuccessTime.SetToCurrentTime()
		return
	}
	m.DeliveriesTotal.WithLabelValues(StatusError).Inc()
	for _, svc := range failedServices {
		m.ServiceErrors.WithLabelValues(svc).Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	ch <- m.DeliveryDuration.Desc()
	ch <- m.LastSuccessTime.Desc()
	m.ServiceErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	ch <- m.DeliveryDuration
	ch <- m.LastSuccessTime
	m.ServiceErrors.Collect(ch)
}
