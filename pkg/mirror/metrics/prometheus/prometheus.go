package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements mirror.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	syncTotal                 *prometheus.CounterVec
	syncDuration              *prometheus.HistogramVec
	apiCallsTotal             *prometheus.CounterVec
	apiCallDuration           *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation for the engine.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received from Stripe.",
		}, []string{"event_type", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"error_type"}),

		syncTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "sync_total",
			Help:      "Total number of backfill sync runs per entity type.",
		}, []string{"entity", "status"}),

		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "sync_duration_seconds",
			Help:      "Duration of backfill sync runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "api_calls_total",
			Help:      "Total number of API calls to Stripe.",
		}, []string{"endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripemirror",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of API calls to Stripe in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) RecordWebhookEvent(eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(errorType string) {
	m.webhookErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) RecordSync(entity, status string) {
	m.syncTotal.WithLabelValues(entity, status).Inc()
}

func (m *Metrics) RecordSyncDuration(entity string, duration time.Duration) {
	m.syncDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

func (m *Metrics) RecordAPICall(endpoint, status string) {
	m.apiCallsTotal.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
