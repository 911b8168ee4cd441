package mirror

import "time"

// Metrics defines the interface for tracking engine operations.
// All methods are optional - the engine gracefully handles nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from Stripe.
	// eventType: the Stripe event type (e.g., "customer.subscription.created")
	// status: "success" or "error"
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: the type of error (e.g., "auth_failed", "invalid_payload", "processing_error")
	RecordWebhookError(errorType string)

	// RecordSync records a backfill sync run for one entity type.
	// entity: "products", "customers", "subscriptions", "invoices", "payment_methods"
	// status: "success" or "error"
	RecordSync(entity, status string)

	// RecordSyncDuration records how long a backfill sync run took.
	RecordSyncDuration(entity string, duration time.Duration)

	// RecordAPICall records an outbound API call to Stripe.
	// endpoint: the API endpoint called (e.g., "/v1/products")
	// status: "success" or "error"
	RecordAPICall(endpoint, status string)

	// RecordAPICallDuration records how long an outbound API call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_ string)                               {}
func (n *NoopMetrics) RecordSync(_, _ string)                                    {}
func (n *NoopMetrics) RecordSyncDuration(_ string, _ time.Duration)              {}
func (n *NoopMetrics) RecordAPICall(_, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration)           {}
