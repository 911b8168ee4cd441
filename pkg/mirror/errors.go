package mirror

import "errors"

var (
	// ErrNotConfigured is returned when the engine is missing required configuration
	ErrNotConfigured = errors.New("stripemirror: not configured")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("stripemirror: invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when a webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("stripemirror: invalid webhook payload")

	// ErrCustomerNotFound is returned by action methods that require an existing customer
	ErrCustomerNotFound = errors.New("stripemirror: customer not found")

	// ErrSubscriptionNotFound is returned by action methods that require an active subscription
	ErrSubscriptionNotFound = errors.New("stripemirror: subscription not found")

	// ErrProductNotFound is returned when a dependent write needs a product that is not mirrored
	ErrProductNotFound = errors.New("stripemirror: product not found")

	// ErrPriceNotFound is returned by action methods that resolve a price by slug
	ErrPriceNotFound = errors.New("stripemirror: price not found")

	// ErrInvalidEntity is returned by stores when an upsert argument is missing required fields
	ErrInvalidEntity = errors.New("stripemirror: invalid entity")
)
