package mirror

import "context"

// CheckoutInfo carries the identifiers from a completed checkout session.
// The subsequent subscription webhook is the source of subscription state;
// this exists so callers can react to the completed session itself.
type CheckoutInfo struct {
	SessionID            string
	CustomerStripeID     string
	SubscriptionStripeID string
	Metadata             map[string]string
}

// Callbacks is a table of optional per-event-category handlers invoked by the
// webhook engine strictly after internal reconciliation succeeds. Callback
// logic may therefore assume the local mirror already reflects the event.
// A callback error fails the whole webhook request, triggering provider-side
// redelivery; callbacks must tolerate being re-invoked for the same event.
type Callbacks struct {
	CheckoutSessionCompleted func(ctx context.Context, info CheckoutInfo) error

	SubscriptionCreated func(ctx context.Context, s *Subscription) error
	SubscriptionUpdated func(ctx context.Context, s *Subscription) error
	// SubscriptionDeleted receives the StripeID of the removed row.
	SubscriptionDeleted func(ctx context.Context, stripeID string) error

	InvoicePaid                func(ctx context.Context, i *Invoice) error
	InvoicePaymentFailed       func(ctx context.Context, i *Invoice) error
	InvoiceFinalized           func(ctx context.Context, i *Invoice) error
	InvoiceVoided              func(ctx context.Context, i *Invoice) error
	InvoiceMarkedUncollectible func(ctx context.Context, i *Invoice) error

	ProductUpserted    func(ctx context.Context, p *Product) error
	ProductDeactivated func(ctx context.Context, stripeID string) error

	PriceUpserted    func(ctx context.Context, p *Price) error
	PriceDeactivated func(ctx context.Context, stripeID string) error

	CustomerUpdated func(ctx context.Context, c *Customer) error
	CustomerDeleted func(ctx context.Context, stripeID string) error

	PaymentMethodUpserted func(ctx context.Context, pm *PaymentMethod) error
	PaymentMethodDetached func(ctx context.Context, stripeID string) error

	// Payment intents are recorded as invoice-like rows keyed by the payment
	// intent's own id, for one-time payments outside the invoice model.
	PaymentIntentSucceeded func(ctx context.Context, i *Invoice) error
	PaymentIntentCanceled  func(ctx context.Context, i *Invoice) error
}
