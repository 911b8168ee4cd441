package mirror

import "context"

// Store is the persistence contract shared by the sync and webhook engines.
//
// Upserts are keyed by the entity's StripeID: if a row with that StripeID
// exists its mutable fields are patched (ID and Created are preserved),
// otherwise a new row is inserted. Every upsert returns the local id and must
// be idempotent and safe under concurrent invocation for the same StripeID —
// at most one row may ever exist per StripeID per entity type.
// Implementations rely on a uniqueness constraint (or equivalent
// serializability guarantee) on the StripeID index.
//
// Lookups return (nil, nil) when no row matches; deactivate and delete are
// silent no-ops when the row is absent.
type Store interface {
	// Customers
	UpsertCustomer(ctx context.Context, c *Customer) (string, error)
	CustomerByStripeID(ctx context.Context, stripeID string) (*Customer, error)
	CustomerByUserID(ctx context.Context, userID string) (*Customer, error)
	DeleteCustomer(ctx context.Context, stripeID string) error

	// Products
	UpsertProduct(ctx context.Context, p *Product) (string, error)
	ProductByStripeID(ctx context.Context, stripeID string) (*Product, error)
	ProductBySlug(ctx context.Context, slug string) (*Product, error)
	ActiveProducts(ctx context.Context) ([]*Product, error)
	DeactivateProduct(ctx context.Context, stripeID string) error

	// Prices. UpsertPrice requires a valid local ProductID supplied by the
	// caller; it does not resolve the product itself.
	UpsertPrice(ctx context.Context, p *Price) (string, error)
	PriceByStripeID(ctx context.Context, stripeID string) (*Price, error)
	PriceBySlug(ctx context.Context, slug string) (*Price, error)
	PricesByProduct(ctx context.Context, productID string) ([]*Price, error)
	DeactivatePrice(ctx context.Context, stripeID string) error

	// Subscriptions. CurrentSubscription returns a subscription with status
	// exactly "active" for the user, the first by the store's default
	// ordering if several coexist, or nil if none.
	UpsertSubscription(ctx context.Context, s *Subscription) (string, error)
	SubscriptionByStripeID(ctx context.Context, stripeID string) (*Subscription, error)
	SubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error)
	CurrentSubscription(ctx context.Context, userID string) (*Subscription, error)
	DeleteSubscription(ctx context.Context, stripeID string) error

	// Invoices. InvoicesByUser returns newest-first; limit <= 0 means no limit.
	UpsertInvoice(ctx context.Context, i *Invoice) (string, error)
	InvoiceByStripeID(ctx context.Context, stripeID string) (*Invoice, error)
	InvoicesByUser(ctx context.Context, userID string, limit int) ([]*Invoice, error)

	// Payment methods
	UpsertPaymentMethod(ctx context.Context, pm *PaymentMethod) (string, error)
	PaymentMethodByStripeID(ctx context.Context, stripeID string) (*PaymentMethod, error)
	PaymentMethodsByUser(ctx context.Context, userID string) ([]*PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, stripeID string) error
}
