// Package mirror defines the entity model and persistence contract for a
// local mirror of a Stripe account's billing state. Entities are written by
// the sync and webhook engines in pkg/mirror/stripe and read by application
// code through the Store lookup queries.
package mirror

import "time"

// Customer is the local mirror of a Stripe customer. Exactly one customer is
// expected per application user; UserID is a lookup index, not a uniqueness
// constraint enforced by the store.
type Customer struct {
	// ID is the store-assigned local identifier, used for foreign keys.
	ID string

	// StripeID is the provider-assigned identifier (cus_...), unique per store.
	StripeID string

	// UserID is the application user this customer belongs to.
	UserID string

	Email    string
	Name     string
	Currency string
	Metadata map[string]string
	Created  time.Time
}

// Product is the local mirror of a Stripe product. Products are soft-deleted
// (Active=false) rather than removed, preserving price and subscription
// references.
type Product struct {
	ID          string
	StripeID    string
	Name        string
	Description string
	Active      bool
	Type        string

	// Slug is a human-readable key resolved from the statically configured
	// product map. Empty when the product is not in the map.
	Slug string

	Created time.Time
	Updated time.Time
}

// Price is the local mirror of a Stripe price. A price always belongs to
// exactly one product; ProductID must reference an existing product row at
// write time.
type Price struct {
	ID              string
	StripeID        string
	ProductID       string
	ProductStripeID string
	Active          bool
	Currency        string

	// UnitAmount is in currency minor units; nil for metered/non-fixed prices.
	UnitAmount *int64

	BillingScheme string
	Type          string // "one_time" or "recurring"
	Interval      string // "day", "week", "month", "year"; empty for one-time
	IntervalCount int64

	// Slug composes the owning product's slug with currency and interval.
	// Empty when the product has no configured slug.
	Slug string

	Created time.Time
}

// Subscription is the local mirror of a Stripe subscription. Timestamps are
// epoch seconds as delivered by Stripe; zero/nil means unset.
type Subscription struct {
	ID               string
	StripeID         string
	CustomerID       string
	CustomerStripeID string

	// UserID is denormalized from the owning customer.
	UserID string

	Status string

	// PriceID references the first subscription item's price; empty when the
	// price was not resolvable locally at reconciliation time.
	PriceID       string
	PriceStripeID string

	// ProductSlug is denormalized from the product owning the current price.
	ProductSlug string

	Currency           string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	CanceledAt         *int64
	EndedAt            *int64
	TrialStart         *int64
	TrialEnd           *int64
	Created            time.Time
}

// Invoice is the local mirror of a Stripe invoice. Amounts are non-negative
// integers in currency minor units. Subscription linkage may be empty for
// backfilled invoices until a webhook event repairs it.
type Invoice struct {
	ID               string
	StripeID         string
	CustomerID       string
	CustomerStripeID string
	UserID           string

	SubscriptionID       string
	SubscriptionStripeID string

	Status          string
	Currency        string
	AmountDue       int64
	AmountPaid      int64
	AmountRemaining int64
	Subtotal        int64
	Total           int64
	Tax             *int64

	PDFURL        string
	HostedURL     string
	BillingReason string

	PeriodStart int64
	PeriodEnd   int64
	DueDate     *int64
	PaidAt      *int64
	Created     time.Time
}

// Card holds the presentable subset of a card payment method.
type Card struct {
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

// PaymentMethod is the local mirror of a Stripe payment method attached to a
// customer. Card is set only when Type indicates a card instrument.
type PaymentMethod struct {
	ID               string
	StripeID         string
	CustomerID       string
	CustomerStripeID string
	UserID           string
	Type             string
	Card             *Card
	Default          bool
	Created          time.Time
}

// UserInfo identifies the application user on whose behalf an action runs.
// Returned by the caller-supplied user resolver.
type UserInfo struct {
	UserID string
	Email  string
	Name   string
}
