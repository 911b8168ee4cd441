package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// SyncAll refreshes the full local mirror from Stripe's current state.
// Order matters: subscriptions need customers and prices mirrored first, and
// invoices need customers.
func (p *Provider) SyncAll(ctx context.Context) error {
	if err := p.SyncProducts(ctx); err != nil {
		return err
	}
	if err := p.SyncCustomers(ctx); err != nil {
		return err
	}
	if err := p.SyncSubscriptions(ctx); err != nil {
		return err
	}
	return p.SyncInvoices(ctx)
}

// SyncProducts mirrors all active products and, for each, all of its prices.
// Slugs come from the configured product map; price slugs compose the product
// slug with currency and billing interval.
func (p *Provider) SyncProducts(ctx context.Context) error {
	startTime := time.Now()

	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(defaultPageSize)

	count := 0
	for prod, err := range p.api.Products(ctx, params) {
		if err != nil {
			return p.syncFailed("products", startTime, fmt.Errorf("failed to list products: %w", err))
		}

		slug := p.productSlug(prod.ID)
		productID, err := p.store.UpsertProduct(ctx, productFromStripe(prod, slug))
		if err != nil {
			return p.syncFailed("products", startTime, fmt.Errorf("failed to upsert product %s: %w", prod.ID, err))
		}

		if err := p.syncPrices(ctx, prod.ID, productID, slug); err != nil {
			return p.syncFailed("products", startTime, err)
		}
		count++
	}

	p.logger.Info("product sync complete", mirror.Field{Key: "products", Value: count})
	p.syncSucceeded("products", startTime)
	return nil
}

func (p *Provider) syncPrices(ctx context.Context, productStripeID, productID, productSlug string) error {
	params := &stripe.PriceListParams{Product: stripe.String(productStripeID)}
	params.Limit = stripe.Int64(defaultPageSize)

	for price, err := range p.api.Prices(ctx, params) {
		if err != nil {
			return fmt.Errorf("failed to list prices for %s: %w", productStripeID, err)
		}

		interval := ""
		if price.Recurring != nil {
			interval = string(price.Recurring.Interval)
		}
		slug := priceSlug(productSlug, string(price.Currency), interval)

		if _, err := p.store.UpsertPrice(ctx, priceFromStripe(price, productID, productStripeID, slug)); err != nil {
			return fmt.Errorf("failed to upsert price %s: %w", price.ID, err)
		}
	}
	return nil
}

// SyncCustomers mirrors all customers that carry an application user id in
// their Stripe metadata. Soft-deleted remote customers and customers without
// a user id are skipped; the metadata tag is the only way backfill can
// associate a remote customer with a local user.
func (p *Provider) SyncCustomers(ctx context.Context) error {
	startTime := time.Now()

	params := &stripe.CustomerListParams{}
	params.Limit = stripe.Int64(defaultPageSize)

	count := 0
	for cust, err := range p.api.Customers(ctx, params) {
		if err != nil {
			return p.syncFailed("customers", startTime, fmt.Errorf("failed to list customers: %w", err))
		}
		if cust.Deleted {
			continue
		}
		userID := cust.Metadata[metadataUserIDKey]
		if userID == "" {
			p.logger.Debug("skipping customer without user id",
				mirror.Field{Key: "customer_id", Value: cust.ID})
			continue
		}

		if _, err := p.store.UpsertCustomer(ctx, customerFromStripe(cust, userID)); err != nil {
			return p.syncFailed("customers", startTime, fmt.Errorf("failed to upsert customer %s: %w", cust.ID, err))
		}
		count++
	}

	p.logger.Info("customer sync complete", mirror.Field{Key: "customers", Value: count})
	p.syncSucceeded("customers", startTime)
	return nil
}

// SyncSubscriptions mirrors all subscriptions whose customer is already
// mirrored locally. Run SyncCustomers (and SyncProducts, for price
// resolution) first: subscriptions for unmirrored customers are dropped,
// as are subscriptions without a priced line item.
func (p *Provider) SyncSubscriptions(ctx context.Context) error {
	startTime := time.Now()

	params := &stripe.SubscriptionListParams{Status: stripe.String("all")}
	params.Limit = stripe.Int64(defaultPageSize)

	count := 0
	for sub, err := range p.api.Subscriptions(ctx, params) {
		if err != nil {
			return p.syncFailed("subscriptions", startTime, fmt.Errorf("failed to list subscriptions: %w", err))
		}

		s, err := p.buildSubscription(ctx, sub, nil)
		if err != nil {
			return p.syncFailed("subscriptions", startTime, err)
		}
		if s == nil {
			continue
		}

		if _, err := p.store.UpsertSubscription(ctx, s); err != nil {
			return p.syncFailed("subscriptions", startTime, fmt.Errorf("failed to upsert subscription %s: %w", sub.ID, err))
		}
		count++
	}

	p.logger.Info("subscription sync complete", mirror.Field{Key: "subscriptions", Value: count})
	p.syncSucceeded("subscriptions", startTime)
	return nil
}

// buildSubscription resolves the local dependencies of a remote subscription.
// Returns (nil, nil) when the subscription should be dropped: customer not
// mirrored or no priced line item. A price that is not mirrored locally
// degrades gracefully — the remote price reference is kept, price-linked
// fields stay empty.
func (p *Provider) buildSubscription(
	ctx context.Context, sub *stripe.Subscription, raw []byte,
) (*mirror.Subscription, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		p.logger.Warn("skipping subscription without customer",
			mirror.Field{Key: "subscription_id", Value: sub.ID})
		return nil, nil
	}

	cust, err := p.store.CustomerByStripeID(ctx, sub.Customer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer %s: %w", sub.Customer.ID, err)
	}
	if cust == nil {
		p.logger.Warn("skipping subscription: customer not mirrored",
			mirror.Field{Key: "subscription_id", Value: sub.ID},
			mirror.Field{Key: "customer_id", Value: sub.Customer.ID})
		return nil, nil
	}

	priceStripeID := firstItemPriceID(sub)
	if priceStripeID == "" {
		p.logger.Debug("skipping subscription without priced item",
			mirror.Field{Key: "subscription_id", Value: sub.ID})
		return nil, nil
	}

	price, err := p.store.PriceByStripeID(ctx, priceStripeID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up price %s: %w", priceStripeID, err)
	}

	productSlug := ""
	if price != nil {
		prod, err := p.store.ProductByStripeID(ctx, price.ProductStripeID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up product %s: %w", price.ProductStripeID, err)
		}
		if prod != nil {
			productSlug = prod.Slug
		}
	}

	return subscriptionFromStripe(sub, cust, price, productSlug, raw), nil
}

// SyncInvoices mirrors all invoices whose customer is already mirrored.
// Subscription linkage is left unresolved during backfill; invoice webhooks
// are the authoritative path for it and repair the link on the next event.
func (p *Provider) SyncInvoices(ctx context.Context) error {
	startTime := time.Now()

	params := &stripe.InvoiceListParams{}
	params.Limit = stripe.Int64(defaultPageSize)

	count := 0
	for inv, err := range p.api.Invoices(ctx, params) {
		if err != nil {
			return p.syncFailed("invoices", startTime, fmt.Errorf("failed to list invoices: %w", err))
		}
		if inv.Customer == nil || inv.Customer.ID == "" {
			continue
		}

		cust, err := p.store.CustomerByStripeID(ctx, inv.Customer.ID)
		if err != nil {
			return p.syncFailed("invoices", startTime, fmt.Errorf("failed to look up customer %s: %w", inv.Customer.ID, err))
		}
		if cust == nil {
			p.logger.Warn("skipping invoice: customer not mirrored",
				mirror.Field{Key: "invoice_id", Value: inv.ID},
				mirror.Field{Key: "customer_id", Value: inv.Customer.ID})
			continue
		}

		if _, err := p.store.UpsertInvoice(ctx, invoiceFromStripe(inv, cust, nil)); err != nil {
			return p.syncFailed("invoices", startTime, fmt.Errorf("failed to upsert invoice %s: %w", inv.ID, err))
		}
		count++
	}

	p.logger.Info("invoice sync complete", mirror.Field{Key: "invoices", Value: count})
	p.syncSucceeded("invoices", startTime)
	return nil
}

// SyncPaymentMethods mirrors the payment methods attached to the user's
// customer. Listing payment methods requires a customer scope, so this sync
// is per-user rather than catalog-wide.
func (p *Provider) SyncPaymentMethods(ctx context.Context, userID string) error {
	startTime := time.Now()

	cust, err := p.store.CustomerByUserID(ctx, userID)
	if err != nil {
		return p.syncFailed("payment_methods", startTime, fmt.Errorf("failed to look up customer: %w", err))
	}
	if cust == nil {
		return p.syncFailed("payment_methods", startTime,
			fmt.Errorf("%w: no customer for user %s", mirror.ErrCustomerNotFound, userID))
	}

	defaultPM := ""
	remote, err := p.api.RetrieveCustomer(ctx, cust.StripeID)
	if err != nil {
		return p.syncFailed("payment_methods", startTime, fmt.Errorf("failed to retrieve customer %s: %w", cust.StripeID, err))
	}
	if remote.InvoiceSettings != nil && remote.InvoiceSettings.DefaultPaymentMethod != nil {
		defaultPM = remote.InvoiceSettings.DefaultPaymentMethod.ID
	}

	params := &stripe.PaymentMethodListParams{Customer: stripe.String(cust.StripeID)}
	params.Limit = stripe.Int64(defaultPageSize)

	for pm, err := range p.api.PaymentMethods(ctx, params) {
		if err != nil {
			return p.syncFailed("payment_methods", startTime, fmt.Errorf("failed to list payment methods: %w", err))
		}
		if _, err := p.store.UpsertPaymentMethod(ctx, paymentMethodFromStripe(pm, cust, pm.ID == defaultPM)); err != nil {
			return p.syncFailed("payment_methods", startTime, fmt.Errorf("failed to upsert payment method %s: %w", pm.ID, err))
		}
	}

	p.syncSucceeded("payment_methods", startTime)
	return nil
}

func (p *Provider) syncSucceeded(entity string, startTime time.Time) {
	p.metrics.RecordSync(entity, "success")
	p.metrics.RecordSyncDuration(entity, time.Since(startTime))
}

func (p *Provider) syncFailed(entity string, startTime time.Time, err error) error {
	p.metrics.RecordSync(entity, "error")
	p.metrics.RecordSyncDuration(entity, time.Since(startTime))
	return err
}
