package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
	"github.com/mihaimyh/stripemirror/pkg/mirror/internal"
)

// handleWebhook processes incoming Stripe webhook events. The signature is
// the sole authentication boundary: verification runs over the exact request
// bytes before any event logic.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError("payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError("invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		http.Error(w, "missing signature", http.StatusBadRequest)
		p.metrics.RecordWebhookError("missing_signature")
		return
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusForbidden)
		p.metrics.RecordWebhookError("auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processEvent(r.Context(), &event); err != nil {
		p.logger.Error("webhook processing failed",
			mirror.Field{Key: "event_type", Value: eventType},
			mirror.Field{Key: "event_id", Value: event.ID},
			mirror.Field{Key: "error", Value: err.Error()})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(eventType, "error")
		p.metrics.RecordWebhookError("processing_error")
		p.metrics.RecordWebhookProcessingDuration(eventType, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(eventType, time.Since(startTime))
}

// processEvent dispatches by event type. Unknown types are accepted and
// ignored for forward compatibility with provider event catalog growth.
// Every reconciliation funnels into the same idempotent upserts the backfill
// sync uses, so redelivery of any event is safe.
func (p *Provider) processEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	case "customer.subscription.created":
		return p.handleSubscriptionUpserted(ctx, event, p.callbacks.SubscriptionCreated)
	case "customer.subscription.updated":
		return p.handleSubscriptionUpserted(ctx, event, p.callbacks.SubscriptionUpdated)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid", "invoice.payment_succeeded":
		return p.handleInvoiceEvent(ctx, event, p.callbacks.InvoicePaid)
	case "invoice.payment_failed":
		return p.handleInvoiceEvent(ctx, event, p.callbacks.InvoicePaymentFailed)
	case "invoice.finalized":
		return p.handleInvoiceEvent(ctx, event, p.callbacks.InvoiceFinalized)
	case "invoice.voided":
		return p.handleInvoiceEvent(ctx, event, p.callbacks.InvoiceVoided)
	case "invoice.marked_uncollectible":
		return p.handleInvoiceEvent(ctx, event, p.callbacks.InvoiceMarkedUncollectible)
	case "product.created", "product.updated":
		return p.handleProductUpserted(ctx, event)
	case "product.deleted":
		return p.handleProductDeleted(ctx, event)
	case "price.created", "price.updated":
		return p.handlePriceUpserted(ctx, event)
	case "price.deleted":
		return p.handlePriceDeleted(ctx, event)
	case "customer.updated":
		return p.handleCustomerUpdated(ctx, event)
	case "customer.deleted":
		return p.handleCustomerDeleted(ctx, event)
	case "payment_method.attached", "payment_method.updated", "payment_method.automatically_updated":
		return p.handlePaymentMethodUpserted(ctx, event)
	case "payment_method.detached":
		return p.handlePaymentMethodDetached(ctx, event)
	case "payment_intent.succeeded":
		return p.handlePaymentIntent(ctx, event, "paid", p.callbacks.PaymentIntentSucceeded)
	case "payment_intent.canceled":
		return p.handlePaymentIntent(ctx, event, "void", p.callbacks.PaymentIntentCanceled)
	default:
		p.logger.Debug("ignoring webhook event",
			mirror.Field{Key: "event_type", Value: string(event.Type)})
		return nil
	}
}

// handleCheckoutSessionCompleted is deliberately a no-op beyond the callback:
// the subsequent subscription webhook is the source of subscription state.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	if p.callbacks.CheckoutSessionCompleted == nil {
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: checkout session: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	info := mirror.CheckoutInfo{
		SessionID: session.ID,
		Metadata:  session.Metadata,
	}
	if session.Customer != nil {
		info.CustomerStripeID = session.Customer.ID
	}
	if session.Subscription != nil {
		info.SubscriptionStripeID = session.Subscription.ID
	}
	return p.invokeCallback("checkout.session.completed", func() error {
		return p.callbacks.CheckoutSessionCompleted(ctx, info)
	})
}

func (p *Provider) handleSubscriptionUpserted(
	ctx context.Context, event *stripe.Event, callback func(context.Context, *mirror.Subscription) error,
) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	s, err := p.buildSubscription(ctx, &sub, event.Data.Raw)
	if err != nil {
		return err
	}
	if s == nil {
		// Referential gap: dropped, a companion sync or event will backfill.
		return nil
	}

	id, err := p.store.UpsertSubscription(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", sub.ID, err)
	}
	s.ID = id

	if callback == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return callback(ctx, s)
	})
}

func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	if err := p.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", sub.ID, err)
	}

	if p.callbacks.SubscriptionDeleted == nil {
		return nil
	}
	return p.invokeCallback("customer.subscription.deleted", func() error {
		return p.callbacks.SubscriptionDeleted(ctx, sub.ID)
	})
}

func (p *Provider) handleInvoiceEvent(
	ctx context.Context, event *stripe.Event, callback func(context.Context, *mirror.Invoice) error,
) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("%w: invoice: %v", mirror.ErrInvalidWebhookPayload, err)
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		p.logger.Warn("dropping invoice event without customer",
			mirror.Field{Key: "invoice_id", Value: inv.ID})
		return nil
	}

	cust, err := p.store.CustomerByStripeID(ctx, inv.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to look up customer %s: %w", inv.Customer.ID, err)
	}
	if cust == nil {
		p.logger.Warn("dropping invoice event: customer not mirrored",
			mirror.Field{Key: "invoice_id", Value: inv.ID},
			mirror.Field{Key: "customer_id", Value: inv.Customer.ID})
		return nil
	}

	i := invoiceFromStripe(&inv, cust, event.Data.Raw)

	// Webhook payloads carry the nested subscription reference that bulk
	// listing does not; this is the authoritative path for the linkage.
	if subStripeID := invoiceSubscriptionID(event.Data.Raw); subStripeID != "" {
		i.SubscriptionStripeID = subStripeID
		sub, err := p.store.SubscriptionByStripeID(ctx, subStripeID)
		if err != nil {
			return fmt.Errorf("failed to look up subscription %s: %w", subStripeID, err)
		}
		if sub != nil {
			i.SubscriptionID = sub.ID
		}
	}

	id, err := p.store.UpsertInvoice(ctx, i)
	if err != nil {
		return fmt.Errorf("failed to upsert invoice %s: %w", inv.ID, err)
	}
	i.ID = id

	if callback == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return callback(ctx, i)
	})
}

func (p *Provider) handleProductUpserted(ctx context.Context, event *stripe.Event) error {
	var prod stripe.Product
	if err := json.Unmarshal(event.Data.Raw, &prod); err != nil {
		return fmt.Errorf("%w: product: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	product := productFromStripe(&prod, p.productSlug(prod.ID))
	id, err := p.store.UpsertProduct(ctx, product)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", prod.ID, err)
	}
	product.ID = id

	if p.callbacks.ProductUpserted == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return p.callbacks.ProductUpserted(ctx, product)
	})
}

func (p *Provider) handleProductDeleted(ctx context.Context, event *stripe.Event) error {
	var prod stripe.Product
	if err := json.Unmarshal(event.Data.Raw, &prod); err != nil {
		return fmt.Errorf("%w: product: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	// Soft delete: price and subscription rows keep referencing the product.
	if err := p.store.DeactivateProduct(ctx, prod.ID); err != nil {
		return fmt.Errorf("failed to deactivate product %s: %w", prod.ID, err)
	}

	if p.callbacks.ProductDeactivated == nil {
		return nil
	}
	return p.invokeCallback("product.deleted", func() error {
		return p.callbacks.ProductDeactivated(ctx, prod.ID)
	})
}

func (p *Provider) handlePriceUpserted(ctx context.Context, event *stripe.Event) error {
	var price stripe.Price
	if err := json.Unmarshal(event.Data.Raw, &price); err != nil {
		return fmt.Errorf("%w: price: %v", mirror.ErrInvalidWebhookPayload, err)
	}
	if price.Product == nil || price.Product.ID == "" {
		p.logger.Error("dropping price event without product",
			mirror.Field{Key: "price_id", Value: price.ID})
		return nil
	}

	prod, err := p.store.ProductByStripeID(ctx, price.Product.ID)
	if err != nil {
		return fmt.Errorf("failed to look up product %s: %w", price.Product.ID, err)
	}
	if prod == nil {
		// A price cannot exist locally without its product.
		p.logger.Error("dropping price event: product not mirrored",
			mirror.Field{Key: "price_id", Value: price.ID},
			mirror.Field{Key: "product_id", Value: price.Product.ID})
		return nil
	}

	interval := ""
	if price.Recurring != nil {
		interval = string(price.Recurring.Interval)
	}
	slug := priceSlug(prod.Slug, string(price.Currency), interval)

	mirrored := priceFromStripe(&price, prod.ID, prod.StripeID, slug)
	id, err := p.store.UpsertPrice(ctx, mirrored)
	if err != nil {
		return fmt.Errorf("failed to upsert price %s: %w", price.ID, err)
	}
	mirrored.ID = id

	if p.callbacks.PriceUpserted == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return p.callbacks.PriceUpserted(ctx, mirrored)
	})
}

func (p *Provider) handlePriceDeleted(ctx context.Context, event *stripe.Event) error {
	var price stripe.Price
	if err := json.Unmarshal(event.Data.Raw, &price); err != nil {
		return fmt.Errorf("%w: price: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	if err := p.store.DeactivatePrice(ctx, price.ID); err != nil {
		return fmt.Errorf("failed to deactivate price %s: %w", price.ID, err)
	}

	if p.callbacks.PriceDeactivated == nil {
		return nil
	}
	return p.invokeCallback("price.deleted", func() error {
		return p.callbacks.PriceDeactivated(ctx, price.ID)
	})
}

func (p *Provider) handleCustomerUpdated(ctx context.Context, event *stripe.Event) error {
	var cust stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &cust); err != nil {
		return fmt.Errorf("%w: customer: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	// User id comes from the event metadata or, failing that, the existing
	// local row. Without either the customer cannot be scoped to a user.
	userID := cust.Metadata[metadataUserIDKey]
	if userID == "" {
		existing, err := p.store.CustomerByStripeID(ctx, cust.ID)
		if err != nil {
			return fmt.Errorf("failed to look up customer %s: %w", cust.ID, err)
		}
		if existing == nil {
			p.logger.Warn("dropping customer event without user id",
				mirror.Field{Key: "customer_id", Value: cust.ID})
			return nil
		}
		userID = existing.UserID
	}

	mirrored := customerFromStripe(&cust, userID)
	id, err := p.store.UpsertCustomer(ctx, mirrored)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", cust.ID, err)
	}
	mirrored.ID = id

	if p.callbacks.CustomerUpdated == nil {
		return nil
	}
	return p.invokeCallback("customer.updated", func() error {
		return p.callbacks.CustomerUpdated(ctx, mirrored)
	})
}

func (p *Provider) handleCustomerDeleted(ctx context.Context, event *stripe.Event) error {
	var cust stripe.Customer
	if err := json.Unmarshal(event.Data.Raw, &cust); err != nil {
		return fmt.Errorf("%w: customer: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	if err := p.store.DeleteCustomer(ctx, cust.ID); err != nil {
		return fmt.Errorf("failed to delete customer %s: %w", cust.ID, err)
	}

	if p.callbacks.CustomerDeleted == nil {
		return nil
	}
	return p.invokeCallback("customer.deleted", func() error {
		return p.callbacks.CustomerDeleted(ctx, cust.ID)
	})
}

func (p *Provider) handlePaymentMethodUpserted(ctx context.Context, event *stripe.Event) error {
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(event.Data.Raw, &pm); err != nil {
		return fmt.Errorf("%w: payment method: %v", mirror.ErrInvalidWebhookPayload, err)
	}
	if pm.Customer == nil || pm.Customer.ID == "" {
		p.logger.Debug("ignoring detached payment method event",
			mirror.Field{Key: "payment_method_id", Value: pm.ID})
		return nil
	}

	cust, err := p.store.CustomerByStripeID(ctx, pm.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to look up customer %s: %w", pm.Customer.ID, err)
	}
	if cust == nil {
		p.logger.Warn("dropping payment method event: customer not mirrored",
			mirror.Field{Key: "payment_method_id", Value: pm.ID},
			mirror.Field{Key: "customer_id", Value: pm.Customer.ID})
		return nil
	}

	// The event payload does not say whether this is the default instrument;
	// preserve what the mirror already knows.
	isDefault := false
	if existing, err := p.store.PaymentMethodByStripeID(ctx, pm.ID); err != nil {
		return fmt.Errorf("failed to look up payment method %s: %w", pm.ID, err)
	} else if existing != nil {
		isDefault = existing.Default
	}

	mirrored := paymentMethodFromStripe(&pm, cust, isDefault)
	id, err := p.store.UpsertPaymentMethod(ctx, mirrored)
	if err != nil {
		return fmt.Errorf("failed to upsert payment method %s: %w", pm.ID, err)
	}
	mirrored.ID = id

	if p.callbacks.PaymentMethodUpserted == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return p.callbacks.PaymentMethodUpserted(ctx, mirrored)
	})
}

func (p *Provider) handlePaymentMethodDetached(ctx context.Context, event *stripe.Event) error {
	var pm stripe.PaymentMethod
	if err := json.Unmarshal(event.Data.Raw, &pm); err != nil {
		return fmt.Errorf("%w: payment method: %v", mirror.ErrInvalidWebhookPayload, err)
	}

	if err := p.store.DeletePaymentMethod(ctx, pm.ID); err != nil {
		return fmt.Errorf("failed to delete payment method %s: %w", pm.ID, err)
	}

	if p.callbacks.PaymentMethodDetached == nil {
		return nil
	}
	return p.invokeCallback("payment_method.detached", func() error {
		return p.callbacks.PaymentMethodDetached(ctx, pm.ID)
	})
}

// handlePaymentIntent records one-time payments outside the invoice model as
// invoice-like rows keyed by the payment intent's own id.
func (p *Provider) handlePaymentIntent(
	ctx context.Context, event *stripe.Event, status string, callback func(context.Context, *mirror.Invoice) error,
) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("%w: payment intent: %v", mirror.ErrInvalidWebhookPayload, err)
	}
	if pi.Customer == nil || pi.Customer.ID == "" {
		p.logger.Debug("ignoring payment intent without customer",
			mirror.Field{Key: "payment_intent_id", Value: pi.ID})
		return nil
	}

	cust, err := p.store.CustomerByStripeID(ctx, pi.Customer.ID)
	if err != nil {
		return fmt.Errorf("failed to look up customer %s: %w", pi.Customer.ID, err)
	}
	if cust == nil {
		p.logger.Warn("dropping payment intent event: customer not mirrored",
			mirror.Field{Key: "payment_intent_id", Value: pi.ID},
			mirror.Field{Key: "customer_id", Value: pi.Customer.ID})
		return nil
	}

	i := &mirror.Invoice{
		StripeID:         pi.ID,
		CustomerID:       cust.ID,
		CustomerStripeID: cust.StripeID,
		UserID:           cust.UserID,
		Status:           status,
		Currency:         string(pi.Currency),
		AmountDue:        pi.Amount,
		AmountPaid:       pi.AmountReceived,
		AmountRemaining:  pi.Amount - pi.AmountReceived,
		Subtotal:         pi.Amount,
		Total:            pi.Amount,
		BillingReason:    "payment_intent",
		Created:          unixTime(pi.Created),
	}
	if i.AmountRemaining < 0 {
		i.AmountRemaining = 0
	}

	id, err := p.store.UpsertInvoice(ctx, i)
	if err != nil {
		return fmt.Errorf("failed to upsert payment intent %s: %w", pi.ID, err)
	}
	i.ID = id

	if callback == nil {
		return nil
	}
	return p.invokeCallback(string(event.Type), func() error {
		return callback(ctx, i)
	})
}

func (p *Provider) invokeCallback(eventType string, fn func() error) error {
	if err := fn(); err != nil {
		return fmt.Errorf("callback for %s: %w", eventType, err)
	}
	return nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
