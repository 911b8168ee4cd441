package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// CheckoutParams describes a hosted checkout session request. Either
// PriceSlug or PriceStripeID selects the price; PriceSlug is resolved through
// the local mirror. User identity comes from User or, when empty, the
// configured UserResolver.
type CheckoutParams struct {
	User          mirror.UserInfo
	PriceSlug     string
	PriceStripeID string
	SuccessURL    string
	CancelURL     string

	// Metadata is attached to the created subscription in addition to the
	// user id tag.
	Metadata map[string]string
}

// CheckoutURL creates a Stripe Checkout session for the resolved user and
// returns its hosted URL. The user's customer is created on demand.
func (p *Provider) CheckoutURL(ctx context.Context, params CheckoutParams) (string, error) {
	user, err := p.resolveUser(ctx, params.User)
	if err != nil {
		return "", err
	}

	priceStripeID := params.PriceStripeID
	if priceStripeID == "" {
		if params.PriceSlug == "" {
			return "", fmt.Errorf("%w: price slug or price id is required", mirror.ErrPriceNotFound)
		}
		price, err := p.store.PriceBySlug(ctx, params.PriceSlug)
		if err != nil {
			return "", fmt.Errorf("failed to look up price: %w", err)
		}
		if price == nil {
			return "", fmt.Errorf("%w: %s", mirror.ErrPriceNotFound, params.PriceSlug)
		}
		priceStripeID = price.StripeID
	}

	cust, err := p.GetOrCreateCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{metadataUserIDKey: user.UserID}
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		Customer:   stripe.String(cust.StripeID),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceStripeID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	session, err := p.api.CreateCheckoutSession(ctx, sessionParams)
	if err != nil {
		p.metrics.RecordAPICall("/v1/checkout/sessions", "error")
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	p.metrics.RecordAPICall("/v1/checkout/sessions", "success")

	p.logger.Info("created checkout session",
		mirror.Field{Key: "user_id", Value: user.UserID},
		mirror.Field{Key: "session_id", Value: session.ID})
	return session.URL, nil
}

// PortalURL creates a billing portal session for the user's existing customer
// and returns its URL. The user must already have a mirrored customer.
func (p *Provider) PortalURL(ctx context.Context, userID, returnURL string) (string, error) {
	cust, err := p.store.CustomerByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up customer: %w", err)
	}
	if cust == nil {
		return "", fmt.Errorf("%w: no customer for user %s", mirror.ErrCustomerNotFound, userID)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer: stripe.String(cust.StripeID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	session, err := p.api.CreatePortalSession(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall("/v1/billing_portal/sessions", "error")
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	p.metrics.RecordAPICall("/v1/billing_portal/sessions", "success")

	return session.URL, nil
}

// CancelCurrentSubscription cancels the user's active subscription, either at
// the period end (atPeriodEnd) or immediately. The local mirror is updated by
// the resulting subscription webhook; callers that need immediate local state
// should follow with a sync.
func (p *Provider) CancelCurrentSubscription(ctx context.Context, userID string, atPeriodEnd bool) error {
	sub, err := p.store.CurrentSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}
	if sub == nil {
		return fmt.Errorf("%w: no active subscription for user %s", mirror.ErrSubscriptionNotFound, userID)
	}

	if atPeriodEnd {
		_, err = p.api.UpdateSubscription(ctx, sub.StripeID, &stripe.SubscriptionUpdateParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	} else {
		_, err = p.api.CancelSubscription(ctx, sub.StripeID, nil)
	}
	if err != nil {
		p.metrics.RecordAPICall("/v1/subscriptions", "error")
		return fmt.Errorf("failed to cancel subscription %s: %w", sub.StripeID, err)
	}
	p.metrics.RecordAPICall("/v1/subscriptions", "success")

	p.logger.Info("canceled subscription",
		mirror.Field{Key: "user_id", Value: userID},
		mirror.Field{Key: "subscription_id", Value: sub.StripeID},
		mirror.Field{Key: "at_period_end", Value: atPeriodEnd})
	return nil
}
