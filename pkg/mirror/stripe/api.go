package stripe

import (
	"context"
	"iter"

	"github.com/stripe/stripe-go/v83"
)

// api is the subset of the Stripe client the engine calls. List methods
// return auto-paginating iterators (page size set by the caller via
// ListParams.Limit, cursor carried by the SDK). Tests substitute a fake.
type api interface {
	Products(ctx context.Context, params *stripe.ProductListParams) iter.Seq2[*stripe.Product, error]
	Prices(ctx context.Context, params *stripe.PriceListParams) iter.Seq2[*stripe.Price, error]
	Customers(ctx context.Context, params *stripe.CustomerListParams) iter.Seq2[*stripe.Customer, error]
	Subscriptions(ctx context.Context, params *stripe.SubscriptionListParams) iter.Seq2[*stripe.Subscription, error]
	Invoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error]
	PaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) iter.Seq2[*stripe.PaymentMethod, error]

	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)

	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

// clientAPI implements api on the real Stripe client (v83 client API).
type clientAPI struct {
	client *stripe.Client
}

func newClientAPI(apiKey string) *clientAPI {
	return &clientAPI{client: stripe.NewClient(apiKey)}
}

func (c *clientAPI) Products(ctx context.Context, params *stripe.ProductListParams) iter.Seq2[*stripe.Product, error] {
	return func(yield func(*stripe.Product, error) bool) {
		for v, err := range c.client.V1Products.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) Prices(ctx context.Context, params *stripe.PriceListParams) iter.Seq2[*stripe.Price, error] {
	return func(yield func(*stripe.Price, error) bool) {
		for v, err := range c.client.V1Prices.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) Customers(ctx context.Context, params *stripe.CustomerListParams) iter.Seq2[*stripe.Customer, error] {
	return func(yield func(*stripe.Customer, error) bool) {
		for v, err := range c.client.V1Customers.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) Subscriptions(ctx context.Context, params *stripe.SubscriptionListParams) iter.Seq2[*stripe.Subscription, error] {
	return func(yield func(*stripe.Subscription, error) bool) {
		for v, err := range c.client.V1Subscriptions.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) Invoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error] {
	return func(yield func(*stripe.Invoice, error) bool) {
		for v, err := range c.client.V1Invoices.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) PaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) iter.Seq2[*stripe.PaymentMethod, error] {
	return func(yield func(*stripe.PaymentMethod, error) bool) {
		for v, err := range c.client.V1PaymentMethods.List(ctx, params) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func (c *clientAPI) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	return c.client.V1Customers.Create(ctx, params)
}

func (c *clientAPI) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return c.client.V1Customers.Retrieve(ctx, id, nil)
}

func (c *clientAPI) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (c *clientAPI) UpdateSubscription(
	ctx context.Context, id string, params *stripe.SubscriptionUpdateParams,
) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Update(ctx, id, params)
}

func (c *clientAPI) CancelSubscription(
	ctx context.Context, id string, params *stripe.SubscriptionCancelParams,
) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Cancel(ctx, id, params)
}

func (c *clientAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Create(ctx, params)
}

func (c *clientAPI) CreatePortalSession(
	ctx context.Context, params *stripe.BillingPortalSessionCreateParams,
) (*stripe.BillingPortalSession, error) {
	return c.client.V1BillingPortalSessions.Create(ctx, params)
}
