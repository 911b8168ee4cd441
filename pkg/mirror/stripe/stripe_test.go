package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
	"github.com/mihaimyh/stripemirror/storage/memory"
)

const (
	testUserID        = "user_123"
	testCustomerID    = "cus_123"
	testWebhookSecret = "whsec_test_secret"
)

// fakeAPI implements the api interface with canned data so tests can drive
// the sync and action paths without network access.
type fakeAPI struct {
	products       []*stripe.Product
	prices         map[string][]*stripe.Price // keyed by product id
	customers      []*stripe.Customer
	subscriptions  []*stripe.Subscription
	invoices       []*stripe.Invoice
	paymentMethods []*stripe.PaymentMethod

	retrievedCustomer *stripe.Customer
	listErr           error

	createdCustomers []*stripe.CustomerCreateParams
	checkoutParams   []*stripe.CheckoutSessionCreateParams
	portalParams     []*stripe.BillingPortalSessionCreateParams
	updateCalls      []*stripe.SubscriptionUpdateParams
	cancelCalls      []string
}

func listSeq[T any](items []*T, listErr error) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		if listErr != nil {
			yield(nil, listErr)
		}
	}
}

func (f *fakeAPI) Products(ctx context.Context, params *stripe.ProductListParams) iter.Seq2[*stripe.Product, error] {
	return listSeq(f.products, f.listErr)
}

func (f *fakeAPI) Prices(ctx context.Context, params *stripe.PriceListParams) iter.Seq2[*stripe.Price, error] {
	var prices []*stripe.Price
	if params.Product != nil {
		prices = f.prices[*params.Product]
	}
	return listSeq(prices, f.listErr)
}

func (f *fakeAPI) Customers(ctx context.Context, params *stripe.CustomerListParams) iter.Seq2[*stripe.Customer, error] {
	return listSeq(f.customers, f.listErr)
}

func (f *fakeAPI) Subscriptions(ctx context.Context, params *stripe.SubscriptionListParams) iter.Seq2[*stripe.Subscription, error] {
	return listSeq(f.subscriptions, f.listErr)
}

func (f *fakeAPI) Invoices(ctx context.Context, params *stripe.InvoiceListParams) iter.Seq2[*stripe.Invoice, error] {
	return listSeq(f.invoices, f.listErr)
}

func (f *fakeAPI) PaymentMethods(ctx context.Context, params *stripe.PaymentMethodListParams) iter.Seq2[*stripe.PaymentMethod, error] {
	return listSeq(f.paymentMethods, f.listErr)
}

func (f *fakeAPI) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	f.createdCustomers = append(f.createdCustomers, params)
	cust := &stripe.Customer{
		ID:       fmt.Sprintf("cus_created_%d", len(f.createdCustomers)),
		Metadata: params.Metadata,
		Created:  time.Now().Unix(),
	}
	if params.Email != nil {
		cust.Email = *params.Email
	}
	if params.Name != nil {
		cust.Name = *params.Name
	}
	return cust, nil
}

func (f *fakeAPI) RetrieveCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	if f.retrievedCustomer != nil {
		return f.retrievedCustomer, nil
	}
	return &stripe.Customer{ID: id}, nil
}

func (f *fakeAPI) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	for _, sub := range f.subscriptions {
		if sub.ID == id {
			return sub, nil
		}
	}
	return nil, fmt.Errorf("no such subscription: %s", id)
}

func (f *fakeAPI) UpdateSubscription(
	ctx context.Context, id string, params *stripe.SubscriptionUpdateParams,
) (*stripe.Subscription, error) {
	f.updateCalls = append(f.updateCalls, params)
	return &stripe.Subscription{ID: id}, nil
}

func (f *fakeAPI) CancelSubscription(
	ctx context.Context, id string, params *stripe.SubscriptionCancelParams,
) (*stripe.Subscription, error) {
	f.cancelCalls = append(f.cancelCalls, id)
	return &stripe.Subscription{ID: id, Status: "canceled"}, nil
}

func (f *fakeAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	f.checkoutParams = append(f.checkoutParams, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func (f *fakeAPI) CreatePortalSession(
	ctx context.Context, params *stripe.BillingPortalSessionCreateParams,
) (*stripe.BillingPortalSession, error) {
	f.portalParams = append(f.portalParams, params)
	return &stripe.BillingPortalSession{ID: "bps_test_1", URL: "https://billing.stripe.com/p/session/bps_test_1"}, nil
}

// newTestProvider builds an engine against the in-memory store and a fake API.
func newTestProvider(t *testing.T, fake *fakeAPI, config Config) (*Provider, *memory.Storage) {
	t.Helper()

	store := memory.New()
	config.Store = store
	if config.APIKey == "" {
		config.APIKey = "sk_test_key"
	}
	if config.WebhookSecret == "" {
		config.WebhookSecret = testWebhookSecret
	}

	provider, err := NewProvider(config)
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	if fake != nil {
		provider.api = fake
	}
	return provider, store
}

// signPayload produces a Stripe-Signature header value for body.
func signPayload(secret string, body []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// seedCustomer inserts a mirrored customer for testUserID.
func seedCustomer(t *testing.T, store mirror.Store) *mirror.Customer {
	t.Helper()

	_, err := store.UpsertCustomer(context.Background(), &mirror.Customer{
		StripeID: testCustomerID,
		UserID:   testUserID,
		Email:    "test@example.com",
		Created:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed customer: %v", err)
	}
	cust, err := store.CustomerByStripeID(context.Background(), testCustomerID)
	if err != nil || cust == nil {
		t.Fatalf("Failed to read back customer: %v", err)
	}
	return cust
}

// seedCatalog inserts a mirrored product and price and returns their ids.
func seedCatalog(t *testing.T, store mirror.Store) (productID, priceID string) {
	t.Helper()
	ctx := context.Background()

	productID, err := store.UpsertProduct(ctx, &mirror.Product{
		StripeID: "prod_pro",
		Name:     "Pro",
		Active:   true,
		Slug:     "pro",
		Created:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}

	amount := int64(1500)
	priceID, err = store.UpsertPrice(ctx, &mirror.Price{
		StripeID:        "price_pro_monthly",
		ProductID:       productID,
		ProductStripeID: "prod_pro",
		Active:          true,
		Currency:        "usd",
		UnitAmount:      &amount,
		Type:            "recurring",
		Interval:        "month",
		Slug:            "pro_usd_month",
		Created:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed price: %v", err)
	}
	return productID, priceID
}
