package stripe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func TestCheckoutURL(t *testing.T) {
	fake := &fakeAPI{}
	provider, store := newTestProvider(t, fake, Config{
		Products: map[string]string{"pro": "prod_pro"},
	})
	seedCatalog(t, store)

	url, err := provider.CheckoutURL(context.Background(), CheckoutParams{
		User:       mirror.UserInfo{UserID: testUserID, Email: "test@example.com"},
		PriceSlug:  "pro_usd_month",
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
		Metadata:   map[string]string{"plan": "pro"},
	})
	if err != nil {
		t.Fatalf("Failed to create checkout session: %v", err)
	}
	if url == "" {
		t.Fatal("Expected a session URL")
	}

	if len(fake.checkoutParams) != 1 {
		t.Fatalf("Expected 1 checkout session, got %d", len(fake.checkoutParams))
	}
	params := fake.checkoutParams[0]
	if len(params.LineItems) != 1 || *params.LineItems[0].Price != "price_pro_monthly" {
		t.Errorf("Expected line item for price_pro_monthly, got %+v", params.LineItems)
	}
	if params.SubscriptionData == nil || params.SubscriptionData.Metadata["user_id"] != testUserID {
		t.Error("Expected subscription metadata to carry the user id")
	}
	if params.SubscriptionData.Metadata["plan"] != "pro" {
		t.Error("Expected caller metadata to be forwarded")
	}

	// The customer was created on demand and mirrored.
	if len(fake.createdCustomers) != 1 {
		t.Errorf("Expected customer to be created on demand, got %d creates", len(fake.createdCustomers))
	}
	cust, err := store.CustomerByUserID(context.Background(), testUserID)
	if err != nil || cust == nil {
		t.Errorf("Expected mirrored customer, got %v, %v", cust, err)
	}
}

func TestCheckoutURLByPriceID(t *testing.T) {
	fake := &fakeAPI{}
	provider, _ := newTestProvider(t, fake, Config{})

	// An explicit price id bypasses the local slug lookup entirely.
	_, err := provider.CheckoutURL(context.Background(), CheckoutParams{
		User:          mirror.UserInfo{UserID: testUserID},
		PriceStripeID: "price_direct",
		SuccessURL:    "https://app.example.com/success",
		CancelURL:     "https://app.example.com/cancel",
	})
	if err != nil {
		t.Fatalf("Failed to create checkout session: %v", err)
	}
	if *fake.checkoutParams[0].LineItems[0].Price != "price_direct" {
		t.Errorf("Expected price_direct, got %q", *fake.checkoutParams[0].LineItems[0].Price)
	}
}

func TestCheckoutURLUnknownSlug(t *testing.T) {
	provider, _ := newTestProvider(t, &fakeAPI{}, Config{})

	_, err := provider.CheckoutURL(context.Background(), CheckoutParams{
		User:      mirror.UserInfo{UserID: testUserID},
		PriceSlug: "nonexistent_usd_month",
	})
	if !errors.Is(err, mirror.ErrPriceNotFound) {
		t.Errorf("Expected ErrPriceNotFound, got %v", err)
	}

	_, err = provider.CheckoutURL(context.Background(), CheckoutParams{
		User: mirror.UserInfo{UserID: testUserID},
	})
	if !errors.Is(err, mirror.ErrPriceNotFound) {
		t.Errorf("Expected ErrPriceNotFound without any price selector, got %v", err)
	}
}

func TestPortalURL(t *testing.T) {
	fake := &fakeAPI{}
	provider, store := newTestProvider(t, fake, Config{})

	_, err := provider.PortalURL(context.Background(), testUserID, "https://app.example.com/account")
	if !errors.Is(err, mirror.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound, got %v", err)
	}

	seedCustomer(t, store)
	url, err := provider.PortalURL(context.Background(), testUserID, "https://app.example.com/account")
	if err != nil {
		t.Fatalf("Failed to create portal session: %v", err)
	}
	if url == "" {
		t.Fatal("Expected a portal URL")
	}
	if len(fake.portalParams) != 1 || *fake.portalParams[0].Customer != testCustomerID {
		t.Errorf("Expected portal session for %q, got %+v", testCustomerID, fake.portalParams)
	}
}

func TestCancelCurrentSubscription(t *testing.T) {
	fake := &fakeAPI{}
	provider, store := newTestProvider(t, fake, Config{})

	err := provider.CancelCurrentSubscription(context.Background(), testUserID, true)
	if !errors.Is(err, mirror.ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}

	cust := seedCustomer(t, store)
	_, err = store.UpsertSubscription(context.Background(), &mirror.Subscription{
		StripeID:         "sub_active",
		CustomerID:       cust.ID,
		CustomerStripeID: cust.StripeID,
		UserID:           cust.UserID,
		Status:           "active",
		Created:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to seed subscription: %v", err)
	}

	// At period end: the remote subscription is flagged, not canceled.
	if err := provider.CancelCurrentSubscription(context.Background(), testUserID, true); err != nil {
		t.Fatalf("Failed to cancel at period end: %v", err)
	}
	if len(fake.updateCalls) != 1 || len(fake.cancelCalls) != 0 {
		t.Fatalf("Expected 1 update and 0 cancels, got %d and %d", len(fake.updateCalls), len(fake.cancelCalls))
	}
	if !*fake.updateCalls[0].CancelAtPeriodEnd {
		t.Error("Expected cancel_at_period_end to be set")
	}

	if err := provider.CancelCurrentSubscription(context.Background(), testUserID, false); err != nil {
		t.Fatalf("Failed to cancel immediately: %v", err)
	}
	if len(fake.cancelCalls) != 1 || fake.cancelCalls[0] != "sub_active" {
		t.Errorf("Expected immediate cancel of sub_active, got %v", fake.cancelCalls)
	}
}
