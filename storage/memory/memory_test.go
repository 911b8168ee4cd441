package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func TestUpsertCustomer(t *testing.T) {
	store := New()
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := store.UpsertCustomer(ctx, &mirror.Customer{
		StripeID: "cus_1",
		UserID:   "user_1",
		Email:    "a@example.com",
		Created:  created,
	})
	if err != nil {
		t.Fatalf("Failed to upsert customer: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a local id")
	}

	// A second upsert for the same StripeID patches fields but keeps the
	// local id and creation time.
	id2, err := store.UpsertCustomer(ctx, &mirror.Customer{
		StripeID: "cus_1",
		UserID:   "user_1",
		Email:    "b@example.com",
		Created:  created.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to upsert customer: %v", err)
	}
	if id2 != id {
		t.Errorf("Expected stable id %q, got %q", id, id2)
	}

	cust, err := store.CustomerByStripeID(ctx, "cus_1")
	if err != nil || cust == nil {
		t.Fatalf("Failed to read back customer: %v", err)
	}
	if cust.Email != "b@example.com" {
		t.Errorf("Expected updated email, got %q", cust.Email)
	}
	if !cust.Created.Equal(created) {
		t.Errorf("Expected original creation time, got %v", cust.Created)
	}
}

func TestUpsertValidation(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.UpsertCustomer(ctx, &mirror.Customer{}); !errors.Is(err, mirror.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for empty StripeID, got %v", err)
	}
	if _, err := store.UpsertCustomer(ctx, nil); !errors.Is(err, mirror.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for nil, got %v", err)
	}
	if _, err := store.UpsertPrice(ctx, &mirror.Price{StripeID: "price_1"}); !errors.Is(err, mirror.ErrInvalidEntity) {
		t.Errorf("Expected ErrInvalidEntity for price without product, got %v", err)
	}
}

func TestMissingLookupsReturnNil(t *testing.T) {
	store := New()
	ctx := context.Background()

	if c, err := store.CustomerByStripeID(ctx, "cus_none"); c != nil || err != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", c, err)
	}
	if c, err := store.CustomerByUserID(ctx, "user_none"); c != nil || err != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", c, err)
	}
	if p, err := store.ProductBySlug(ctx, "nope"); p != nil || err != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", p, err)
	}
	if p, err := store.PriceBySlug(ctx, ""); p != nil || err != nil {
		t.Errorf("Expected (nil, nil) for empty slug, got (%v, %v)", p, err)
	}
	if s, err := store.CurrentSubscription(ctx, "user_none"); s != nil || err != nil {
		t.Errorf("Expected (nil, nil), got (%v, %v)", s, err)
	}
}

func TestDeletesAreSilent(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.DeleteCustomer(ctx, "cus_none"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := store.DeleteSubscription(ctx, "sub_none"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := store.DeactivateProduct(ctx, "prod_none"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := store.DeactivatePrice(ctx, "price_none"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := store.DeletePaymentMethod(ctx, "pm_none"); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
}

func TestDeactivateProduct(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.UpsertProduct(ctx, &mirror.Product{StripeID: "prod_1", Name: "One", Active: true}); err != nil {
		t.Fatalf("Failed to upsert product: %v", err)
	}
	if err := store.DeactivateProduct(ctx, "prod_1"); err != nil {
		t.Fatalf("Failed to deactivate product: %v", err)
	}

	// The row survives with the flag cleared.
	prod, err := store.ProductByStripeID(ctx, "prod_1")
	if err != nil || prod == nil {
		t.Fatalf("Expected product to remain, got %v, %v", prod, err)
	}
	if prod.Active {
		t.Error("Expected product to be inactive")
	}

	active, err := store.ActiveProducts(ctx)
	if err != nil {
		t.Fatalf("Failed to list active products: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active products, got %d", len(active))
	}
}

func TestCurrentSubscription(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	subs := []*mirror.Subscription{
		{StripeID: "sub_canceled", UserID: "user_1", Status: "canceled", Created: base},
		{StripeID: "sub_active_new", UserID: "user_1", Status: "active", Created: base.Add(2 * time.Hour)},
		{StripeID: "sub_active_old", UserID: "user_1", Status: "active", Created: base.Add(time.Hour)},
		{StripeID: "sub_trial", UserID: "user_1", Status: "trialing", Created: base.Add(3 * time.Hour)},
		{StripeID: "sub_other", UserID: "user_2", Status: "active", Created: base},
	}
	for _, sub := range subs {
		if _, err := store.UpsertSubscription(ctx, sub); err != nil {
			t.Fatalf("Failed to upsert subscription: %v", err)
		}
	}

	// Only exactly "active" counts, oldest first.
	current, err := store.CurrentSubscription(ctx, "user_1")
	if err != nil {
		t.Fatalf("Failed to get current subscription: %v", err)
	}
	if current == nil || current.StripeID != "sub_active_old" {
		t.Errorf("Expected sub_active_old, got %+v", current)
	}

	all, err := store.SubscriptionsByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("Failed to list subscriptions: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 subscriptions, got %d", len(all))
	}
	if all[0].StripeID != "sub_canceled" || all[3].StripeID != "sub_trial" {
		t.Errorf("Expected oldest-first ordering, got %q ... %q", all[0].StripeID, all[3].StripeID)
	}
}

func TestInvoicesByUser(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.UpsertInvoice(ctx, &mirror.Invoice{
			StripeID: fmt.Sprintf("in_%d", i),
			UserID:   "user_1",
			Status:   "paid",
			Created:  base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Failed to upsert invoice: %v", err)
		}
	}

	invoices, err := store.InvoicesByUser(ctx, "user_1", 3)
	if err != nil {
		t.Fatalf("Failed to list invoices: %v", err)
	}
	if len(invoices) != 3 {
		t.Fatalf("Expected 3 invoices, got %d", len(invoices))
	}
	if invoices[0].StripeID != "in_4" || invoices[2].StripeID != "in_2" {
		t.Errorf("Expected newest-first ordering, got %q ... %q", invoices[0].StripeID, invoices[2].StripeID)
	}

	// Zero or negative limit means no limit.
	all, err := store.InvoicesByUser(ctx, "user_1", 0)
	if err != nil || len(all) != 5 {
		t.Errorf("Expected all 5 invoices, got %d, %v", len(all), err)
	}
}

func TestPaymentMethodOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	methods := []*mirror.PaymentMethod{
		{StripeID: "pm_old", UserID: "user_1", Type: "card", Created: base},
		{StripeID: "pm_default", UserID: "user_1", Type: "card", Default: true, Created: base.Add(time.Hour)},
		{StripeID: "pm_new", UserID: "user_1", Type: "card", Created: base.Add(2 * time.Hour)},
	}
	for _, pm := range methods {
		if _, err := store.UpsertPaymentMethod(ctx, pm); err != nil {
			t.Fatalf("Failed to upsert payment method: %v", err)
		}
	}

	pms, err := store.PaymentMethodsByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("Failed to list payment methods: %v", err)
	}
	if len(pms) != 3 {
		t.Fatalf("Expected 3 payment methods, got %d", len(pms))
	}
	if pms[0].StripeID != "pm_default" {
		t.Errorf("Expected default first, got %q", pms[0].StripeID)
	}
	if pms[1].StripeID != "pm_old" || pms[2].StripeID != "pm_new" {
		t.Errorf("Expected oldest-first after default, got %q, %q", pms[1].StripeID, pms[2].StripeID)
	}
}

func TestCopyOnReturn(t *testing.T) {
	store := New()
	ctx := context.Background()

	amount := int64(1000)
	if _, err := store.UpsertProduct(ctx, &mirror.Product{StripeID: "prod_1", Name: "One", Active: true}); err != nil {
		t.Fatalf("Failed to upsert product: %v", err)
	}
	prod, _ := store.ProductByStripeID(ctx, "prod_1")
	if _, err := store.UpsertPrice(ctx, &mirror.Price{
		StripeID: "price_1", ProductID: prod.ID, ProductStripeID: "prod_1",
		Currency: "usd", UnitAmount: &amount, Active: true,
	}); err != nil {
		t.Fatalf("Failed to upsert price: %v", err)
	}

	price, err := store.PriceByStripeID(ctx, "price_1")
	if err != nil || price == nil {
		t.Fatalf("Failed to read back price: %v", err)
	}

	// Mutating the returned row must not leak into the store.
	price.Currency = "eur"
	*price.UnitAmount = 9999

	fresh, _ := store.PriceByStripeID(ctx, "price_1")
	if fresh.Currency != "usd" {
		t.Errorf("Expected stored currency usd, got %q", fresh.Currency)
	}
	if *fresh.UnitAmount != 1000 {
		t.Errorf("Expected stored amount 1000, got %d", *fresh.UnitAmount)
	}

	// Same for the input entity.
	cust := &mirror.Customer{StripeID: "cus_1", UserID: "user_1", Metadata: map[string]string{"k": "v"}}
	if _, err := store.UpsertCustomer(ctx, cust); err != nil {
		t.Fatalf("Failed to upsert customer: %v", err)
	}
	cust.Metadata["k"] = "mutated"

	stored, _ := store.CustomerByStripeID(ctx, "cus_1")
	if stored.Metadata["k"] != "v" {
		t.Errorf("Expected stored metadata to be isolated, got %q", stored.Metadata["k"])
	}
}

func TestClear(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.UpsertCustomer(ctx, &mirror.Customer{StripeID: "cus_1", UserID: "user_1"}); err != nil {
		t.Fatalf("Failed to upsert customer: %v", err)
	}
	store.Clear()

	if cust, _ := store.CustomerByStripeID(ctx, "cus_1"); cust != nil {
		t.Error("Expected store to be empty after Clear")
	}
}
