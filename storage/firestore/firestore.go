// Package firestore provides a Firestore implementation of the mirror.Store
// interface. Documents are keyed by the entity's StripeID, which makes the
// one-row-per-StripeID guarantee structural; upserts run in transactions to
// preserve the local id and created timestamp across overwrites.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// Storage implements mirror.Store using Google Cloud Firestore.
type Storage struct {
	client *firestore.Client
	config Config
}

// Config holds Firestore storage configuration.
type Config struct {
	// CollectionPrefix is prepended to every collection name.
	// Default: "stripe_"
	CollectionPrefix string
}

// New creates a new Firestore storage adapter.
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.CollectionPrefix == "" {
		config.CollectionPrefix = "stripe_"
	}

	return &Storage{client: client, config: config}, nil
}

func (s *Storage) collection(name string) *firestore.CollectionRef {
	return s.client.Collection(s.config.CollectionPrefix + name)
}

// upsert writes doc under stripeID in the named collection, preserving the
// "id" and "created" fields of an existing document. The caller passes the
// full field map with fresh id/created values for the insert case.
func (s *Storage) upsert(ctx context.Context, collection, stripeID string, doc map[string]interface{}) (string, error) {
	ref := s.collection(collection).Doc(stripeID)
	var id string

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			data := snap.Data()
			if existing, ok := data["id"].(string); ok && existing != "" {
				doc["id"] = existing
			}
			if created, ok := data["created"]; ok {
				doc["created"] = created
			}
		}
		id = doc["id"].(string)
		return tx.Set(ref, doc)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s %s: %w", collection, stripeID, err)
	}
	return id, nil
}

func (s *Storage) get(ctx context.Context, collection, stripeID string) (map[string]interface{}, error) {
	snap, err := s.collection(collection).Doc(stripeID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", collection, stripeID, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return snap.Data(), nil
}

func (s *Storage) delete(ctx context.Context, collection, stripeID string) error {
	if _, err := s.collection(collection).Doc(stripeID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", collection, stripeID, err)
	}
	return nil
}

// queryAll collects the data of every document matched by the query.
func queryAll(ctx context.Context, query firestore.Query) ([]map[string]interface{}, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []map[string]interface{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		docs = append(docs, snap.Data())
	}
}

// queryFirst returns the data of the lowest-StripeID document matched by the
// query, or nil. Ordering in memory avoids composite index requirements.
func queryFirst(ctx context.Context, query firestore.Query) (map[string]interface{}, error) {
	docs, err := queryAll(ctx, query)
	if err != nil {
		return nil, err
	}
	var found map[string]interface{}
	for _, data := range docs {
		if found == nil || getString(data, "stripe_id") < getString(found, "stripe_id") {
			found = data
		}
	}
	return found, nil
}

// UpsertCustomer implements mirror.Store.
func (s *Storage) UpsertCustomer(ctx context.Context, c *mirror.Customer) (string, error) {
	if c == nil || c.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":        uuid.NewString(),
		"stripe_id": c.StripeID,
		"user_id":   c.UserID,
		"email":     c.Email,
		"name":      c.Name,
		"currency":  c.Currency,
		"created":   nullableTime(c.Created),
	}
	if len(c.Metadata) > 0 {
		doc["metadata"] = c.Metadata
	}
	return s.upsert(ctx, "customers", c.StripeID, doc)
}

// CustomerByStripeID implements mirror.Store.
func (s *Storage) CustomerByStripeID(ctx context.Context, stripeID string) (*mirror.Customer, error) {
	data, err := s.get(ctx, "customers", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return customerFromDoc(data), nil
}

// CustomerByUserID implements mirror.Store.
func (s *Storage) CustomerByUserID(ctx context.Context, userID string) (*mirror.Customer, error) {
	data, err := queryFirst(ctx, s.collection("customers").Where("user_id", "==", userID))
	if err != nil || data == nil {
		return nil, err
	}
	return customerFromDoc(data), nil
}

// DeleteCustomer implements mirror.Store.
func (s *Storage) DeleteCustomer(ctx context.Context, stripeID string) error {
	return s.delete(ctx, "customers", stripeID)
}

// UpsertProduct implements mirror.Store.
func (s *Storage) UpsertProduct(ctx context.Context, p *mirror.Product) (string, error) {
	if p == nil || p.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":          uuid.NewString(),
		"stripe_id":   p.StripeID,
		"name":        p.Name,
		"description": p.Description,
		"active":      p.Active,
		"type":        p.Type,
		"slug":        p.Slug,
		"created":     nullableTime(p.Created),
		"updated":     nullableTime(p.Updated),
	}
	return s.upsert(ctx, "products", p.StripeID, doc)
}

// ProductByStripeID implements mirror.Store.
func (s *Storage) ProductByStripeID(ctx context.Context, stripeID string) (*mirror.Product, error) {
	data, err := s.get(ctx, "products", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return productFromDoc(data), nil
}

// ProductBySlug implements mirror.Store.
func (s *Storage) ProductBySlug(ctx context.Context, slug string) (*mirror.Product, error) {
	if slug == "" {
		return nil, nil
	}
	data, err := queryFirst(ctx, s.collection("products").Where("slug", "==", slug))
	if err != nil || data == nil {
		return nil, err
	}
	return productFromDoc(data), nil
}

// ActiveProducts implements mirror.Store.
func (s *Storage) ActiveProducts(ctx context.Context) ([]*mirror.Product, error) {
	docs, err := queryAll(ctx, s.collection("products").Where("active", "==", true))
	if err != nil {
		return nil, err
	}
	products := make([]*mirror.Product, 0, len(docs))
	for _, data := range docs {
		products = append(products, productFromDoc(data))
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].Created.Equal(products[j].Created) {
			return products[i].Created.Before(products[j].Created)
		}
		return products[i].StripeID < products[j].StripeID
	})
	return products, nil
}

// DeactivateProduct implements mirror.Store.
func (s *Storage) DeactivateProduct(ctx context.Context, stripeID string) error {
	return s.deactivate(ctx, "products", stripeID)
}

func (s *Storage) deactivate(ctx context.Context, collection, stripeID string) error {
	_, err := s.collection(collection).Doc(stripeID).Update(ctx,
		[]firestore.Update{{Path: "active", Value: false}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("failed to deactivate %s %s: %w", collection, stripeID, err)
	}
	return nil
}

// UpsertPrice implements mirror.Store.
func (s *Storage) UpsertPrice(ctx context.Context, p *mirror.Price) (string, error) {
	if p == nil || p.StripeID == "" || p.ProductID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":                uuid.NewString(),
		"stripe_id":         p.StripeID,
		"product_id":        p.ProductID,
		"product_stripe_id": p.ProductStripeID,
		"active":            p.Active,
		"currency":          p.Currency,
		"billing_scheme":    p.BillingScheme,
		"type":              p.Type,
		"interval":          p.Interval,
		"interval_count":    p.IntervalCount,
		"slug":              p.Slug,
		"created":           nullableTime(p.Created),
	}
	if p.UnitAmount != nil {
		doc["unit_amount"] = *p.UnitAmount
	}
	return s.upsert(ctx, "prices", p.StripeID, doc)
}

// PriceByStripeID implements mirror.Store.
func (s *Storage) PriceByStripeID(ctx context.Context, stripeID string) (*mirror.Price, error) {
	data, err := s.get(ctx, "prices", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return priceFromDoc(data), nil
}

// PriceBySlug implements mirror.Store.
func (s *Storage) PriceBySlug(ctx context.Context, slug string) (*mirror.Price, error) {
	if slug == "" {
		return nil, nil
	}
	data, err := queryFirst(ctx, s.collection("prices").Where("slug", "==", slug))
	if err != nil || data == nil {
		return nil, err
	}
	return priceFromDoc(data), nil
}

// PricesByProduct implements mirror.Store.
func (s *Storage) PricesByProduct(ctx context.Context, productID string) ([]*mirror.Price, error) {
	docs, err := queryAll(ctx, s.collection("prices").Where("product_id", "==", productID))
	if err != nil {
		return nil, err
	}
	prices := make([]*mirror.Price, 0, len(docs))
	for _, data := range docs {
		prices = append(prices, priceFromDoc(data))
	}
	sort.Slice(prices, func(i, j int) bool {
		if !prices[i].Created.Equal(prices[j].Created) {
			return prices[i].Created.Before(prices[j].Created)
		}
		return prices[i].StripeID < prices[j].StripeID
	})
	return prices, nil
}

// DeactivatePrice implements mirror.Store.
func (s *Storage) DeactivatePrice(ctx context.Context, stripeID string) error {
	return s.deactivate(ctx, "prices", stripeID)
}

// UpsertSubscription implements mirror.Store.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *mirror.Subscription) (string, error) {
	if sub == nil || sub.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":                   uuid.NewString(),
		"stripe_id":            sub.StripeID,
		"customer_id":          sub.CustomerID,
		"customer_stripe_id":   sub.CustomerStripeID,
		"user_id":              sub.UserID,
		"status":               sub.Status,
		"price_id":             sub.PriceID,
		"price_stripe_id":      sub.PriceStripeID,
		"product_slug":         sub.ProductSlug,
		"currency":             sub.Currency,
		"current_period_start": sub.CurrentPeriodStart,
		"current_period_end":   sub.CurrentPeriodEnd,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"created":              nullableTime(sub.Created),
	}
	setOptionalInt(doc, "canceled_at", sub.CanceledAt)
	setOptionalInt(doc, "ended_at", sub.EndedAt)
	setOptionalInt(doc, "trial_start", sub.TrialStart)
	setOptionalInt(doc, "trial_end", sub.TrialEnd)
	return s.upsert(ctx, "subscriptions", sub.StripeID, doc)
}

// SubscriptionByStripeID implements mirror.Store.
func (s *Storage) SubscriptionByStripeID(ctx context.Context, stripeID string) (*mirror.Subscription, error) {
	data, err := s.get(ctx, "subscriptions", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return subscriptionFromDoc(data), nil
}

// SubscriptionsByUser implements mirror.Store.
func (s *Storage) SubscriptionsByUser(ctx context.Context, userID string) ([]*mirror.Subscription, error) {
	docs, err := queryAll(ctx, s.collection("subscriptions").Where("user_id", "==", userID))
	if err != nil {
		return nil, err
	}
	subs := make([]*mirror.Subscription, 0, len(docs))
	for _, data := range docs {
		subs = append(subs, subscriptionFromDoc(data))
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Created.Equal(subs[j].Created) {
			return subs[i].Created.Before(subs[j].Created)
		}
		return subs[i].StripeID < subs[j].StripeID
	})
	return subs, nil
}

// CurrentSubscription implements mirror.Store.
func (s *Storage) CurrentSubscription(ctx context.Context, userID string) (*mirror.Subscription, error) {
	subs, err := s.SubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if sub.Status == "active" {
			return sub, nil
		}
	}
	return nil, nil
}

// DeleteSubscription implements mirror.Store.
func (s *Storage) DeleteSubscription(ctx context.Context, stripeID string) error {
	return s.delete(ctx, "subscriptions", stripeID)
}

// UpsertInvoice implements mirror.Store.
func (s *Storage) UpsertInvoice(ctx context.Context, i *mirror.Invoice) (string, error) {
	if i == nil || i.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":                     uuid.NewString(),
		"stripe_id":              i.StripeID,
		"customer_id":            i.CustomerID,
		"customer_stripe_id":     i.CustomerStripeID,
		"user_id":                i.UserID,
		"subscription_id":        i.SubscriptionID,
		"subscription_stripe_id": i.SubscriptionStripeID,
		"status":                 i.Status,
		"currency":               i.Currency,
		"amount_due":             i.AmountDue,
		"amount_paid":            i.AmountPaid,
		"amount_remaining":       i.AmountRemaining,
		"subtotal":               i.Subtotal,
		"total":                  i.Total,
		"pdf_url":                i.PDFURL,
		"hosted_url":             i.HostedURL,
		"billing_reason":         i.BillingReason,
		"period_start":           i.PeriodStart,
		"period_end":             i.PeriodEnd,
		"created":                nullableTime(i.Created),
	}
	setOptionalInt(doc, "tax", i.Tax)
	setOptionalInt(doc, "due_date", i.DueDate)
	setOptionalInt(doc, "paid_at", i.PaidAt)
	return s.upsert(ctx, "invoices", i.StripeID, doc)
}

// InvoiceByStripeID implements mirror.Store.
func (s *Storage) InvoiceByStripeID(ctx context.Context, stripeID string) (*mirror.Invoice, error) {
	data, err := s.get(ctx, "invoices", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return invoiceFromDoc(data), nil
}

// InvoicesByUser implements mirror.Store.
func (s *Storage) InvoicesByUser(ctx context.Context, userID string, limit int) ([]*mirror.Invoice, error) {
	docs, err := queryAll(ctx, s.collection("invoices").Where("user_id", "==", userID))
	if err != nil {
		return nil, err
	}
	invoices := make([]*mirror.Invoice, 0, len(docs))
	for _, data := range docs {
		invoices = append(invoices, invoiceFromDoc(data))
	}
	sort.Slice(invoices, func(i, j int) bool {
		if !invoices[i].Created.Equal(invoices[j].Created) {
			return invoices[i].Created.After(invoices[j].Created)
		}
		return invoices[i].StripeID > invoices[j].StripeID
	})
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

// UpsertPaymentMethod implements mirror.Store.
func (s *Storage) UpsertPaymentMethod(ctx context.Context, pm *mirror.PaymentMethod) (string, error) {
	if pm == nil || pm.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	doc := map[string]interface{}{
		"id":                 uuid.NewString(),
		"stripe_id":          pm.StripeID,
		"customer_id":        pm.CustomerID,
		"customer_stripe_id": pm.CustomerStripeID,
		"user_id":            pm.UserID,
		"type":               pm.Type,
		"is_default":         pm.Default,
		"created":            nullableTime(pm.Created),
	}
	if pm.Card != nil {
		doc["card_brand"] = pm.Card.Brand
		doc["card_last4"] = pm.Card.Last4
		doc["card_exp_month"] = pm.Card.ExpMonth
		doc["card_exp_year"] = pm.Card.ExpYear
	}
	return s.upsert(ctx, "payment_methods", pm.StripeID, doc)
}

// PaymentMethodByStripeID implements mirror.Store.
func (s *Storage) PaymentMethodByStripeID(ctx context.Context, stripeID string) (*mirror.PaymentMethod, error) {
	data, err := s.get(ctx, "payment_methods", stripeID)
	if err != nil || data == nil {
		return nil, err
	}
	return paymentMethodFromDoc(data), nil
}

// PaymentMethodsByUser implements mirror.Store.
func (s *Storage) PaymentMethodsByUser(ctx context.Context, userID string) ([]*mirror.PaymentMethod, error) {
	docs, err := queryAll(ctx, s.collection("payment_methods").Where("user_id", "==", userID))
	if err != nil {
		return nil, err
	}
	pms := make([]*mirror.PaymentMethod, 0, len(docs))
	for _, data := range docs {
		pms = append(pms, paymentMethodFromDoc(data))
	}
	sort.Slice(pms, func(i, j int) bool {
		if pms[i].Default != pms[j].Default {
			return pms[i].Default
		}
		if !pms[i].Created.Equal(pms[j].Created) {
			return pms[i].Created.Before(pms[j].Created)
		}
		return pms[i].StripeID < pms[j].StripeID
	})
	return pms, nil
}

// DeletePaymentMethod implements mirror.Store.
func (s *Storage) DeletePaymentMethod(ctx context.Context, stripeID string) error {
	return s.delete(ctx, "payment_methods", stripeID)
}

func customerFromDoc(data map[string]interface{}) *mirror.Customer {
	c := &mirror.Customer{
		ID:       getString(data, "id"),
		StripeID: getString(data, "stripe_id"),
		UserID:   getString(data, "user_id"),
		Email:    getString(data, "email"),
		Name:     getString(data, "name"),
		Currency: getString(data, "currency"),
		Created:  getTime(data, "created"),
	}
	if meta, ok := data["metadata"].(map[string]interface{}); ok {
		c.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if str, ok := v.(string); ok {
				c.Metadata[k] = str
			}
		}
	}
	return c
}

func productFromDoc(data map[string]interface{}) *mirror.Product {
	return &mirror.Product{
		ID:          getString(data, "id"),
		StripeID:    getString(data, "stripe_id"),
		Name:        getString(data, "name"),
		Description: getString(data, "description"),
		Active:      getBool(data, "active"),
		Type:        getString(data, "type"),
		Slug:        getString(data, "slug"),
		Created:     getTime(data, "created"),
		Updated:     getTime(data, "updated"),
	}
}

func priceFromDoc(data map[string]interface{}) *mirror.Price {
	return &mirror.Price{
		ID:              getString(data, "id"),
		StripeID:        getString(data, "stripe_id"),
		ProductID:       getString(data, "product_id"),
		ProductStripeID: getString(data, "product_stripe_id"),
		Active:          getBool(data, "active"),
		Currency:        getString(data, "currency"),
		UnitAmount:      getOptionalInt(data, "unit_amount"),
		BillingScheme:   getString(data, "billing_scheme"),
		Type:            getString(data, "type"),
		Interval:        getString(data, "interval"),
		IntervalCount:   getInt(data, "interval_count"),
		Slug:            getString(data, "slug"),
		Created:         getTime(data, "created"),
	}
}

func subscriptionFromDoc(data map[string]interface{}) *mirror.Subscription {
	return &mirror.Subscription{
		ID:                 getString(data, "id"),
		StripeID:           getString(data, "stripe_id"),
		CustomerID:         getString(data, "customer_id"),
		CustomerStripeID:   getString(data, "customer_stripe_id"),
		UserID:             getString(data, "user_id"),
		Status:             getString(data, "status"),
		PriceID:            getString(data, "price_id"),
		PriceStripeID:      getString(data, "price_stripe_id"),
		ProductSlug:        getString(data, "product_slug"),
		Currency:           getString(data, "currency"),
		CurrentPeriodStart: getInt(data, "current_period_start"),
		CurrentPeriodEnd:   getInt(data, "current_period_end"),
		CancelAtPeriodEnd:  getBool(data, "cancel_at_period_end"),
		CanceledAt:         getOptionalInt(data, "canceled_at"),
		EndedAt:            getOptionalInt(data, "ended_at"),
		TrialStart:         getOptionalInt(data, "trial_start"),
		TrialEnd:           getOptionalInt(data, "trial_end"),
		Created:            getTime(data, "created"),
	}
}

func invoiceFromDoc(data map[string]interface{}) *mirror.Invoice {
	return &mirror.Invoice{
		ID:                   getString(data, "id"),
		StripeID:             getString(data, "stripe_id"),
		CustomerID:           getString(data, "customer_id"),
		CustomerStripeID:     getString(data, "customer_stripe_id"),
		UserID:               getString(data, "user_id"),
		SubscriptionID:       getString(data, "subscription_id"),
		SubscriptionStripeID: getString(data, "subscription_stripe_id"),
		Status:               getString(data, "status"),
		Currency:             getString(data, "currency"),
		AmountDue:            getInt(data, "amount_due"),
		AmountPaid:           getInt(data, "amount_paid"),
		AmountRemaining:      getInt(data, "amount_remaining"),
		Subtotal:             getInt(data, "subtotal"),
		Total:                getInt(data, "total"),
		Tax:                  getOptionalInt(data, "tax"),
		PDFURL:               getString(data, "pdf_url"),
		HostedURL:            getString(data, "hosted_url"),
		BillingReason:        getString(data, "billing_reason"),
		PeriodStart:          getInt(data, "period_start"),
		PeriodEnd:            getInt(data, "period_end"),
		DueDate:              getOptionalInt(data, "due_date"),
		PaidAt:               getOptionalInt(data, "paid_at"),
		Created:              getTime(data, "created"),
	}
}

func paymentMethodFromDoc(data map[string]interface{}) *mirror.PaymentMethod {
	pm := &mirror.PaymentMethod{
		ID:               getString(data, "id"),
		StripeID:         getString(data, "stripe_id"),
		CustomerID:       getString(data, "customer_id"),
		CustomerStripeID: getString(data, "customer_stripe_id"),
		UserID:           getString(data, "user_id"),
		Type:             getString(data, "type"),
		Default:          getBool(data, "is_default"),
		Created:          getTime(data, "created"),
	}
	if _, ok := data["card_brand"]; ok {
		pm.Card = &mirror.Card{
			Brand:    getString(data, "card_brand"),
			Last4:    getString(data, "card_last4"),
			ExpMonth: getInt(data, "card_exp_month"),
			ExpYear:  getInt(data, "card_exp_year"),
		}
	}
	return pm
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getInt(data map[string]interface{}, key string) int64 {
	if v, ok := data[key].(int64); ok {
		return v
	}
	return 0
}

func setOptionalInt(doc map[string]interface{}, key string, v *int64) {
	if v == nil {
		doc[key] = nil
		return
	}
	doc[key] = *v
}

func getOptionalInt(data map[string]interface{}, key string) *int64 {
	if v, ok := data[key].(int64); ok {
		return &v
	}
	return nil
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
