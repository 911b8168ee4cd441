// Package memory provides an in-memory implementation of the mirror.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// Storage implements mirror.Store using in-memory maps keyed by StripeID.
type Storage struct {
	mu             sync.RWMutex
	customers      map[string]*mirror.Customer
	products       map[string]*mirror.Product
	prices         map[string]*mirror.Price
	subscriptions  map[string]*mirror.Subscription
	invoices       map[string]*mirror.Invoice
	paymentMethods map[string]*mirror.PaymentMethod
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		customers:      make(map[string]*mirror.Customer),
		products:       make(map[string]*mirror.Product),
		prices:         make(map[string]*mirror.Price),
		subscriptions:  make(map[string]*mirror.Subscription),
		invoices:       make(map[string]*mirror.Invoice),
		paymentMethods: make(map[string]*mirror.PaymentMethod),
	}
}

// UpsertCustomer implements mirror.Store.
func (s *Storage) UpsertCustomer(ctx context.Context, c *mirror.Customer) (string, error) {
	if c == nil || c.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyCustomer(c)
	if existing, ok := s.customers[c.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.customers[c.StripeID] = stored
	return stored.ID, nil
}

// CustomerByStripeID implements mirror.Store.
func (s *Storage) CustomerByStripeID(ctx context.Context, stripeID string) (*mirror.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[stripeID]
	if !ok {
		return nil, nil
	}
	return copyCustomer(c), nil
}

// CustomerByUserID implements mirror.Store.
func (s *Storage) CustomerByUserID(ctx context.Context, userID string) (*mirror.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *mirror.Customer
	for _, c := range s.customers {
		if c.UserID != userID {
			continue
		}
		if found == nil || c.StripeID < found.StripeID {
			found = c
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyCustomer(found), nil
}

// DeleteCustomer implements mirror.Store.
func (s *Storage) DeleteCustomer(ctx context.Context, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.customers, stripeID)
	return nil
}

// UpsertProduct implements mirror.Store.
func (s *Storage) UpsertProduct(ctx context.Context, p *mirror.Product) (string, error) {
	if p == nil || p.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	if existing, ok := s.products[p.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.products[p.StripeID] = &stored
	return stored.ID, nil
}

// ProductByStripeID implements mirror.Store.
func (s *Storage) ProductByStripeID(ctx context.Context, stripeID string) (*mirror.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[stripeID]
	if !ok {
		return nil, nil
	}
	pCopy := *p
	return &pCopy, nil
}

// ProductBySlug implements mirror.Store.
func (s *Storage) ProductBySlug(ctx context.Context, slug string) (*mirror.Product, error) {
	if slug == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *mirror.Product
	for _, p := range s.products {
		if p.Slug != slug {
			continue
		}
		if found == nil || p.StripeID < found.StripeID {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	pCopy := *found
	return &pCopy, nil
}

// ActiveProducts implements mirror.Store.
func (s *Storage) ActiveProducts(ctx context.Context) ([]*mirror.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var products []*mirror.Product
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		pCopy := *p
		products = append(products, &pCopy)
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
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.products[stripeID]; ok {
		p.Active = false
	}
	return nil
}

// UpsertPrice implements mirror.Store.
func (s *Storage) UpsertPrice(ctx context.Context, p *mirror.Price) (string, error) {
	if p == nil || p.StripeID == "" || p.ProductID == "" {
		return "", mirror.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyPrice(p)
	if existing, ok := s.prices[p.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.prices[p.StripeID] = stored
	return stored.ID, nil
}

// PriceByStripeID implements mirror.Store.
func (s *Storage) PriceByStripeID(ctx context.Context, stripeID string) (*mirror.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[stripeID]
	if !ok {
		return nil, nil
	}
	return copyPrice(p), nil
}

// PriceBySlug implements mirror.Store.
func (s *Storage) PriceBySlug(ctx context.Context, slug string) (*mirror.Price, error) {
	if slug == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *mirror.Price
	for _, p := range s.prices {
		if p.Slug != slug {
			continue
		}
		if found == nil || p.StripeID < found.StripeID {
			found = p
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyPrice(found), nil
}

// PricesByProduct implements mirror.Store.
func (s *Storage) PricesByProduct(ctx context.Context, productID string) ([]*mirror.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prices []*mirror.Price
	for _, p := range s.prices {
		if p.ProductID != productID {
			continue
		}
		prices = append(prices, copyPrice(p))
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
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.prices[stripeID]; ok {
		p.Active = false
	}
	return nil
}

// UpsertSubscription implements mirror.Store.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *mirror.Subscription) (string, error) {
	if sub == nil || sub.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copySubscription(sub)
	if existing, ok := s.subscriptions[sub.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.subscriptions[sub.StripeID] = stored
	return stored.ID, nil
}

// SubscriptionByStripeID implements mirror.Store.
func (s *Storage) SubscriptionByStripeID(ctx context.Context, stripeID string) (*mirror.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[stripeID]
	if !ok {
		return nil, nil
	}
	return copySubscription(sub), nil
}

// SubscriptionsByUser implements mirror.Store.
func (s *Storage) SubscriptionsByUser(ctx context.Context, userID string) ([]*mirror.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userSubscriptionsLocked(userID), nil
}

// CurrentSubscription implements mirror.Store.
func (s *Storage) CurrentSubscription(ctx context.Context, userID string) (*mirror.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.userSubscriptionsLocked(userID) {
		if sub.Status == "active" {
			return sub, nil
		}
	}
	return nil, nil
}

// userSubscriptionsLocked returns copies ordered oldest-first. Callers must
// hold at least the read lock.
func (s *Storage) userSubscriptionsLocked(userID string) []*mirror.Subscription {
	var subs []*mirror.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		subs = append(subs, copySubscription(sub))
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Created.Equal(subs[j].Created) {
			return subs[i].Created.Before(subs[j].Created)
		}
		return subs[i].StripeID < subs[j].StripeID
	})
	return subs
}

// DeleteSubscription implements mirror.Store.
func (s *Storage) DeleteSubscription(ctx context.Context, stripeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscriptions, stripeID)
	return nil
}

// UpsertInvoice implements mirror.Store.
func (s *Storage) UpsertInvoice(ctx context.Context, i *mirror.Invoice) (string, error) {
	if i == nil || i.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyInvoice(i)
	if existing, ok := s.invoices[i.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.invoices[i.StripeID] = stored
	return stored.ID, nil
}

// InvoiceByStripeID implements mirror.Store.
func (s *Storage) InvoiceByStripeID(ctx context.Context, stripeID string) (*mirror.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.invoices[stripeID]
	if !ok {
		return nil, nil
	}
	return copyInvoice(i), nil
}

// InvoicesByUser implements mirror.Store.
func (s *Storage) InvoicesByUser(ctx context.Context, userID string, limit int) ([]*mirror.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var invoices []*mirror.Invoice
	for _, i := range s.invoices {
		if i.UserID != userID {
			continue
		}
		invoices = append(invoices, copyInvoice(i))
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

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyPaymentMethod(pm)
	if existing, ok := s.paymentMethods[pm.StripeID]; ok {
		stored.ID = existing.ID
		stored.Created = existing.Created
	} else {
		stored.ID = uuid.NewString()
	}
	s.paymentMethods[pm.StripeID] = stored
	return stored.ID, nil
}

// PaymentMethodByStripeID implements mirror.Store.
func (s *Storage) PaymentMethodByStripeID(ctx context.Context, stripeID string) (*mirror.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pm, ok := s.paymentMethods[stripeID]
	if !ok {
		return nil, nil
	}
	return copyPaymentMethod(pm), nil
}

// PaymentMethodsByUser implements mirror.Store.
func (s *Storage) PaymentMethodsByUser(ctx context.Context, userID string) ([]*mirror.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pms []*mirror.PaymentMethod
	for _, pm := range s.paymentMethods {
		if pm.UserID != userID {
			continue
		}
		pms = append(pms, copyPaymentMethod(pm))
	}
	// Default instrument first, then oldest-first.
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
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.paymentMethods, stripeID)
	return nil
}

// Clear removes all data (useful for testing).
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customers = make(map[string]*mirror.Customer)
	s.products = make(map[string]*mirror.Product)
	s.prices = make(map[string]*mirror.Price)
	s.subscriptions = make(map[string]*mirror.Subscription)
	s.invoices = make(map[string]*mirror.Invoice)
	s.paymentMethods = make(map[string]*mirror.PaymentMethod)
}

// Copies prevent external mutations of stored rows.

func copyCustomer(c *mirror.Customer) *mirror.Customer {
	cCopy := *c
	if c.Metadata != nil {
		cCopy.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cCopy.Metadata[k] = v
		}
	}
	return &cCopy
}

func copyPrice(p *mirror.Price) *mirror.Price {
	pCopy := *p
	pCopy.UnitAmount = copyInt64(p.UnitAmount)
	return &pCopy
}

func copySubscription(sub *mirror.Subscription) *mirror.Subscription {
	subCopy := *sub
	subCopy.CanceledAt = copyInt64(sub.CanceledAt)
	subCopy.EndedAt = copyInt64(sub.EndedAt)
	subCopy.TrialStart = copyInt64(sub.TrialStart)
	subCopy.TrialEnd = copyInt64(sub.TrialEnd)
	return &subCopy
}

func copyInvoice(i *mirror.Invoice) *mirror.Invoice {
	iCopy := *i
	iCopy.Tax = copyInt64(i.Tax)
	iCopy.DueDate = copyInt64(i.DueDate)
	iCopy.PaidAt = copyInt64(i.PaidAt)
	return &iCopy
}

func copyPaymentMethod(pm *mirror.PaymentMethod) *mirror.PaymentMethod {
	pmCopy := *pm
	if pm.Card != nil {
		card := *pm.Card
		pmCopy.Card = &card
	}
	return &pmCopy
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	vCopy := *v
	return &vCopy
}
