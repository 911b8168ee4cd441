// Package redis provides a caching decorator for a mirror.Store. Hot
// user-scoped lookups (customer by user, current subscription) are served
// from Redis with a TTL; every write that can change a cached answer
// invalidates the affected keys before hitting the inner store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// nullSentinel marks a cached negative lookup so absent rows do not hammer
// the inner store.
const nullSentinel = "null"

// Cache implements mirror.Store by decorating an inner store with Redis
// caching for the per-user lookups on the request hot path.
type Cache struct {
	inner  mirror.Store
	client redis.UniversalClient
	config Config
}

// Config holds Redis cache configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "stripemirror:")
	KeyPrefix string

	// TTL bounds staleness of cached lookups (default: 5 minutes)
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "stripemirror:",
		TTL:       5 * time.Minute,
	}
}

// New creates a caching decorator around inner.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(inner mirror.Store, client redis.UniversalClient, config Config) (*Cache, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripemirror:"
	}
	if config.TTL == 0 {
		config.TTL = 5 * time.Minute
	}

	return &Cache{inner: inner, client: client, config: config}, nil
}

func (c *Cache) customerKey(userID string) string {
	return c.config.KeyPrefix + "customer:" + userID
}

func (c *Cache) subscriptionKey(userID string) string {
	return c.config.KeyPrefix + "subscription:" + userID
}

// cacheGet loads the cached value for key into dest. Returns (true, nil) on a
// hit, including cached negative lookups (dest left nil). Cache errors are
// returned as misses so Redis outages degrade to inner-store reads.
func cacheGet(ctx context.Context, c *Cache, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil and transport errors both fall through to the inner store.
		return false, nil
	}
	if raw == nullSentinel {
		return true, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Cache) cacheSet(ctx context.Context, key string, v interface{}) {
	raw := []byte(nullSentinel)
	if v != nil {
		encoded, err := json.Marshal(v)
		if err != nil {
			return
		}
		raw = encoded
	}
	// Best effort; a failed write only costs a future cache miss.
	c.client.Set(ctx, key, raw, c.config.TTL)
}

func (c *Cache) invalidate(ctx context.Context, keys ...string) {
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}

// UpsertCustomer implements mirror.Store.
func (c *Cache) UpsertCustomer(ctx context.Context, cust *mirror.Customer) (string, error) {
	if cust != nil && cust.UserID != "" {
		c.invalidate(ctx, c.customerKey(cust.UserID))
	}
	return c.inner.UpsertCustomer(ctx, cust)
}

// CustomerByStripeID implements mirror.Store.
func (c *Cache) CustomerByStripeID(ctx context.Context, stripeID string) (*mirror.Customer, error) {
	return c.inner.CustomerByStripeID(ctx, stripeID)
}

// CustomerByUserID implements mirror.Store.
func (c *Cache) CustomerByUserID(ctx context.Context, userID string) (*mirror.Customer, error) {
	key := c.customerKey(userID)

	var cached *mirror.Customer
	if hit, _ := cacheGet(ctx, c, key, &cached); hit {
		return cached, nil
	}

	cust, err := c.inner.CustomerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		c.cacheSet(ctx, key, nil)
	} else {
		c.cacheSet(ctx, key, cust)
	}
	return cust, nil
}

// DeleteCustomer implements mirror.Store.
func (c *Cache) DeleteCustomer(ctx context.Context, stripeID string) error {
	// The user id is only known from the row itself.
	if cust, err := c.inner.CustomerByStripeID(ctx, stripeID); err == nil && cust != nil {
		c.invalidate(ctx, c.customerKey(cust.UserID), c.subscriptionKey(cust.UserID))
	}
	return c.inner.DeleteCustomer(ctx, stripeID)
}

// UpsertProduct implements mirror.Store.
func (c *Cache) UpsertProduct(ctx context.Context, p *mirror.Product) (string, error) {
	return c.inner.UpsertProduct(ctx, p)
}

// ProductByStripeID implements mirror.Store.
func (c *Cache) ProductByStripeID(ctx context.Context, stripeID string) (*mirror.Product, error) {
	return c.inner.ProductByStripeID(ctx, stripeID)
}

// ProductBySlug implements mirror.Store.
func (c *Cache) ProductBySlug(ctx context.Context, slug string) (*mirror.Product, error) {
	return c.inner.ProductBySlug(ctx, slug)
}

// ActiveProducts implements mirror.Store.
func (c *Cache) ActiveProducts(ctx context.Context) ([]*mirror.Product, error) {
	return c.inner.ActiveProducts(ctx)
}

// DeactivateProduct implements mirror.Store.
func (c *Cache) DeactivateProduct(ctx context.Context, stripeID string) error {
	return c.inner.DeactivateProduct(ctx, stripeID)
}

// UpsertPrice implements mirror.Store.
func (c *Cache) UpsertPrice(ctx context.Context, p *mirror.Price) (string, error) {
	return c.inner.UpsertPrice(ctx, p)
}

// PriceByStripeID implements mirror.Store.
func (c *Cache) PriceByStripeID(ctx context.Context, stripeID string) (*mirror.Price, error) {
	return c.inner.PriceByStripeID(ctx, stripeID)
}

// PriceBySlug implements mirror.Store.
func (c *Cache) PriceBySlug(ctx context.Context, slug string) (*mirror.Price, error) {
	return c.inner.PriceBySlug(ctx, slug)
}

// PricesByProduct implements mirror.Store.
func (c *Cache) PricesByProduct(ctx context.Context, productID string) ([]*mirror.Price, error) {
	return c.inner.PricesByProduct(ctx, productID)
}

// DeactivatePrice implements mirror.Store.
func (c *Cache) DeactivatePrice(ctx context.Context, stripeID string) error {
	return c.inner.DeactivatePrice(ctx, stripeID)
}

// UpsertSubscription implements mirror.Store.
func (c *Cache) UpsertSubscription(ctx context.Context, sub *mirror.Subscription) (string, error) {
	if sub != nil && sub.UserID != "" {
		c.invalidate(ctx, c.subscriptionKey(sub.UserID))
	}
	return c.inner.UpsertSubscription(ctx, sub)
}

// SubscriptionByStripeID implements mirror.Store.
func (c *Cache) SubscriptionByStripeID(ctx context.Context, stripeID string) (*mirror.Subscription, error) {
	return c.inner.SubscriptionByStripeID(ctx, stripeID)
}

// SubscriptionsByUser implements mirror.Store.
func (c *Cache) SubscriptionsByUser(ctx context.Context, userID string) ([]*mirror.Subscription, error) {
	return c.inner.SubscriptionsByUser(ctx, userID)
}

// CurrentSubscription implements mirror.Store.
func (c *Cache) CurrentSubscription(ctx context.Context, userID string) (*mirror.Subscription, error) {
	key := c.subscriptionKey(userID)

	var cached *mirror.Subscription
	if hit, _ := cacheGet(ctx, c, key, &cached); hit {
		return cached, nil
	}

	sub, err := c.inner.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		c.cacheSet(ctx, key, nil)
	} else {
		c.cacheSet(ctx, key, sub)
	}
	return sub, nil
}

// DeleteSubscription implements mirror.Store.
func (c *Cache) DeleteSubscription(ctx context.Context, stripeID string) error {
	if sub, err := c.inner.SubscriptionByStripeID(ctx, stripeID); err == nil && sub != nil {
		c.invalidate(ctx, c.subscriptionKey(sub.UserID))
	}
	return c.inner.DeleteSubscription(ctx, stripeID)
}

// UpsertInvoice implements mirror.Store.
func (c *Cache) UpsertInvoice(ctx context.Context, i *mirror.Invoice) (string, error) {
	return c.inner.UpsertInvoice(ctx, i)
}

// InvoiceByStripeID implements mirror.Store.
func (c *Cache) InvoiceByStripeID(ctx context.Context, stripeID string) (*mirror.Invoice, error) {
	return c.inner.InvoiceByStripeID(ctx, stripeID)
}

// InvoicesByUser implements mirror.Store.
func (c *Cache) InvoicesByUser(ctx context.Context, userID string, limit int) ([]*mirror.Invoice, error) {
	return c.inner.InvoicesByUser(ctx, userID, limit)
}

// UpsertPaymentMethod implements mirror.Store.
func (c *Cache) UpsertPaymentMethod(ctx context.Context, pm *mirror.PaymentMethod) (string, error) {
	return c.inner.UpsertPaymentMethod(ctx, pm)
}

// PaymentMethodByStripeID implements mirror.Store.
func (c *Cache) PaymentMethodByStripeID(ctx context.Context, stripeID string) (*mirror.PaymentMethod, error) {
	return c.inner.PaymentMethodByStripeID(ctx, stripeID)
}

// PaymentMethodsByUser implements mirror.Store.
func (c *Cache) PaymentMethodsByUser(ctx context.Context, userID string) ([]*mirror.PaymentMethod, error) {
	return c.inner.PaymentMethodsByUser(ctx, userID)
}

// DeletePaymentMethod implements mirror.Store.
func (c *Cache) DeletePaymentMethod(ctx context.Context, stripeID string) error {
	return c.inner.DeletePaymentMethod(ctx, stripeID)
}
