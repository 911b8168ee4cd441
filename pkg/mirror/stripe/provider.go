// Package stripe implements the synchronization engine that keeps a local
// mirror.Store consistent with a Stripe account: webhook-driven
// reconciliation, paginated backfill sync, customer resolution, and thin
// checkout/portal call-throughs.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

const (
	defaultPageSize          = 100
	maxWebhookBodyBytes      = 256 * 1024
	metadataUserIDKey        = "user_id"
	subscriptionStatusActive = "active"
	priceTypeOneTime         = "one_time"
	priceIntervalOneTime     = "once"
)

// Config configures the engine. Store, APIKey and WebhookSecret are required
// for full operation; an engine without a webhook secret refuses webhook
// traffic but can still run backfill syncs.
type Config struct {
	// Store is the local mirror persistence backend (required).
	Store mirror.Store

	// APIKey is the Stripe secret key used for outbound calls.
	APIKey string

	// WebhookSecret is the endpoint signing secret (whsec_...) used to verify
	// incoming webhook requests. The signature is the sole authentication
	// boundary of the webhook surface.
	WebhookSecret string

	// Products maps human-readable product slugs to Stripe product ids.
	// Both the sync and webhook paths resolve slugs through this table.
	Products map[string]string

	// UserResolver maps an ambient request context to the acting user.
	// Optional; required only for action methods called without explicit
	// user identity.
	UserResolver func(ctx context.Context) (mirror.UserInfo, error)

	// Callbacks are optional per-event handlers invoked after reconciliation.
	Callbacks mirror.Callbacks

	// Logger is optional; defaults to a no-op logger.
	Logger mirror.Logger

	// Metrics is optional; defaults to no-op metrics.
	Metrics mirror.Metrics
}

// Provider is the engine instance. All methods are safe for concurrent use.
type Provider struct {
	store         mirror.Store
	api           api
	products      map[string]string // slug -> Stripe product id
	slugs         map[string]string // Stripe product id -> slug
	webhookSecret []byte
	userResolver  func(ctx context.Context) (mirror.UserInfo, error)
	callbacks     mirror.Callbacks
	logger        mirror.Logger
	metrics       mirror.Metrics

	// createGroup collapses concurrent GetOrCreateCustomer calls for the
	// same user so at most one remote customer is created per user per
	// process.
	createGroup singleflight.Group
}

// NewProvider creates a new engine.
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: store is required", mirror.ErrNotConfigured)
	}

	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", mirror.ErrNotConfigured)
	}

	products := make(map[string]string, len(config.Products))
	slugs := make(map[string]string, len(config.Products))
	for slug, productID := range config.Products {
		products[slug] = productID
		slugs[productID] = slug
	}

	logger := config.Logger
	if logger == nil {
		logger = &mirror.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &mirror.NoopMetrics{}
	}

	return &Provider{
		store:         config.Store,
		api:           newClientAPI(apiKey),
		products:      products,
		slugs:         slugs,
		webhookSecret: []byte(strings.TrimSpace(config.WebhookSecret)),
		userResolver:  config.UserResolver,
		callbacks:     config.Callbacks,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Store returns the underlying mirror store for direct lookup queries.
func (p *Provider) Store() mirror.Store {
	return p.store
}

// WebhookHandler returns the HTTP handler for Stripe webhook deliveries.
// The handler requires the raw, unmodified request body; mount it directly
// or through one of the middleware adapters.
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}

// GetOrCreateCustomer returns the local customer for the user, creating the
// remote Stripe customer (tagged with the user id in metadata so backfill can
// later associate it) and its local mirror row when none exists yet.
func (p *Provider) GetOrCreateCustomer(ctx context.Context, info mirror.UserInfo) (*mirror.Customer, error) {
	if info.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", mirror.ErrNotConfigured)
	}

	existing, err := p.store.CustomerByUserID(ctx, info.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	v, err, _ := p.createGroup.Do(info.UserID, func() (interface{}, error) {
		return p.createCustomer(ctx, info)
	})
	if err != nil {
		return nil, err
	}
	return v.(*mirror.Customer), nil
}

func (p *Provider) createCustomer(ctx context.Context, info mirror.UserInfo) (*mirror.Customer, error) {
	// Re-check under the singleflight lock; a concurrent caller may have
	// completed the creation already.
	existing, err := p.store.CustomerByUserID(ctx, info.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	params := &stripe.CustomerCreateParams{
		Email: stripe.String(info.Email),
		Metadata: map[string]string{
			metadataUserIDKey: info.UserID,
		},
	}
	if info.Name != "" {
		params.Name = stripe.String(info.Name)
	}

	cust, err := p.api.CreateCustomer(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall("/v1/customers", "error")
		return nil, fmt.Errorf("failed to create stripe customer: %w", err)
	}
	p.metrics.RecordAPICall("/v1/customers", "success")

	if _, err := p.store.UpsertCustomer(ctx, customerFromStripe(cust, info.UserID)); err != nil {
		return nil, fmt.Errorf("failed to mirror customer: %w", err)
	}

	created, err := p.store.CustomerByStripeID(ctx, cust.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read back customer: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("customer %s missing after upsert", cust.ID)
	}

	p.logger.Info("created stripe customer",
		mirror.Field{Key: "user_id", Value: info.UserID},
		mirror.Field{Key: "customer_id", Value: cust.ID})
	return created, nil
}

// resolveUser returns the explicit user when set, otherwise consults the
// configured UserResolver.
func (p *Provider) resolveUser(ctx context.Context, info mirror.UserInfo) (mirror.UserInfo, error) {
	if info.UserID != "" {
		return info, nil
	}
	if p.userResolver == nil {
		return mirror.UserInfo{}, fmt.Errorf("%w: no user and no user resolver", mirror.ErrNotConfigured)
	}
	resolved, err := p.userResolver(ctx)
	if err != nil {
		return mirror.UserInfo{}, fmt.Errorf("user resolver: %w", err)
	}
	if resolved.UserID == "" {
		return mirror.UserInfo{}, fmt.Errorf("%w: user resolver returned no user", mirror.ErrNotConfigured)
	}
	return resolved, nil
}

// productSlug resolves the configured slug for a Stripe product id; empty
// when the product is not in the configured map.
func (p *Provider) productSlug(productStripeID string) string {
	return p.slugs[productStripeID]
}

// priceSlug composes a price slug from the owning product's slug, the
// currency, and the billing interval. Empty when the product has no slug.
func priceSlug(productSlug, currency, interval string) string {
	if productSlug == "" {
		return ""
	}
	if interval == "" {
		interval = priceIntervalOneTime
	}
	return fmt.Sprintf("%s_%s_%s", productSlug, strings.ToLower(currency), interval)
}

func customerFromStripe(cust *stripe.Customer, userID string) *mirror.Customer {
	c := &mirror.Customer{
		StripeID: cust.ID,
		UserID:   userID,
		Email:    cust.Email,
		Name:     cust.Name,
		Currency: string(cust.Currency),
		Created:  unixTime(cust.Created),
	}
	if len(cust.Metadata) > 0 {
		c.Metadata = cust.Metadata
	}
	return c
}
