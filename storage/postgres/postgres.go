// Package postgres provides a PostgreSQL implementation of the mirror.Store
// interface. Upserts use INSERT ... ON CONFLICT on the stripe_id unique
// constraint so concurrent writers for the same remote entity serialize on a
// single row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// Storage implements mirror.Store using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter.
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// InitSchema creates the mirror tables and indexes if they do not exist.
func (s *Storage) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertCustomer implements mirror.Store.
func (s *Storage) UpsertCustomer(ctx context.Context, c *mirror.Customer) (string, error) {
	if c == nil || c.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_customers (stripe_id, user_id, email, name, currency, metadata, created)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (stripe_id) DO UPDATE SET
				user_id = EXCLUDED.user_id,
				email = EXCLUDED.email,
				name = EXCLUDED.name,
				currency = EXCLUDED.currency,
				metadata = EXCLUDED.metadata
			RETURNING id`,
		c.StripeID, c.UserID, c.Email, c.Name, c.Currency, c.Metadata, nullTime(c.Created),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert customer: %w", err)
	}
	return id, nil
}

// CustomerByStripeID implements mirror.Store.
func (s *Storage) CustomerByStripeID(ctx context.Context, stripeID string) (*mirror.Customer, error) {
	return s.customerBy(ctx, "stripe_id = $1", stripeID)
}

// CustomerByUserID implements mirror.Store.
func (s *Storage) CustomerByUserID(ctx context.Context, userID string) (*mirror.Customer, error) {
	return s.customerBy(ctx, "user_id = $1", userID)
}

func (s *Storage) customerBy(ctx context.Context, where string, arg any) (*mirror.Customer, error) {
	var c mirror.Customer
	var created *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, stripe_id, user_id, email, name, currency, metadata, created
			FROM stripe_customers WHERE `+where+` ORDER BY stripe_id LIMIT 1`,
		arg).Scan(&c.ID, &c.StripeID, &c.UserID, &c.Email, &c.Name, &c.Currency, &c.Metadata, &created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if created != nil {
		c.Created = *created
	}
	return &c, nil
}

// DeleteCustomer implements mirror.Store.
func (s *Storage) DeleteCustomer(ctx context.Context, stripeID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM stripe_customers WHERE stripe_id = $1`, stripeID); err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	return nil
}

// UpsertProduct implements mirror.Store.
func (s *Storage) UpsertProduct(ctx context.Context, p *mirror.Product) (string, error) {
	if p == nil || p.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_products (stripe_id, name, description, active, type, slug, created, updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (stripe_id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				active = EXCLUDED.active,
				type = EXCLUDED.type,
				slug = EXCLUDED.slug,
				updated = EXCLUDED.updated
			RETURNING id`,
		p.StripeID, p.Name, p.Description, p.Active, p.Type, p.Slug, nullTime(p.Created), nullTime(p.Updated),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert product: %w", err)
	}
	return id, nil
}

const productColumns = `id, stripe_id, name, description, active, type, slug, created, updated`

func scanProduct(row pgx.Row) (*mirror.Product, error) {
	var p mirror.Product
	var created, updated *time.Time
	err := row.Scan(&p.ID, &p.StripeID, &p.Name, &p.Description, &p.Active, &p.Type, &p.Slug, &created, &updated)
	if err != nil {
		return nil, err
	}
	if created != nil {
		p.Created = *created
	}
	if updated != nil {
		p.Updated = *updated
	}
	return &p, nil
}

// ProductByStripeID implements mirror.Store.
func (s *Storage) ProductByStripeID(ctx context.Context, stripeID string) (*mirror.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM stripe_products WHERE stripe_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ProductBySlug implements mirror.Store.
func (s *Storage) ProductBySlug(ctx context.Context, slug string) (*mirror.Product, error) {
	if slug == "" {
		return nil, nil
	}
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM stripe_products WHERE slug = $1 ORDER BY stripe_id LIMIT 1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ActiveProducts implements mirror.Store.
func (s *Storage) ActiveProducts(ctx context.Context) ([]*mirror.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM stripe_products WHERE active ORDER BY created, stripe_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*mirror.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// DeactivateProduct implements mirror.Store.
func (s *Storage) DeactivateProduct(ctx context.Context, stripeID string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE stripe_products SET active = FALSE WHERE stripe_id = $1`, stripeID); err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	return nil
}

// UpsertPrice implements mirror.Store.
func (s *Storage) UpsertPrice(ctx context.Context, p *mirror.Price) (string, error) {
	if p == nil || p.StripeID == "" || p.ProductID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_prices
			(stripe_id, product_id, product_stripe_id, active, currency, unit_amount,
			 billing_scheme, type, billing_interval, interval_count, slug, created)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (stripe_id) DO UPDATE SET
				product_id = EXCLUDED.product_id,
				product_stripe_id = EXCLUDED.product_stripe_id,
				active = EXCLUDED.active,
				currency = EXCLUDED.currency,
				unit_amount = EXCLUDED.unit_amount,
				billing_scheme = EXCLUDED.billing_scheme,
				type = EXCLUDED.type,
				billing_interval = EXCLUDED.billing_interval,
				interval_count = EXCLUDED.interval_count,
				slug = EXCLUDED.slug
			RETURNING id`,
		p.StripeID, p.ProductID, p.ProductStripeID, p.Active, p.Currency, p.UnitAmount,
		p.BillingScheme, p.Type, p.Interval, p.IntervalCount, p.Slug, nullTime(p.Created),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert price: %w", err)
	}
	return id, nil
}

const priceColumns = `id, stripe_id, product_id, product_stripe_id, active, currency, unit_amount,
	billing_scheme, type, billing_interval, interval_count, slug, created`

func scanPrice(row pgx.Row) (*mirror.Price, error) {
	var p mirror.Price
	var created *time.Time
	err := row.Scan(&p.ID, &p.StripeID, &p.ProductID, &p.ProductStripeID, &p.Active, &p.Currency,
		&p.UnitAmount, &p.BillingScheme, &p.Type, &p.Interval, &p.IntervalCount, &p.Slug, &created)
	if err != nil {
		return nil, err
	}
	if created != nil {
		p.Created = *created
	}
	return &p, nil
}

// PriceByStripeID implements mirror.Store.
func (s *Storage) PriceByStripeID(ctx context.Context, stripeID string) (*mirror.Price, error) {
	p, err := scanPrice(s.pool.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM stripe_prices WHERE stripe_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return p, nil
}

// PriceBySlug implements mirror.Store.
func (s *Storage) PriceBySlug(ctx context.Context, slug string) (*mirror.Price, error) {
	if slug == "" {
		return nil, nil
	}
	p, err := scanPrice(s.pool.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM stripe_prices WHERE slug = $1 ORDER BY stripe_id LIMIT 1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return p, nil
}

// PricesByProduct implements mirror.Store.
func (s *Storage) PricesByProduct(ctx context.Context, productID string) ([]*mirror.Price, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+priceColumns+` FROM stripe_prices WHERE product_id = $1 ORDER BY created, stripe_id`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	var prices []*mirror.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// DeactivatePrice implements mirror.Store.
func (s *Storage) DeactivatePrice(ctx context.Context, stripeID string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE stripe_prices SET active = FALSE WHERE stripe_id = $1`, stripeID); err != nil {
		return fmt.Errorf("failed to deactivate price: %w", err)
	}
	return nil
}

// UpsertSubscription implements mirror.Store.
func (s *Storage) UpsertSubscription(ctx context.Context, sub *mirror.Subscription) (string, error) {
	if sub == nil || sub.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_subscriptions
			(stripe_id, customer_id, customer_stripe_id, user_id, status, price_id, price_stripe_id,
			 product_slug, currency, current_period_start, current_period_end, cancel_at_period_end,
			 canceled_at, ended_at, trial_start, trial_end, created)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			ON CONFLICT (stripe_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id,
				customer_stripe_id = EXCLUDED.customer_stripe_id,
				user_id = EXCLUDED.user_id,
				status = EXCLUDED.status,
				price_id = EXCLUDED.price_id,
				price_stripe_id = EXCLUDED.price_stripe_id,
				product_slug = EXCLUDED.product_slug,
				currency = EXCLUDED.currency,
				current_period_start = EXCLUDED.current_period_start,
				current_period_end = EXCLUDED.current_period_end,
				cancel_at_period_end = EXCLUDED.cancel_at_period_end,
				canceled_at = EXCLUDED.canceled_at,
				ended_at = EXCLUDED.ended_at,
				trial_start = EXCLUDED.trial_start,
				trial_end = EXCLUDED.trial_end
			RETURNING id`,
		sub.StripeID, sub.CustomerID, sub.CustomerStripeID, sub.UserID, sub.Status, sub.PriceID,
		sub.PriceStripeID, sub.ProductSlug, sub.Currency, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.CanceledAt, sub.EndedAt, sub.TrialStart, sub.TrialEnd, nullTime(sub.Created),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return id, nil
}

const subscriptionColumns = `id, stripe_id, customer_id, customer_stripe_id, user_id, status,
	price_id, price_stripe_id, product_slug, currency, current_period_start, current_period_end,
	cancel_at_period_end, canceled_at, ended_at, trial_start, trial_end, created`

func scanSubscription(row pgx.Row) (*mirror.Subscription, error) {
	var sub mirror.Subscription
	var created *time.Time
	err := row.Scan(&sub.ID, &sub.StripeID, &sub.CustomerID, &sub.CustomerStripeID, &sub.UserID,
		&sub.Status, &sub.PriceID, &sub.PriceStripeID, &sub.ProductSlug, &sub.Currency,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CanceledAt, &sub.EndedAt, &sub.TrialStart, &sub.TrialEnd, &created)
	if err != nil {
		return nil, err
	}
	if created != nil {
		sub.Created = *created
	}
	return &sub, nil
}

// SubscriptionByStripeID implements mirror.Store.
func (s *Storage) SubscriptionByStripeID(ctx context.Context, stripeID string) (*mirror.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM stripe_subscriptions WHERE stripe_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// SubscriptionsByUser implements mirror.Store.
func (s *Storage) SubscriptionsByUser(ctx context.Context, userID string) ([]*mirror.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM stripe_subscriptions
			WHERE user_id = $1 ORDER BY created, stripe_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*mirror.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CurrentSubscription implements mirror.Store.
func (s *Storage) CurrentSubscription(ctx context.Context, userID string) (*mirror.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM stripe_subscriptions
			WHERE user_id = $1 AND status = 'active' ORDER BY created, stripe_id LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription implements mirror.Store.
func (s *Storage) DeleteSubscription(ctx context.Context, stripeID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM stripe_subscriptions WHERE stripe_id = $1`, stripeID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// UpsertInvoice implements mirror.Store.
func (s *Storage) UpsertInvoice(ctx context.Context, i *mirror.Invoice) (string, error) {
	if i == nil || i.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_invoices
			(stripe_id, customer_id, customer_stripe_id, user_id, subscription_id, subscription_stripe_id,
			 status, currency, amount_due, amount_paid, amount_remaining, subtotal, total, tax,
			 pdf_url, hosted_url, billing_reason, period_start, period_end, due_date, paid_at, created)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			ON CONFLICT (stripe_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id,
				customer_stripe_id = EXCLUDED.customer_stripe_id,
				user_id = EXCLUDED.user_id,
				subscription_id = EXCLUDED.subscription_id,
				subscription_stripe_id = EXCLUDED.subscription_stripe_id,
				status = EXCLUDED.status,
				currency = EXCLUDED.currency,
				amount_due = EXCLUDED.amount_due,
				amount_paid = EXCLUDED.amount_paid,
				amount_remaining = EXCLUDED.amount_remaining,
				subtotal = EXCLUDED.subtotal,
				total = EXCLUDED.total,
				tax = EXCLUDED.tax,
				pdf_url = EXCLUDED.pdf_url,
				hosted_url = EXCLUDED.hosted_url,
				billing_reason = EXCLUDED.billing_reason,
				period_start = EXCLUDED.period_start,
				period_end = EXCLUDED.period_end,
				due_date = EXCLUDED.due_date,
				paid_at = EXCLUDED.paid_at
			RETURNING id`,
		i.StripeID, i.CustomerID, i.CustomerStripeID, i.UserID, i.SubscriptionID, i.SubscriptionStripeID,
		i.Status, i.Currency, i.AmountDue, i.AmountPaid, i.AmountRemaining, i.Subtotal, i.Total, i.Tax,
		i.PDFURL, i.HostedURL, i.BillingReason, i.PeriodStart, i.PeriodEnd, i.DueDate, i.PaidAt, nullTime(i.Created),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert invoice: %w", err)
	}
	return id, nil
}

const invoiceColumns = `id, stripe_id, customer_id, customer_stripe_id, user_id, subscription_id,
	subscription_stripe_id, status, currency, amount_due, amount_paid, amount_remaining, subtotal,
	total, tax, pdf_url, hosted_url, billing_reason, period_start, period_end, due_date, paid_at, created`

func scanInvoice(row pgx.Row) (*mirror.Invoice, error) {
	var i mirror.Invoice
	var created *time.Time
	err := row.Scan(&i.ID, &i.StripeID, &i.CustomerID, &i.CustomerStripeID, &i.UserID,
		&i.SubscriptionID, &i.SubscriptionStripeID, &i.Status, &i.Currency, &i.AmountDue,
		&i.AmountPaid, &i.AmountRemaining, &i.Subtotal, &i.Total, &i.Tax, &i.PDFURL, &i.HostedURL,
		&i.BillingReason, &i.PeriodStart, &i.PeriodEnd, &i.DueDate, &i.PaidAt, &created)
	if err != nil {
		return nil, err
	}
	if created != nil {
		i.Created = *created
	}
	return &i, nil
}

// InvoiceByStripeID implements mirror.Store.
func (s *Storage) InvoiceByStripeID(ctx context.Context, stripeID string) (*mirror.Invoice, error) {
	i, err := scanInvoice(s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM stripe_invoices WHERE stripe_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return i, nil
}

// InvoicesByUser implements mirror.Store.
func (s *Storage) InvoicesByUser(ctx context.Context, userID string, limit int) ([]*mirror.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM stripe_invoices
		WHERE user_id = $1 ORDER BY created DESC, stripe_id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*mirror.Invoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, i)
	}
	return invoices, rows.Err()
}

// UpsertPaymentMethod implements mirror.Store.
func (s *Storage) UpsertPaymentMethod(ctx context.Context, pm *mirror.PaymentMethod) (string, error) {
	if pm == nil || pm.StripeID == "" {
		return "", mirror.ErrInvalidEntity
	}

	var brand, last4 *string
	var expMonth, expYear *int64
	if pm.Card != nil {
		brand, last4 = &pm.Card.Brand, &pm.Card.Last4
		expMonth, expYear = &pm.Card.ExpMonth, &pm.Card.ExpYear
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stripe_payment_methods
			(stripe_id, customer_id, customer_stripe_id, user_id, type, card_brand, card_last4,
			 card_exp_month, card_exp_year, is_default, created)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (stripe_id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id,
				customer_stripe_id = EXCLUDED.customer_stripe_id,
				user_id = EXCLUDED.user_id,
				type = EXCLUDED.type,
				card_brand = EXCLUDED.card_brand,
				card_last4 = EXCLUDED.card_last4,
				card_exp_month = EXCLUDED.card_exp_month,
				card_exp_year = EXCLUDED.card_exp_year,
				is_default = EXCLUDED.is_default
			RETURNING id`,
		pm.StripeID, pm.CustomerID, pm.CustomerStripeID, pm.UserID, pm.Type, brand, last4,
		expMonth, expYear, pm.Default, nullTime(pm.Created),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert payment method: %w", err)
	}
	return id, nil
}

const paymentMethodColumns = `id, stripe_id, customer_id, customer_stripe_id, user_id, type,
	card_brand, card_last4, card_exp_month, card_exp_year, is_default, created`

func scanPaymentMethod(row pgx.Row) (*mirror.PaymentMethod, error) {
	var pm mirror.PaymentMethod
	var created *time.Time
	var brand, last4 *string
	var expMonth, expYear *int64
	err := row.Scan(&pm.ID, &pm.StripeID, &pm.CustomerID, &pm.CustomerStripeID, &pm.UserID,
		&pm.Type, &brand, &last4, &expMonth, &expYear, &pm.Default, &created)
	if err != nil {
		return nil, err
	}
	if created != nil {
		pm.Created = *created
	}
	if brand != nil || last4 != nil {
		pm.Card = &mirror.Card{}
		if brand != nil {
			pm.Card.Brand = *brand
		}
		if last4 != nil {
			pm.Card.Last4 = *last4
		}
		if expMonth != nil {
			pm.Card.ExpMonth = *expMonth
		}
		if expYear != nil {
			pm.Card.ExpYear = *expYear
		}
	}
	return &pm, nil
}

// PaymentMethodByStripeID implements mirror.Store.
func (s *Storage) PaymentMethodByStripeID(ctx context.Context, stripeID string) (*mirror.PaymentMethod, error) {
	pm, err := scanPaymentMethod(s.pool.QueryRow(ctx,
		`SELECT `+paymentMethodColumns+` FROM stripe_payment_methods WHERE stripe_id = $1`, stripeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return pm, nil
}

// PaymentMethodsByUser implements mirror.Store.
func (s *Storage) PaymentMethodsByUser(ctx context.Context, userID string) ([]*mirror.PaymentMethod, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentMethodColumns+` FROM stripe_payment_methods
			WHERE user_id = $1 ORDER BY is_default DESC, created, stripe_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var pms []*mirror.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		pms = append(pms, pm)
	}
	return pms, rows.Err()
}

// DeletePaymentMethod implements mirror.Store.
func (s *Storage) DeletePaymentMethod(ctx context.Context, stripeID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM stripe_payment_methods WHERE stripe_id = $1`, stripeID); err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}
	return nil
}

// nullTime maps the zero time to NULL so Postgres does not store year 1.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
