package postgres

// Schema contains the DDL for the mirror tables. Apply it with InitSchema or
// through your own migration tooling. Requires the pgcrypto extension (or
// Postgres 13+ where gen_random_uuid is built in).
const Schema = `
CREATE TABLE IF NOT EXISTS stripe_customers (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	created TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_customers_user_id ON stripe_customers (user_id);

CREATE TABLE IF NOT EXISTS stripe_products (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	type TEXT NOT NULL DEFAULT '',
	slug TEXT NOT NULL DEFAULT '',
	created TIMESTAMPTZ,
	updated TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_products_slug ON stripe_products (slug) WHERE slug <> '';

CREATE TABLE IF NOT EXISTS stripe_prices (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	product_id UUID NOT NULL REFERENCES stripe_products (id),
	product_stripe_id TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	currency TEXT NOT NULL DEFAULT '',
	unit_amount BIGINT,
	billing_scheme TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	billing_interval TEXT NOT NULL DEFAULT '',
	interval_count BIGINT NOT NULL DEFAULT 0,
	slug TEXT NOT NULL DEFAULT '',
	created TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_prices_product_id ON stripe_prices (product_id);
CREATE INDEX IF NOT EXISTS idx_stripe_prices_slug ON stripe_prices (slug) WHERE slug <> '';

CREATE TABLE IF NOT EXISTS stripe_subscriptions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	customer_id TEXT NOT NULL DEFAULT '',
	customer_stripe_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	price_id TEXT NOT NULL DEFAULT '',
	price_stripe_id TEXT NOT NULL DEFAULT '',
	product_slug TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	current_period_start BIGINT NOT NULL DEFAULT 0,
	current_period_end BIGINT NOT NULL DEFAULT 0,
	cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
	canceled_at BIGINT,
	ended_at BIGINT,
	trial_start BIGINT,
	trial_end BIGINT,
	created TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_subscriptions_user_status ON stripe_subscriptions (user_id, status);

CREATE TABLE IF NOT EXISTS stripe_invoices (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	customer_id TEXT NOT NULL DEFAULT '',
	customer_stripe_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL,
	subscription_id TEXT NOT NULL DEFAULT '',
	subscription_stripe_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	amount_due BIGINT NOT NULL DEFAULT 0,
	amount_paid BIGINT NOT NULL DEFAULT 0,
	amount_remaining BIGINT NOT NULL DEFAULT 0,
	subtotal BIGINT NOT NULL DEFAULT 0,
	total BIGINT NOT NULL DEFAULT 0,
	tax BIGINT,
	pdf_url TEXT NOT NULL DEFAULT '',
	hosted_url TEXT NOT NULL DEFAULT '',
	billing_reason TEXT NOT NULL DEFAULT '',
	period_start BIGINT NOT NULL DEFAULT 0,
	period_end BIGINT NOT NULL DEFAULT 0,
	due_date BIGINT,
	paid_at BIGINT,
	created TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_invoices_user_created ON stripe_invoices (user_id, created DESC);

CREATE TABLE IF NOT EXISTS stripe_payment_methods (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	stripe_id TEXT NOT NULL UNIQUE,
	customer_id TEXT NOT NULL DEFAULT '',
	customer_stripe_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	card_brand TEXT,
	card_last4 TEXT,
	card_exp_month BIGINT,
	card_exp_year BIGINT,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_stripe_payment_methods_user_id ON stripe_payment_methods (user_id);
`
