//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package schema owns the DDL for the fact store, reference data and
// operational tables of the aggregation pipeline.
package schema

import (
	"context"
	"fmt"

	"github.com/retailpulse/pipeline/internal/db"
)

// createSchemaSQL creates the fact store and reference data tables.
//
// transaction_items.product_id deliberately carries no foreign key:
// ingestion is an external collaborator and may land rows that reference
// products not yet (or no longer) in the catalog. The aggregation engine
// excludes and counts such rows instead of rejecting them at write time.
const createSchemaSQL = `
-- Reference data -----------------------------------------------------------

CREATE TABLE IF NOT EXISTS regions (
    region_id       SERIAL PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    macro_region    TEXT NOT NULL,
    economic_weight NUMERIC(6,3) NOT NULL DEFAULT 1.0,
    population      BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS brands (
    brand_id  SERIAL PRIMARY KEY,
    name      TEXT NOT NULL UNIQUE,
    category  TEXT NOT NULL,
    is_client BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS products (
    product_id SERIAL PRIMARY KEY,
    brand_id   INTEGER NOT NULL REFERENCES brands(brand_id),
    name       TEXT NOT NULL,
    category   TEXT NOT NULL,
    unit_price NUMERIC(10,2) NOT NULL CHECK (unit_price >= 0),
    is_fmcg    BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS stores (
    store_id  SERIAL PRIMARY KEY,
    region_id INTEGER NOT NULL REFERENCES regions(region_id),
    name      TEXT NOT NULL,
    store_type TEXT NOT NULL,
    size_tier  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS devices (
    device_id    SERIAL PRIMARY KEY,
    store_id     INTEGER NOT NULL REFERENCES stores(store_id),
    status       TEXT NOT NULL DEFAULT 'active'
                 CHECK (status IN ('active', 'maintenance', 'offline')),
    last_seen_at TIMESTAMPTZ
);

-- Fact store ----------------------------------------------------------------

CREATE TABLE IF NOT EXISTS transactions (
    transaction_id   BIGSERIAL PRIMARY KEY,
    store_id         INTEGER NOT NULL REFERENCES stores(store_id),
    device_id        INTEGER REFERENCES devices(device_id),
    customer_id      TEXT,
    recorded_at      TIMESTAMPTZ NOT NULL,
    gender           TEXT,
    age              INTEGER,
    emotion          TEXT,
    total_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
    influenced       BOOLEAN NOT NULL DEFAULT FALSE,
    substituted      BOOLEAN NOT NULL DEFAULT FALSE,
    duration_seconds INTEGER
);

CREATE TABLE IF NOT EXISTS transaction_items (
    item_id        BIGSERIAL PRIMARY KEY,
    transaction_id BIGINT NOT NULL
                   REFERENCES transactions(transaction_id) ON DELETE CASCADE,
    product_id     INTEGER NOT NULL,
    quantity       INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE INDEX IF NOT EXISTS idx_transactions_recorded_at ON transactions (recorded_at);
CREATE INDEX IF NOT EXISTS idx_transactions_store ON transactions (store_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions (customer_id)
    WHERE customer_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transaction_items_txn ON transaction_items (transaction_id);
CREATE INDEX IF NOT EXISTS idx_transaction_items_product ON transaction_items (product_id);
`

// createDerivedSQL creates the published derived view tables. The refresh
// engine rebuilds each one into a _new table and swaps it in atomically, so
// these are created empty up front and readers always have a table to hit.
const createDerivedSQL = `
CREATE TABLE IF NOT EXISTS agg_daily_sales (
    sales_date        DATE NOT NULL,
    store_id          INTEGER NOT NULL,
    day_of_week       INTEGER NOT NULL,
    hour_of_day       INTEGER NOT NULL,
    txn_count         BIGINT NOT NULL,
    total_revenue     NUMERIC(14,2) NOT NULL,
    avg_transaction   NUMERIC(12,2) NOT NULL,
    influenced_count  BIGINT NOT NULL,
    substituted_count BIGINT NOT NULL,
    computed_at       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (sales_date, store_id, day_of_week, hour_of_day)
);

CREATE TABLE IF NOT EXISTS agg_product_performance (
    product_id        INTEGER PRIMARY KEY,
    product_name      TEXT NOT NULL,
    brand_id          INTEGER NOT NULL,
    brand_name        TEXT NOT NULL,
    is_client         BOOLEAN NOT NULL,
    category          TEXT NOT NULL,
    units_sold        BIGINT NOT NULL,
    revenue           NUMERIC(14,2) NOT NULL,
    txn_count         BIGINT NOT NULL,
    avg_quantity      NUMERIC(8,2) NOT NULL,
    revenue_share_pct NUMERIC(6,2) NOT NULL,
    category_rank     INTEGER NOT NULL,
    computed_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agg_regional_performance (
    region_id             INTEGER PRIMARY KEY,
    region_name           TEXT NOT NULL,
    macro_region          TEXT NOT NULL,
    txn_count             BIGINT NOT NULL,
    total_revenue         NUMERIC(14,2) NOT NULL,
    unique_customers      BIGINT NOT NULL,
    influence_rate_pct    NUMERIC(5,2) NOT NULL,
    substitution_rate_pct NUMERIC(5,2) NOT NULL,
    client_revenue        NUMERIC(14,2) NOT NULL,
    client_share_pct      NUMERIC(5,2) NOT NULL,
    computed_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agg_brand_competition (
    brand_id           INTEGER NOT NULL,
    brand_name         TEXT NOT NULL,
    category           TEXT NOT NULL,
    is_client          BOOLEAN NOT NULL,
    revenue            NUMERIC(14,2) NOT NULL,
    units_sold         BIGINT NOT NULL,
    category_share_pct NUMERIC(5,2) NOT NULL,
    market_position    TEXT NOT NULL,
    computed_at        TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (brand_id, category)
);

CREATE TABLE IF NOT EXISTS agg_customer_segments (
    customer_id      TEXT PRIMARY KEY,
    txn_count        BIGINT NOT NULL,
    total_spent      NUMERIC(14,2) NOT NULL,
    last_purchase_at TIMESTAMPTZ NOT NULL,
    recency_days     INTEGER NOT NULL,
    recency_segment  TEXT NOT NULL,
    frequency_segment TEXT NOT NULL,
    monetary_segment TEXT NOT NULL,
    combined_segment TEXT NOT NULL,
    computed_at      TIMESTAMPTZ NOT NULL
);
`

// createOperationalSQL creates anomaly, audit, access-grant and run-log tables.
const createOperationalSQL = `
CREATE TABLE IF NOT EXISTS anomalies (
    anomaly_id   BIGSERIAL PRIMARY KEY,
    anomaly_type TEXT NOT NULL,
    subject      TEXT NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    severity     TEXT NOT NULL,
    details      JSONB NOT NULL DEFAULT '{}',
    status       TEXT NOT NULL DEFAULT 'active'
                 CHECK (status IN ('active', 'resolved')),
    detected_at  TIMESTAMPTZ NOT NULL,
    last_seen_at TIMESTAMPTZ NOT NULL,
    resolved_at  TIMESTAMPTZ,
    UNIQUE (anomaly_type, subject, window_start)
);

CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies (status);

CREATE TABLE IF NOT EXISTS audit_log (
    audit_id   BIGSERIAL PRIMARY KEY,
    table_name TEXT NOT NULL,
    action     TEXT NOT NULL,
    record_key TEXT NOT NULL,
    old_data   JSONB,
    new_data   JSONB,
    actor      TEXT NOT NULL,
    origin     TEXT NOT NULL DEFAULT 'cli',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS store_access (
    user_id      TEXT NOT NULL,
    store_id     INTEGER NOT NULL REFERENCES stores(store_id),
    access_level TEXT NOT NULL DEFAULT 'read'
                 CHECK (access_level IN ('read', 'write')),
    granted_by   TEXT NOT NULL,
    granted_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at   TIMESTAMPTZ,
    is_active    BOOLEAN NOT NULL DEFAULT TRUE,
    revoked_at   TIMESTAMPTZ,
    PRIMARY KEY (user_id, store_id)
);

CREATE TABLE IF NOT EXISTS refresh_runs (
    run_id        UUID NOT NULL,
    view_name     TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    row_count     BIGINT NOT NULL DEFAULT 0,
    excluded_rows BIGINT NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'running'
                  CHECK (status IN ('running', 'succeeded', 'failed')),
    error         TEXT,
    PRIMARY KEY (run_id, view_name)
);

CREATE TABLE IF NOT EXISTS detection_runs (
    run_id             UUID PRIMARY KEY,
    started_at         TIMESTAMPTZ NOT NULL,
    finished_at        TIMESTAMPTZ,
    status             TEXT NOT NULL DEFAULT 'running'
                       CHECK (status IN ('running', 'succeeded', 'failed')),
    error              TEXT,
    suspicious_count   BIGINT NOT NULL DEFAULT 0,
    store_pattern_count BIGINT NOT NULL DEFAULT 0,
    substitution_count BIGINT NOT NULL DEFAULT 0
);
`

// dropTables lists every pipeline table in reverse dependency order.
var dropTables = []string{
	"detection_runs",
	"refresh_runs",
	"store_access",
	"audit_log",
	"anomalies",
	"agg_customer_segments",
	"agg_brand_competition",
	"agg_regional_performance",
	"agg_product_performance",
	"agg_daily_sales",
	"transaction_items",
	"transactions",
	"devices",
	"stores",
	"products",
	"brands",
	"regions",
}

// Create creates all pipeline tables and indexes.
func Create(ctx context.Context, d db.Execer) error {
	for _, stmt := range []string{createSchemaSQL, createDerivedSQL, createOperationalSQL} {
		if _, err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Drop removes all pipeline tables, including in-flight _new build tables.
func Drop(ctx context.Context, d db.Execer) error {
	for _, table := range dropTables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s, %s_new CASCADE", table, table)
		if _, err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// Tables returns the names of all pipeline tables.
func Tables() []string {
	out := make([]string, len(dropTables))
	copy(out, dropTables)
	return out
}
