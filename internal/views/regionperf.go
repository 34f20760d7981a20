//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package views

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Regional performance: every region appears, even with no transactions in
// the window. client_share_pct is client-brand revenue over total region
// revenue; a zero-revenue region yields a share of 0, never NULL or a
// division error. Client brands are identified by brands.is_client.
const regionPerfSQL = `
WITH txns AS (
    SELECT t.transaction_id, t.customer_id, t.influenced, t.substituted,
           s.region_id
    FROM transactions t
    JOIN stores s ON s.store_id = t.store_id
    WHERE t.recorded_at > $1 - make_interval(days => $2)
      AND t.recorded_at <= $1
),
revenue AS (
    SELECT x.region_id,
           COALESCE(SUM(ti.quantity * p.unit_price), 0) AS total_revenue,
           COALESCE(SUM(ti.quantity * p.unit_price)
                    FILTER (WHERE b.is_client), 0) AS client_revenue
    FROM txns x
    JOIN transaction_items ti ON ti.transaction_id = x.transaction_id
    JOIN products p ON p.product_id = ti.product_id
    JOIN brands b ON b.brand_id = p.brand_id
    GROUP BY x.region_id
),
counts AS (
    SELECT region_id,
           COUNT(*)::bigint AS txn_count,
           COUNT(DISTINCT customer_id)::bigint AS unique_customers,
           COUNT(*) FILTER (WHERE influenced)::bigint AS influenced_count,
           COUNT(*) FILTER (WHERE substituted)::bigint AS substituted_count
    FROM txns
    GROUP BY region_id
)
INSERT INTO agg_regional_performance_new
    (region_id, region_name, macro_region, txn_count, total_revenue,
     unique_customers, influence_rate_pct, substitution_rate_pct,
     client_revenue, client_share_pct, computed_at)
SELECT r.region_id,
       r.name,
       r.macro_region,
       COALESCE(c.txn_count, 0),
       ROUND(COALESCE(v.total_revenue, 0), 2),
       COALESCE(c.unique_customers, 0),
       COALESCE(ROUND(c.influenced_count * 100.0 / NULLIF(c.txn_count, 0), 2), 0),
       COALESCE(ROUND(c.substituted_count * 100.0 / NULLIF(c.txn_count, 0), 2), 0),
       ROUND(COALESCE(v.client_revenue, 0), 2),
       COALESCE(ROUND(v.client_revenue * 100.0 / NULLIF(v.total_revenue, 0), 2), 0),
       $1
FROM regions r
LEFT JOIN counts c ON c.region_id = r.region_id
LEFT JOIN revenue v ON v.region_id = r.region_id`

const regionPerfLookback = 90

func buildRegionalPerformance(ctx context.Context, d Pool, asOf time.Time) (Result, error) {
	excluded, err := countDanglingItems(ctx, d, asOf, regionPerfLookback)
	if err != nil {
		return Result{}, err
	}

	rows, err := rebuild(ctx, d, "agg_regional_performance",
		func(ctx context.Context, tx pgx.Tx) (int64, error) {
			tag, err := tx.Exec(ctx, regionPerfSQL, asOf, regionPerfLookback)
			if err != nil {
				return 0, err
			}
			return tag.RowsAffected(), nil
		})
	if err != nil {
		return Result{}, err
	}

	return Result{Rows: rows, Excluded: excluded}, nil
}

func init() {
	Register(&View{
		Name:         "agg_regional_performance",
		Description:  "Per-region volume, revenue and client-brand share",
		Cadence:      CadenceNightly,
		LookbackDays: regionPerfLookback,
		Deps:         []string{"agg_daily_sales"},
		Build:        buildRegionalPerformance,
	})
}
