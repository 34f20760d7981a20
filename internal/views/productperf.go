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

// Product performance: per-product units, revenue and transaction counts
// over the lookback window. revenue_share_pct is the product's share of the
// window total across ALL products, not its category. Category rank orders
// by units sold descending with product id ascending as the tie-break.
const productPerfSQL = `
WITH win AS (
    SELECT ti.product_id, ti.quantity, ti.transaction_id
    FROM transaction_items ti
    JOIN transactions t ON t.transaction_id = ti.transaction_id
    WHERE t.recorded_at > $1 - make_interval(days => $2)
      AND t.recorded_at <= $1
),
agg AS (
    SELECT p.product_id,
           p.name AS product_name,
           p.brand_id,
           b.name AS brand_name,
           b.is_client,
           p.category,
           SUM(w.quantity)::bigint AS units_sold,
           SUM(w.quantity * p.unit_price) AS revenue,
           COUNT(DISTINCT w.transaction_id)::bigint AS txn_count,
           AVG(w.quantity) AS avg_quantity
    FROM win w
    JOIN products p ON p.product_id = w.product_id
    JOIN brands b ON b.brand_id = p.brand_id
    GROUP BY p.product_id, p.name, p.brand_id, b.name, b.is_client, p.category
),
total AS (
    SELECT COALESCE(SUM(revenue), 0) AS window_revenue FROM agg
)
INSERT INTO agg_product_performance_new
    (product_id, product_name, brand_id, brand_name, is_client, category,
     units_sold, revenue, txn_count, avg_quantity, revenue_share_pct,
     category_rank, computed_at)
SELECT a.product_id,
       a.product_name,
       a.brand_id,
       a.brand_name,
       a.is_client,
       a.category,
       a.units_sold,
       ROUND(a.revenue, 2),
       a.txn_count,
       ROUND(a.avg_quantity, 2),
       CASE WHEN t.window_revenue > 0
            THEN ROUND(a.revenue / t.window_revenue * 100, 2)
            ELSE 0 END,
       ROW_NUMBER() OVER (
           PARTITION BY a.category
           ORDER BY a.units_sold DESC, a.product_id ASC
       )::int,
       $1
FROM agg a
CROSS JOIN total t`

const productPerfLookback = 90

func buildProductPerformance(ctx context.Context, d Pool, asOf time.Time) (Result, error) {
	excluded, err := countDanglingItems(ctx, d, asOf, productPerfLookback)
	if err != nil {
		return Result{}, err
	}

	rows, err := rebuild(ctx, d, "agg_product_performance",
		func(ctx context.Context, tx pgx.Tx) (int64, error) {
			tag, err := tx.Exec(ctx, productPerfSQL, asOf, productPerfLookback)
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
		Name:         "agg_product_performance",
		Description:  "Per-product units, revenue and global revenue share",
		Cadence:      CadenceNightly,
		LookbackDays: productPerfLookback,
		Deps:         []string{"agg_daily_sales"},
		Build:        buildProductPerformance,
	})
}
