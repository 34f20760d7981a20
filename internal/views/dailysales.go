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

// Daily sales rollup: transactions grouped by (date, store, day-of-week,
// hour-of-day). Day and hour are denormalized into the grouping key so the
// dashboard can slice by hour without re-deriving from the timestamp.
//
// Transaction totals are recomputed from line items at current unit prices;
// the stored total_amount column is never trusted. Line items whose product
// reference does not resolve are excluded from the total.
const dailySalesSQL = `
WITH txn_totals AS (
    SELECT t.transaction_id,
           COALESCE(SUM(ti.quantity * p.unit_price), 0) AS total
    FROM transactions t
    LEFT JOIN transaction_items ti ON ti.transaction_id = t.transaction_id
    LEFT JOIN products p ON p.product_id = ti.product_id
    WHERE t.recorded_at > $1 - make_interval(days => $2)
      AND t.recorded_at <= $1
      AND (ti.item_id IS NULL OR p.product_id IS NOT NULL)
    GROUP BY t.transaction_id
)
INSERT INTO agg_daily_sales_new
    (sales_date, store_id, day_of_week, hour_of_day,
     txn_count, total_revenue, avg_transaction,
     influenced_count, substituted_count, computed_at)
SELECT (t.recorded_at AT TIME ZONE 'UTC')::date,
       t.store_id,
       EXTRACT(DOW FROM t.recorded_at AT TIME ZONE 'UTC')::int,
       EXTRACT(HOUR FROM t.recorded_at AT TIME ZONE 'UTC')::int,
       COUNT(*),
       ROUND(SUM(tt.total), 2),
       ROUND(AVG(tt.total), 2),
       COUNT(*) FILTER (WHERE t.influenced),
       COUNT(*) FILTER (WHERE t.substituted),
       $1
FROM transactions t
JOIN txn_totals tt ON tt.transaction_id = t.transaction_id
GROUP BY 1, 2, 3, 4`

const dailySalesLookback = 90

func buildDailySales(ctx context.Context, d Pool, asOf time.Time) (Result, error) {
	excluded, err := countDanglingItems(ctx, d, asOf, dailySalesLookback)
	if err != nil {
		return Result{}, err
	}

	rows, err := rebuild(ctx, d, "agg_daily_sales",
		func(ctx context.Context, tx pgx.Tx) (int64, error) {
			tag, err := tx.Exec(ctx, dailySalesSQL, asOf, dailySalesLookback)
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
		Name:         "agg_daily_sales",
		Description:  "Hourly rollup of transactions per store and calendar date",
		Cadence:      CadenceHourly,
		LookbackDays: dailySalesLookback,
		Build:        buildDailySales,
	})
}
