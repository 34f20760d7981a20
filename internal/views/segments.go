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

// RFM segmentation thresholds. Customers without an identifier are not
// segmented.
const (
	recentDays = 30
	activeDays = 90
	loyalDays  = 60

	frequentTxns = 10
	regularTxns  = 5

	premiumSpend  = 10000.0
	standardSpend = 5000.0
)

// RecencySegment classifies days since last purchase.
func RecencySegment(recencyDays int) string {
	switch {
	case recencyDays <= recentDays:
		return "recent"
	case recencyDays <= activeDays:
		return "active"
	default:
		return "inactive"
	}
}

// FrequencySegment classifies transaction count within the window.
func FrequencySegment(txns int64) string {
	switch {
	case txns >= frequentTxns:
		return "frequent"
	case txns >= regularTxns:
		return "regular"
	default:
		return "occasional"
	}
}

// MonetarySegment classifies total spend within the window.
func MonetarySegment(spent float64) string {
	switch {
	case spent >= premiumSpend:
		return "premium"
	case spent >= standardSpend:
		return "standard"
	default:
		return "budget"
	}
}

// CombinedSegment classifies the customer overall. Evaluation order matters:
// VIP is checked before loyal before active; the first match wins, so a
// customer meeting both VIP and loyal criteria is VIP.
func CombinedSegment(recencyDays int, txns int64, spent float64) string {
	switch {
	case txns >= frequentTxns && spent >= premiumSpend && recencyDays <= recentDays:
		return "VIP"
	case txns >= regularTxns && spent >= standardSpend && recencyDays <= loyalDays:
		return "loyal"
	case recencyDays <= recentDays:
		return "active"
	default:
		return "at-risk"
	}
}

// customerWindowSQL aggregates per-customer activity over the segmentation
// window. Totals are recomputed from resolvable line items, same as the
// daily rollup.
const customerWindowSQL = `
WITH txn_totals AS (
    SELECT t.transaction_id,
           COALESCE(SUM(ti.quantity * p.unit_price), 0) AS total
    FROM transactions t
    LEFT JOIN transaction_items ti ON ti.transaction_id = t.transaction_id
    LEFT JOIN products p ON p.product_id = ti.product_id
    WHERE t.customer_id IS NOT NULL
      AND t.recorded_at > $1 - make_interval(days => $2)
      AND t.recorded_at <= $1
      AND (ti.item_id IS NULL OR p.product_id IS NOT NULL)
    GROUP BY t.transaction_id
)
SELECT t.customer_id,
       COUNT(*)::bigint AS txn_count,
       COALESCE(SUM(tt.total), 0)::float8 AS total_spent,
       MAX(t.recorded_at) AS last_purchase_at
FROM transactions t
JOIN txn_totals tt ON tt.transaction_id = t.transaction_id
GROUP BY t.customer_id
ORDER BY t.customer_id`

const segmentsLookback = 365

func buildCustomerSegments(ctx context.Context, d Pool, asOf time.Time) (Result, error) {
	excluded, err := countDanglingItems(ctx, d, asOf, segmentsLookback)
	if err != nil {
		return Result{}, err
	}

	n, err := rebuild(ctx, d, "agg_customer_segments",
		func(ctx context.Context, tx pgx.Tx) (int64, error) {
			rows, err := tx.Query(ctx, customerWindowSQL, asOf, segmentsLookback)
			if err != nil {
				return 0, err
			}
			defer rows.Close()

			type customer struct {
				id    string
				txns  int64
				spent float64
				last  time.Time
			}
			var customers []customer
			for rows.Next() {
				var c customer
				if err := rows.Scan(&c.id, &c.txns, &c.spent, &c.last); err != nil {
					return 0, err
				}
				customers = append(customers, c)
			}
			if err := rows.Err(); err != nil {
				return 0, err
			}

			batch := &pgx.Batch{}
			for _, c := range customers {
				recency := int(asOf.Sub(c.last).Hours() / 24)
				batch.Queue(`
                    INSERT INTO agg_customer_segments_new
                        (customer_id, txn_count, total_spent, last_purchase_at,
                         recency_days, recency_segment, frequency_segment,
                         monetary_segment, combined_segment, computed_at)
                    VALUES ($1, $2, ROUND($3::numeric, 2), $4, $5, $6, $7, $8, $9, $10)
                `, c.id, c.txns, c.spent, c.last, recency,
					RecencySegment(recency),
					FrequencySegment(c.txns),
					MonetarySegment(c.spent),
					CombinedSegment(recency, c.txns, c.spent),
					asOf)
			}

			res := tx.SendBatch(ctx, batch)
			for range customers {
				if _, err := res.Exec(); err != nil {
					res.Close()
					return 0, err
				}
			}
			if err := res.Close(); err != nil {
				return 0, err
			}
			return int64(len(customers)), nil
		})
	if err != nil {
		return Result{}, err
	}

	return Result{Rows: n, Excluded: excluded}, nil
}

func init() {
	Register(&View{
		Name:         "agg_customer_segments",
		Description:  "RFM-style customer segmentation over a 365 day window",
		Cadence:      CadenceNightly,
		LookbackDays: segmentsLookback,
		Deps:         []string{"agg_daily_sales"},
		Build:        buildCustomerSegments,
	})
}
