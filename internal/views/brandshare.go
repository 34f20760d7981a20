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
	"math"
	"time"

	"github.com/jackc/pgx/v5"
)

// Market position thresholds are inclusive lower bounds on category share.
const (
	leaderThreshold     = 25.0
	strongThreshold     = 15.0
	challengerThreshold = 5.0
)

// PositionFor maps a category market share percentage to a position label.
func PositionFor(sharePct float64) string {
	switch {
	case sharePct >= leaderThreshold:
		return "leader"
	case sharePct >= strongThreshold:
		return "strong"
	case sharePct >= challengerThreshold:
		return "challenger"
	default:
		return "niche"
	}
}

// Round2 rounds to two decimals, half away from zero, matching PostgreSQL
// ROUND(numeric, 2) so Go-side and SQL-side percentages agree.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SharePct returns part/total as a percentage rounded to two decimals.
// A zero (or negative) total yields 0 rather than an error.
func SharePct(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return Round2(part / total * 100)
}

// brandRevenueSQL aggregates window revenue and units per brand per category.
// A brand selling in two categories produces two rows.
const brandRevenueSQL = `
SELECT b.brand_id,
       b.name,
       p.category,
       b.is_client,
       SUM(ti.quantity * p.unit_price)::float8 AS revenue,
       SUM(ti.quantity)::bigint AS units_sold
FROM transaction_items ti
JOIN transactions t ON t.transaction_id = ti.transaction_id
JOIN products p ON p.product_id = ti.product_id
JOIN brands b ON b.brand_id = p.brand_id
WHERE t.recorded_at > $1 - make_interval(days => $2)
  AND t.recorded_at <= $1
GROUP BY b.brand_id, b.name, p.category, b.is_client
ORDER BY p.category, b.brand_id`

const brandShareLookback = 90

type brandRow struct {
	brandID  int
	name     string
	category string
	isClient bool
	revenue  float64
	units    int64
}

func buildBrandCompetition(ctx context.Context, d Pool, asOf time.Time) (Result, error) {
	excluded, err := countDanglingItems(ctx, d, asOf, brandShareLookback)
	if err != nil {
		return Result{}, err
	}

	n, err := rebuild(ctx, d, "agg_brand_competition",
		func(ctx context.Context, tx pgx.Tx) (int64, error) {
			rows, err := tx.Query(ctx, brandRevenueSQL, asOf, brandShareLookback)
			if err != nil {
				return 0, err
			}
			defer rows.Close()

			var brands []brandRow
			categoryTotals := make(map[string]float64)
			for rows.Next() {
				var r brandRow
				if err := rows.Scan(&r.brandID, &r.name, &r.category,
					&r.isClient, &r.revenue, &r.units); err != nil {
					return 0, err
				}
				brands = append(brands, r)
				categoryTotals[r.category] += r.revenue
			}
			if err := rows.Err(); err != nil {
				return 0, err
			}

			batch := &pgx.Batch{}
			for _, b := range brands {
				share := SharePct(b.revenue, categoryTotals[b.category])
				batch.Queue(`
                    INSERT INTO agg_brand_competition_new
                        (brand_id, brand_name, category, is_client, revenue,
                         units_sold, category_share_pct, market_position, computed_at)
                    VALUES ($1, $2, $3, $4, ROUND($5::numeric, 2), $6, $7, $8, $9)
                `, b.brandID, b.name, b.category, b.isClient, b.revenue,
					b.units, share, PositionFor(share), asOf)
			}

			res := tx.SendBatch(ctx, batch)
			for range brands {
				if _, err := res.Exec(); err != nil {
					res.Close()
					return 0, err
				}
			}
			if err := res.Close(); err != nil {
				return 0, err
			}
			return int64(len(brands)), nil
		})
	if err != nil {
		return Result{}, err
	}

	return Result{Rows: n, Excluded: excluded}, nil
}

func init() {
	Register(&View{
		Name:         "agg_brand_competition",
		Description:  "Client vs competitor brand share and market position per category",
		Cadence:      CadenceNightly,
		LookbackDays: brandShareLookback,
		Deps:         []string{"agg_daily_sales"},
		Build:        buildBrandCompetition,
	})
}
