//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package query

import (
	"context"
	"fmt"
	"time"

	"github.com/retailpulse/pipeline/internal/access"
	"github.com/retailpulse/pipeline/internal/db"
)

// DailySalesRow is one (date, store, hour) bucket of the daily sales rollup.
type DailySalesRow struct {
	SalesDate        time.Time
	StoreID          int
	StoreName        string
	DayOfWeek        int
	HourOfDay        int
	TxnCount         int64
	TotalRevenue     float64
	AvgTransaction   float64
	InfluencedCount  int64
	SubstitutedCount int64
}

// ProductPerformanceRow is one product in the trailing performance window.
type ProductPerformanceRow struct {
	ProductID       int
	ProductName     string
	BrandID         int
	BrandName       string
	IsClient        bool
	Category        string
	UnitsSold       int64
	Revenue         float64
	TxnCount        int64
	AvgQuantity     float64
	RevenueSharePct float64
	CategoryRank    int
}

// RegionalPerformanceRow is one region's rollup.
type RegionalPerformanceRow struct {
	RegionID            int
	RegionName          string
	MacroRegion         string
	TxnCount            int64
	TotalRevenue        float64
	UniqueCustomers     int64
	InfluenceRatePct    float64
	SubstitutionRatePct float64
	ClientRevenue       float64
	ClientSharePct      float64
}

// BrandCompetitionRow is one (brand, category) market-share cell.
type BrandCompetitionRow struct {
	BrandID          int
	BrandName        string
	Category         string
	IsClient         bool
	Revenue          float64
	UnitsSold        int64
	CategorySharePct float64
	MarketPosition   string
}

// CustomerSegmentRow is one classified customer.
type CustomerSegmentRow struct {
	CustomerID       string
	TxnCount         int64
	TotalSpent       float64
	LastPurchaseAt   time.Time
	RecencyDays      int
	RecencySegment   string
	FrequencySegment string
	MonetarySegment  string
	CombinedSegment  string
}

// AnomalyRow is one finding from the anomaly list.
type AnomalyRow struct {
	AnomalyID   int64
	AnomalyType string
	Subject     string
	WindowStart time.Time
	Severity    string
	Status      string
	Details     string
	DetectedAt  time.Time
	LastSeenAt  time.Time
}

func dailySalesQuery(p *access.Policy, caller access.CallerContext, f Filter, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.StorePredicate(caller, "d.store_id", "d.sales_date", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if f.From != nil {
		w.addf("d.sales_date >= $%d", *f.From)
	}
	if f.To != nil {
		w.addf("d.sales_date < $%d", *f.To)
	}
	if f.StoreID != 0 {
		w.addf("d.store_id = $%d", f.StoreID)
	}
	if f.RegionID != 0 {
		w.addf("s.region_id = $%d", f.RegionID)
	}
	sql := fmt.Sprintf(`
		SELECT d.sales_date, d.store_id, s.name, d.day_of_week, d.hour_of_day,
		       d.txn_count, d.total_revenue, d.avg_transaction,
		       d.influenced_count, d.substituted_count
		FROM agg_daily_sales d
		JOIN stores s ON s.store_id = d.store_id
		%s
		ORDER BY d.sales_date DESC, d.store_id, d.hour_of_day
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// DailySales reads the hourly sales rollup, scoped by the caller's role.
func DailySales(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, f Filter, page Page) ([]DailySalesRow, error) {
	sql, args, err := dailySalesQuery(p, caller, f, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying daily sales: %w", err)
	}
	defer rows.Close()

	var out []DailySalesRow
	for rows.Next() {
		var r DailySalesRow
		if err := rows.Scan(&r.SalesDate, &r.StoreID, &r.StoreName, &r.DayOfWeek, &r.HourOfDay,
			&r.TxnCount, &r.TotalRevenue, &r.AvgTransaction,
			&r.InfluencedCount, &r.SubstitutedCount); err != nil {
			return nil, fmt.Errorf("scanning daily sales row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// The four global views carry one row per subject with no per-row event
// time, so the analyst window applies to computed_at: it withholds only a
// snapshot that has gone stale past the window. Per-row windowing exists
// where a row-level time column does (agg_daily_sales, anomalies).
func productPerformanceQuery(p *access.Policy, caller access.CallerContext, f Filter, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.GlobalPredicate(caller, "pp.computed_at", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if f.BrandID != 0 {
		w.addf("pp.brand_id = $%d", f.BrandID)
	}
	if f.Category != "" {
		w.addf("pp.category = $%d", f.Category)
	}
	sql := fmt.Sprintf(`
		SELECT pp.product_id, pp.product_name, pp.brand_id, pp.brand_name, pp.is_client,
		       pp.category, pp.units_sold, pp.revenue, pp.txn_count, pp.avg_quantity,
		       pp.revenue_share_pct, pp.category_rank
		FROM agg_product_performance pp
		%s
		ORDER BY pp.category, pp.category_rank
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// ProductPerformance reads the product performance view. Managers are
// store-scoped and cannot read it.
func ProductPerformance(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, f Filter, page Page) ([]ProductPerformanceRow, error) {
	sql, args, err := productPerformanceQuery(p, caller, f, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying product performance: %w", err)
	}
	defer rows.Close()

	var out []ProductPerformanceRow
	for rows.Next() {
		var r ProductPerformanceRow
		if err := rows.Scan(&r.ProductID, &r.ProductName, &r.BrandID, &r.BrandName, &r.IsClient,
			&r.Category, &r.UnitsSold, &r.Revenue, &r.TxnCount, &r.AvgQuantity,
			&r.RevenueSharePct, &r.CategoryRank); err != nil {
			return nil, fmt.Errorf("scanning product performance row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func regionalPerformanceQuery(p *access.Policy, caller access.CallerContext, f Filter, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.GlobalPredicate(caller, "rp.computed_at", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if f.RegionID != 0 {
		w.addf("rp.region_id = $%d", f.RegionID)
	}
	sql := fmt.Sprintf(`
		SELECT rp.region_id, rp.region_name, rp.macro_region, rp.txn_count, rp.total_revenue,
		       rp.unique_customers, rp.influence_rate_pct, rp.substitution_rate_pct,
		       rp.client_revenue, rp.client_share_pct
		FROM agg_regional_performance rp
		%s
		ORDER BY rp.total_revenue DESC, rp.region_id
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// RegionalPerformance reads the per-region rollup.
func RegionalPerformance(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, f Filter, page Page) ([]RegionalPerformanceRow, error) {
	sql, args, err := regionalPerformanceQuery(p, caller, f, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying regional performance: %w", err)
	}
	defer rows.Close()

	var out []RegionalPerformanceRow
	for rows.Next() {
		var r RegionalPerformanceRow
		if err := rows.Scan(&r.RegionID, &r.RegionName, &r.MacroRegion, &r.TxnCount, &r.TotalRevenue,
			&r.UniqueCustomers, &r.InfluenceRatePct, &r.SubstitutionRatePct,
			&r.ClientRevenue, &r.ClientSharePct); err != nil {
			return nil, fmt.Errorf("scanning regional performance row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func brandCompetitionQuery(p *access.Policy, caller access.CallerContext, f Filter, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.GlobalPredicate(caller, "bc.computed_at", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if f.BrandID != 0 {
		w.addf("bc.brand_id = $%d", f.BrandID)
	}
	if f.Category != "" {
		w.addf("bc.category = $%d", f.Category)
	}
	sql := fmt.Sprintf(`
		SELECT bc.brand_id, bc.brand_name, bc.category, bc.is_client, bc.revenue,
		       bc.units_sold, bc.category_share_pct, bc.market_position
		FROM agg_brand_competition bc
		%s
		ORDER BY bc.category, bc.category_share_pct DESC, bc.brand_id
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// BrandCompetition reads the per-category market share view.
func BrandCompetition(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, f Filter, page Page) ([]BrandCompetitionRow, error) {
	sql, args, err := brandCompetitionQuery(p, caller, f, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying brand competition: %w", err)
	}
	defer rows.Close()

	var out []BrandCompetitionRow
	for rows.Next() {
		var r BrandCompetitionRow
		if err := rows.Scan(&r.BrandID, &r.BrandName, &r.Category, &r.IsClient, &r.Revenue,
			&r.UnitsSold, &r.CategorySharePct, &r.MarketPosition); err != nil {
			return nil, fmt.Errorf("scanning brand competition row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func customerSegmentsQuery(p *access.Policy, caller access.CallerContext, segment string, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.GlobalPredicate(caller, "cs.computed_at", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if segment != "" {
		w.addf("cs.combined_segment = $%d", segment)
	}
	sql := fmt.Sprintf(`
		SELECT cs.customer_id, cs.txn_count, cs.total_spent, cs.last_purchase_at,
		       cs.recency_days, cs.recency_segment, cs.frequency_segment,
		       cs.monetary_segment, cs.combined_segment
		FROM agg_customer_segments cs
		%s
		ORDER BY cs.total_spent DESC, cs.customer_id
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// CustomerSegments reads the classified customer base, optionally limited to
// one combined segment.
func CustomerSegments(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, segment string, page Page) ([]CustomerSegmentRow, error) {
	sql, args, err := customerSegmentsQuery(p, caller, segment, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying customer segments: %w", err)
	}
	defer rows.Close()

	var out []CustomerSegmentRow
	for rows.Next() {
		var r CustomerSegmentRow
		if err := rows.Scan(&r.CustomerID, &r.TxnCount, &r.TotalSpent, &r.LastPurchaseAt,
			&r.RecencyDays, &r.RecencySegment, &r.FrequencySegment,
			&r.MonetarySegment, &r.CombinedSegment); err != nil {
			return nil, fmt.Errorf("scanning customer segment row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func anomaliesQuery(p *access.Policy, caller access.CallerContext, f Filter, status string, page Page) (string, []any, error) {
	var w whereBuilder
	pred, err := p.SubjectPredicate(caller, "a.subject", "a.detected_at", w.next())
	if err != nil {
		return "", nil, err
	}
	w.add(pred.SQL, pred.Args...)
	if status != "" {
		w.addf("a.status = $%d", status)
	}
	if f.From != nil {
		w.addf("a.detected_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.addf("a.detected_at < $%d", *f.To)
	}
	sql := fmt.Sprintf(`
		SELECT a.anomaly_id, a.anomaly_type, a.subject, a.window_start, a.severity,
		       a.status, a.details::text, a.detected_at, a.last_seen_at
		FROM anomalies a
		%s
		ORDER BY a.detected_at DESC, a.anomaly_id DESC
		%s`, w.clause(), w.paged(page))
	return sql, w.args, nil
}

// Anomalies reads the finding list, optionally filtered by status
// ("active" or "resolved"; empty means all).
func Anomalies(ctx context.Context, d db.Execer, p *access.Policy, caller access.CallerContext, f Filter, status string, page Page) ([]AnomalyRow, error) {
	sql, args, err := anomaliesQuery(p, caller, f, status, page)
	if err != nil {
		return nil, err
	}
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying anomalies: %w", err)
	}
	defer rows.Close()

	var out []AnomalyRow
	for rows.Next() {
		var r AnomalyRow
		if err := rows.Scan(&r.AnomalyID, &r.AnomalyType, &r.Subject, &r.WindowStart, &r.Severity,
			&r.Status, &r.Details, &r.DetectedAt, &r.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scanning anomaly row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
