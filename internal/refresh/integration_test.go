//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration
// +build integration

// End-to-end test of the pipeline against a real database.
// Run with: go test -tags=integration ./internal/refresh/...
// Requires PostgreSQL to be available.
// Set RETAILPULSE_TEST_CONN environment variable to override connection string.

package refresh_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpulse/pipeline/internal/access"
	"github.com/retailpulse/pipeline/internal/anomaly"
	"github.com/retailpulse/pipeline/internal/config"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/purge"
	"github.com/retailpulse/pipeline/internal/query"
	"github.com/retailpulse/pipeline/internal/refresh"
	"github.com/retailpulse/pipeline/internal/schema"
	"github.com/retailpulse/pipeline/internal/testutil"
)

// asOf anchors every aggregation in the test; nothing reads the wall clock.
var asOf = time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

// salesDay is the fully populated trading day the rollup assertions target.
var salesDay = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

// fixtureSQL is a hand-built dataset: a clean trading day for the rollup
// assertions, one dangling line item, a substitution-heavy week for store 2
// and one wildly oversized transaction. Stored totals are deliberately
// unreliable; the views must recompute from line items.
var fixtureSQL = []string{
	`INSERT INTO regions (region_id, name, macro_region, economic_weight, population)
	 VALUES (1, 'Testland', 'North', 1.0, 1000000)`,

	`INSERT INTO brands (brand_id, name, category, is_client) VALUES
	 (1, 'Pulse Beverages', 'Beverages', TRUE),
	 (2, 'Vigor Cola', 'Beverages', FALSE)`,

	`INSERT INTO products (product_id, brand_id, name, category, unit_price, is_fmcg) VALUES
	 (1, 1, 'Pulse Sparkling', 'Beverages', 50.00, TRUE),
	 (2, 2, 'Vigor Classic', 'Beverages', 100.00, TRUE)`,

	`INSERT INTO stores (store_id, region_id, name, store_type, size_tier) VALUES
	 (1, 1, 'Store One', 'supermarket', 'medium'),
	 (2, 1, 'Store Two', 'convenience', 'small')`,

	// The trading day under test: two transactions in hour 9, one in hour 14.
	`INSERT INTO transactions
	 (transaction_id, store_id, customer_id, recorded_at, total_amount, influenced, substituted) VALUES
	 (1, 1, 'cust-A', '2026-03-09 09:00:00+00', 100, FALSE, FALSE),
	 (2, 1, 'cust-A', '2026-03-09 09:30:00+00', 150, FALSE, FALSE),
	 (3, 1, 'cust-A', '2026-03-09 14:00:00+00', 200, TRUE,  FALSE),
	 (4, 2, NULL,     '2026-03-09 10:00:00+00', 995, FALSE, FALSE)`,

	// A week of store 2 traffic, three substituted out of eleven in-window.
	`INSERT INTO transactions
	 (transaction_id, store_id, customer_id, recorded_at, total_amount, influenced, substituted) VALUES
	 (5,  2, NULL, '2026-03-05 11:00:00+00', 100, FALSE, TRUE),
	 (6,  2, NULL, '2026-03-05 12:00:00+00', 100, FALSE, TRUE),
	 (7,  2, NULL, '2026-03-06 11:00:00+00', 100, FALSE, TRUE),
	 (8,  2, NULL, '2026-03-06 12:00:00+00', 100, FALSE, FALSE),
	 (9,  2, NULL, '2026-03-07 11:00:00+00', 100, FALSE, FALSE),
	 (10, 2, NULL, '2026-03-07 12:00:00+00', 100, FALSE, FALSE),
	 (11, 2, NULL, '2026-03-08 11:00:00+00', 100, FALSE, FALSE),
	 (12, 2, NULL, '2026-03-08 12:00:00+00', 100, FALSE, FALSE),
	 (13, 2, NULL, '2026-03-08 13:00:00+00', 100, FALSE, FALSE),
	 (14, 2, NULL, '2026-03-08 14:00:00+00', 100, FALSE, FALSE)`,

	// The spike: far outside the seven-day substitution window but inside
	// the thirty-day suspicious-amount window.
	`INSERT INTO transactions
	 (transaction_id, store_id, customer_id, recorded_at, total_amount, influenced, substituted) VALUES
	 (15, 2, NULL, '2026-02-20 15:00:00+00', 50000, FALSE, FALSE)`,

	// Line items. Transaction 4 carries a dangling product reference.
	`INSERT INTO transaction_items (transaction_id, product_id, quantity) VALUES
	 (1, 1, 2),
	 (2, 1, 3),
	 (3, 2, 2),
	 (4, 2, 1),
	 (4, 9999, 1),
	 (5, 2, 1), (6, 2, 1), (7, 2, 1), (8, 2, 1), (9, 2, 1),
	 (10, 2, 1), (11, 2, 1), (12, 2, 1), (13, 2, 1), (14, 2, 1),
	 (15, 2, 500)`,
}

func TestPipelineIntegration(t *testing.T) {
	baseConnStr := testutil.SkipIfNoPostgres(t)

	testConnStr := testutil.CreateTestDB(t, baseConnStr, "pipeline")
	dbName := testutil.GetDBNameFromConnStr(testConnStr)

	cleanup := testutil.NewTestCleanup(t, baseConnStr, dbName)
	t.Cleanup(cleanup.Cleanup)

	pool := testutil.ConnectTestDB(t, testConnStr)
	cleanup.SetPool(pool)

	ctx := context.Background()

	t.Run("CreateSchema", func(t *testing.T) {
		if err := schema.Create(ctx, pool); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	})

	t.Run("InsertFixtures", func(t *testing.T) {
		for _, stmt := range fixtureSQL {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				t.Fatalf("fixture insert failed: %v\n%s", err, stmt)
			}
		}
	})

	sched := refresh.NewScheduler(pool, config.RefreshConfig{
		NightlyHour: 2,
		ViewTimeout: 60,
	})

	t.Run("RefreshAll", func(t *testing.T) {
		if err := sched.RefreshAll(ctx, asOf); err != nil {
			t.Fatalf("RefreshAll failed: %v", err)
		}

		var succeeded int
		err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM refresh_runs WHERE status = 'succeeded'`).Scan(&succeeded)
		if err != nil {
			t.Fatalf("counting refresh runs: %v", err)
		}
		if succeeded != 5 {
			t.Errorf("succeeded refresh runs = %d, want 5", succeeded)
		}
	})

	t.Run("DailyRollup", func(t *testing.T) {
		count, revenue := rollupBucket(ctx, t, pool, 1, 9)
		if count != 2 || revenue != 250.00 {
			t.Errorf("hour 9: count=%d revenue=%.2f, want 2 / 250.00", count, revenue)
		}
		count, revenue = rollupBucket(ctx, t, pool, 1, 14)
		if count != 1 || revenue != 200.00 {
			t.Errorf("hour 14: count=%d revenue=%.2f, want 1 / 200.00", count, revenue)
		}
	})

	t.Run("DanglingItemsExcluded", func(t *testing.T) {
		// Only the resolvable half of transaction 4 lands in the rollup.
		count, revenue := rollupBucket(ctx, t, pool, 2, 10)
		if count != 1 || revenue != 100.00 {
			t.Errorf("store 2 hour 10: count=%d revenue=%.2f, want 1 / 100.00", count, revenue)
		}

		var excluded int64
		err := pool.QueryRow(ctx, `
			SELECT excluded_rows FROM refresh_runs
			WHERE view_name = 'agg_daily_sales'
			ORDER BY started_at DESC LIMIT 1`).Scan(&excluded)
		if err != nil {
			t.Fatalf("reading excluded count: %v", err)
		}
		if excluded != 1 {
			t.Errorf("excluded_rows = %d, want 1", excluded)
		}
	})

	t.Run("BrandCompetition", func(t *testing.T) {
		rows, err := pool.Query(ctx, `
			SELECT is_client, category_share_pct::float8, market_position
			FROM agg_brand_competition
			WHERE category = 'Beverages'`)
		if err != nil {
			t.Fatalf("reading brand competition: %v", err)
		}
		defer rows.Close()

		var seen int
		var shareSum float64
		for rows.Next() {
			var isClient bool
			var share float64
			var position string
			if err := rows.Scan(&isClient, &share, &position); err != nil {
				t.Fatalf("scan: %v", err)
			}
			seen++
			shareSum += share
			if isClient {
				// The client moved 250 against a competitor field in the
				// tens of thousands; it must land in the niche tier.
				if share >= 5 || position != "niche" {
					t.Errorf("client: share=%.2f position=%s, want <5 / niche", share, position)
				}
			} else {
				if share <= 25 || position != "leader" {
					t.Errorf("competitor: share=%.2f position=%s, want >25 / leader", share, position)
				}
			}
		}
		if seen != 2 {
			t.Fatalf("expected 2 brand rows, got %d", seen)
		}
		if shareSum < 99.9 || shareSum > 100.1 {
			t.Errorf("category shares sum to %.2f, want ~100", shareSum)
		}
	})

	t.Run("ProductRanking", func(t *testing.T) {
		var rank int
		err := pool.QueryRow(ctx, `
			SELECT category_rank FROM agg_product_performance
			WHERE product_id = 2`).Scan(&rank)
		if err != nil {
			t.Fatalf("reading product rank: %v", err)
		}
		if rank != 1 {
			t.Errorf("competitor product rank = %d, want 1", rank)
		}
	})

	t.Run("RegionalRollup", func(t *testing.T) {
		var revenue, clientShare float64
		err := pool.QueryRow(ctx, `
			SELECT total_revenue::float8, client_share_pct::float8
			FROM agg_regional_performance WHERE region_id = 1`).Scan(&revenue, &clientShare)
		if err != nil {
			t.Fatalf("reading regional rollup: %v", err)
		}
		if revenue <= 0 {
			t.Errorf("regional revenue = %.2f, want > 0", revenue)
		}
		if clientShare < 0 || clientShare > 100 {
			t.Errorf("client share = %.2f, want within [0, 100]", clientShare)
		}
	})

	t.Run("CustomerSegments", func(t *testing.T) {
		var txns int64
		var spent float64
		err := pool.QueryRow(ctx, `
			SELECT txn_count, total_spent::float8
			FROM agg_customer_segments WHERE customer_id = 'cust-A'`).Scan(&txns, &spent)
		if err != nil {
			t.Fatalf("reading segment row: %v", err)
		}
		if txns != 3 || spent != 450.00 {
			t.Errorf("cust-A: txns=%d spent=%.2f, want 3 / 450.00", txns, spent)
		}
	})

	t.Run("RefreshIsIdempotent", func(t *testing.T) {
		var before int64
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM agg_daily_sales`).Scan(&before); err != nil {
			t.Fatalf("counting rollup rows: %v", err)
		}

		if err := sched.RefreshAll(ctx, asOf); err != nil {
			t.Fatalf("second RefreshAll failed: %v", err)
		}

		var after int64
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM agg_daily_sales`).Scan(&after); err != nil {
			t.Fatalf("counting rollup rows: %v", err)
		}
		if before != after {
			t.Errorf("row count changed across refreshes: %d -> %d", before, after)
		}

		count, revenue := rollupBucket(ctx, t, pool, 1, 9)
		if count != 2 || revenue != 250.00 {
			t.Errorf("hour 9 after re-refresh: count=%d revenue=%.2f, want 2 / 250.00", count, revenue)
		}
	})

	t.Run("MaintenanceMutualExclusion", func(t *testing.T) {
		// Hold the maintenance lock from another session: both a refresh
		// pass and a purge must refuse rather than interleave.
		conn, err := pool.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquiring lock connection: %v", err)
		}
		defer conn.Release()

		got, err := db.TryAdvisoryLock(ctx, conn, db.MaintenanceLockKey)
		if err != nil || !got {
			t.Fatalf("taking maintenance lock: got=%v err=%v", got, err)
		}
		defer func() {
			if err := db.AdvisoryUnlock(ctx, conn, db.MaintenanceLockKey); err != nil {
				t.Errorf("releasing maintenance lock: %v", err)
			}
		}()

		if err := sched.RefreshAll(ctx, asOf); !errors.Is(err, refresh.ErrMaintenanceRunning) {
			t.Errorf("refresh during maintenance = %v, want ErrMaintenanceRunning", err)
		}

		_, err = purge.NewPurger(pool, config.RetentionConfig{
			Months:      12,
			AnomalyDays: 90,
			RunLogDays:  30,
		}).Run(ctx, asOf, "test")
		if !errors.Is(err, purge.ErrMaintenanceRunning) {
			t.Errorf("purge during maintenance = %v, want ErrMaintenanceRunning", err)
		}
	})

	t.Run("AnomalyDetection", func(t *testing.T) {
		stats, err := anomaly.Run(ctx, pool, asOf)
		if err != nil {
			t.Fatalf("detection failed: %v", err)
		}
		if stats.Suspicious != 1 {
			t.Errorf("suspicious findings = %d, want 1 (the 50000 spike)", stats.Suspicious)
		}
		if stats.Substitution != 1 {
			t.Errorf("substitution findings = %d, want 1 (store 2 at 27%%)", stats.Substitution)
		}

		var severity string
		err = pool.QueryRow(ctx, `
			SELECT severity FROM anomalies
			WHERE anomaly_type = 'suspicious_transaction' AND status = 'active'`).Scan(&severity)
		if err != nil {
			t.Fatalf("reading suspicious finding: %v", err)
		}
		if severity != "medium" {
			t.Errorf("spike severity = %s, want medium", severity)
		}

		// Re-running over the same window must update, not duplicate.
		if _, err := anomaly.Run(ctx, pool, asOf); err != nil {
			t.Fatalf("second detection failed: %v", err)
		}
		var total int64
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM anomalies`).Scan(&total); err != nil {
			t.Fatalf("counting anomalies: %v", err)
		}
		if total != 2 {
			t.Errorf("anomaly rows after re-run = %d, want 2", total)
		}
	})

	policy := access.NewPolicy(config.AccessConfig{
		AnalystWindowDays:  90,
		BusinessHoursStart: 8,
		BusinessHoursEnd:   20,
	})
	noon := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	t.Run("ExpiredGrantDenied", func(t *testing.T) {
		expired := asOf.Add(-time.Hour)
		if err := access.GrantStore(ctx, pool, "mgr-1", 1, "read", &expired, "admin"); err != nil {
			t.Fatalf("granting: %v", err)
		}

		caller, err := access.Caller(ctx, pool, access.RoleManager, "mgr-1", noon)
		if err != nil {
			t.Fatalf("building caller: %v", err)
		}
		_, err = query.DailySales(ctx, pool, policy, caller, query.Filter{}, query.Page{})
		if !errors.Is(err, access.ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied for expired grant, got %v", err)
		}
	})

	t.Run("ActiveGrantScopes", func(t *testing.T) {
		if err := access.GrantStore(ctx, pool, "mgr-2", 1, "read", nil, "admin"); err != nil {
			t.Fatalf("granting: %v", err)
		}

		caller, err := access.Caller(ctx, pool, access.RoleManager, "mgr-2", noon)
		if err != nil {
			t.Fatalf("building caller: %v", err)
		}
		rows, err := query.DailySales(ctx, pool, policy, caller, query.Filter{}, query.Page{})
		if err != nil {
			t.Fatalf("manager read failed: %v", err)
		}
		if len(rows) == 0 {
			t.Fatal("manager with a grant should see store 1 rows")
		}
		for _, r := range rows {
			if r.StoreID != 1 {
				t.Errorf("manager saw store %d, grant covers only store 1", r.StoreID)
			}
		}

		// Global aggregates stay closed to store-scoped managers.
		_, err = query.BrandCompetition(ctx, pool, policy, caller, query.Filter{}, query.Page{})
		if !errors.Is(err, access.ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied on global view, got %v", err)
		}
	})

	t.Run("RetentionPurge", func(t *testing.T) {
		rep, err := purge.NewPurger(pool, config.RetentionConfig{
			Months:      12,
			AnomalyDays: 90,
			RunLogDays:  30,
		}).Run(ctx, noon, "test")
		if err != nil {
			t.Fatalf("purge failed: %v", err)
		}
		if rep.Transactions != 0 {
			t.Errorf("purged %d transactions, all facts are within retention", rep.Transactions)
		}
		if rep.ExpiredGrants != 1 {
			t.Errorf("swept %d expired grants, want 1 (mgr-1)", rep.ExpiredGrants)
		}
	})
}

func rollupBucket(ctx context.Context, t *testing.T, pool *pgxpool.Pool, storeID, hour int) (int64, float64) {
	t.Helper()
	var count int64
	var revenue float64
	err := pool.QueryRow(ctx, `
		SELECT txn_count, total_revenue::float8
		FROM agg_daily_sales
		WHERE sales_date = $1 AND store_id = $2 AND hour_of_day = $3`,
		salesDay, storeID, hour).Scan(&count, &revenue)
	if err != nil {
		t.Fatalf("reading rollup bucket store=%d hour=%d: %v", storeID, hour, err)
	}
	return count, revenue
}
