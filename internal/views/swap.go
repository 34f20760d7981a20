package views

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// rebuild populates a fresh <table>_new inside a transaction and swaps it in
// place of the published table. The rename pair commits atomically, so
// concurrent readers see either the previous snapshot or the new one, never a
// partial build. On any error (including context cancellation) the
// transaction rolls back and the published table is untouched.
func rebuild(ctx context.Context, d Pool, table string,
	populate func(ctx context.Context, tx pgx.Tx) (int64, error)) (int64, error) {

	tx, err := d.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin rebuild of %s: %w", table, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("DROP TABLE IF EXISTS %s_new", table)); err != nil {
		return 0, fmt.Errorf("failed to drop stale %s_new: %w", table, err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("CREATE TABLE %s_new (LIKE %s INCLUDING ALL)", table, table)); err != nil {
		return 0, fmt.Errorf("failed to create %s_new: %w", table, err)
	}

	rows, err := populate(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("failed to populate %s_new: %w", table, err)
	}

	swap := []string{
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s_old", table, table),
		fmt.Sprintf("ALTER TABLE %s_new RENAME TO %s", table, table),
		fmt.Sprintf("DROP TABLE %s_old", table),
	}
	for _, stmt := range swap {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to swap %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit rebuild of %s: %w", table, err)
	}
	return rows, nil
}

// countDanglingItems counts line items inside the lookback window whose
// product reference does not resolve. These rows are excluded from every
// aggregation rather than aborting the refresh.
func countDanglingItems(ctx context.Context, d Pool, asOf time.Time, lookbackDays int) (int64, error) {
	var count int64
	err := d.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM transaction_items ti
        JOIN transactions t ON t.transaction_id = ti.transaction_id
        LEFT JOIN products p ON p.product_id = ti.product_id
        WHERE p.product_id IS NULL
          AND t.recorded_at > $1 - make_interval(days => $2)
          AND t.recorded_at <= $1
    `, asOf, lookbackDays).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dangling items: %w", err)
	}
	return count, nil
}
