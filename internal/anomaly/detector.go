//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package anomaly implements the rule-based anomaly detector: a scan over
// recent transactions that flags statistical outliers and policy violations
// as first-class records.
package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

// Pool is the database handle the detector needs.
type Pool interface {
	db.Execer
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Stats summarizes one detection run.
type Stats struct {
	RunID        uuid.UUID
	Suspicious   int64
	StorePattern int64
	Substitution int64
}

// finding is one anomaly to upsert.
type finding struct {
	anomalyType string
	subject     string
	windowStart time.Time
	severity    string
	details     map[string]any
}

// Run executes all three detection rules as of the given instant, inside a
// single transaction: currently-active anomalies of the recomputed types are
// resolved first, then fresh findings are upserted by their stable identity
// (type, subject, window start). If anything fails the transaction rolls
// back and the state from the last successful run stands.
func Run(ctx context.Context, d Pool, asOf time.Time) (Stats, error) {
	stats := Stats{RunID: uuid.New()}

	if _, err := d.Exec(ctx, `
        INSERT INTO detection_runs (run_id, started_at) VALUES ($1, $2)
    `, stats.RunID, asOf); err != nil {
		return stats, fmt.Errorf("failed to record detection run: %w", err)
	}

	err := detect(ctx, d, asOf, &stats)
	if err != nil {
		logging.Error().
			Err(err).
			Str("run_id", stats.RunID.String()).
			Msg("Detection run failed")
		if _, uerr := d.Exec(ctx, `
            UPDATE detection_runs
            SET finished_at = now(), status = 'failed', error = $2
            WHERE run_id = $1
        `, stats.RunID, err.Error()); uerr != nil {
			logging.Warn().Err(uerr).Msg("Failed to record detection failure")
		}
		return stats, err
	}

	if _, err := d.Exec(ctx, `
        UPDATE detection_runs
        SET finished_at = now(), status = 'succeeded',
            suspicious_count = $2, store_pattern_count = $3, substitution_count = $4
        WHERE run_id = $1
    `, stats.RunID, stats.Suspicious, stats.StorePattern, stats.Substitution); err != nil {
		return stats, fmt.Errorf("failed to finalize detection run: %w", err)
	}

	logging.Info().
		Str("run_id", stats.RunID.String()).
		Int64("suspicious", stats.Suspicious).
		Int64("store_pattern", stats.StorePattern).
		Int64("substitution", stats.Substitution).
		Msg("Detection run complete")

	return stats, nil
}

func detect(ctx context.Context, d Pool, asOf time.Time, stats *Stats) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin detection transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Every rule is fully recomputed per run: resolve the previous state of
	// these types first, then upsert fresh findings.
	if _, err := tx.Exec(ctx, `
        UPDATE anomalies
        SET status = 'resolved', resolved_at = $1
        WHERE status = 'active'
          AND anomaly_type IN ($2, $3, $4)
    `, asOf, TypeSuspiciousTransaction, TypeUnusualStorePattern,
		TypeHighSubstitutionRate); err != nil {
		return fmt.Errorf("failed to resolve previous anomalies: %w", err)
	}

	suspicious, err := scanSuspiciousTransactions(ctx, tx, asOf)
	if err != nil {
		return err
	}
	patterns, err := scanStorePatterns(ctx, tx, asOf)
	if err != nil {
		return err
	}
	substitutions, err := scanSubstitutionRates(ctx, tx, asOf)
	if err != nil {
		return err
	}

	all := make([]finding, 0, len(suspicious)+len(patterns)+len(substitutions))
	all = append(all, suspicious...)
	all = append(all, patterns...)
	all = append(all, substitutions...)

	if err := upsertFindings(ctx, tx, all, asOf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit detection transaction: %w", err)
	}

	stats.Suspicious = int64(len(suspicious))
	stats.StorePattern = int64(len(patterns))
	stats.Substitution = int64(len(substitutions))
	return nil
}

// windowStart truncates to a calendar day so repeated runs within the same
// day update the same anomaly rows instead of inserting duplicates.
func windowStart(asOf time.Time, days int) time.Time {
	return asOf.UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)
}

func scanSuspiciousTransactions(ctx context.Context, tx pgx.Tx, asOf time.Time) ([]finding, error) {
	var mean, stddev float64
	var count int64
	err := tx.QueryRow(ctx, `
        SELECT COALESCE(AVG(total_amount), 0)::float8,
               COALESCE(STDDEV(total_amount), 0)::float8,
               COUNT(*)
        FROM transactions
        WHERE recorded_at > $1 - make_interval(days => $2)
          AND recorded_at <= $1
    `, asOf, suspiciousWindowDays).Scan(&mean, &stddev, &count)
	if err != nil {
		return nil, fmt.Errorf("failed to compute amount distribution: %w", err)
	}
	if count < 2 || stddev == 0 {
		return nil, nil
	}

	threshold := SuspiciousThreshold(mean, stddev)
	rows, err := tx.Query(ctx, `
        SELECT transaction_id, store_id, total_amount::float8
        FROM transactions
        WHERE recorded_at > $1 - make_interval(days => $2)
          AND recorded_at <= $1
          AND total_amount > $3
    `, asOf, suspiciousWindowDays, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to scan suspicious transactions: %w", err)
	}
	defer rows.Close()

	ws := windowStart(asOf, suspiciousWindowDays)
	var findings []finding
	for rows.Next() {
		var txnID int64
		var storeID int
		var amount float64
		if err := rows.Scan(&txnID, &storeID, &amount); err != nil {
			return nil, err
		}
		flagged, severity := ClassifySuspicious(amount, mean, stddev)
		if !flagged {
			continue
		}
		findings = append(findings, finding{
			anomalyType: TypeSuspiciousTransaction,
			subject:     "txn:" + strconv.FormatInt(txnID, 10),
			windowStart: ws,
			severity:    severity,
			details: map[string]any{
				"transaction_id": txnID,
				"store_id":       storeID,
				"amount":         amount,
				"mean":           mean,
				"stddev":         stddev,
				"threshold":      threshold,
			},
		})
	}
	return findings, rows.Err()
}

func scanStorePatterns(ctx context.Context, tx pgx.Tx, asOf time.Time) ([]finding, error) {
	rows, err := tx.Query(ctx, `
        SELECT store_id, AVG(total_amount)::float8, COUNT(*)
        FROM transactions
        WHERE recorded_at > $1 - make_interval(days => $2)
          AND recorded_at <= $1
        GROUP BY store_id
        HAVING COUNT(*) >= $3
        ORDER BY store_id
    `, asOf, storePatternWindowDays, minStoreTxnsForPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan store averages: %w", err)
	}
	defer rows.Close()

	type storeAvg struct {
		storeID int
		avg     float64
		txns    int64
	}
	var stores []storeAvg
	for rows.Next() {
		var s storeAvg
		if err := rows.Scan(&s.storeID, &s.avg, &s.txns); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stores) < 2 {
		return nil, nil
	}

	avgs := make([]float64, len(stores))
	for i, s := range stores {
		avgs[i] = s.avg
	}
	fleetMean, fleetStddev := PopulationStats(avgs)

	ws := windowStart(asOf, storePatternWindowDays)
	var findings []finding
	for _, s := range stores {
		if !StoreDeviates(s.avg, fleetMean, fleetStddev) {
			continue
		}
		findings = append(findings, finding{
			anomalyType: TypeUnusualStorePattern,
			subject:     "store:" + strconv.Itoa(s.storeID),
			windowStart: ws,
			severity:    SeverityMedium,
			details: map[string]any{
				"store_id":     s.storeID,
				"store_avg":    s.avg,
				"fleet_mean":   fleetMean,
				"fleet_stddev": fleetStddev,
				"txn_count":    s.txns,
			},
		})
	}
	return findings, nil
}

func scanSubstitutionRates(ctx context.Context, tx pgx.Tx, asOf time.Time) ([]finding, error) {
	rows, err := tx.Query(ctx, `
        SELECT store_id,
               COUNT(*),
               COUNT(*) FILTER (WHERE substituted)
        FROM transactions
        WHERE recorded_at > $1 - make_interval(days => $2)
          AND recorded_at <= $1
        GROUP BY store_id
        HAVING COUNT(*) >= $3
        ORDER BY store_id
    `, asOf, substitutionWindowDays, minStoreTxnsForSubstitution)
	if err != nil {
		return nil, fmt.Errorf("failed to scan substitution rates: %w", err)
	}
	defer rows.Close()

	ws := windowStart(asOf, substitutionWindowDays)
	var findings []finding
	for rows.Next() {
		var storeID int
		var total, substituted int64
		if err := rows.Scan(&storeID, &total, &substituted); err != nil {
			return nil, err
		}
		ratePct := float64(substituted) / float64(total) * 100
		if !HighSubstitutionRate(ratePct) {
			continue
		}
		findings = append(findings, finding{
			anomalyType: TypeHighSubstitutionRate,
			subject:     "store:" + strconv.Itoa(storeID),
			windowStart: ws,
			severity:    SeverityMedium,
			details: map[string]any{
				"store_id":          storeID,
				"txn_count":         total,
				"substituted_count": substituted,
				"rate_pct":          ratePct,
			},
		})
	}
	return findings, rows.Err()
}

func upsertFindings(ctx context.Context, tx pgx.Tx, findings []finding, asOf time.Time) error {
	if len(findings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range findings {
		details, err := json.Marshal(f.details)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly details: %w", err)
		}
		batch.Queue(`
            INSERT INTO anomalies
                (anomaly_type, subject, window_start, severity, details,
                 status, detected_at, last_seen_at)
            VALUES ($1, $2, $3, $4, $5, 'active', $6, $6)
            ON CONFLICT (anomaly_type, subject, window_start) DO UPDATE
            SET status = 'active',
                severity = EXCLUDED.severity,
                details = EXCLUDED.details,
                last_seen_at = EXCLUDED.last_seen_at,
                resolved_at = NULL
        `, f.anomalyType, f.subject, f.windowStart, f.severity, details, asOf)
	}

	res := tx.SendBatch(ctx, batch)
	for range findings {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("failed to upsert anomaly: %w", err)
		}
	}
	return res.Close()
}
