//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package purge enforces the retention policy: old facts, stale findings and
// aged run logs are deleted in bounded batches so the cleanup never holds
// long locks against the refresh cycle.
package purge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpulse/pipeline/internal/access"
	"github.com/retailpulse/pipeline/internal/config"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

// ErrMaintenanceRunning is returned when another session holds the
// maintenance lock.
var ErrMaintenanceRunning = errors.New("another maintenance task is already running")

// batchSize bounds a single fact-delete statement.
const batchSize = 1000

// Report summarizes one purge pass.
type Report struct {
	Transactions  int64
	Anomalies     int64
	RefreshRuns   int64
	DetectionRuns int64
	ExpiredGrants int64
}

// Purger deletes data that has aged out of the retention windows.
type Purger struct {
	pool *pgxpool.Pool
	cfg  config.RetentionConfig
}

// NewPurger creates a purger with the given retention configuration.
func NewPurger(pool *pgxpool.Pool, cfg config.RetentionConfig) *Purger {
	return &Purger{pool: pool, cfg: cfg}
}

// Run executes one purge pass as of the given instant, attributed to actor
// in the audit log. It takes the maintenance advisory lock for the duration
// so purge and ad-hoc maintenance never overlap.
func (p *Purger) Run(ctx context.Context, asOf time.Time, actor string) (Report, error) {
	var rep Report

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return rep, fmt.Errorf("acquiring lock connection: %w", err)
	}
	defer conn.Release()

	got, err := db.TryAdvisoryLock(ctx, conn, db.MaintenanceLockKey)
	if err != nil {
		return rep, fmt.Errorf("taking maintenance lock: %w", err)
	}
	if !got {
		return rep, ErrMaintenanceRunning
	}
	defer func() {
		if err := db.AdvisoryUnlock(context.Background(), conn, db.MaintenanceLockKey); err != nil {
			logging.Warn().Err(err).Msg("Failed to release maintenance lock")
		}
	}()

	factCutoff := asOf.AddDate(0, -p.cfg.Months, 0)
	rep.Transactions, err = p.purgeTransactions(ctx, factCutoff)
	if err != nil {
		return rep, err
	}

	anomalyCutoff := asOf.AddDate(0, 0, -p.cfg.AnomalyDays)
	rep.Anomalies, err = p.purgeResolvedAnomalies(ctx, anomalyCutoff)
	if err != nil {
		return rep, err
	}

	runCutoff := asOf.AddDate(0, 0, -p.cfg.RunLogDays)
	rep.RefreshRuns, rep.DetectionRuns, err = p.purgeRunLogs(ctx, runCutoff)
	if err != nil {
		return rep, err
	}

	rep.ExpiredGrants, err = access.SweepExpiredGrants(ctx, p.pool, asOf)
	if err != nil {
		return rep, fmt.Errorf("sweeping expired grants: %w", err)
	}

	if err := access.Record(ctx, p.pool, access.Entry{
		Table:     "transactions",
		Action:    "purge",
		RecordKey: "retention",
		NewData: map[string]any{
			"fact_cutoff":      factCutoff,
			"deleted_txns":     rep.Transactions,
			"deleted_findings": rep.Anomalies,
		},
		Actor: actor,
	}); err != nil {
		return rep, fmt.Errorf("recording purge audit entry: %w", err)
	}

	logging.Info().
		Int64("transactions", rep.Transactions).
		Int64("anomalies", rep.Anomalies).
		Int64("refresh_runs", rep.RefreshRuns).
		Int64("detection_runs", rep.DetectionRuns).
		Int64("expired_grants", rep.ExpiredGrants).
		Msg("Retention purge complete")
	return rep, nil
}

// purgeTransactions deletes facts recorded before the cutoff in batches.
// Items go with their transaction through the ON DELETE CASCADE.
func (p *Purger) purgeTransactions(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		tag, err := p.pool.Exec(ctx, `
			DELETE FROM transactions
			WHERE transaction_id IN (
				SELECT transaction_id FROM transactions
				WHERE recorded_at < $1
				ORDER BY recorded_at
				LIMIT `+strconv.Itoa(batchSize)+`
			)`, cutoff)
		if err != nil {
			if total > 0 {
				logging.Warn().Err(err).Int64("deleted_so_far", total).
					Msg("Fact purge partially completed with error")
				return total, nil
			}
			return 0, fmt.Errorf("deleting old transactions: %w", err)
		}
		deleted := tag.RowsAffected()
		total += deleted
		if deleted < batchSize {
			return total, nil
		}
	}
}

// purgeResolvedAnomalies drops resolved findings that have not been seen
// since the cutoff. Active findings are never purged.
func (p *Purger) purgeResolvedAnomalies(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM anomalies
		WHERE status = 'resolved' AND last_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting stale anomalies: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Purger) purgeRunLogs(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	refreshTag, err := p.pool.Exec(ctx, `
		DELETE FROM refresh_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("deleting old refresh runs: %w", err)
	}
	detectTag, err := p.pool.Exec(ctx, `
		DELETE FROM detection_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return refreshTag.RowsAffected(), 0, fmt.Errorf("deleting old detection runs: %w", err)
	}
	return refreshTag.RowsAffected(), detectTag.RowsAffected(), nil
}
