//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

// ErrDaemonRunning is returned when another daemon already holds the
// database-level daemon lock.
var ErrDaemonRunning = errors.New("another refresh daemon is already running")

// Daemon runs the continuous refresh cycle: hourly views at the top of every
// hour, the full pass once per night at the configured hour.
type Daemon struct {
	sched *Scheduler
	pool  *pgxpool.Pool

	// OnNightly, if set, runs after each successful nightly pass. The CLI
	// hooks anomaly detection here so findings are computed from fresh
	// views.
	OnNightly func(ctx context.Context, asOf time.Time) error
}

// NewDaemon wraps a scheduler in the continuous cycle.
func NewDaemon(sched *Scheduler, pool *pgxpool.Pool) *Daemon {
	return &Daemon{sched: sched, pool: pool}
}

// Run blocks until the context is cancelled. It takes a session-level
// advisory lock so that at most one daemon refreshes a given database.
func (d *Daemon) Run(ctx context.Context) error {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring lock connection: %w", err)
	}
	defer conn.Release()

	got, err := db.TryAdvisoryLock(ctx, conn, db.DaemonLockKey)
	if err != nil {
		return fmt.Errorf("taking daemon lock: %w", err)
	}
	if !got {
		return ErrDaemonRunning
	}
	defer func() {
		if err := db.AdvisoryUnlock(context.Background(), conn, db.DaemonLockKey); err != nil {
			logging.Warn().Err(err).Msg("Failed to release daemon lock")
		}
	}()

	logging.Info().
		Int("nightly_hour", d.sched.cfg.NightlyHour).
		Msg("Refresh daemon started")

	// Initial pass so a fresh database serves data before the first tick.
	if err := d.sched.RefreshAll(ctx, time.Now()); err != nil {
		logging.Warn().Err(err).Msg("Initial refresh pass had failures")
	}

	if d.sched.cfg.ReportInterval > 0 {
		go d.report(ctx)
	}

	for {
		next := nextTick(time.Now())
		select {
		case <-ctx.Done():
			logging.Info().Msg("Refresh daemon stopping")
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		asOf := next
		if next.Hour() == d.sched.cfg.NightlyHour {
			logging.Info().Time("as_of", asOf).Msg("Starting nightly refresh pass")
			err := d.sched.RefreshAll(ctx, asOf)
			if err != nil {
				logging.Warn().Err(err).Msg("Nightly refresh pass had failures")
			}
			if err == nil && d.OnNightly != nil {
				if err := d.OnNightly(ctx, asOf); err != nil {
					logging.Error().Err(err).Msg("Nightly post-refresh hook failed")
				}
			}
		} else {
			if err := d.sched.RefreshHourly(ctx, asOf); err != nil {
				logging.Warn().Err(err).Msg("Hourly refresh pass had failures")
			}
		}
	}
}

// report periodically logs the scheduler's counters, in the same shape the
// seeder reports insert progress.
func (d *Daemon) report(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(d.sched.cfg.ReportInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := d.sched.Statistics()
			logging.Info().
				Int64("builds", st.Builds.Load()).
				Int64("failures", st.Failures.Load()).
				Int64("skipped", st.Skipped.Load()).
				Int64("rows_written", st.Rows.Load()).
				Int64("rows_excluded", st.Excluded.Load()).
				Msg("Refresh statistics")
		}
	}
}

// nextTick returns the next top-of-hour instant strictly after now.
func nextTick(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}
