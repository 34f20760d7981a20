//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package refresh drives the derived view rebuild cycle: on demand, on an
// hourly tick, and in a nightly full pass. Every build is logged to
// refresh_runs, and a view that is already rebuilding is skipped rather than
// queued.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailpulse/pipeline/internal/config"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
	"github.com/retailpulse/pipeline/internal/views"
)

// ErrBuildInProgress is returned when a view's previous build has not
// finished yet. The scheduler skips, it never queues.
var ErrBuildInProgress = errors.New("view build already in progress")

// ErrMaintenanceRunning is returned when the retention purge holds the
// maintenance lock. The pass is skipped, not queued; the next tick retries.
var ErrMaintenanceRunning = errors.New("maintenance is running, refresh pass skipped")

// Stats holds the daemon's running counters. All fields are updated
// atomically so the reporter can read them without locking.
type Stats struct {
	Builds   atomic.Int64
	Failures atomic.Int64
	Skipped  atomic.Int64
	Rows     atomic.Int64
	Excluded atomic.Int64
}

// Scheduler owns view refreshes against one database.
type Scheduler struct {
	pool  *pgxpool.Pool
	cfg   config.RefreshConfig
	stats Stats

	mu       sync.Mutex
	building map[string]bool
}

// NewScheduler creates a scheduler over the given pool.
func NewScheduler(pool *pgxpool.Pool, cfg config.RefreshConfig) *Scheduler {
	return &Scheduler{
		pool:     pool,
		cfg:      cfg,
		building: make(map[string]bool),
	}
}

// Statistics exposes the running counters for the reporter.
func (s *Scheduler) Statistics() *Stats {
	return &s.stats
}

// tryAcquire marks a view as building. It returns false if a build for the
// same view is already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.building[name] {
		return false
	}
	s.building[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.building, name)
}

// RefreshView rebuilds a single view as of the given instant, logging the
// attempt to refresh_runs. runID groups the views of one scheduler pass.
func (s *Scheduler) RefreshView(ctx context.Context, v *views.View, runID uuid.UUID, asOf time.Time) (views.Result, error) {
	if !s.tryAcquire(v.Name) {
		s.stats.Skipped.Add(1)
		logging.Warn().Str("view", v.Name).Msg("Skipping refresh, previous build still running")
		return views.Result{}, fmt.Errorf("%s: %w", v.Name, ErrBuildInProgress)
	}
	defer s.release(v.Name)

	buildCtx := ctx
	if s.cfg.ViewTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ViewTimeout)*time.Second)
		defer cancel()
	}

	started := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_runs (run_id, view_name, started_at, status)
		VALUES ($1, $2, $3, 'running')`,
		runID, v.Name, started)
	if err != nil {
		return views.Result{}, fmt.Errorf("recording refresh start for %s: %w", v.Name, err)
	}

	res, buildErr := v.Build(buildCtx, s.pool, asOf)
	finished := time.Now()

	if buildErr != nil {
		s.stats.Failures.Add(1)
		if _, err := s.pool.Exec(ctx, `
			UPDATE refresh_runs
			SET finished_at = $3, status = 'failed', error = $4
			WHERE run_id = $1 AND view_name = $2`,
			runID, v.Name, finished, buildErr.Error()); err != nil {
			logging.Error().Err(err).Str("view", v.Name).Msg("Failed to record refresh failure")
		}
		logging.Error().Err(buildErr).Str("view", v.Name).Msg("View refresh failed")
		return views.Result{}, fmt.Errorf("refreshing %s: %w", v.Name, buildErr)
	}

	s.stats.Builds.Add(1)
	s.stats.Rows.Add(res.Rows)
	s.stats.Excluded.Add(res.Excluded)

	if _, err := s.pool.Exec(ctx, `
		UPDATE refresh_runs
		SET finished_at = $3, status = 'succeeded', row_count = $4, excluded_rows = $5
		WHERE run_id = $1 AND view_name = $2`,
		runID, v.Name, finished, res.Rows, res.Excluded); err != nil {
		logging.Error().Err(err).Str("view", v.Name).Msg("Failed to record refresh success")
	}

	logging.Info().
		Str("view", v.Name).
		Int64("rows", res.Rows).
		Int64("excluded", res.Excluded).
		Dur("elapsed", finished.Sub(started)).
		Msg("View refreshed")
	return res, nil
}

// RefreshAll rebuilds every registered view in dependency order as of the
// given instant. A failed view does not stop the pass; all failures are
// joined into the returned error. The whole pass runs under the maintenance
// lock, mutually exclusive with the retention purge.
func (s *Scheduler) RefreshAll(ctx context.Context, asOf time.Time) error {
	return s.refreshMatching(ctx, asOf, func(*views.View) bool { return true })
}

// RefreshHourly rebuilds only the hourly-cadence views.
func (s *Scheduler) RefreshHourly(ctx context.Context, asOf time.Time) error {
	return s.refreshMatching(ctx, asOf, func(v *views.View) bool {
		return v.Cadence == views.CadenceHourly
	})
}

// RefreshOne rebuilds a single view by name.
func (s *Scheduler) RefreshOne(ctx context.Context, name string, asOf time.Time) error {
	if _, err := views.Get(name); err != nil {
		return err
	}
	return s.refreshMatching(ctx, asOf, func(v *views.View) bool {
		return v.Name == name
	})
}

// refreshMatching runs one pass over the matching views. The pass holds the
// maintenance advisory lock so the retention purge cannot delete facts
// between sibling view builds; every view in the pass aggregates the same
// fact set.
func (s *Scheduler) refreshMatching(ctx context.Context, asOf time.Time, match func(*views.View) bool) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring lock connection: %w", err)
	}
	defer conn.Release()

	got, err := db.TryAdvisoryLock(ctx, conn, db.MaintenanceLockKey)
	if err != nil {
		return fmt.Errorf("taking maintenance lock: %w", err)
	}
	if !got {
		logging.Warn().Msg("Maintenance lock held, skipping refresh pass")
		return ErrMaintenanceRunning
	}
	defer func() {
		if err := db.AdvisoryUnlock(context.Background(), conn, db.MaintenanceLockKey); err != nil {
			logging.Warn().Err(err).Msg("Failed to release maintenance lock")
		}
	}()

	runID := uuid.New()
	var errs []error
	for _, v := range views.Ordered() {
		if !match(v) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.RefreshView(ctx, v, runID, asOf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
