//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/retailpulse/pipeline/internal/anomaly"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
	"github.com/retailpulse/pipeline/internal/refresh"
)

var (
	refreshDaemon         bool
	refreshView           string
	refreshAsOf           string
	refreshNightlyHour    int = -1
	refreshViewTimeout    int
	refreshReportInterval int
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the derived views",
	Long: `Rebuild derived views from the fact store. Without flags, all views
are rebuilt once in dependency order and the command exits. With --daemon,
refresh runs continuously: hourly views at the top of every hour, the full
set once per night, anomaly detection after each nightly pass.

Example:
  retailpulse refresh
  retailpulse refresh --view agg_daily_sales
  retailpulse refresh --daemon`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshDaemon, "daemon", false,
		"run continuously on the refresh schedule")
	refreshCmd.Flags().StringVar(&refreshView, "view", "",
		"rebuild a single view by name")
	refreshCmd.Flags().StringVar(&refreshAsOf, "as-of", "",
		"aggregate as of this instant (RFC 3339, default: now)")
	refreshCmd.Flags().IntVar(&refreshNightlyHour, "nightly-hour", -1,
		"hour of day (0-23) for the nightly full pass")
	refreshCmd.Flags().IntVar(&refreshViewTimeout, "view-timeout", 0,
		"per-view build timeout in seconds")
	refreshCmd.Flags().IntVar(&refreshReportInterval, "report-interval", 0,
		"statistics reporting interval in seconds (daemon mode)")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if refreshNightlyHour >= 0 {
		cfg.Refresh.NightlyHour = refreshNightlyHour
	}
	if refreshViewTimeout > 0 {
		cfg.Refresh.ViewTimeout = refreshViewTimeout
	}
	if refreshReportInterval > 0 {
		cfg.Refresh.ReportInterval = refreshReportInterval
	}

	if err := cfg.ValidateRefresh(); err != nil {
		return err
	}
	if refreshDaemon && refreshView != "" {
		return fmt.Errorf("--daemon and --view are mutually exclusive")
	}

	asOf := time.Now().UTC()
	if refreshAsOf != "" {
		parsed, err := time.Parse(time.RFC3339, refreshAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of value: %w", err)
		}
		asOf = parsed.UTC()
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	sched := refresh.NewScheduler(pool, cfg.Refresh)

	if refreshView != "" {
		return sched.RefreshOne(ctx, refreshView, asOf)
	}

	if !refreshDaemon {
		return sched.RefreshAll(ctx, asOf)
	}

	// Daemon mode: run until interrupted.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	daemon := refresh.NewDaemon(sched, pool)
	daemon.OnNightly = func(ctx context.Context, asOf time.Time) error {
		stats, err := anomaly.Run(ctx, pool, asOf)
		if err != nil {
			return err
		}
		logging.Info().
			Int64("suspicious", stats.Suspicious).
			Int64("store_pattern", stats.StorePattern).
			Int64("substitution", stats.Substitution).
			Msg("Nightly anomaly detection complete")
		return nil
	}

	err = daemon.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
