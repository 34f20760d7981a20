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
	"time"

	"github.com/spf13/cobra"

	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/purge"
)

var (
	purgeMonths int
	purgeActor  string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete data that has aged out of the retention windows",
	Long: `Delete transactions older than the fact retention window, resolved
anomalies and run logs past their own windows, and deactivate expired
grants. The purge takes the maintenance lock, so it will refuse to run
while another maintenance task holds it.

Example:
  retailpulse purge --months 12 --actor ops@example.com`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().IntVar(&purgeMonths, "months", 0,
		"fact retention in months")
	purgeCmd.Flags().StringVar(&purgeActor, "actor", "system",
		"who to attribute the purge to in the audit log")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if purgeMonths > 0 {
		cfg.Retention.Months = purgeMonths
	}
	if err := cfg.ValidateRetention(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	rep, err := purge.NewPurger(pool, cfg.Retention).Run(ctx, time.Now().UTC(), purgeActor)
	if err != nil {
		return err
	}

	cmd.Printf("Purged %d transactions, %d anomalies, %d refresh runs, %d detection runs\n",
		rep.Transactions, rep.Anomalies, rep.RefreshRuns, rep.DetectionRuns)
	cmd.Printf("Deactivated %d expired grants\n", rep.ExpiredGrants)
	return nil
}
