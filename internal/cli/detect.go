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

	"github.com/retailpulse/pipeline/internal/anomaly"
	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

var detectAsOf string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run anomaly detection once",
	Long: `Scan the fact store for suspicious transactions, unusual store
patterns and high substitution rates, and upsert the findings. Detection is
idempotent: re-running over the same window updates existing findings
instead of duplicating them.`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectAsOf, "as-of", "",
		"detect as of this instant (RFC 3339, default: now)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	asOf := time.Now().UTC()
	if detectAsOf != "" {
		parsed, err := time.Parse(time.RFC3339, detectAsOf)
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

	stats, err := anomaly.Run(ctx, pool, asOf)
	if err != nil {
		return err
	}

	logging.Info().
		Str("run_id", stats.RunID.String()).
		Int64("suspicious", stats.Suspicious).
		Int64("store_pattern", stats.StorePattern).
		Int64("substitution", stats.Substitution).
		Msg("Anomaly detection complete")
	return nil
}
