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
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/retailpulse/pipeline/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state: metadata, recent refreshes, active anomalies",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	meta, err := db.GetAllMetadata(ctx, pool)
	if err != nil {
		return fmt.Errorf("database has not been initialized; run 'retailpulse init' first")
	}

	cmd.Println("Pipeline metadata:")
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %-16s %s\n", k, meta[k])
	}

	cmd.Println()
	cmd.Println("Latest view refreshes:")
	rows, err := pool.Query(ctx, `
		SELECT DISTINCT ON (view_name)
		       view_name, status, started_at, row_count, excluded_rows
		FROM refresh_runs
		ORDER BY view_name, started_at DESC`)
	if err != nil {
		return fmt.Errorf("failed to read refresh runs: %w", err)
	}
	defer rows.Close()

	refreshed := false
	for rows.Next() {
		var name, status string
		var started time.Time
		var rowCount, excluded int64
		if err := rows.Scan(&name, &status, &started, &rowCount, &excluded); err != nil {
			return fmt.Errorf("failed to scan refresh run: %w", err)
		}
		refreshed = true
		cmd.Printf("  %-28s %-10s %s  rows=%d excluded=%d\n",
			name, status, started.Format(time.RFC3339), rowCount, excluded)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if !refreshed {
		cmd.Println("  (no refreshes recorded)")
	}

	cmd.Println()
	var active, high int64
	err = pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE severity = 'high')
		FROM anomalies WHERE status = 'active'`).Scan(&active, &high)
	if err != nil {
		return fmt.Errorf("failed to count anomalies: %w", err)
	}
	cmd.Printf("Active anomalies: %d (%d high severity)\n", active, high)

	return nil
}
