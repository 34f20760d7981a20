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
	"github.com/retailpulse/pipeline/internal/logging"
	"github.com/retailpulse/pipeline/internal/seed"
)

var (
	seedTransactions int
	seedDays         int
	seedStores       int
	seedCustomers    int
	seedRandSeed     uint64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate an initialized database with synthetic facts",
	Long: `Generate reference data (regions, brands, products, stores, devices)
and a transaction history shaped by a daily footfall curve. Requires a
database that was initialized with 'init'.

Example:
  retailpulse seed --transactions 100000 --days 180 --rand-seed 42`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedTransactions, "transactions", 0,
		"number of transactions to generate")
	seedCmd.Flags().IntVar(&seedDays, "days", 0,
		"how many days of history to generate")
	seedCmd.Flags().IntVar(&seedStores, "stores", 0,
		"number of stores to generate")
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 0,
		"size of the synthetic customer population")
	seedCmd.Flags().Uint64Var(&seedRandSeed, "rand-seed", 0,
		"random seed for reproducible output (0 = random)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedTransactions > 0 {
		cfg.Seed.Transactions = seedTransactions
	}
	if seedDays > 0 {
		cfg.Seed.Days = seedDays
	}
	if seedStores > 0 {
		cfg.Seed.Stores = seedStores
	}
	if seedCustomers > 0 {
		cfg.Seed.Customers = seedCustomers
	}
	if seedRandSeed != 0 {
		cfg.Seed.RandSeed = seedRandSeed
	}

	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	initialized, err := db.MetadataExists(ctx, pool)
	if err != nil || !initialized {
		return fmt.Errorf("database has not been initialized; run 'retailpulse init' first")
	}
	if seededAt, err := db.GetMetadataValue(ctx, pool, "seeded_at"); err == nil && seededAt != "" {
		return fmt.Errorf("database was already seeded at %s; re-run 'init --drop-existing' to start over", seededAt)
	}

	logging.Info().
		Int("transactions", cfg.Seed.Transactions).
		Int("days", cfg.Seed.Days).
		Int("stores", cfg.Seed.Stores).
		Msg("Seeding database")

	return seed.NewSeeder(pool, cfg.Seed).Run(ctx, time.Now().UTC())
}
