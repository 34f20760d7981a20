//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for retailpulse.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/retailpulse/pipeline/internal/config"
	"github.com/retailpulse/pipeline/internal/logging"
	"github.com/retailpulse/pipeline/internal/views"
	"github.com/retailpulse/pipeline/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	logLevel   string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "retailpulse",
		Short: "Retail analytics aggregation pipeline over PostgreSQL",
		Long: `retailpulse ingests point-of-sale transaction facts into PostgreSQL,
maintains a set of derived analytical views (daily sales, product and
regional performance, brand competition, customer segments), detects
anomalous activity, and enforces role-based access to the results.

Typical flow: 'init' the schema, 'seed' a synthetic fact history, then
'refresh --daemon' to keep the derived views current.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./retailpulse.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "List the derived views and their refresh cadence",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Derived views (in dependency order):")
		cmd.Println()
		for _, v := range views.Ordered() {
			cmd.Printf("  %-28s %-8s %s\n", v.Name, v.Cadence, v.Description)
		}
	},
}
