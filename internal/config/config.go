//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for retailpulse.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for retailpulse.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed"`

	// Refresh holds configuration for derived view refresh.
	Refresh RefreshConfig `mapstructure:"refresh"`

	// Retention holds configuration for the retention purge.
	Retention RetentionConfig `mapstructure:"retention"`

	// Access holds configuration for the access policy layer.
	Access AccessConfig `mapstructure:"access"`
}

// SeedConfig holds configuration for synthetic data generation.
type SeedConfig struct {
	// Transactions is the number of fact transactions to generate.
	Transactions int `mapstructure:"transactions"`

	// Days is how far back generated transactions extend from now.
	Days int `mapstructure:"days"`

	// Stores is the number of stores to generate.
	Stores int `mapstructure:"stores"`

	// Customers is the size of the synthetic customer population.
	Customers int `mapstructure:"customers"`

	// RandSeed seeds the generator for reproducible output (0 = random).
	RandSeed uint64 `mapstructure:"rand_seed"`

	// DropExisting drops existing schema before seeding.
	DropExisting bool `mapstructure:"drop_existing"`
}

// RefreshConfig holds configuration for the refresh scheduler.
type RefreshConfig struct {
	// NightlyHour is the local hour (0-23) at which nightly views refresh.
	NightlyHour int `mapstructure:"nightly_hour"`

	// ViewTimeout is the per-view build timeout in seconds.
	ViewTimeout int `mapstructure:"view_timeout"`

	// ReportInterval is how often the daemon logs statistics (in seconds).
	ReportInterval int `mapstructure:"report_interval"`
}

// RetentionConfig holds configuration for the retention purge.
type RetentionConfig struct {
	// Months is how many months of fact data to keep.
	Months int `mapstructure:"months"`

	// AnomalyDays is how long resolved anomalies are kept.
	AnomalyDays int `mapstructure:"anomaly_days"`

	// RunLogDays is how long refresh run log rows are kept.
	RunLogDays int `mapstructure:"run_log_days"`
}

// AccessConfig holds configuration for the access policy layer.
type AccessConfig struct {
	// AnalystWindowDays is the trailing window analysts may read.
	AnalystWindowDays int `mapstructure:"analyst_window_days"`

	// BusinessHoursStart is the first local hour non-admins may read.
	BusinessHoursStart int `mapstructure:"business_hours_start"`

	// BusinessHoursEnd is the local hour at which non-admin access closes.
	BusinessHoursEnd int `mapstructure:"business_hours_end"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Seed: SeedConfig{
			Transactions: 50000,
			Days:         120,
			Stores:       60,
			Customers:    5000,
		},
		Refresh: RefreshConfig{
			NightlyHour:    2,
			ViewTimeout:    600,
			ReportInterval: 60,
		},
		Retention: RetentionConfig{
			Months:      12,
			AnomalyDays: 90,
			RunLogDays:  30,
		},
		Access: AccessConfig{
			AnalystWindowDays:  90,
			BusinessHoursStart: 8,
			BusinessHoursEnd:   20,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./retailpulse.yaml
// 3. ~/.config/retailpulse/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("retailpulse")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "retailpulse"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	return nil
}

// ValidateSeed checks configuration required for the seed command.
func (c *Config) ValidateSeed() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Seed.Transactions < 1 {
		return fmt.Errorf("seed transactions must be at least 1")
	}
	if c.Seed.Days < 1 {
		return fmt.Errorf("seed days must be at least 1")
	}
	if c.Seed.Stores < 1 {
		return fmt.Errorf("seed stores must be at least 1")
	}
	if c.Seed.Customers < 1 {
		return fmt.Errorf("seed customers must be at least 1")
	}
	return nil
}

// ValidateRefresh checks configuration required for the refresh command.
func (c *Config) ValidateRefresh() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Refresh.NightlyHour < 0 || c.Refresh.NightlyHour > 23 {
		return fmt.Errorf("nightly_hour must be between 0 and 23")
	}
	if c.Refresh.ViewTimeout < 1 {
		return fmt.Errorf("view_timeout must be at least 1 second")
	}
	return nil
}

// ValidateRetention checks configuration required for the purge command.
func (c *Config) ValidateRetention() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Retention.Months < 1 {
		return fmt.Errorf("retention months must be at least 1")
	}
	return nil
}

// ValidateAccess checks the access policy configuration.
func (c *Config) ValidateAccess() error {
	if c.Access.AnalystWindowDays < 1 {
		return fmt.Errorf("analyst_window_days must be at least 1")
	}
	if c.Access.BusinessHoursStart < 0 || c.Access.BusinessHoursStart > 23 {
		return fmt.Errorf("business_hours_start must be between 0 and 23")
	}
	if c.Access.BusinessHoursEnd <= c.Access.BusinessHoursStart ||
		c.Access.BusinessHoursEnd > 24 {
		return fmt.Errorf("business_hours_end must be after business_hours_start and at most 24")
	}
	return nil
}
