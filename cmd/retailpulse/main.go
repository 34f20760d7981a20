//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package main is the entry point for retailpulse.
package main

import (
	"fmt"
	"os"

	"github.com/retailpulse/pipeline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
