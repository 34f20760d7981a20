//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package views implements the aggregation engine: the derived view
// definitions computed from the fact store, each rebuilt into a fresh table
// and swapped in atomically so readers never observe a partial view.
package views

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/retailpulse/pipeline/internal/db"
)

// Cadence is how often a view is scheduled for refresh.
type Cadence string

const (
	// CadenceHourly refreshes at the top of every hour.
	CadenceHourly Cadence = "hourly"

	// CadenceNightly refreshes once per night.
	CadenceNightly Cadence = "nightly"
)

// Pool is the database handle a view build needs: plain queries plus the
// ability to open the rebuild transaction. Both *pgxpool.Pool and *pgx.Conn
// satisfy it.
type Pool interface {
	db.Execer
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result reports the outcome of a single view build.
type Result struct {
	// Rows is the number of rows written into the new snapshot.
	Rows int64

	// Excluded is the number of malformed fact rows (dangling product
	// references) left out of the aggregation.
	Excluded int64
}

// BuildFunc computes a view as of the given instant. All time arithmetic is
// relative to asOf; no view reads the wall clock.
type BuildFunc func(ctx context.Context, d Pool, asOf time.Time) (Result, error)

// View describes one derived view.
type View struct {
	// Name is the published table name.
	Name string

	// Description is a human-readable summary.
	Description string

	// Cadence is the scheduled refresh interval.
	Cadence Cadence

	// LookbackDays is the trailing fact window the view aggregates.
	LookbackDays int

	// Deps names views whose underlying rollups must refresh first.
	Deps []string

	// Build recomputes the view.
	Build BuildFunc
}

var (
	registry = make(map[string]*View)
	mu       sync.RWMutex
)

// Register adds a view to the registry.
func Register(v *View) {
	mu.Lock()
	defer mu.Unlock()
	registry[v.Name] = v
}

// Get retrieves a view by name.
func Get(name string) (*View, error) {
	mu.RLock()
	defer mu.RUnlock()

	v, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown view: %s", name)
	}
	return v, nil
}

// List returns all registered view names sorted alphabetically.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered returns all views in dependency order: a view appears after every
// view it depends on. Ties are broken by name for a deterministic schedule.
func Ordered() []*View {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(registry))
	ordered := make([]*View, 0, len(registry))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		v := registry[name]
		if v == nil {
			return
		}
		deps := append([]string(nil), v.Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		ordered = append(ordered, v)
	}

	for _, name := range names {
		visit(name)
	}
	return ordered
}
