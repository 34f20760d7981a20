//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package query is the read-only interface the presentation layer consumes:
// paginated, filterable reads over the derived views and the anomaly list.
// Every read is routed through the access policy; callers never write.
package query

import (
	"fmt"
	"strings"
	"time"
)

// Pagination caps keep a single page bounded no matter what the caller asks
// for.
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// Page selects a bounded slice of a result set.
type Page struct {
	Limit  int
	Offset int
}

// normalize clamps the page to sane bounds.
func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Filter narrows a view read. Zero values mean "no filter".
type Filter struct {
	From     *time.Time
	To       *time.Time
	RegionID int
	BrandID  int
	StoreID  int
	Category string
}

// whereBuilder accumulates WHERE conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

// addf appends a condition whose bind placeholder is numbered after the
// existing args.
func (w *whereBuilder) addf(format string, arg any) {
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)+1))
	w.args = append(w.args, arg)
}

// next returns the next free bind-parameter number.
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// paged appends LIMIT/OFFSET binds and returns the SQL tail.
func (w *whereBuilder) paged(p Page) string {
	p = p.normalize()
	tail := fmt.Sprintf("LIMIT $%d OFFSET $%d", len(w.args)+1, len(w.args)+2)
	w.args = append(w.args, p.Limit, p.Offset)
	return tail
}
