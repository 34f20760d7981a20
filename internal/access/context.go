//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package access implements the row-visibility policy layer: caller
// identity is passed explicitly, filtering is an explicit predicate, and
// every grant mutation is audited. No ambient session state.
package access

import (
	"errors"
	"time"
)

// Role is a caller's access tier.
type Role string

const (
	// RoleAdmin has unrestricted read access.
	RoleAdmin Role = "admin"

	// RoleAnalyst may read a trailing window of recent data only.
	RoleAnalyst Role = "analyst"

	// RoleManager may read only stores explicitly granted.
	RoleManager Role = "manager"
)

// Policy violations surface as explicit denials, never as silently filtered
// results that could be mistaken for "no data".
var (
	ErrAccessDenied         = errors.New("access denied")
	ErrOutsideBusinessHours = errors.New("access denied: outside business hours")
	ErrUnknownRole          = errors.New("access denied: unknown role")
)

// Grant is one store-access grant loaded for a caller.
type Grant struct {
	StoreID     int
	AccessLevel string
	GrantedBy   string
	GrantedAt   time.Time
	ExpiresAt   *time.Time
	Active      bool
}

// Expired reports whether the grant has an expiry in the past relative to
// now. Expiry is enforced at read time; the periodic sweep that flips
// is_active exists only for hygiene.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Usable reports whether the grant currently confers access.
func (g Grant) Usable(now time.Time) bool {
	return g.Active && !g.Expired(now)
}

// CallerContext identifies the caller for every read. Now is the instant
// used for window and business-hours checks so policy decisions are
// deterministic under test.
type CallerContext struct {
	Role   Role
	UserID string
	Now    time.Time
	Grants []Grant
}

// UsableStoreIDs returns the store ids the caller currently holds usable
// grants for, in grant order.
func (c CallerContext) UsableStoreIDs() []int {
	var ids []int
	for _, g := range c.Grants {
		if g.Usable(c.Now) {
			ids = append(ids, g.StoreID)
		}
	}
	return ids
}
