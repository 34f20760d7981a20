//-------------------------------------------------------------------------
//
// Retail Pulse Analytics Pipeline
//
// Copyright (c) 2025 - 2026, Retail Pulse Contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package access

import (
	"fmt"
	"strconv"
	"time"

	"github.com/retailpulse/pipeline/internal/config"
)

// Policy evaluates caller visibility from configuration.
type Policy struct {
	cfg config.AccessConfig
}

// NewPolicy creates a policy from the access configuration.
func NewPolicy(cfg config.AccessConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Predicate is a SQL filter fragment with its bind arguments. Arguments are
// numbered starting at the given offset so the fragment composes with the
// caller's own WHERE clauses.
type Predicate struct {
	SQL  string
	Args []any
}

// CheckBusinessHours rejects non-administrator access outside the configured
// business hours window.
func (p *Policy) CheckBusinessHours(caller CallerContext) error {
	if caller.Role == RoleAdmin {
		return nil
	}
	hour := caller.Now.Hour()
	if hour < p.cfg.BusinessHoursStart || hour >= p.cfg.BusinessHoursEnd {
		return ErrOutsideBusinessHours
	}
	return nil
}

// StorePredicate builds the row filter for a store- and time-dimensioned
// table. storeCol and timeCol name the columns to filter; argOffset is the
// first free bind-parameter number.
//
// Admins see everything. Analysts see the trailing window. Managers see only
// stores with a usable (active, unexpired) grant; a manager with no usable
// grants is denied outright.
func (p *Policy) StorePredicate(caller CallerContext, storeCol, timeCol string, argOffset int) (Predicate, error) {
	if err := p.CheckBusinessHours(caller); err != nil {
		return Predicate{}, err
	}

	switch caller.Role {
	case RoleAdmin:
		return Predicate{SQL: "TRUE"}, nil

	case RoleAnalyst:
		cutoff := p.AnalystCutoff(caller.Now)
		return Predicate{
			SQL:  fmt.Sprintf("%s >= $%d", timeCol, argOffset),
			Args: []any{cutoff},
		}, nil

	case RoleManager:
		ids := caller.UsableStoreIDs()
		if len(ids) == 0 {
			return Predicate{}, ErrAccessDenied
		}
		return Predicate{
			SQL:  fmt.Sprintf("%s = ANY($%d)", storeCol, argOffset),
			Args: []any{ids},
		}, nil

	default:
		return Predicate{}, ErrUnknownRole
	}
}

// GlobalPredicate builds the filter for tables without a store dimension
// (product performance, brand competition, regional rollups, segments).
// Managers are store-scoped and cannot read global aggregates.
func (p *Policy) GlobalPredicate(caller CallerContext, timeCol string, argOffset int) (Predicate, error) {
	if err := p.CheckBusinessHours(caller); err != nil {
		return Predicate{}, err
	}

	switch caller.Role {
	case RoleAdmin:
		return Predicate{SQL: "TRUE"}, nil

	case RoleAnalyst:
		cutoff := p.AnalystCutoff(caller.Now)
		return Predicate{
			SQL:  fmt.Sprintf("%s >= $%d", timeCol, argOffset),
			Args: []any{cutoff},
		}, nil

	case RoleManager:
		return Predicate{}, ErrAccessDenied

	default:
		return Predicate{}, ErrUnknownRole
	}
}

// SubjectPredicate builds the filter for the anomaly list, whose rows carry a
// "store:<id>" or "txn:<id>" subject instead of a store column. Managers see
// only findings whose subject names a granted store.
func (p *Policy) SubjectPredicate(caller CallerContext, subjectCol, timeCol string, argOffset int) (Predicate, error) {
	if err := p.CheckBusinessHours(caller); err != nil {
		return Predicate{}, err
	}

	switch caller.Role {
	case RoleAdmin:
		return Predicate{SQL: "TRUE"}, nil

	case RoleAnalyst:
		cutoff := p.AnalystCutoff(caller.Now)
		return Predicate{
			SQL:  fmt.Sprintf("%s >= $%d", timeCol, argOffset),
			Args: []any{cutoff},
		}, nil

	case RoleManager:
		ids := caller.UsableStoreIDs()
		if len(ids) == 0 {
			return Predicate{}, ErrAccessDenied
		}
		subjects := make([]string, len(ids))
		for i, id := range ids {
			subjects[i] = "store:" + strconv.Itoa(id)
		}
		return Predicate{
			SQL:  fmt.Sprintf("%s = ANY($%d)", subjectCol, argOffset),
			Args: []any{subjects},
		}, nil

	default:
		return Predicate{}, ErrUnknownRole
	}
}

// AnalystCutoff returns the earliest instant an analyst may read as of now.
func (p *Policy) AnalystCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.cfg.AnalystWindowDays)
}
