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
	"context"
	"fmt"
	"time"

	"github.com/retailpulse/pipeline/internal/db"
	"github.com/retailpulse/pipeline/internal/logging"
)

// GrantStore upserts a store-access grant for a user. Granting twice is
// idempotent: the access level and expiry are replaced and the grant is
// reactivated if it had been revoked. The mutation is audited.
func GrantStore(ctx context.Context, d db.Execer, userID string, storeID int,
	level string, expiresAt *time.Time, grantedBy string) error {

	if level != "read" && level != "write" {
		return fmt.Errorf("invalid access level: %s", level)
	}

	_, err := d.Exec(ctx, `
        INSERT INTO store_access
            (user_id, store_id, access_level, granted_by, granted_at, expires_at, is_active)
        VALUES ($1, $2, $3, $4, now(), $5, TRUE)
        ON CONFLICT (user_id, store_id) DO UPDATE
        SET access_level = EXCLUDED.access_level,
            granted_by = EXCLUDED.granted_by,
            granted_at = EXCLUDED.granted_at,
            expires_at = EXCLUDED.expires_at,
            is_active = TRUE,
            revoked_at = NULL
    `, userID, storeID, level, grantedBy, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to grant store access: %w", err)
	}

	if err := Record(ctx, d, Entry{
		Table:     "store_access",
		Action:    "grant",
		RecordKey: fmt.Sprintf("%s/%d", userID, storeID),
		NewData: map[string]any{
			"user_id":      userID,
			"store_id":     storeID,
			"access_level": level,
			"expires_at":   expiresAt,
		},
		Actor: grantedBy,
	}); err != nil {
		return err
	}

	logging.Info().
		Str("user_id", userID).
		Int("store_id", storeID).
		Str("access_level", level).
		Msg("Granted store access")

	return nil
}

// RevokeStore deactivates a grant. The row is kept (soft flag) so the audit
// trail of who held access remains intact.
func RevokeStore(ctx context.Context, d db.Execer, userID string, storeID int, revokedBy string) error {
	tag, err := d.Exec(ctx, `
        UPDATE store_access
        SET is_active = FALSE, revoked_at = now()
        WHERE user_id = $1 AND store_id = $2 AND is_active
    `, userID, storeID)
	if err != nil {
		return fmt.Errorf("failed to revoke store access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active grant for user %s on store %d", userID, storeID)
	}

	if err := Record(ctx, d, Entry{
		Table:     "store_access",
		Action:    "revoke",
		RecordKey: fmt.Sprintf("%s/%d", userID, storeID),
		OldData: map[string]any{
			"user_id":  userID,
			"store_id": storeID,
		},
		Actor: revokedBy,
	}); err != nil {
		return err
	}

	logging.Info().
		Str("user_id", userID).
		Int("store_id", storeID).
		Msg("Revoked store access")

	return nil
}

// LoadGrants fetches all grant rows for a user, including revoked and
// expired ones; Grant.Usable decides what actually confers access.
func LoadGrants(ctx context.Context, d db.Execer, userID string) ([]Grant, error) {
	rows, err := d.Query(ctx, `
        SELECT store_id, access_level, granted_by, granted_at, expires_at, is_active
        FROM store_access
        WHERE user_id = $1
        ORDER BY store_id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.StoreID, &g.AccessLevel, &g.GrantedBy,
			&g.GrantedAt, &g.ExpiresAt, &g.Active); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Caller builds a CallerContext with the user's grants loaded.
func Caller(ctx context.Context, d db.Execer, role Role, userID string, now time.Time) (CallerContext, error) {
	caller := CallerContext{Role: role, UserID: userID, Now: now}
	if role == RoleManager {
		grants, err := LoadGrants(ctx, d, userID)
		if err != nil {
			return caller, err
		}
		caller.Grants = grants
	}
	return caller, nil
}

// SweepExpiredGrants deactivates grants whose expiry has passed. This is a
// hygiene job only: read-time checks already treat expired grants as absent.
func SweepExpiredGrants(ctx context.Context, d db.Execer, now time.Time) (int64, error) {
	tag, err := d.Exec(ctx, `
        UPDATE store_access
        SET is_active = FALSE, revoked_at = now()
        WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
    `, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired grants: %w", err)
	}
	return tag.RowsAffected(), nil
}
