package access

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/retailpulse/pipeline/internal/db"
)

// Entry is one append-only audit record. Audit rows are never updated or
// deleted except by the retention purge.
type Entry struct {
	Table     string
	Action    string
	RecordKey string
	OldData   any
	NewData   any
	Actor     string
	Origin    string
}

// Record appends an audit entry.
func Record(ctx context.Context, d db.Execer, e Entry) error {
	origin := e.Origin
	if origin == "" {
		origin = "cli"
	}

	var oldJSON, newJSON []byte
	var err error
	if e.OldData != nil {
		if oldJSON, err = json.Marshal(e.OldData); err != nil {
			return fmt.Errorf("failed to marshal audit old_data: %w", err)
		}
	}
	if e.NewData != nil {
		if newJSON, err = json.Marshal(e.NewData); err != nil {
			return fmt.Errorf("failed to marshal audit new_data: %w", err)
		}
	}

	_, err = d.Exec(ctx, `
        INSERT INTO audit_log
            (table_name, action, record_key, old_data, new_data, actor, origin)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, e.Table, e.Action, e.RecordKey, oldJSON, newJSON, e.Actor, origin)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
