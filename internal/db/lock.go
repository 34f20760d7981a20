package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Advisory lock keys for the pipeline's singleton processes.
const (
	// MaintenanceLockKey is held for the duration of a refresh pass and for
	// the duration of a retention purge, so the purge never deletes facts
	// between sibling view builds of one pass.
	MaintenanceLockKey int64 = 0x52505531 // "RPU1"

	// DaemonLockKey ensures only one refresh daemon runs per database.
	DaemonLockKey int64 = 0x52505532 // "RPU2"
)

// Execer is the minimal query surface shared by *pgxpool.Pool, *pgx.Conn
// and pgx.Tx. It lets SQL helpers run against whichever handle the caller
// holds.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TryAdvisoryLock attempts to take a session-level advisory lock without
// blocking. Returns false if another session holds it.
func TryAdvisoryLock(ctx context.Context, db Execer, key int64) (bool, error) {
	var got bool
	err := db.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got)
	return got, err
}

// AdvisoryUnlock releases a session-level advisory lock.
func AdvisoryUnlock(ctx context.Context, db Execer, key int64) error {
	_, err := db.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
	return err
}
