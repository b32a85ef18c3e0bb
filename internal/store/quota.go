package store

import (
	"context"
	"fmt"
	"time"
)

// QuotaUsage returns the number of recorded oracle calls.
func (db *DB) QuotaUsage(ctx context.Context) (int, error) {
	var calls int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT calls FROM tagging_quota WHERE id = 'singleton'`).Scan(&calls); err != nil {
		return 0, fmt.Errorf("store: quota usage: %w", err)
	}
	return calls, nil
}

// ReserveQuota claims one oracle call if usage is below ceiling. The check
// and the increment happen in a single statement, so concurrent callers
// can never push usage past the ceiling.
func (db *DB) ReserveQuota(ctx context.Context, ceiling int) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE tagging_quota SET calls = calls + 1, updated_at = ?
		WHERE id = 'singleton' AND calls < ?
	`, time.Now().UTC(), ceiling)
	if err != nil {
		return false, fmt.Errorf("store: reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: reserve quota: %w", err)
	}
	return n == 1, nil
}

// ReleaseQuota returns a reserved call that did not reach the oracle successfully.
func (db *DB) ReleaseQuota(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		UPDATE tagging_quota SET calls = MAX(calls - 1, 0), updated_at = ?
		WHERE id = 'singleton'
	`, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: release quota: %w", err)
	}
	return nil
}

// ResetQuota sets usage back to zero.
func (db *DB) ResetQuota(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE tagging_quota SET calls = 0, updated_at = ? WHERE id = 'singleton'`,
		time.Now().UTC()); err != nil {
		return fmt.Errorf("store: reset quota: %w", err)
	}
	return nil
}
