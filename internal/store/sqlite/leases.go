package sqlite

import (
	"context"
	"time"
)

// AcquireLease claims or renews name for holder. The upsert only overwrites a
// row held by the same holder or already expired.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at < ?`,
		name, holder, now.Add(ttl).UnixMilli(), now.UnixMilli())
	n, err := rowsAffected(res, err, "acquire lease")
	return n > 0, err
}

// ReleaseLease drops name if holder still owns it.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder = ?`, name, holder)
	return storeErr(err, "release lease")
}

// LeaseHolder returns the current unexpired holder of name, or "".
func (s *Store) LeaseHolder(ctx context.Context, name string) (string, error) {
	var holder string
	err := s.db.QueryRowContext(ctx,
		`SELECT holder FROM leases WHERE name = ? AND expires_at >= ?`, name, s.millis()).Scan(&holder)
	if isNoRows(err) {
		return "", nil
	}
	return holder, storeErr(err, "read lease")
}
