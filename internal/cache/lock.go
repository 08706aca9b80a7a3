package cache

import (
	"context"
	"errors"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Handle is a held named lock. Release must be called exactly once to
// delete the underlying row, whether or not it expired naturally.
type Handle struct {
	store *Store
	name  string
}

// Lock acquires the cooperative, database-backed mutex named name, per
// spec §4.3's lock protocol: poll MAX(valid_until), sleep past any live
// holder, then race an INSERT; a crashed holder is auto-evicted once a
// later acquirer observes its valid_until has passed. Release names follow
// the convention "release-<id>", "collage-<name>", "playlist-<name>".
func (s *Store) Lock(ctx context.Context, name string, timeout time.Duration) (*Handle, error) {
	for {
		var validUntil float64
		err := s.DB.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(valid_until), 0) FROM locks WHERE name = ?`, name).Scan(&validUntil)
		if err != nil {
			return nil, err
		}

		now := float64(time.Now().UnixNano()) / 1e9
		if validUntil > now {
			sleepFor := time.Duration((validUntil - now) * float64(time.Second))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepFor):
			}
			continue
		}

		deadline := now + timeout.Seconds()
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO locks (name, valid_until) VALUES (?, ?)`, name, deadline)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		return &Handle{store: s, name: name}, nil
	}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Release deletes the lock row, making the name immediately available to
// the next acquirer.
func (h *Handle) Release(ctx context.Context) error {
	_, err := h.store.DB.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, h.name)
	return err
}

// ReleaseLockName, CollageLockName, and PlaylistLockName build the three
// named-lock conventions spec §4.3 requires.
func ReleaseLockName(id string) string    { return "release-" + id }
func CollageLockName(name string) string  { return "collage-" + name }
func PlaylistLockName(name string) string { return "playlist-" + name }
