package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/buildstate"
	"git.home.luguber.info/inful/buildmesh/internal/cluster"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/interproject"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

var (
	_ queue.Store                = (*Store)(nil)
	_ build.Store                = (*Store)(nil)
	_ interproject.Store         = (*Store)(nil)
	_ cluster.LeaseStore         = (*Store)(nil)
	_ buildstate.Store           = (*Store)(nil)
	_ metrics.ActiveBuildCounter = (*Store)(nil)
)

// Store implements every persistence interface on a single *sql.DB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for readiness and lease expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "open sqlite database").
			WithContext("path", path).Build()
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database. The caller runs Migrate.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for stores sharing the file.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) millis() int64 { return s.now().UnixMilli() }

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func storeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return ferrors.WrapError(err, ferrors.CategoryStore, op).Build()
}

func rowsAffected(res sql.Result, err error, op string) (int64, error) {
	if err != nil {
		return 0, storeErr(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(err, op)
	}
	return n, nil
}

func notFound(kind string, id int64) error {
	return build.ErrNotFound.WithContext("kind", kind).WithContext("id", id)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// tx runs fn in a transaction, rolling back on error.
func (s *Store) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return storeErr(tx.Commit(), fmt.Sprintf("%s: commit", op))
}
