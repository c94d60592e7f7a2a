package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore opens a dedicated database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "could not open transition history database").
			WithContext("path", dbPath).
			Build()
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, owned: true}
	if err := store.initialize(ctx); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, err
	}
	return store, nil
}

// New keeps the history in db, usually the database of the build store.
// Close leaves db open.
func New(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		build_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		previous TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		payload BLOB,
		metadata TEXT,
		UNIQUE (kind, build_id, state)
	);
	CREATE INDEX IF NOT EXISTS idx_build_transitions_timestamp ON build_transitions(timestamp);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.WrapError(err, errors.CategoryStore, "failed to initialize transition history schema").Build()
	}
	return nil
}

// Append adds t to the history. A build enters each state at most once, so a
// replayed transition is ignored.
func (s *SQLiteStore) Append(ctx context.Context, t Transition) error {
	var metadataJSON []byte
	if t.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(t.Metadata)
		if err != nil {
			return errors.WrapError(err, errors.CategoryStore, "failed to marshal transition").Build()
		}
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO build_transitions (kind, build_id, state, previous, timestamp, payload, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Kind, t.BuildID, t.State, t.Previous, at.UnixMilli(), t.Payload, metadataJSON,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryStore, "failed to append transition").
			WithContext("kind", t.Kind).
			WithContext("build_id", t.BuildID).
			Retryable().
			Build()
	}
	return nil
}

const selectEvents = `SELECT id, kind, build_id, state, previous, timestamp, payload, metadata FROM build_transitions`

// GetByBuildID retrieves all transitions of one build.
func (s *SQLiteStore) GetByBuildID(ctx context.Context, kind string, buildID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE kind = ? AND build_id = ? ORDER BY id", kind, buildID)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to query transitions").Build()
	}
	defer func() { _ = rows.Close() }()

	return s.scanEvents(rows)
}

// GetRange retrieves transitions within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to query transitions").Build()
	}
	defer func() { _ = rows.Close() }()

	return s.scanEvents(rows)
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var timestampMillis int64
		var metadataJSON []byte

		err := rows.Scan(&e.ID, &e.Kind, &e.BuildID, &e.State, &e.Previous, &timestampMillis, &e.Payload, &metadataJSON)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryStore, "failed to query transitions").Build()
		}
		e.Timestamp = time.UnixMilli(timestampMillis)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, errors.WrapError(err, errors.CategoryStore, "failed to query transitions").
					WithContext("id", e.ID).
					Build()
			}
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryStore, "failed to query transitions").Build()
	}
	return events, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
