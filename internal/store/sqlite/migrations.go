package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
)

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{1, "create_queue_items", []string{`
		CREATE TABLE IF NOT EXISTS queue_items (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type  TEXT    NOT NULL,
			payload     BLOB    NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			completed   INTEGER NOT NULL DEFAULT 0,
			not_before  INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_ready ON queue_items (not_before) WHERE completed = 0`,
	}},
	{2, "create_branches_and_modules", []string{`
		CREATE TABLE IF NOT EXISTS branches (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			host                 TEXT    NOT NULL,
			organization         TEXT    NOT NULL,
			repository           TEXT    NOT NULL,
			repository_id        INTEGER NOT NULL DEFAULT 0,
			branch               TEXT    NOT NULL,
			active               INTEGER NOT NULL DEFAULT 1,
			pending_build_id     INTEGER NOT NULL DEFAULT 0,
			in_progress_build_id INTEGER NOT NULL DEFAULT 0,
			last_build_id        INTEGER NOT NULL DEFAULT 0,
			UNIQUE (host, organization, repository, branch)
		)`, `
		CREATE TABLE IF NOT EXISTS modules (
			id                        INTEGER PRIMARY KEY AUTOINCREMENT,
			branch_id                 INTEGER NOT NULL REFERENCES branches (id),
			name                      TEXT    NOT NULL,
			type                      TEXT    NOT NULL DEFAULT '',
			path                      TEXT    NOT NULL DEFAULT '',
			active                    INTEGER NOT NULL DEFAULT 1,
			pending_build_id          INTEGER NOT NULL DEFAULT 0,
			in_progress_build_id      INTEGER NOT NULL DEFAULT 0,
			last_build_id             INTEGER NOT NULL DEFAULT 0,
			last_successful_build_id  INTEGER NOT NULL DEFAULT 0,
			last_non_skipped_build_id INTEGER NOT NULL DEFAULT 0,
			UNIQUE (branch_id, name, type)
		)`,
	}},
	{3, "create_builds", []string{`
		CREATE TABLE IF NOT EXISTS repo_builds (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			branch_id       INTEGER NOT NULL REFERENCES branches (id),
			build_number    INTEGER NOT NULL,
			state           TEXT    NOT NULL,
			trigger_type    TEXT    NOT NULL,
			trigger_id      TEXT    NOT NULL DEFAULT '',
			commit_sha      TEXT,
			author_email    TEXT,
			committer_email TEXT,
			commit_message  TEXT,
			start_ts        INTEGER NOT NULL DEFAULT 0,
			end_ts          INTEGER NOT NULL DEFAULT 0,
			UNIQUE (branch_id, build_number)
		)`, `
		CREATE TABLE IF NOT EXISTS module_builds (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id     INTEGER NOT NULL REFERENCES modules (id),
			repo_build_id INTEGER NOT NULL REFERENCES repo_builds (id),
			build_number  INTEGER NOT NULL,
			state         TEXT    NOT NULL,
			start_ts      INTEGER NOT NULL DEFAULT 0,
			end_ts        INTEGER NOT NULL DEFAULT 0,
			UNIQUE (module_id, build_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_module_builds_repo_build ON module_builds (repo_build_id)`,
	}},
	{4, "create_inter_project_builds", []string{`
		CREATE TABLE IF NOT EXISTS inter_project_builds (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			state    TEXT    NOT NULL,
			start_ts INTEGER NOT NULL DEFAULT 0,
			end_ts   INTEGER NOT NULL DEFAULT 0
		)`, `
		CREATE TABLE IF NOT EXISTS inter_project_build_mappings (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			inter_project_build_id INTEGER NOT NULL REFERENCES inter_project_builds (id),
			repo_build_id          INTEGER NOT NULL,
			module_id              INTEGER NOT NULL,
			module_build_id        INTEGER NOT NULL DEFAULT 0,
			state                  TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ipb_mappings_build ON inter_project_build_mappings (inter_project_build_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ipb_mappings_repo_build ON inter_project_build_mappings (repo_build_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ipb_mappings_module_build ON inter_project_build_mappings (module_build_id)`,
	}},
	{5, "create_leases", []string{`
		CREATE TABLE IF NOT EXISTS leases (
			name       TEXT PRIMARY KEY,
			holder     TEXT    NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}},
}

// Migrate applies pending schema migrations in version order.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT    NOT NULL,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return storeErr(err, "create schema_migrations")
	}

	for _, m := range migrations {
		var applied int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&applied)
		if err != nil {
			return storeErr(err, "read schema_migrations")
		}
		if applied > 0 {
			continue
		}
		err = s.tx(ctx, "migrate "+m.name, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return storeErr(err, "migrate "+m.name)
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, s.millis())
			return storeErr(err, "record migration")
		})
		if err != nil {
			return err
		}
		slog.Debug("Applied migration", slog.Int("version", m.version), slog.String("name", m.name))
	}
	return nil
}
