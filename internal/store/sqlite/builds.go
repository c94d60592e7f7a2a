package sqlite

import (
	"context"
	"database/sql"

	"git.home.luguber.info/inful/buildmesh/internal/build"
)

const repoBuildColumns = `id, branch_id, build_number, state, trigger_type, trigger_id,
	commit_sha, author_email, committer_email, commit_message, start_ts, end_ts`

func scanRepoBuild(sc scanner) (build.RepositoryBuild, error) {
	var (
		b                               build.RepositoryBuild
		sha, author, committer, message sql.NullString
	)
	err := sc.Scan(&b.ID, &b.BranchID, &b.BuildNumber, &b.State, &b.Trigger.Type, &b.Trigger.ID,
		&sha, &author, &committer, &message, &b.StartTimestamp, &b.EndTimestamp)
	if err != nil {
		return b, err
	}
	if sha.Valid {
		b.Commit = &build.CommitInfo{
			SHA:            sha.String,
			AuthorEmail:    author.String,
			CommitterEmail: committer.String,
			Message:        message.String,
		}
	}
	return b, nil
}

func commitArgs(c *build.CommitInfo) []any {
	if c == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{c.SHA, c.AuthorEmail, c.CommitterEmail, c.Message}
}

// EnqueueRepositoryBuild inserts b as the branch's pending build in one transaction.
func (s *Store) EnqueueRepositoryBuild(ctx context.Context, b build.RepositoryBuild) (build.RepositoryBuild, bool, error) {
	var (
		out     build.RepositoryBuild
		created bool
	)
	err := s.tx(ctx, "enqueue repository build", func(tx *sql.Tx) error {
		var pending int64
		err := tx.QueryRowContext(ctx, `SELECT pending_build_id FROM branches WHERE id = ?`, b.BranchID).Scan(&pending)
		if isNoRows(err) {
			return notFound("branch", b.BranchID)
		}
		if err != nil {
			return storeErr(err, "read pending build")
		}
		if pending != 0 {
			out, err = scanRepoBuild(tx.QueryRowContext(ctx, `SELECT `+repoBuildColumns+` FROM repo_builds WHERE id = ?`, pending))
			return storeErr(err, "load pending build")
		}

		var number int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(build_number), 0) + 1 FROM repo_builds WHERE branch_id = ?`, b.BranchID).Scan(&number); err != nil {
			return storeErr(err, "next build number")
		}
		args := append([]any{b.BranchID, number, b.State, b.Trigger.Type, b.Trigger.ID}, commitArgs(b.Commit)...)
		args = append(args, b.StartTimestamp, b.EndTimestamp)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO repo_builds (branch_id, build_number, state, trigger_type, trigger_id,
				commit_sha, author_email, committer_email, commit_message, start_ts, end_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return storeErr(err, "insert repository build")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return storeErr(err, "insert repository build")
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE branches SET pending_build_id = ? WHERE id = ? AND pending_build_id = 0`, id, b.BranchID)
		n, err := rowsAffected(res, err, "set pending build")
		if err != nil {
			return err
		}
		if n == 0 {
			return build.ErrConflict.WithContext("branch_id", b.BranchID)
		}
		out = b
		out.ID = id
		out.BuildNumber = number
		created = true
		return nil
	})
	return out, created, err
}

func (s *Store) GetRepositoryBuild(ctx context.Context, id int64) (build.RepositoryBuild, error) {
	b, err := scanRepoBuild(s.db.QueryRowContext(ctx, `SELECT `+repoBuildColumns+` FROM repo_builds WHERE id = ?`, id))
	if isNoRows(err) {
		return build.RepositoryBuild{}, notFound("repository_build", id)
	}
	return b, storeErr(err, "get repository build")
}

// RepositoryBuildsForBranch returns the newest builds of a branch first.
func (s *Store) RepositoryBuildsForBranch(ctx context.Context, branchID int64, limit int) ([]build.RepositoryBuild, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+repoBuildColumns+` FROM repo_builds WHERE branch_id = ? ORDER BY build_number DESC LIMIT ?`,
		branchID, limit)
	if err != nil {
		return nil, storeErr(err, "list repository builds")
	}
	defer rows.Close()
	var out []build.RepositoryBuild
	for rows.Next() {
		b, err := scanRepoBuild(rows)
		if err != nil {
			return nil, storeErr(err, "scan repository build")
		}
		out = append(out, b)
	}
	return out, storeErr(rows.Err(), "iterate repository builds")
}

func (s *Store) UpdateRepositoryBuild(ctx context.Context, b build.RepositoryBuild, expected build.State) (int64, error) {
	args := append([]any{b.State, b.StartTimestamp, b.EndTimestamp}, commitArgs(b.Commit)...)
	args = append(args, b.ID, expected)
	res, err := s.db.ExecContext(ctx, `
		UPDATE repo_builds SET state = ?, start_ts = ?, end_ts = ?,
			commit_sha = ?, author_email = ?, committer_email = ?, commit_message = ?
		WHERE id = ? AND state = ?`, args...)
	return rowsAffected(res, err, "update repository build")
}

const moduleBuildColumns = `id, module_id, repo_build_id, build_number, state, start_ts, end_ts`

func scanModuleBuild(sc scanner) (build.ModuleBuild, error) {
	var b build.ModuleBuild
	err := sc.Scan(&b.ID, &b.ModuleID, &b.RepoBuildID, &b.BuildNumber, &b.State, &b.StartTimestamp, &b.EndTimestamp)
	return b, err
}

func (s *Store) CreateModuleBuild(ctx context.Context, b build.ModuleBuild) (build.ModuleBuild, error) {
	err := s.tx(ctx, "create module build", func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(build_number), 0) + 1 FROM module_builds WHERE module_id = ?`, b.ModuleID).Scan(&b.BuildNumber); err != nil {
			return storeErr(err, "next module build number")
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO module_builds (module_id, repo_build_id, build_number, state, start_ts, end_ts)
			VALUES (?, ?, ?, ?, ?, ?)`,
			b.ModuleID, b.RepoBuildID, b.BuildNumber, b.State, b.StartTimestamp, b.EndTimestamp)
		if err != nil {
			return storeErr(err, "insert module build")
		}
		b.ID, err = res.LastInsertId()
		return storeErr(err, "insert module build")
	})
	return b, err
}

func (s *Store) GetModuleBuild(ctx context.Context, id int64) (build.ModuleBuild, error) {
	b, err := scanModuleBuild(s.db.QueryRowContext(ctx, `SELECT `+moduleBuildColumns+` FROM module_builds WHERE id = ?`, id))
	if isNoRows(err) {
		return build.ModuleBuild{}, notFound("module_build", id)
	}
	return b, storeErr(err, "get module build")
}

func (s *Store) ModuleBuildsForRepositoryBuild(ctx context.Context, repoBuildID int64) ([]build.ModuleBuild, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+moduleBuildColumns+` FROM module_builds WHERE repo_build_id = ? ORDER BY id`, repoBuildID)
	if err != nil {
		return nil, storeErr(err, "list module builds")
	}
	defer rows.Close()
	var out []build.ModuleBuild
	for rows.Next() {
		b, err := scanModuleBuild(rows)
		if err != nil {
			return nil, storeErr(err, "scan module build")
		}
		out = append(out, b)
	}
	return out, storeErr(rows.Err(), "iterate module builds")
}

func (s *Store) UpdateModuleBuild(ctx context.Context, b build.ModuleBuild, expected build.State) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE module_builds SET state = ?, start_ts = ?, end_ts = ? WHERE id = ? AND state = ?`,
		b.State, b.StartTimestamp, b.EndTimestamp, b.ID, expected)
	return rowsAffected(res, err, "update module build")
}
