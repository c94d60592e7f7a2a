package sqlite

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

const branchColumns = `id, host, organization, repository, repository_id, branch, active,
	pending_build_id, in_progress_build_id, last_build_id`

func scanBranch(sc scanner) (build.Branch, error) {
	var (
		b      build.Branch
		active int
	)
	err := sc.Scan(&b.ID, &b.Host, &b.Organization, &b.Repository, &b.RepositoryID, &b.Branch, &active,
		&b.PendingBuildID, &b.InProgressBuildID, &b.LastBuildID)
	b.Active = active != 0
	return b, err
}

func (s *Store) UpsertBranch(ctx context.Context, b build.Branch) (build.Branch, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (host, organization, repository, repository_id, branch, active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (host, organization, repository, branch)
		DO UPDATE SET active = 1, repository_id = excluded.repository_id`,
		b.Host, b.Organization, b.Repository, b.RepositoryID, b.Branch)
	if err != nil {
		return build.Branch{}, storeErr(err, "upsert branch")
	}
	return s.FindBranch(ctx, b.Host, b.Organization, b.Repository, b.Branch)
}

func (s *Store) GetBranch(ctx context.Context, id int64) (build.Branch, error) {
	b, err := scanBranch(s.db.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = ?`, id))
	if isNoRows(err) {
		return build.Branch{}, notFound("branch", id)
	}
	return b, storeErr(err, "get branch")
}

func (s *Store) FindBranch(ctx context.Context, host, organization, repository, branch string) (build.Branch, error) {
	b, err := scanBranch(s.db.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE host = ? AND organization = ? AND repository = ? AND branch = ?`,
		host, organization, repository, branch))
	if isNoRows(err) {
		return build.Branch{}, build.ErrNotFound.WithContext("branch", organization+"/"+repository+"@"+branch)
	}
	return b, storeErr(err, "find branch")
}

func (s *Store) DeactivateBranch(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE branches SET active = 0 WHERE id = ? AND active = 1`, id)
	return rowsAffected(res, err, "deactivate branch")
}

// ListBranches returns every branch ordered by id.
func (s *Store) ListBranches(ctx context.Context) ([]build.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+branchColumns+` FROM branches ORDER BY id`)
	if err != nil {
		return nil, storeErr(err, "list branches")
	}
	defer rows.Close()
	var out []build.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, storeErr(err, "scan branch")
		}
		out = append(out, b)
	}
	return out, storeErr(rows.Err(), "iterate branches")
}

const moduleColumns = `id, branch_id, name, type, path, active, pending_build_id, in_progress_build_id,
	last_build_id, last_successful_build_id, last_non_skipped_build_id`

func scanModule(sc scanner) (build.Module, error) {
	var (
		m      build.Module
		active int
	)
	err := sc.Scan(&m.ID, &m.BranchID, &m.Name, &m.Type, &m.Path, &active, &m.PendingBuildID, &m.InProgressBuildID,
		&m.LastBuildID, &m.LastSuccessfulBuildID, &m.LastNonSkippedBuildID)
	m.Active = active != 0
	return m, err
}

func (s *Store) UpsertModule(ctx context.Context, m build.Module) (build.Module, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO modules (branch_id, name, type, path, active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (branch_id, name, type) DO UPDATE SET path = excluded.path, active = excluded.active`,
		m.BranchID, m.Name, m.Type, m.Path, boolInt(m.Active))
	if err != nil {
		return build.Module{}, storeErr(err, "upsert module")
	}
	out, err := scanModule(s.db.QueryRowContext(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE branch_id = ? AND name = ? AND type = ?`,
		m.BranchID, m.Name, m.Type))
	return out, storeErr(err, "reload module")
}

func (s *Store) GetModule(ctx context.Context, id int64) (build.Module, error) {
	m, err := scanModule(s.db.QueryRowContext(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = ?`, id))
	if isNoRows(err) {
		return build.Module{}, notFound("module", id)
	}
	return m, storeErr(err, "get module")
}

func (s *Store) ModulesForBranch(ctx context.Context, branchID int64) ([]build.Module, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+moduleColumns+` FROM modules WHERE branch_id = ? ORDER BY id`, branchID)
	if err != nil {
		return nil, storeErr(err, "list modules")
	}
	defer rows.Close()
	var out []build.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, storeErr(err, "scan module")
		}
		out = append(out, m)
	}
	return out, storeErr(rows.Err(), "iterate modules")
}

var branchPointers = map[build.BranchPointer]bool{
	build.BranchPending: true, build.BranchInProgress: true, build.BranchLast: true,
}

var modulePointers = map[build.ModulePointer]bool{
	build.ModulePending: true, build.ModuleInProgress: true, build.ModuleLast: true,
	build.ModuleLastSuccessful: true, build.ModuleLastNonSkipped: true,
}

func pointerErr(ptr string) error {
	return ferrors.InternalError("unknown build pointer").WithContext("pointer", ptr).Build()
}

func (s *Store) SwapBranchPointer(ctx context.Context, branchID int64, ptr build.BranchPointer, expected, next int64) (int64, error) {
	if !branchPointers[ptr] {
		return 0, pointerErr(string(ptr))
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE branches SET %[1]s = ? WHERE id = ? AND %[1]s = ?`, ptr),
		next, branchID, expected)
	return rowsAffected(res, err, "swap branch pointer")
}

func (s *Store) SetBranchPointer(ctx context.Context, branchID int64, ptr build.BranchPointer, value int64) error {
	if !branchPointers[ptr] {
		return pointerErr(string(ptr))
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE branches SET %s = ? WHERE id = ?`, ptr), value, branchID)
	return storeErr(err, "set branch pointer")
}

func (s *Store) SwapModulePointer(ctx context.Context, moduleID int64, ptr build.ModulePointer, expected, next int64) (int64, error) {
	if !modulePointers[ptr] {
		return 0, pointerErr(string(ptr))
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE modules SET %[1]s = ? WHERE id = ? AND %[1]s = ?`, ptr),
		next, moduleID, expected)
	return rowsAffected(res, err, "swap module pointer")
}

func (s *Store) SetModulePointer(ctx context.Context, moduleID int64, ptr build.ModulePointer, value int64) error {
	if !modulePointers[ptr] {
		return pointerErr(string(ptr))
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE modules SET %s = ? WHERE id = ?`, ptr), value, moduleID)
	return storeErr(err, "set module pointer")
}
