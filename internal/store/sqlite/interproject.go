package sqlite

import (
	"context"

	"git.home.luguber.info/inful/buildmesh/internal/build"
)

func (s *Store) CreateInterProjectBuild(ctx context.Context, startedAt int64) (build.InterProjectBuild, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inter_project_builds (state, start_ts) VALUES (?, ?)`, build.InterProjectQueued, startedAt)
	if err != nil {
		return build.InterProjectBuild{}, storeErr(err, "create inter-project build")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return build.InterProjectBuild{}, storeErr(err, "create inter-project build")
	}
	return build.InterProjectBuild{ID: id, State: build.InterProjectQueued, StartTimestamp: startedAt}, nil
}

func (s *Store) GetInterProjectBuild(ctx context.Context, id int64) (build.InterProjectBuild, error) {
	var b build.InterProjectBuild
	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, start_ts, end_ts FROM inter_project_builds WHERE id = ?`, id).
		Scan(&b.ID, &b.State, &b.StartTimestamp, &b.EndTimestamp)
	if isNoRows(err) {
		return b, notFound("inter_project_build", id)
	}
	return b, storeErr(err, "get inter-project build")
}

func (s *Store) MarkInterProjectRunning(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inter_project_builds SET state = ? WHERE id = ? AND state = ?`,
		build.InterProjectRunning, id, build.InterProjectQueued)
	return rowsAffected(res, err, "mark inter-project build running")
}

func (s *Store) FinishInterProjectBuild(ctx context.Context, id int64, state build.InterProjectState, endedAt int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inter_project_builds SET state = ?, end_ts = ? WHERE id = ? AND state NOT IN (?, ?, ?)`,
		state, endedAt, id, build.InterProjectSucceeded, build.InterProjectFailed, build.InterProjectCancelled)
	return rowsAffected(res, err, "finish inter-project build")
}

func (s *Store) AddMapping(ctx context.Context, m build.InterProjectMapping) (build.InterProjectMapping, error) {
	if m.State == "" {
		m.State = build.InterProjectQueued
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inter_project_build_mappings (inter_project_build_id, repo_build_id, module_id, module_build_id, state)
		VALUES (?, ?, ?, ?, ?)`,
		m.InterProjectBuildID, m.RepoBuildID, m.ModuleID, m.ModuleBuildID, m.State)
	if err != nil {
		return m, storeErr(err, "add inter-project mapping")
	}
	m.ID, err = res.LastInsertId()
	return m, storeErr(err, "add inter-project mapping")
}

func (s *Store) mappings(ctx context.Context, where string, arg int64) ([]build.InterProjectMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inter_project_build_id, repo_build_id, module_id, module_build_id, state
		FROM inter_project_build_mappings WHERE `+where+` = ? ORDER BY id`, arg)
	if err != nil {
		return nil, storeErr(err, "query inter-project mappings")
	}
	defer rows.Close()
	var out []build.InterProjectMapping
	for rows.Next() {
		var m build.InterProjectMapping
		if err := rows.Scan(&m.ID, &m.InterProjectBuildID, &m.RepoBuildID, &m.ModuleID, &m.ModuleBuildID, &m.State); err != nil {
			return nil, storeErr(err, "scan inter-project mapping")
		}
		out = append(out, m)
	}
	return out, storeErr(rows.Err(), "iterate inter-project mappings")
}

func (s *Store) MappingsForInterProjectBuild(ctx context.Context, id int64) ([]build.InterProjectMapping, error) {
	return s.mappings(ctx, "inter_project_build_id", id)
}

func (s *Store) MappingsForRepositoryBuild(ctx context.Context, repoBuildID int64) ([]build.InterProjectMapping, error) {
	return s.mappings(ctx, "repo_build_id", repoBuildID)
}

// MappingsForModuleBuild ignores unbound mappings.
func (s *Store) MappingsForModuleBuild(ctx context.Context, moduleBuildID int64) ([]build.InterProjectMapping, error) {
	if moduleBuildID == 0 {
		return nil, nil
	}
	return s.mappings(ctx, "module_build_id", moduleBuildID)
}

func (s *Store) BindMappingModuleBuild(ctx context.Context, mappingID, moduleBuildID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inter_project_build_mappings SET module_build_id = ? WHERE id = ? AND module_build_id = 0`,
		moduleBuildID, mappingID)
	return rowsAffected(res, err, "bind inter-project mapping")
}

func (s *Store) UpdateMappingState(ctx context.Context, mappingID int64, expected, next build.InterProjectState) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inter_project_build_mappings SET state = ? WHERE id = ? AND state = ?`, next, mappingID, expected)
	return rowsAffected(res, err, "update inter-project mapping")
}
