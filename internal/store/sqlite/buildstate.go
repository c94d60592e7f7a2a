package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/buildstate"
)

type slotJoin struct {
	name   buildstate.SlotName
	column string
}

var slotJoins = []slotJoin{
	{buildstate.SlotLastSuccessful, "last_successful_build_id"},
	{buildstate.SlotLastNonSkipped, "last_non_skipped_build_id"},
	{buildstate.SlotLast, "last_build_id"},
	{buildstate.SlotInProgress, "in_progress_build_id"},
	{buildstate.SlotPending, "pending_build_id"},
}

// moduleStateQuery joins every slot's module build and its repository build onto
// the module row. Missing builds come back as NULL columns.
var moduleStateQuery = func() string {
	var cols, joins strings.Builder
	cols.WriteString(`m.id, m.branch_id, m.name, m.type, m.path, m.active, m.pending_build_id,
		m.in_progress_build_id, m.last_build_id, m.last_successful_build_id, m.last_non_skipped_build_id`)
	for i, j := range slotJoins {
		mb, rb := fmt.Sprintf("mb%d", i), fmt.Sprintf("rb%d", i)
		fmt.Fprintf(&cols, `,
		%[1]s.id, %[1]s.module_id, %[1]s.repo_build_id, %[1]s.build_number, %[1]s.state, %[1]s.start_ts, %[1]s.end_ts,
		%[2]s.id, %[2]s.branch_id, %[2]s.build_number, %[2]s.state, %[2]s.trigger_type, %[2]s.trigger_id,
		%[2]s.commit_sha, %[2]s.author_email, %[2]s.committer_email, %[2]s.commit_message, %[2]s.start_ts, %[2]s.end_ts`, mb, rb)
		fmt.Fprintf(&joins, `
		LEFT JOIN module_builds %[1]s ON %[1]s.id = m.%[3]s
		LEFT JOIN repo_builds %[2]s ON %[2]s.id = %[1]s.repo_build_id`, mb, rb, j.column)
	}
	return `SELECT ` + cols.String() + ` FROM modules m` + joins.String()
}()

type nullModuleBuild struct {
	id, moduleID, repoBuildID, number, start, end sql.NullInt64
	state                                         sql.NullString
}

func (n *nullModuleBuild) dest() []any {
	return []any{&n.id, &n.moduleID, &n.repoBuildID, &n.number, &n.state, &n.start, &n.end}
}

func (n *nullModuleBuild) value() *build.ModuleBuild {
	if !n.id.Valid {
		return nil
	}
	return &build.ModuleBuild{
		ID:             n.id.Int64,
		ModuleID:       n.moduleID.Int64,
		RepoBuildID:    n.repoBuildID.Int64,
		BuildNumber:    int(n.number.Int64),
		State:          build.State(n.state.String),
		StartTimestamp: n.start.Int64,
		EndTimestamp:   n.end.Int64,
	}
}

type nullRepoBuild struct {
	id, branchID, number, start, end                               sql.NullInt64
	state, triggerType, triggerID, sha, author, committer, message sql.NullString
}

func (n *nullRepoBuild) dest() []any {
	return []any{&n.id, &n.branchID, &n.number, &n.state, &n.triggerType, &n.triggerID,
		&n.sha, &n.author, &n.committer, &n.message, &n.start, &n.end}
}

func (n *nullRepoBuild) value() *build.RepositoryBuild {
	if !n.id.Valid {
		return nil
	}
	b := &build.RepositoryBuild{
		ID:             n.id.Int64,
		BranchID:       n.branchID.Int64,
		BuildNumber:    int(n.number.Int64),
		State:          build.State(n.state.String),
		Trigger:        build.Trigger{Type: build.TriggerType(n.triggerType.String), ID: n.triggerID.String},
		StartTimestamp: n.start.Int64,
		EndTimestamp:   n.end.Int64,
	}
	if n.sha.Valid {
		b.Commit = &build.CommitInfo{
			SHA:            n.sha.String,
			AuthorEmail:    n.author.String,
			CommitterEmail: n.committer.String,
			Message:        n.message.String,
		}
	}
	return b
}

func scanModuleStateRow(rows *sql.Rows) (buildstate.Row, error) {
	var (
		m      build.Module
		active int
		mbs    = make([]nullModuleBuild, len(slotJoins))
		rbs    = make([]nullRepoBuild, len(slotJoins))
	)
	dest := []any{&m.ID, &m.BranchID, &m.Name, &m.Type, &m.Path, &active, &m.PendingBuildID, &m.InProgressBuildID,
		&m.LastBuildID, &m.LastSuccessfulBuildID, &m.LastNonSkippedBuildID}
	for i := range slotJoins {
		dest = append(dest, mbs[i].dest()...)
		dest = append(dest, rbs[i].dest()...)
	}
	if err := rows.Scan(dest...); err != nil {
		return buildstate.Row{}, err
	}
	m.Active = active != 0

	row := buildstate.Row{Module: m, Refs: make(map[buildstate.SlotName]buildstate.Ref, len(slotJoins))}
	for i, j := range slotJoins {
		row.Refs[j.name] = buildstate.Ref{ModuleBuild: mbs[i].value(), RepositoryBuild: rbs[i].value()}
	}
	return row, nil
}

func (s *Store) moduleStateRows(ctx context.Context, where string, args ...any) ([]buildstate.Row, error) {
	rows, err := s.db.QueryContext(ctx, moduleStateQuery+` `+where+` ORDER BY m.id`, args...)
	if err != nil {
		return nil, storeErr(err, "query module state")
	}
	defer rows.Close()
	var out []buildstate.Row
	for rows.Next() {
		r, err := scanModuleStateRow(rows)
		if err != nil {
			return nil, storeErr(err, "scan module state")
		}
		out = append(out, r)
	}
	return out, storeErr(rows.Err(), "iterate module state")
}

func (s *Store) ModuleStateRow(ctx context.Context, moduleID int64) (buildstate.Row, error) {
	rows, err := s.moduleStateRows(ctx, `WHERE m.id = ?`, moduleID)
	if err != nil {
		return buildstate.Row{}, err
	}
	if len(rows) == 0 {
		return buildstate.Row{}, notFound("module", moduleID)
	}
	return rows[0], nil
}

func (s *Store) ModuleStateRows(ctx context.Context) ([]buildstate.Row, error) {
	return s.moduleStateRows(ctx, `WHERE m.active = 1`)
}

func (s *Store) ModuleStateRowsForBranch(ctx context.Context, branchID int64) ([]buildstate.Row, error) {
	return s.moduleStateRows(ctx, `WHERE m.branch_id = ? AND m.active = 1`, branchID)
}

// CountActiveBuilds counts unfinished builds by kind and state.
func (s *Store) CountActiveBuilds(ctx context.Context) (map[string]map[string]int, error) {
	out := map[string]map[string]int{
		string(build.KindRepository): {},
		string(build.KindModule):     {},
	}
	active := []any{build.StateQueued, build.StateLaunching, build.StateRunning}
	for kind, table := range map[build.Kind]string{build.KindRepository: "repo_builds", build.KindModule: "module_builds"} {
		rows, err := s.db.QueryContext(ctx,
			`SELECT state, COUNT(*) FROM `+table+` WHERE state IN (?, ?, ?) GROUP BY state`, active...)
		if err != nil {
			return nil, storeErr(err, "count active builds")
		}
		for rows.Next() {
			var (
				state string
				n     int
			)
			if err := rows.Scan(&state, &n); err != nil {
				_ = rows.Close()
				return nil, storeErr(err, "scan active builds")
			}
			out[string(kind)][state] = n
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, storeErr(err, "iterate active builds")
		}
	}
	return out, nil
}
