package interproject

import (
	"context"

	"git.home.luguber.info/inful/buildmesh/internal/build"
)

// Store persists inter-project builds and their mappings. Updates return the
// number of affected rows; zero means the condition no longer held.
type Store interface {
	CreateInterProjectBuild(ctx context.Context, startedAt int64) (build.InterProjectBuild, error)
	GetInterProjectBuild(ctx context.Context, id int64) (build.InterProjectBuild, error)
	// MarkInterProjectRunning moves a QUEUED build to RUNNING.
	MarkInterProjectRunning(ctx context.Context, id int64) (int64, error)
	// FinishInterProjectBuild sets a finished state unless the build is already finished.
	FinishInterProjectBuild(ctx context.Context, id int64, state build.InterProjectState, endedAt int64) (int64, error)

	AddMapping(ctx context.Context, m build.InterProjectMapping) (build.InterProjectMapping, error)
	MappingsForInterProjectBuild(ctx context.Context, id int64) ([]build.InterProjectMapping, error)
	MappingsForRepositoryBuild(ctx context.Context, repoBuildID int64) ([]build.InterProjectMapping, error)
	MappingsForModuleBuild(ctx context.Context, moduleBuildID int64) ([]build.InterProjectMapping, error)
	// BindMappingModuleBuild sets the module build of an unbound mapping.
	BindMappingModuleBuild(ctx context.Context, mappingID, moduleBuildID int64) (int64, error)
	UpdateMappingState(ctx context.Context, mappingID int64, expected, next build.InterProjectState) (int64, error)
}

// ModuleBuildLister lists the module builds a repository build triggered.
type ModuleBuildLister interface {
	ModuleBuildsForRepositoryBuild(ctx context.Context, repoBuildID int64) ([]build.ModuleBuild, error)
}
