package build

import "context"

// BranchPointer names one of a branch's repository build pointers.
type BranchPointer string

const (
	BranchPending    BranchPointer = "pending_build_id"
	BranchInProgress BranchPointer = "in_progress_build_id"
	BranchLast       BranchPointer = "last_build_id"
)

// ModulePointer names one of a module's module build pointers.
type ModulePointer string

const (
	ModulePending        ModulePointer = "pending_build_id"
	ModuleInProgress     ModulePointer = "in_progress_build_id"
	ModuleLast           ModulePointer = "last_build_id"
	ModuleLastSuccessful ModulePointer = "last_successful_build_id"
	ModuleLastNonSkipped ModulePointer = "last_non_skipped_build_id"
)

// BranchStore persists branches and their modules.
type BranchStore interface {
	// UpsertBranch inserts or reactivates the branch identified by host, organization,
	// repository and branch name, returning the stored row.
	UpsertBranch(ctx context.Context, b Branch) (Branch, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	FindBranch(ctx context.Context, host, organization, repository, branch string) (Branch, error)
	DeactivateBranch(ctx context.Context, id int64) (int64, error)

	UpsertModule(ctx context.Context, m Module) (Module, error)
	GetModule(ctx context.Context, id int64) (Module, error)
	ModulesForBranch(ctx context.Context, branchID int64) ([]Module, error)
}

// BuildStore persists repository and module builds.
//
// Every update returns the number of affected rows; zero means the expected prior
// value no longer matched.
type BuildStore interface {
	// EnqueueRepositoryBuild inserts b as the branch's pending build unless the branch
	// already has one, in which case the existing pending build is returned with created false.
	EnqueueRepositoryBuild(ctx context.Context, b RepositoryBuild) (stored RepositoryBuild, created bool, err error)
	GetRepositoryBuild(ctx context.Context, id int64) (RepositoryBuild, error)
	UpdateRepositoryBuild(ctx context.Context, b RepositoryBuild, expected State) (int64, error)
	SwapBranchPointer(ctx context.Context, branchID int64, ptr BranchPointer, expected, next int64) (int64, error)
	SetBranchPointer(ctx context.Context, branchID int64, ptr BranchPointer, value int64) error

	CreateModuleBuild(ctx context.Context, b ModuleBuild) (ModuleBuild, error)
	GetModuleBuild(ctx context.Context, id int64) (ModuleBuild, error)
	ModuleBuildsForRepositoryBuild(ctx context.Context, repoBuildID int64) ([]ModuleBuild, error)
	UpdateModuleBuild(ctx context.Context, b ModuleBuild, expected State) (int64, error)
	SwapModulePointer(ctx context.Context, moduleID int64, ptr ModulePointer, expected, next int64) (int64, error)
	SetModulePointer(ctx context.Context, moduleID int64, ptr ModulePointer, value int64) error
}

// Store is the full persistence surface the lifecycle service needs.
type Store interface {
	BranchStore
	BuildStore
}
