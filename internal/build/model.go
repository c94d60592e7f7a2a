package build

import "fmt"

// Build is either a *RepositoryBuild or a *ModuleBuild.
type Build interface {
	Kind() Kind
	BuildID() int64
	BuildState() State
	sealed()
}

// Trigger records what started a repository build.
type Trigger struct {
	Type TriggerType `json:"type"`
	// ID identifies the trigger source: a commit sha, a user, an inter-project build id.
	ID string `json:"id,omitempty"`
}

// CommitInfo describes the commit a repository build runs against.
type CommitInfo struct {
	SHA            string `json:"sha"`
	AuthorEmail    string `json:"authorEmail,omitempty"`
	CommitterEmail string `json:"committerEmail,omitempty"`
	Message        string `json:"message,omitempty"`
}

// RepositoryBuild is one build of all active modules of a branch.
type RepositoryBuild struct {
	ID          int64       `json:"id"`
	BranchID    int64       `json:"branchId"`
	BuildNumber int         `json:"buildNumber"`
	State       State       `json:"state"`
	Trigger     Trigger     `json:"trigger"`
	Commit      *CommitInfo `json:"commit,omitempty"`
	// Unix milliseconds, 0 when unset.
	StartTimestamp int64 `json:"startTimestamp,omitempty"`
	EndTimestamp   int64 `json:"endTimestamp,omitempty"`
}

func (b *RepositoryBuild) Kind() Kind        { return KindRepository }
func (b *RepositoryBuild) BuildID() int64    { return b.ID }
func (b *RepositoryBuild) BuildState() State { return b.State }
func (*RepositoryBuild) sealed()             {}

func (b *RepositoryBuild) String() string {
	return fmt.Sprintf("RepositoryBuild{id=%d branch=%d #%d %s}", b.ID, b.BranchID, b.BuildNumber, b.State)
}

// ModuleBuild is the build of one module inside a repository build.
type ModuleBuild struct {
	ID             int64 `json:"id"`
	ModuleID       int64 `json:"moduleId"`
	RepoBuildID    int64 `json:"repoBuildId"`
	BuildNumber    int   `json:"buildNumber"`
	State          State `json:"state"`
	StartTimestamp int64 `json:"startTimestamp,omitempty"`
	EndTimestamp   int64 `json:"endTimestamp,omitempty"`
}

func (b *ModuleBuild) Kind() Kind        { return KindModule }
func (b *ModuleBuild) BuildID() int64    { return b.ID }
func (b *ModuleBuild) BuildState() State { return b.State }
func (*ModuleBuild) sealed()             {}

func (b *ModuleBuild) String() string {
	return fmt.Sprintf("ModuleBuild{id=%d module=%d repoBuild=%d #%d %s}", b.ID, b.ModuleID, b.RepoBuildID, b.BuildNumber, b.State)
}

// Branch is a tracked git branch. Build pointers are 0 when unset.
type Branch struct {
	ID                int64  `json:"id"`
	Host              string `json:"host"`
	Organization      string `json:"organization"`
	Repository        string `json:"repository"`
	RepositoryID      int64  `json:"repositoryId"`
	Branch            string `json:"branch"`
	Active            bool   `json:"active"`
	PendingBuildID    int64  `json:"pendingBuildId,omitempty"`
	InProgressBuildID int64  `json:"inProgressBuildId,omitempty"`
	LastBuildID       int64  `json:"lastBuildId,omitempty"`
}

// FullName returns organization/repository.
func (b Branch) FullName() string { return b.Organization + "/" + b.Repository }

// Module is a buildable unit inside a branch. Build pointers are 0 when unset.
type Module struct {
	ID                    int64  `json:"id"`
	BranchID              int64  `json:"branchId"`
	Name                  string `json:"name"`
	Type                  string `json:"type"`
	Path                  string `json:"path"`
	Active                bool   `json:"active"`
	PendingBuildID        int64  `json:"pendingBuildId,omitempty"`
	InProgressBuildID     int64  `json:"inProgressBuildId,omitempty"`
	LastBuildID           int64  `json:"lastBuildId,omitempty"`
	LastSuccessfulBuildID int64  `json:"lastSuccessfulBuildId,omitempty"`
	LastNonSkippedBuildID int64  `json:"lastNonSkippedBuildId,omitempty"`
}

// InterProjectBuild groups repository builds triggered together across repositories.
type InterProjectBuild struct {
	ID             int64             `json:"id"`
	State          InterProjectState `json:"state"`
	StartTimestamp int64             `json:"startTimestamp,omitempty"`
	EndTimestamp   int64             `json:"endTimestamp,omitempty"`
}

// InterProjectMapping ties one module of one repository build into an inter-project build.
// ModuleBuildID is 0 until the repository build launches.
type InterProjectMapping struct {
	ID                  int64             `json:"id"`
	InterProjectBuildID int64             `json:"interProjectBuildId"`
	RepoBuildID         int64             `json:"repoBuildId"`
	ModuleID            int64             `json:"moduleId"`
	ModuleBuildID       int64             `json:"moduleBuildId,omitempty"`
	State               InterProjectState `json:"state"`
}
