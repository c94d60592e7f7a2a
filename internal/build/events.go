package build

import "git.home.luguber.info/inful/buildmesh/internal/queue"

// Queue tags for build transitions.
const (
	RepositoryBuildEventType = "RepositoryBuildEvent"
	ModuleBuildEventType     = "ModuleBuildEvent"
)

// RepositoryBuildEvent carries a snapshot of a repository build after a transition.
type RepositoryBuildEvent struct {
	Build    RepositoryBuild `json:"build"`
	Previous State           `json:"previous,omitempty"`
}

// ModuleBuildEvent carries a snapshot of a module build after a transition.
type ModuleBuildEvent struct {
	Build    ModuleBuild `json:"build"`
	Previous State       `json:"previous,omitempty"`
}

// RegisterEvents binds the build event tags on c.
func RegisterEvents(c *queue.Codec) {
	queue.Register[RepositoryBuildEvent](c, RepositoryBuildEventType)
	queue.Register[ModuleBuildEvent](c, ModuleBuildEventType)
}
