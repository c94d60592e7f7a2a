package listener

import (
	"log/slog"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/cluster"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/visitor"
)

// Listeners holds the lifecycle visitors.
type Listeners struct {
	svc     *build.Service
	store   build.Store
	cluster cluster.BuildCluster
}

func New(svc *build.Service, bc cluster.BuildCluster) *Listeners {
	return &Listeners{svc: svc, store: svc.Store(), cluster: bc}
}

// Register installs every lifecycle visitor on r.
func (l *Listeners) Register(r *visitor.Registry) {
	visitor.On(r, "repository-launcher", build.StateQueued, l.LaunchRepositoryBuild)
	visitor.On(r, "repository-starter", build.StateLaunching, l.StartRepositoryBuild)
	visitor.On(r, "repository-cancel-propagator", build.StateCancelled, l.PropagateCancel)
	visitor.On(r, "module-launcher", build.StateQueued, l.LaunchModuleBuild)
	visitor.OnStates(r, "repository-completion",
		[]build.State{build.StateSucceeded, build.StateFailed, build.StateCancelled, build.StateUnstable, build.StateSkipped},
		l.CompleteRepositoryBuild)
	visitor.On(r, "build-container-killer", build.StateCancelled, l.KillBuildContainer)
}

func ignoreConflict(err error, handler string) error {
	if build.IsConflict(err) {
		slog.Debug("Build transition already applied", logfields.Handler(handler), logfields.Error(err))
		return nil
	}
	return err
}
