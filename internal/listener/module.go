package listener

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/cluster"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// LaunchModuleBuild sends a queued module build to the build cluster once its
// repository build has left QUEUED, then moves it to LAUNCHING.
func (l *Listeners) LaunchModuleBuild(ctx context.Context, evt *build.ModuleBuild) error {
	mb, err := l.store.GetModuleBuild(ctx, evt.ID)
	if err != nil || mb.State != build.StateQueued {
		return err
	}
	rb, err := l.store.GetRepositoryBuild(ctx, mb.RepoBuildID)
	if err != nil {
		return err
	}
	if rb.State == build.StateQueued || rb.State.IsFinished() {
		return nil
	}
	module, err := l.store.GetModule(ctx, mb.ModuleID)
	if err != nil {
		return err
	}
	branch, err := l.store.GetBranch(ctx, rb.BranchID)
	if err != nil {
		return err
	}

	req := cluster.LaunchRequest{
		ModuleBuildID:     mb.ID,
		RepositoryBuildID: rb.ID,
		Repository:        branch.FullName(),
		Branch:            branch.Branch,
		Module:            module.Name,
	}
	if rb.Commit != nil {
		req.CommitSHA = rb.Commit.SHA
	}
	if err := l.cluster.LaunchModuleBuild(ctx, req); err != nil {
		return err
	}
	slog.Info("Module build launched",
		logfields.ModuleBuildID(mb.ID),
		logfields.Repository(branch.FullName()),
		logfields.Branch(branch.Branch))
	_, err = l.svc.TransitionModuleBuild(ctx, mb, build.StateLaunching)
	return ignoreConflict(err, "module-launcher")
}

// KillBuildContainer stops the container of a cancelled module build. A failure
// is not retried; the cancellation itself already happened.
func (l *Listeners) KillBuildContainer(ctx context.Context, mb *build.ModuleBuild) error {
	if err := l.cluster.KillBuildContainer(ctx, mb.ID); err != nil {
		return ferrors.NonRetryable(ferrors.WrapError(err, ferrors.CategoryBuild, "failed to kill build container").
			WithRetry(ferrors.RetryNever).
			WithContext("module_build_id", mb.ID).
			Build())
	}
	return nil
}
