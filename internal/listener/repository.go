package listener

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// LaunchRepositoryBuild creates the module builds of a queued repository build
// and moves it to LAUNCHING. A build whose branch is busy stays queued; it is
// republished when the in-progress build finishes.
func (l *Listeners) LaunchRepositoryBuild(ctx context.Context, evt *build.RepositoryBuild) error {
	rb, err := l.store.GetRepositoryBuild(ctx, evt.ID)
	if err != nil || rb.State != build.StateQueued {
		return err
	}
	branch, err := l.store.GetBranch(ctx, rb.BranchID)
	if err != nil {
		return err
	}
	if !branch.Active {
		slog.Info("Cancelling build of inactive branch", logfields.BuildID(rb.ID), logfields.BranchID(branch.ID))
		_, err := l.svc.TransitionRepositoryBuild(ctx, rb, build.StateCancelled)
		return ignoreConflict(err, "repository-launcher")
	}
	if branch.InProgressBuildID != 0 && branch.InProgressBuildID != rb.ID {
		slog.Debug("Branch busy, build stays queued",
			logfields.BuildID(rb.ID),
			slog.Int64("in_progress_build_id", branch.InProgressBuildID))
		return nil
	}

	if _, err := l.svc.CreateModuleBuilds(ctx, rb); err != nil {
		return err
	}
	_, err = l.svc.TransitionRepositoryBuild(ctx, rb, build.StateLaunching)
	return ignoreConflict(err, "repository-launcher")
}

// StartRepositoryBuild moves a launching build to RUNNING and hands its queued
// module builds to the module launcher. A build without modules succeeds at once.
func (l *Listeners) StartRepositoryBuild(ctx context.Context, evt *build.RepositoryBuild) error {
	rb, err := l.store.GetRepositoryBuild(ctx, evt.ID)
	if err != nil || rb.State != build.StateLaunching {
		return err
	}
	modules, err := l.store.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	if err != nil {
		return err
	}
	if len(modules) == 0 {
		_, err := l.svc.TransitionRepositoryBuild(ctx, rb, build.StateSucceeded)
		return ignoreConflict(err, "repository-starter")
	}

	if _, err := l.svc.TransitionRepositoryBuild(ctx, rb, build.StateRunning); err != nil {
		return ignoreConflict(err, "repository-starter")
	}
	for _, mb := range modules {
		if mb.State != build.StateQueued {
			continue
		}
		if err := l.svc.RepublishModuleBuild(ctx, mb.ID); err != nil {
			return err
		}
	}
	return nil
}

// PropagateCancel cancels every unfinished module build of a cancelled repository build.
func (l *Listeners) PropagateCancel(ctx context.Context, rb *build.RepositoryBuild) error {
	modules, err := l.store.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	if err != nil {
		return err
	}
	for _, mb := range modules {
		if mb.State.IsFinished() {
			continue
		}
		if _, err := l.svc.TransitionModuleBuild(ctx, mb, build.StateCancelled); ignoreConflict(err, "repository-cancel-propagator") != nil {
			return err
		}
	}
	return nil
}

// CompleteRepositoryBuild finishes the repository build once all of its module
// builds are finished. Any cancelled module cancels it, then any failure fails
// it, then any unstable module makes it unstable.
func (l *Listeners) CompleteRepositoryBuild(ctx context.Context, mb *build.ModuleBuild) error {
	rb, err := l.store.GetRepositoryBuild(ctx, mb.RepoBuildID)
	if err != nil || rb.State.IsFinished() {
		return err
	}
	modules, err := l.store.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	if err != nil {
		return err
	}
	state, done := RepositoryOutcome(modules)
	if !done {
		return nil
	}
	_, err = l.svc.TransitionRepositoryBuild(ctx, rb, state)
	return ignoreConflict(err, "repository-completion")
}

// RepositoryOutcome derives a repository build state from its module builds.
// done is false while any module build is unfinished.
func RepositoryOutcome(modules []build.ModuleBuild) (state build.State, done bool) {
	var cancelled, failed, unstable bool
	for _, mb := range modules {
		switch mb.State {
		case build.StateCancelled:
			cancelled = true
		case build.StateFailed:
			failed = true
		case build.StateUnstable:
			unstable = true
		case build.StateSucceeded, build.StateSkipped:
		default:
			return "", false
		}
	}
	switch {
	case cancelled:
		return build.StateCancelled, true
	case failed:
		return build.StateFailed, true
	case unstable:
		return build.StateUnstable, true
	default:
		return build.StateSucceeded, true
	}
}
