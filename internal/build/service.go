package build

import (
	"context"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

// Enqueuer accepts encoded events for the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType string, payload []byte) (queue.Item, error)
}

// Service owns every build state change. Each successful transition is
// published as a RepositoryBuildEvent or ModuleBuildEvent queue item.
type Service struct {
	store Store
	queue Enqueuer
	codec *queue.Codec
	now   func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceClock replaces the wall clock used for build timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a lifecycle service. codec must have the build events registered.
func NewService(store Store, q Enqueuer, codec *queue.Codec, opts ...ServiceOption) *Service {
	s := &Service{store: store, queue: q, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() Store { return s.store }

func (s *Service) millis() int64 { return s.now().UnixMilli() }

// Enqueue queues a repository build for an active branch. When the branch already
// has a pending build that build is returned unchanged.
func (s *Service) Enqueue(ctx context.Context, branchID int64, trigger Trigger, commit *CommitInfo) (RepositoryBuild, error) {
	branch, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return RepositoryBuild{}, err
	}
	if !branch.Active {
		return RepositoryBuild{}, ferrors.BuildError("branch is not active").
			WithContext("branch_id", branchID).
			Build()
	}

	stored, created, err := s.store.EnqueueRepositoryBuild(ctx, RepositoryBuild{
		BranchID: branchID,
		State:    StateQueued,
		Trigger:  trigger,
		Commit:   commit,
	})
	if err != nil {
		return RepositoryBuild{}, err
	}
	if !created {
		slog.Info("Branch already has a pending build",
			logfields.BranchID(branchID),
			logfields.BuildID(stored.ID))
		return stored, nil
	}

	slog.Info("Repository build queued",
		logfields.BranchID(branchID),
		logfields.BuildID(stored.ID),
		slog.String("trigger", string(trigger.Type)))
	return stored, s.publish(ctx, &RepositoryBuildEvent{Build: stored})
}

// TransitionRepositoryBuild moves b to next and promotes the branch pointers.
// ErrConflict is returned when the stored build is no longer in b.State.
func (s *Service) TransitionRepositoryBuild(ctx context.Context, b RepositoryBuild, next State) (RepositoryBuild, error) {
	if !next.ValidFor(KindRepository) {
		return b, ferrors.ValidationError("invalid repository build state").
			WithContext("state", string(next)).
			Build()
	}
	if !b.State.CanTransition(next) {
		return b, ErrConflict.WithContext("from", string(b.State)).WithContext("to", string(next))
	}

	updated := b
	updated.State = next
	now := s.millis()
	if next == StateLaunching || (next.IsFinished() && updated.StartTimestamp == 0) {
		updated.StartTimestamp = now
	}
	if next.IsFinished() {
		updated.EndTimestamp = now
	}

	if next == StateLaunching {
		rows, err := s.store.SwapBranchPointer(ctx, b.BranchID, BranchInProgress, 0, b.ID)
		if err != nil {
			return b, err
		}
		if rows == 0 {
			return b, ErrConflict.WithContext("reason", "branch has a build in progress").
				WithContext("branch_id", b.BranchID)
		}
	}

	rows, err := s.store.UpdateRepositoryBuild(ctx, updated, b.State)
	if err != nil {
		return b, err
	}
	if rows == 0 {
		if next == StateLaunching {
			_, _ = s.store.SwapBranchPointer(ctx, b.BranchID, BranchInProgress, b.ID, 0)
		}
		return b, ErrConflict.WithContext("build_id", b.ID).WithContext("expected", string(b.State))
	}

	if err := s.promoteBranch(ctx, updated); err != nil {
		return updated, err
	}

	slog.Info("Repository build transitioned",
		logfields.BuildID(b.ID),
		logfields.BranchID(b.BranchID),
		slog.String("from", string(b.State)),
		logfields.BuildState(string(next)))

	if err := s.publish(ctx, &RepositoryBuildEvent{Build: updated, Previous: b.State}); err != nil {
		return updated, err
	}
	if next.IsFinished() {
		return updated, s.requeuePending(ctx, b.BranchID)
	}
	return updated, nil
}

func (s *Service) promoteBranch(ctx context.Context, b RepositoryBuild) error {
	switch {
	case b.State == StateLaunching:
		_, err := s.store.SwapBranchPointer(ctx, b.BranchID, BranchPending, b.ID, 0)
		return err
	case b.State.IsFinished():
		if _, err := s.store.SwapBranchPointer(ctx, b.BranchID, BranchInProgress, b.ID, 0); err != nil {
			return err
		}
		if _, err := s.store.SwapBranchPointer(ctx, b.BranchID, BranchPending, b.ID, 0); err != nil {
			return err
		}
		return s.store.SetBranchPointer(ctx, b.BranchID, BranchLast, b.ID)
	}
	return nil
}

// requeuePending republishes the branch's pending build so it launches once the
// branch is free again.
func (s *Service) requeuePending(ctx context.Context, branchID int64) error {
	branch, err := s.store.GetBranch(ctx, branchID)
	if err != nil {
		return err
	}
	if branch.PendingBuildID == 0 {
		return nil
	}
	pending, err := s.store.GetRepositoryBuild(ctx, branch.PendingBuildID)
	if err != nil {
		return err
	}
	if pending.State != StateQueued {
		return nil
	}
	return s.publish(ctx, &RepositoryBuildEvent{Build: pending})
}

// CreateModuleBuilds queues one module build per active module of the branch.
// Modules that already have a build for rb are left alone, so replays are safe.
func (s *Service) CreateModuleBuilds(ctx context.Context, rb RepositoryBuild) ([]ModuleBuild, error) {
	modules, err := s.store.ModulesForBranch(ctx, rb.BranchID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	if err != nil {
		return nil, err
	}
	have := make(map[int64]ModuleBuild, len(existing))
	for _, mb := range existing {
		have[mb.ModuleID] = mb
	}

	out := make([]ModuleBuild, 0, len(modules))
	for _, m := range modules {
		if !m.Active {
			continue
		}
		if mb, ok := have[m.ID]; ok {
			out = append(out, mb)
			continue
		}
		mb, err := s.store.CreateModuleBuild(ctx, ModuleBuild{
			ModuleID:    m.ID,
			RepoBuildID: rb.ID,
			State:       StateQueued,
		})
		if err != nil {
			return out, err
		}
		if err := s.store.SetModulePointer(ctx, m.ID, ModulePending, mb.ID); err != nil {
			return out, err
		}
		slog.Debug("Module build queued",
			logfields.ModuleID(m.ID),
			logfields.ModuleBuildID(mb.ID),
			logfields.BuildID(rb.ID))
		if err := s.publish(ctx, &ModuleBuildEvent{Build: mb}); err != nil {
			return out, err
		}
		out = append(out, mb)
	}
	return out, nil
}

// TransitionModuleBuild moves b to next and promotes the module pointers.
func (s *Service) TransitionModuleBuild(ctx context.Context, b ModuleBuild, next State) (ModuleBuild, error) {
	if !next.ValidFor(KindModule) {
		return b, ferrors.ValidationError("invalid module build state").
			WithContext("state", string(next)).
			Build()
	}
	if !b.State.CanTransition(next) {
		return b, ErrConflict.WithContext("from", string(b.State)).WithContext("to", string(next))
	}

	updated := b
	updated.State = next
	now := s.millis()
	if next == StateLaunching || (next.IsFinished() && updated.StartTimestamp == 0 && next != StateSkipped) {
		updated.StartTimestamp = now
	}
	if next.IsFinished() {
		updated.EndTimestamp = now
	}

	rows, err := s.store.UpdateModuleBuild(ctx, updated, b.State)
	if err != nil {
		return b, err
	}
	if rows == 0 {
		return b, ErrConflict.WithContext("module_build_id", b.ID).WithContext("expected", string(b.State))
	}
	if err := s.promoteModule(ctx, updated); err != nil {
		return updated, err
	}

	slog.Info("Module build transitioned",
		logfields.ModuleBuildID(b.ID),
		logfields.ModuleID(b.ModuleID),
		slog.String("from", string(b.State)),
		logfields.BuildState(string(next)))

	return updated, s.publish(ctx, &ModuleBuildEvent{Build: updated, Previous: b.State})
}

func (s *Service) promoteModule(ctx context.Context, b ModuleBuild) error {
	switch {
	case b.State == StateLaunching || b.State == StateRunning:
		rows, err := s.store.SwapModulePointer(ctx, b.ModuleID, ModulePending, b.ID, 0)
		if err != nil || rows == 0 {
			return err
		}
		return s.store.SetModulePointer(ctx, b.ModuleID, ModuleInProgress, b.ID)
	case b.State.IsFinished():
		if _, err := s.store.SwapModulePointer(ctx, b.ModuleID, ModuleInProgress, b.ID, 0); err != nil {
			return err
		}
		if _, err := s.store.SwapModulePointer(ctx, b.ModuleID, ModulePending, b.ID, 0); err != nil {
			return err
		}
		if err := s.store.SetModulePointer(ctx, b.ModuleID, ModuleLast, b.ID); err != nil {
			return err
		}
		if b.State == StateSucceeded {
			if err := s.store.SetModulePointer(ctx, b.ModuleID, ModuleLastSuccessful, b.ID); err != nil {
				return err
			}
		}
		if b.State != StateSkipped {
			return s.store.SetModulePointer(ctx, b.ModuleID, ModuleLastNonSkipped, b.ID)
		}
	}
	return nil
}

// RepublishModuleBuild publishes the current stored state of a module build again
// so its visitors run once more.
func (s *Service) RepublishModuleBuild(ctx context.Context, id int64) error {
	mb, err := s.store.GetModuleBuild(ctx, id)
	if err != nil {
		return err
	}
	return s.publish(ctx, &ModuleBuildEvent{Build: mb})
}

func (s *Service) publish(ctx context.Context, evt any) error {
	tag, payload, err := s.codec.Encode(evt)
	if err != nil {
		return err
	}
	item, err := s.queue.Enqueue(ctx, tag, payload)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryQueue, "failed to publish build event").
			Retryable().
			WithContext("event_type", tag).
			Build()
	}
	slog.Debug("Build event published", logfields.ItemID(item.ID), logfields.EventType(tag))
	return nil
}
