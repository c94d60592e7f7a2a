package interproject

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
	"git.home.luguber.info/inful/buildmesh/internal/visitor"
)

// Coordinator keeps mappings in step with module builds and finalizes
// inter-project builds once all of their mappings are finished.
type Coordinator struct {
	store    Store
	modules  ModuleBuildLister
	recorder metrics.Recorder
	now      func() time.Time
	group    singleflight.Group
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the metrics recorder for finalizations.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides the clock used for end timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store Store, modules ModuleBuildLister, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		modules:  modules,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the coordinator's build visitors.
func (c *Coordinator) Register(r *visitor.Registry) {
	visitor.On(r, "interproject-bind-module-builds", build.StateLaunching, c.RepositoryBuildLaunching)
	visitor.OnStates(r, "interproject-repository-finished",
		[]build.State{build.StateSucceeded, build.StateFailed, build.StateCancelled, build.StateUnstable},
		c.RepositoryBuildFinished)
	visitor.OnStates(r, "interproject-mirror-module-build",
		[]build.State{build.StateSucceeded, build.StateFailed, build.StateCancelled, build.StateUnstable, build.StateSkipped},
		c.ModuleBuildFinished)
}

// RepositoryBuildLaunching binds each mapping of rb to the module build created
// for the mapping's module. Mappings without a matching module build stay unbound.
// A module build that already finished is mirrored right away.
func (c *Coordinator) RepositoryBuildLaunching(ctx context.Context, rb *build.RepositoryBuild) error {
	mappings, err := c.store.MappingsForRepositoryBuild(ctx, rb.ID)
	if err != nil || len(mappings) == 0 {
		return err
	}
	triggered, err := c.modules.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	if err != nil {
		return err
	}
	byModule := make(map[int64]build.ModuleBuild, len(triggered))
	for _, mb := range triggered {
		byModule[mb.ModuleID] = mb
	}

	seen := make(map[int64]bool)
	for _, m := range mappings {
		if m.ModuleBuildID != 0 {
			continue
		}
		mb, ok := byModule[m.ModuleID]
		if !ok {
			continue
		}
		rows, err := c.store.BindMappingModuleBuild(ctx, m.ID, mb.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			continue
		}
		slog.Debug("Inter-project mapping bound",
			logfields.InterProjectID(m.InterProjectBuildID),
			logfields.ModuleID(m.ModuleID),
			logfields.ModuleBuildID(mb.ID))

		next := build.InterProjectRunning
		if mb.State.IsFinished() {
			next = build.MirrorModuleState(mb.State)
		}
		if _, err := c.store.UpdateMappingState(ctx, m.ID, m.State, next); err != nil {
			return err
		}
		if _, err := c.store.MarkInterProjectRunning(ctx, m.InterProjectBuildID); err != nil {
			return err
		}
		seen[m.InterProjectBuildID] = true
	}
	return c.finalizeAll(ctx, seen)
}

// RepositoryBuildFinished gives mappings of rb that never got a module build the
// outcome of rb itself and re-evaluates every inter-project build rb takes part in.
func (c *Coordinator) RepositoryBuildFinished(ctx context.Context, rb *build.RepositoryBuild) error {
	mappings, err := c.store.MappingsForRepositoryBuild(ctx, rb.ID)
	if err != nil || len(mappings) == 0 {
		return err
	}

	outcome := build.MirrorModuleState(rb.State)
	seen := make(map[int64]bool)
	for _, m := range mappings {
		if m.ModuleBuildID == 0 && !m.State.IsFinished() && outcome.IsFinished() {
			if _, err := c.store.UpdateMappingState(ctx, m.ID, m.State, outcome); err != nil {
				return err
			}
		}
		seen[m.InterProjectBuildID] = true
	}
	return c.finalizeAll(ctx, seen)
}

// ModuleBuildFinished mirrors mb's state onto its mappings, then re-evaluates the
// affected inter-project builds.
func (c *Coordinator) ModuleBuildFinished(ctx context.Context, mb *build.ModuleBuild) error {
	mappings, err := c.store.MappingsForModuleBuild(ctx, mb.ID)
	if err != nil || len(mappings) == 0 {
		return err
	}

	next := build.MirrorModuleState(mb.State)
	seen := make(map[int64]bool)
	for _, m := range mappings {
		seen[m.InterProjectBuildID] = true
		if m.State.IsFinished() || m.State == next {
			continue
		}
		if _, err := c.store.UpdateMappingState(ctx, m.ID, m.State, next); err != nil {
			return err
		}
	}
	return c.finalizeAll(ctx, seen)
}

func (c *Coordinator) finalizeAll(ctx context.Context, ids map[int64]bool) error {
	for id := range ids {
		if err := c.Finalize(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Finalize recomputes the aggregate of inter-project build id and records it if
// finished. Concurrent calls for the same id share one evaluation, an already
// finished build is left alone, and the store update only applies to an
// unfinished row.
func (c *Coordinator) Finalize(ctx context.Context, id int64) error {
	// Collapsed callers share one result, so it must not depend on the
	// first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	_, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		return nil, c.finalize(shared, id)
	})
	return err
}

func (c *Coordinator) finalize(ctx context.Context, id int64) error {
	ipb, err := c.store.GetInterProjectBuild(ctx, id)
	if err != nil {
		return err
	}
	if ipb.State.IsFinished() {
		slog.Debug("Inter-project build already finished", logfields.InterProjectID(id), logfields.BuildState(string(ipb.State)))
		return nil
	}

	mappings, err := c.store.MappingsForInterProjectBuild(ctx, id)
	if err != nil {
		return err
	}
	state := Aggregate(mappings)
	if !state.IsFinished() {
		return nil
	}

	rows, err := c.store.FinishInterProjectBuild(ctx, id, state, c.now().UnixMilli())
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Info("Inter-project build finalized concurrently", logfields.InterProjectID(id))
		return nil
	}
	c.recorder.IncInterProjectFinalized(string(state))
	slog.Info("Inter-project build finished",
		logfields.InterProjectID(id),
		logfields.BuildState(string(state)),
		logfields.Count(len(mappings)))
	return nil
}
