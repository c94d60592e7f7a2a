package visitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

func TestVisit_OnlyMatchingKindAndState(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string
	On(r, "repo-queued", build.StateQueued, func(_ context.Context, b *build.RepositoryBuild) error {
		calls = append(calls, "repo-queued")
		return nil
	})
	On(r, "repo-running", build.StateRunning, func(_ context.Context, b *build.RepositoryBuild) error {
		calls = append(calls, "repo-running")
		return nil
	})
	On(r, "module-queued", build.StateQueued, func(_ context.Context, b *build.ModuleBuild) error {
		calls = append(calls, "module-queued")
		return nil
	})

	require.NoError(t, r.Visit(t.Context(), &build.RepositoryBuild{ID: 1, State: build.StateQueued}))
	require.NoError(t, r.Visit(t.Context(), &build.ModuleBuild{ID: 2, State: build.StateQueued}))
	require.NoError(t, r.Visit(t.Context(), &build.ModuleBuild{ID: 3, State: build.StateFailed}))

	assert.Equal(t, []string{"repo-queued", "module-queued"}, calls)
}

func TestVisit_RegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string
	for _, name := range []string{"a", "b", "c"} {
		On(r, name, build.StateSucceeded, func(_ context.Context, _ *build.RepositoryBuild) error {
			calls = append(calls, name)
			return nil
		})
	}

	require.NoError(t, r.Visit(t.Context(), &build.RepositoryBuild{State: build.StateSucceeded}))
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, []string{"a", "b", "c"}, r.Handlers(build.KindRepository, build.StateSucceeded))
}

func TestVisit_OnStates(t *testing.T) {
	r := NewRegistry(nil)
	var seen []build.State
	OnStates(r, "terminal", []build.State{build.StateFailed, build.StateUnstable}, func(_ context.Context, b *build.RepositoryBuild) error {
		seen = append(seen, b.State)
		return nil
	})

	for _, s := range build.RepositoryStates {
		require.NoError(t, r.Visit(t.Context(), &build.RepositoryBuild{State: s}))
	}
	assert.Equal(t, []build.State{build.StateFailed, build.StateUnstable}, seen)
}

func TestVisit_FailureIsolation(t *testing.T) {
	r := NewRegistry(nil)
	var ran bool
	On(r, "broken", build.StateRunning, func(_ context.Context, _ *build.ModuleBuild) error {
		return errors.New("boom")
	})
	On(r, "panics", build.StateRunning, func(_ context.Context, _ *build.ModuleBuild) error {
		panic("nil map")
	})
	On(r, "healthy", build.StateRunning, func(_ context.Context, _ *build.ModuleBuild) error {
		ran = true
		return nil
	})

	err := r.Visit(t.Context(), &build.ModuleBuild{State: build.StateRunning})

	require.Error(t, err)
	assert.False(t, ferrors.IsNonRetryable(err))
	assert.True(t, ran)
}

func TestVisit_NonRetryableErrorsWin(t *testing.T) {
	r := NewRegistry(nil)
	On(r, "transient", build.StateCancelled, func(_ context.Context, _ *build.ModuleBuild) error {
		return errors.New("timeout")
	})
	On(r, "fatal", build.StateCancelled, func(_ context.Context, _ *build.ModuleBuild) error {
		return ferrors.NonRetryable(errors.New("container kill failed"))
	})

	err := r.Visit(t.Context(), &build.ModuleBuild{State: build.StateCancelled})

	require.Error(t, err)
	assert.True(t, ferrors.IsNonRetryable(err))
	assert.NotContains(t, err.Error(), "timeout")
}

func TestOn_RejectsInvalidState(t *testing.T) {
	r := NewRegistry(nil)
	assert.Panics(t, func() {
		On(r, "bad", build.StateSkipped, func(_ context.Context, _ *build.RepositoryBuild) error { return nil })
	})
}

func TestAttach_DispatchesBuildEvents(t *testing.T) {
	r := NewRegistry(nil)
	d := dispatch.New(nil)
	r.Attach(d)

	var got int64
	On(r, "capture", build.StateLaunching, func(_ context.Context, b *build.RepositoryBuild) error {
		got = b.ID
		return nil
	})
	On(r, "fatal", build.StateFailed, func(_ context.Context, _ *build.ModuleBuild) error {
		return ferrors.NonRetryable(errors.New("nope"))
	})

	require.NoError(t, d.Dispatch(t.Context(), "RepositoryBuildEvent#1", &build.RepositoryBuildEvent{
		Build: build.RepositoryBuild{ID: 42, State: build.StateLaunching},
	}))
	assert.Equal(t, int64(42), got)

	err := d.Dispatch(t.Context(), "ModuleBuildEvent#2", &build.ModuleBuildEvent{
		Build: build.ModuleBuild{ID: 7, State: build.StateFailed},
	})
	assert.True(t, ferrors.IsNonRetryable(err))
	assert.True(t, d.Errored("ModuleBuildEvent#2"))
}
