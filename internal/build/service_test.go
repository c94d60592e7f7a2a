package build_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
	"git.home.luguber.info/inful/buildmesh/internal/store/sqlite"
)

type env struct {
	store *sqlite.Store
	queue *queue.MemoryStore
	codec *queue.Codec
	svc   *build.Service
	br    build.Branch
	mods  []build.Module
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := t.Context()
	st, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{store: st, queue: queue.NewMemoryStore(), codec: queue.NewCodec()}
	build.RegisterEvents(e.codec)
	now := time.UnixMilli(1_700_000_000_000)
	e.svc = build.NewService(st, e.queue, e.codec, build.WithServiceClock(func() time.Time { return now }))

	e.br, err = st.UpsertBranch(ctx, build.Branch{Host: "github.com", Organization: "acme", Repository: "app", Branch: "main"})
	require.NoError(t, err)
	for _, name := range []string{"api", "web", "legacy"} {
		m, err := st.UpsertModule(ctx, build.Module{BranchID: e.br.ID, Name: name, Active: name != "legacy"})
		require.NoError(t, err)
		e.mods = append(e.mods, m)
	}
	return e
}

// events decodes every queued item and returns them in order.
func (e *env) events(t *testing.T) []any {
	t.Helper()
	var out []any
	for id := int64(1); ; id++ {
		it, ok := e.queue.Get(id)
		if !ok {
			break
		}
		evt, err := e.codec.Decode(it.EventType, it.Payload)
		require.NoError(t, err)
		out = append(out, evt)
	}
	return out
}

func TestEnqueue_ReturnsExistingPending(t *testing.T) {
	e := newEnv(t)
	ctx := t.Context()

	first, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerPush, ID: "abc"}, &build.CommitInfo{SHA: "abc"})
	require.NoError(t, err)
	assert.Equal(t, build.StateQueued, first.State)

	second, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerManual}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	evts := e.events(t)
	require.Len(t, evts, 1, "only the created build is published")
	evt := evts[0].(*build.RepositoryBuildEvent)
	assert.Equal(t, first.ID, evt.Build.ID)
	assert.Empty(t, evt.Previous)
}

func TestEnqueue_InactiveBranch(t *testing.T) {
	e := newEnv(t)
	_, err := e.store.DeactivateBranch(t.Context(), e.br.ID)
	require.NoError(t, err)

	_, err = e.svc.Enqueue(t.Context(), e.br.ID, build.Trigger{Type: build.TriggerPush}, nil)
	assert.Error(t, err)
}

func TestRepositoryBuildLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := t.Context()

	rb, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerPush}, nil)
	require.NoError(t, err)

	mbs, err := e.svc.CreateModuleBuilds(ctx, rb)
	require.NoError(t, err)
	require.Len(t, mbs, 2, "inactive modules are not built")
	again, err := e.svc.CreateModuleBuilds(ctx, rb)
	require.NoError(t, err)
	assert.Equal(t, mbs, again, "replay creates nothing new")

	rb, err = e.svc.TransitionRepositoryBuild(ctx, rb, build.StateLaunching)
	require.NoError(t, err)
	assert.NotZero(t, rb.StartTimestamp)

	br, err := e.store.GetBranch(ctx, e.br.ID)
	require.NoError(t, err)
	assert.Zero(t, br.PendingBuildID)
	assert.Equal(t, rb.ID, br.InProgressBuildID)

	_, err = e.svc.TransitionRepositoryBuild(ctx, build.RepositoryBuild{ID: rb.ID, BranchID: rb.BranchID, State: build.StateQueued}, build.StateLaunching)
	assert.True(t, build.IsConflict(err), "replayed transition loses")

	rb, err = e.svc.TransitionRepositoryBuild(ctx, rb, build.StateRunning)
	require.NoError(t, err)
	rb, err = e.svc.TransitionRepositoryBuild(ctx, rb, build.StateSucceeded)
	require.NoError(t, err)
	assert.NotZero(t, rb.EndTimestamp)

	br, err = e.store.GetBranch(ctx, e.br.ID)
	require.NoError(t, err)
	assert.Zero(t, br.InProgressBuildID)
	assert.Equal(t, rb.ID, br.LastBuildID)

	_, err = e.svc.TransitionRepositoryBuild(ctx, rb, build.StateFailed)
	assert.True(t, build.IsConflict(err), "finished builds never move")
}

func TestRepositoryBuild_PendingWaitsForInProgress(t *testing.T) {
	e := newEnv(t)
	ctx := t.Context()

	first, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerPush}, nil)
	require.NoError(t, err)
	first, err = e.svc.TransitionRepositoryBuild(ctx, first, build.StateLaunching)
	require.NoError(t, err)

	second, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerPush}, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = e.svc.TransitionRepositoryBuild(ctx, second, build.StateLaunching)
	assert.True(t, build.IsConflict(err), "branch already has a build in progress")

	before := len(e.events(t))
	_, err = e.svc.TransitionRepositoryBuild(ctx, first, build.StateCancelled)
	require.NoError(t, err)

	evts := e.events(t)[before:]
	require.Len(t, evts, 2, "transition plus the republished pending build")
	requeued := evts[1].(*build.RepositoryBuildEvent)
	assert.Equal(t, second.ID, requeued.Build.ID)
	assert.Equal(t, build.StateQueued, requeued.Build.State)
}

func TestModuleBuildPointers(t *testing.T) {
	e := newEnv(t)
	ctx := t.Context()
	rb, err := e.svc.Enqueue(ctx, e.br.ID, build.Trigger{Type: build.TriggerPush}, nil)
	require.NoError(t, err)
	mbs, err := e.svc.CreateModuleBuilds(ctx, rb)
	require.NoError(t, err)

	api, web := mbs[0], mbs[1]
	m, err := e.store.GetModule(ctx, api.ModuleID)
	require.NoError(t, err)
	assert.Equal(t, api.ID, m.PendingBuildID)

	api, err = e.svc.TransitionModuleBuild(ctx, api, build.StateLaunching)
	require.NoError(t, err)
	m, _ = e.store.GetModule(ctx, api.ModuleID)
	assert.Zero(t, m.PendingBuildID)
	assert.Equal(t, api.ID, m.InProgressBuildID)

	api, err = e.svc.TransitionModuleBuild(ctx, api, build.StateSucceeded)
	require.NoError(t, err)
	m, _ = e.store.GetModule(ctx, api.ModuleID)
	assert.Zero(t, m.InProgressBuildID)
	assert.Equal(t, api.ID, m.LastBuildID)
	assert.Equal(t, api.ID, m.LastSuccessfulBuildID)
	assert.Equal(t, api.ID, m.LastNonSkippedBuildID)

	web, err = e.svc.TransitionModuleBuild(ctx, web, build.StateSkipped)
	require.NoError(t, err)
	assert.Zero(t, web.StartTimestamp)
	m, _ = e.store.GetModule(ctx, web.ModuleID)
	assert.Zero(t, m.PendingBuildID)
	assert.Equal(t, web.ID, m.LastBuildID)
	assert.Zero(t, m.LastSuccessfulBuildID)
	assert.Zero(t, m.LastNonSkippedBuildID)

	_, err = e.svc.TransitionRepositoryBuild(ctx, rb, build.StateSkipped)
	assert.Error(t, err, "repository builds cannot be skipped")
}
