package interproject

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/visitor"
)

type fakeStore struct {
	mu       sync.Mutex
	builds   map[int64]*build.InterProjectBuild
	mappings map[int64]*build.InterProjectMapping
	nextID   int64
	finishes atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		builds:   make(map[int64]*build.InterProjectBuild),
		mappings: make(map[int64]*build.InterProjectMapping),
	}
}

func (f *fakeStore) CreateInterProjectBuild(_ context.Context, startedAt int64) (build.InterProjectBuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b := &build.InterProjectBuild{ID: f.nextID, State: build.InterProjectQueued, StartTimestamp: startedAt}
	f.builds[b.ID] = b
	return *b, nil
}

func (f *fakeStore) GetInterProjectBuild(ctx context.Context, id int64) (build.InterProjectBuild, error) {
	if err := ctx.Err(); err != nil {
		return build.InterProjectBuild{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return build.InterProjectBuild{}, build.ErrNotFound
	}
	return *b, nil
}

func (f *fakeStore) MarkInterProjectRunning(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b := f.builds[id]; b != nil && b.State == build.InterProjectQueued {
		b.State = build.InterProjectRunning
		return 1, nil
	}
	return 0, nil
}

func (f *fakeStore) FinishInterProjectBuild(_ context.Context, id int64, state build.InterProjectState, endedAt int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.builds[id]
	if b == nil || b.State.IsFinished() {
		return 0, nil
	}
	b.State = state
	b.EndTimestamp = endedAt
	f.finishes.Add(1)
	return 1, nil
}

func (f *fakeStore) AddMapping(_ context.Context, m build.InterProjectMapping) (build.InterProjectMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	if m.State == "" {
		m.State = build.InterProjectQueued
	}
	f.mappings[m.ID] = &m
	return m, nil
}

func (f *fakeStore) filter(keep func(*build.InterProjectMapping) bool) []build.InterProjectMapping {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []build.InterProjectMapping
	for id := int64(1); id <= f.nextID; id++ {
		if m, ok := f.mappings[id]; ok && keep(m) {
			out = append(out, *m)
		}
	}
	return out
}

func (f *fakeStore) MappingsForInterProjectBuild(_ context.Context, id int64) ([]build.InterProjectMapping, error) {
	return f.filter(func(m *build.InterProjectMapping) bool { return m.InterProjectBuildID == id }), nil
}

func (f *fakeStore) MappingsForRepositoryBuild(_ context.Context, id int64) ([]build.InterProjectMapping, error) {
	return f.filter(func(m *build.InterProjectMapping) bool { return m.RepoBuildID == id }), nil
}

func (f *fakeStore) MappingsForModuleBuild(_ context.Context, id int64) ([]build.InterProjectMapping, error) {
	return f.filter(func(m *build.InterProjectMapping) bool { return m.ModuleBuildID == id }), nil
}

func (f *fakeStore) BindMappingModuleBuild(_ context.Context, mappingID, moduleBuildID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.mappings[mappingID]
	if m == nil || m.ModuleBuildID != 0 {
		return 0, nil
	}
	m.ModuleBuildID = moduleBuildID
	return 1, nil
}

func (f *fakeStore) UpdateMappingState(_ context.Context, mappingID int64, expected, next build.InterProjectState) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.mappings[mappingID]
	if m == nil || m.State != expected {
		return 0, nil
	}
	m.State = next
	return 1, nil
}

func (f *fakeStore) mapping(id int64) build.InterProjectMapping {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.mappings[id]
}

type fakeModules map[int64][]build.ModuleBuild

func (f fakeModules) ModuleBuildsForRepositoryBuild(_ context.Context, id int64) ([]build.ModuleBuild, error) {
	return f[id], nil
}

func mappingsWith(states ...build.InterProjectState) []build.InterProjectMapping {
	out := make([]build.InterProjectMapping, len(states))
	for i, s := range states {
		out[i] = build.InterProjectMapping{ID: int64(i + 1), State: s}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		states []build.InterProjectState
		want   build.InterProjectState
	}{
		{"no mappings", nil, build.InterProjectSucceeded},
		{"all succeeded", []build.InterProjectState{build.InterProjectSucceeded, build.InterProjectSucceeded}, build.InterProjectSucceeded},
		{"one running", []build.InterProjectState{build.InterProjectSucceeded, build.InterProjectRunning}, build.InterProjectRunning},
		{"one queued", []build.InterProjectState{build.InterProjectFailed, build.InterProjectQueued}, build.InterProjectRunning},
		{"failed", []build.InterProjectState{build.InterProjectSucceeded, build.InterProjectFailed}, build.InterProjectFailed},
		{"cancelled beats failed", []build.InterProjectState{build.InterProjectCancelled, build.InterProjectFailed}, build.InterProjectCancelled},
		{"cancelled beats failed in any order", []build.InterProjectState{build.InterProjectFailed, build.InterProjectCancelled, build.InterProjectSucceeded}, build.InterProjectCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(mappingsWith(tt.states...)))
		})
	}
}

type fixture struct {
	store   *fakeStore
	modules fakeModules
	c       *Coordinator
	ipb     build.InterProjectBuild
}

// newFixture creates one inter-project build over repository builds 10 (modules 1, 2)
// and 20 (module 3).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newFakeStore(), modules: fakeModules{}}
	f.c = NewCoordinator(f.store, f.modules)
	var err error
	f.ipb, err = f.store.CreateInterProjectBuild(t.Context(), 1)
	require.NoError(t, err)
	for _, m := range []build.InterProjectMapping{
		{InterProjectBuildID: f.ipb.ID, RepoBuildID: 10, ModuleID: 1},
		{InterProjectBuildID: f.ipb.ID, RepoBuildID: 10, ModuleID: 2},
		{InterProjectBuildID: f.ipb.ID, RepoBuildID: 20, ModuleID: 3},
	} {
		_, err := f.store.AddMapping(t.Context(), m)
		require.NoError(t, err)
	}
	return f
}

func TestRepositoryBuildLaunching_BindsMatchingModules(t *testing.T) {
	f := newFixture(t)
	f.modules[10] = []build.ModuleBuild{
		{ID: 100, ModuleID: 1, RepoBuildID: 10, State: build.StateQueued},
		{ID: 101, ModuleID: 9, RepoBuildID: 10, State: build.StateQueued},
	}

	require.NoError(t, f.c.RepositoryBuildLaunching(t.Context(), &build.RepositoryBuild{ID: 10, State: build.StateLaunching}))

	bound := f.store.mapping(2)
	assert.Equal(t, int64(100), bound.ModuleBuildID)
	assert.Equal(t, build.InterProjectRunning, bound.State)
	unbound := f.store.mapping(3)
	assert.Zero(t, unbound.ModuleBuildID)
	assert.Equal(t, build.InterProjectQueued, unbound.State)

	ipb, err := f.store.GetInterProjectBuild(t.Context(), f.ipb.ID)
	require.NoError(t, err)
	assert.Equal(t, build.InterProjectRunning, ipb.State)
}

func TestModuleBuildFinished_MirrorsState(t *testing.T) {
	tests := []struct {
		module build.State
		want   build.InterProjectState
	}{
		{build.StateSucceeded, build.InterProjectSucceeded},
		{build.StateFailed, build.InterProjectFailed},
		{build.StateUnstable, build.InterProjectFailed},
		{build.StateCancelled, build.InterProjectCancelled},
		{build.StateSkipped, build.InterProjectCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.module), func(t *testing.T) {
			f := newFixture(t)
			f.modules[10] = []build.ModuleBuild{{ID: 100, ModuleID: 1, RepoBuildID: 10, State: build.StateQueued}}
			require.NoError(t, f.c.RepositoryBuildLaunching(t.Context(), &build.RepositoryBuild{ID: 10}))

			require.NoError(t, f.c.ModuleBuildFinished(t.Context(), &build.ModuleBuild{ID: 100, ModuleID: 1, State: tt.module}))
			assert.Equal(t, tt.want, f.store.mapping(2).State)
		})
	}
}

func TestFinalize_OnlyWhenAllMappingsFinished(t *testing.T) {
	f := newFixture(t)
	f.modules[10] = []build.ModuleBuild{
		{ID: 100, ModuleID: 1, RepoBuildID: 10, State: build.StateQueued},
		{ID: 101, ModuleID: 2, RepoBuildID: 10, State: build.StateQueued},
	}
	f.modules[20] = []build.ModuleBuild{{ID: 200, ModuleID: 3, RepoBuildID: 20, State: build.StateQueued}}
	ctx := t.Context()
	require.NoError(t, f.c.RepositoryBuildLaunching(ctx, &build.RepositoryBuild{ID: 10}))
	require.NoError(t, f.c.RepositoryBuildLaunching(ctx, &build.RepositoryBuild{ID: 20}))

	require.NoError(t, f.c.ModuleBuildFinished(ctx, &build.ModuleBuild{ID: 100, State: build.StateSucceeded}))
	require.NoError(t, f.c.ModuleBuildFinished(ctx, &build.ModuleBuild{ID: 101, State: build.StateFailed}))
	require.NoError(t, f.c.RepositoryBuildFinished(ctx, &build.RepositoryBuild{ID: 10, State: build.StateFailed}))

	ipb, _ := f.store.GetInterProjectBuild(ctx, f.ipb.ID)
	assert.Equal(t, build.InterProjectRunning, ipb.State)

	require.NoError(t, f.c.ModuleBuildFinished(ctx, &build.ModuleBuild{ID: 200, State: build.StateCancelled}))
	require.NoError(t, f.c.RepositoryBuildFinished(ctx, &build.RepositoryBuild{ID: 20, State: build.StateCancelled}))

	ipb, _ = f.store.GetInterProjectBuild(ctx, f.ipb.ID)
	assert.Equal(t, build.InterProjectCancelled, ipb.State)
	assert.NotZero(t, ipb.EndTimestamp)
	assert.Equal(t, int32(1), f.store.finishes.Load())
}

func TestRepositoryBuildFinished_UnboundMappingsTakeRepositoryOutcome(t *testing.T) {
	tests := []struct {
		repo    build.State
		mapping build.InterProjectState
		want    build.InterProjectState
	}{
		{build.StateSucceeded, build.InterProjectSucceeded, build.InterProjectSucceeded},
		{build.StateFailed, build.InterProjectFailed, build.InterProjectFailed},
		{build.StateUnstable, build.InterProjectFailed, build.InterProjectFailed},
		{build.StateCancelled, build.InterProjectCancelled, build.InterProjectCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.repo), func(t *testing.T) {
			f := newFixture(t)
			f.modules[10] = []build.ModuleBuild{{ID: 100, ModuleID: 1, RepoBuildID: 10, State: build.StateSucceeded}}
			f.modules[20] = []build.ModuleBuild{{ID: 200, ModuleID: 3, RepoBuildID: 20, State: build.StateSucceeded}}
			ctx := t.Context()
			require.NoError(t, f.c.RepositoryBuildLaunching(ctx, &build.RepositoryBuild{ID: 10}))
			require.NoError(t, f.c.RepositoryBuildLaunching(ctx, &build.RepositoryBuild{ID: 20}))
			require.NoError(t, f.c.RepositoryBuildFinished(ctx, &build.RepositoryBuild{ID: 10, State: tt.repo}))

			unbound := f.store.mapping(3)
			assert.Zero(t, unbound.ModuleBuildID)
			assert.Equal(t, tt.mapping, unbound.State)
			ipb, _ := f.store.GetInterProjectBuild(ctx, f.ipb.ID)
			assert.Equal(t, tt.want, ipb.State)
		})
	}
}

func TestFinalize_CollapsedCallersIgnoreCancellation(t *testing.T) {
	f := newFixture(t)
	for id := int64(2); id <= 4; id++ {
		_, err := f.store.UpdateMappingState(t.Context(), id, build.InterProjectQueued, build.InterProjectSucceeded)
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.NoError(t, f.c.Finalize(ctx, f.ipb.ID))

	ipb, err := f.store.GetInterProjectBuild(t.Context(), f.ipb.ID)
	require.NoError(t, err)
	assert.Equal(t, build.InterProjectSucceeded, ipb.State)
}

func TestFinalize_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	for id := int64(2); id <= 4; id++ {
		_, err := f.store.UpdateMappingState(ctx, id, build.InterProjectQueued, build.InterProjectSucceeded)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.c.Finalize(ctx, f.ipb.ID))
		}()
	}
	wg.Wait()
	require.NoError(t, f.c.Finalize(ctx, f.ipb.ID))

	ipb, _ := f.store.GetInterProjectBuild(ctx, f.ipb.ID)
	assert.Equal(t, build.InterProjectSucceeded, ipb.State)
	assert.Equal(t, int32(1), f.store.finishes.Load())
}

func TestRegister_WiresVisitors(t *testing.T) {
	f := newFixture(t)
	r := visitor.NewRegistry(nil)
	f.c.Register(r)

	assert.Equal(t, []string{"interproject-bind-module-builds"}, r.Handlers(build.KindRepository, build.StateLaunching))
	assert.Equal(t, []string{"interproject-repository-finished"}, r.Handlers(build.KindRepository, build.StateFailed))
	assert.Equal(t, []string{"interproject-mirror-module-build"}, r.Handlers(build.KindModule, build.StateSkipped))
	assert.Empty(t, r.Handlers(build.KindModule, build.StateRunning))
}
