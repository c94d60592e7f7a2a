package sqlite

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/buildstate"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	s, err := Open(t.Context(), ":memory:", WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func TestMigrate_Idempotent(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Migrate(t.Context()))

	var n int
	require.NoError(t, s.DB().QueryRowContext(t.Context(), `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(migrations), n)
}

func TestQueue_Lifecycle(t *testing.T) {
	s, clk := newStore(t)
	ctx := t.Context()

	first, err := s.Enqueue(ctx, "PushEvent", []byte(`{"ref":"refs/heads/main"}`))
	require.NoError(t, err)
	second, err := s.Enqueue(ctx, "IssueEvent", []byte(`{}`))
	require.NoError(t, err)

	ready, err := s.ItemsReadyToExecute(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, first.ID, ready[0].ID)
	assert.Equal(t, second.ID, ready[1].ID)
	assert.JSONEq(t, `{"ref":"refs/heads/main"}`, string(ready[0].Payload))

	rows, err := s.IncreaseRetryCounter(ctx, ready[0], clk.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	stale, err := s.IsItemStillQueued(ctx, ready[0])
	require.NoError(t, err)
	assert.False(t, stale, "old retry count no longer matches")

	rows, err = s.IncreaseRetryCounter(ctx, ready[0], clk.Now())
	require.NoError(t, err)
	assert.Zero(t, rows, "conditional on the retry count")

	ready, err = s.ItemsReadyToExecute(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 1, "retried item is deferred")
	assert.Equal(t, second.ID, ready[0].ID)

	clk.Advance(2 * time.Minute)
	ready, err = s.ItemsReadyToExecute(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, 1, ready[0].RetryCount)

	rows, err = s.Complete(ctx, ready[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = s.Complete(ctx, ready[0])
	require.NoError(t, err)
	assert.Zero(t, rows)

	item, err := s.GetItem(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, item.Completed)

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"IssueEvent": 1}, depth)
}

func TestLeases(t *testing.T) {
	s, clk := newStore(t)
	ctx := t.Context()

	ok, err := s.AcquireLease(ctx, "queue-scheduler", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "queue-scheduler", "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "held by a")

	ok, err = s.AcquireLease(ctx, "queue-scheduler", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "renewal by the holder")

	clk.Advance(11 * time.Second)
	ok, err = s.AcquireLease(ctx, "queue-scheduler", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	holder, err := s.LeaseHolder(ctx, "queue-scheduler")
	require.NoError(t, err)
	assert.Equal(t, "b", holder)

	require.NoError(t, s.ReleaseLease(ctx, "queue-scheduler", "a"))
	holder, _ = s.LeaseHolder(ctx, "queue-scheduler")
	assert.Equal(t, "b", holder, "only the holder can release")

	require.NoError(t, s.ReleaseLease(ctx, "queue-scheduler", "b"))
	holder, _ = s.LeaseHolder(ctx, "queue-scheduler")
	assert.Empty(t, holder)
}

func seedBranch(t *testing.T, s *Store) (build.Branch, []build.Module) {
	t.Helper()
	ctx := t.Context()
	br, err := s.UpsertBranch(ctx, build.Branch{Host: "github.com", Organization: "acme", Repository: "app", Branch: "main"})
	require.NoError(t, err)
	var mods []build.Module
	for _, name := range []string{"api", "web"} {
		m, err := s.UpsertModule(ctx, build.Module{BranchID: br.ID, Name: name, Type: "go", Path: name, Active: true})
		require.NoError(t, err)
		mods = append(mods, m)
	}
	return br, mods
}

func TestBranches(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	br, mods := seedBranch(t, s)

	again, err := s.UpsertBranch(ctx, build.Branch{Host: "github.com", Organization: "acme", Repository: "app", Branch: "main", RepositoryID: 5})
	require.NoError(t, err)
	assert.Equal(t, br.ID, again.ID)
	assert.True(t, again.Active)

	rows, err := s.DeactivateBranch(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	got, err := s.GetBranch(ctx, br.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	again, err = s.UpsertBranch(ctx, build.Branch{Host: "github.com", Organization: "acme", Repository: "app", Branch: "main"})
	require.NoError(t, err)
	assert.True(t, again.Active, "upsert reactivates")

	_, err = s.GetBranch(ctx, 999)
	assert.True(t, build.IsNotFound(err))

	listed, err := s.ModulesForBranch(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, mods, listed)
}

func TestEnqueueRepositoryBuild_OnePending(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	br, _ := seedBranch(t, s)

	first, created, err := s.EnqueueRepositoryBuild(ctx, build.RepositoryBuild{
		BranchID: br.ID, State: build.StateQueued,
		Trigger: build.Trigger{Type: build.TriggerPush, ID: "abc"},
		Commit:  &build.CommitInfo{SHA: "abc", AuthorEmail: "a@example.com"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, first.BuildNumber)

	second, created, err := s.EnqueueRepositoryBuild(ctx, build.RepositoryBuild{BranchID: br.ID, State: build.StateQueued})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Commit)
	assert.Equal(t, "a@example.com", second.Commit.AuthorEmail)

	got, err := s.GetBranch(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.PendingBuildID)
}

func TestPointerSwaps(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	br, mods := seedBranch(t, s)

	rows, err := s.SwapBranchPointer(ctx, br.ID, build.BranchInProgress, 0, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = s.SwapBranchPointer(ctx, br.ID, build.BranchInProgress, 0, 43)
	require.NoError(t, err)
	assert.Zero(t, rows)

	require.NoError(t, s.SetModulePointer(ctx, mods[0].ID, build.ModuleLastSuccessful, 7))
	m, err := s.GetModule(ctx, mods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.LastSuccessfulBuildID)

	_, err = s.SwapBranchPointer(ctx, br.ID, build.BranchPointer("id; DROP TABLE branches"), 0, 1)
	assert.Error(t, err)
}

func TestModuleBuilds(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	br, mods := seedBranch(t, s)
	rb, _, err := s.EnqueueRepositoryBuild(ctx, build.RepositoryBuild{BranchID: br.ID, State: build.StateQueued, Trigger: build.Trigger{Type: build.TriggerManual}})
	require.NoError(t, err)

	mb, err := s.CreateModuleBuild(ctx, build.ModuleBuild{ModuleID: mods[0].ID, RepoBuildID: rb.ID, State: build.StateQueued})
	require.NoError(t, err)
	assert.Equal(t, 1, mb.BuildNumber)

	updated := mb
	updated.State = build.StateRunning
	updated.StartTimestamp = 10
	rows, err := s.UpdateModuleBuild(ctx, updated, build.StateQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = s.UpdateModuleBuild(ctx, updated, build.StateQueued)
	require.NoError(t, err)
	assert.Zero(t, rows, "expected prior state no longer matches")

	list, err := s.ModuleBuildsForRepositoryBuild(ctx, rb.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, updated, list[0])
}

func TestInterProject(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()

	ipb, err := s.CreateInterProjectBuild(ctx, 5)
	require.NoError(t, err)
	m, err := s.AddMapping(ctx, build.InterProjectMapping{InterProjectBuildID: ipb.ID, RepoBuildID: 3, ModuleID: 4})
	require.NoError(t, err)
	assert.Equal(t, build.InterProjectQueued, m.State)

	unbound, err := s.MappingsForModuleBuild(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unbound)

	rows, err := s.BindMappingModuleBuild(ctx, m.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = s.BindMappingModuleBuild(ctx, m.ID, 10)
	require.NoError(t, err)
	assert.Zero(t, rows)

	bound, err := s.MappingsForModuleBuild(ctx, 9)
	require.NoError(t, err)
	require.Len(t, bound, 1)

	rows, err = s.UpdateMappingState(ctx, m.ID, build.InterProjectQueued, build.InterProjectSucceeded)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = s.MarkInterProjectRunning(ctx, ipb.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = s.FinishInterProjectBuild(ctx, ipb.ID, build.InterProjectSucceeded, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	rows, err = s.FinishInterProjectBuild(ctx, ipb.ID, build.InterProjectFailed, 100)
	require.NoError(t, err)
	assert.Zero(t, rows, "finalization happens once")

	got, err := s.GetInterProjectBuild(ctx, ipb.ID)
	require.NoError(t, err)
	assert.Equal(t, build.InterProjectSucceeded, got.State)
	assert.Equal(t, int64(99), got.EndTimestamp)
}

func TestModuleStateRows(t *testing.T) {
	s, _ := newStore(t)
	ctx := t.Context()
	br, mods := seedBranch(t, s)
	rb, _, err := s.EnqueueRepositoryBuild(ctx, build.RepositoryBuild{
		BranchID: br.ID, State: build.StateQueued,
		Trigger: build.Trigger{Type: build.TriggerPush},
		Commit:  &build.CommitInfo{SHA: "abc"},
	})
	require.NoError(t, err)
	mb, err := s.CreateModuleBuild(ctx, build.ModuleBuild{ModuleID: mods[0].ID, RepoBuildID: rb.ID, State: build.StateQueued})
	require.NoError(t, err)
	require.NoError(t, s.SetModulePointer(ctx, mods[0].ID, build.ModulePending, mb.ID))

	row, err := s.ModuleStateRow(ctx, mods[0].ID)
	require.NoError(t, err)
	ms := buildstate.NewModuleState(row)

	pending := ms.Pending()
	require.True(t, pending.ModuleBuild.IsSome())
	assert.Equal(t, mb.ID, pending.ModuleBuild.Unwrap().ID)
	require.True(t, pending.RepositoryBuild.IsSome())
	assert.Equal(t, "abc", pending.RepositoryBuild.Unwrap().Commit.SHA)
	assert.True(t, ms.Last().IsEmpty())

	all, err := s.ModuleStateRowsForBranch(ctx, br.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.ModuleStateRow(ctx, 999)
	assert.True(t, build.IsNotFound(err))

	counts, err := s.CountActiveBuilds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["repository"]["QUEUED"])
	assert.Equal(t, 1, counts["module"]["QUEUED"])
}
