package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmesh/internal/version"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveCycleDuration(3 * time.Millisecond)
	pr.IncItemOutcome("PushEvent", OutcomeCompleted)
	pr.IncItemOutcome("PushEvent", OutcomeCompleted)
	pr.IncItemOutcome("PushEvent", OutcomeRetried)
	pr.SetLeader(true)
	pr.SetProcessing(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.itemOutcomes.WithLabelValues("PushEvent", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.leader))
	assert.Equal(t, 4.0, testutil.ToFloat64(pr.processing))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncCycleError()
	pr.SetLeader(true)
	var r Recorder = NoopRecorder{}
	r.IncInterProjectFinalized("SUCCEEDED")
}

type countingSource struct {
	calls int
	fail  bool
	data  map[string]map[string]int
}

func (s *countingSource) CountActiveBuilds(context.Context) (map[string]map[string]int, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("db locked")
	}
	return s.data, nil
}

func TestActiveBuildsCollector_Caches(t *testing.T) {
	src := &countingSource{data: map[string]map[string]int{"repository": {"RUNNING": 2}, "module": {"QUEUED": 5}}}
	c := NewActiveBuildsCollector(src, time.Second)
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }

	reg := prom.NewRegistry()
	reg.MustRegister(c)

	assert.Equal(t, 2, testutil.CollectAndCount(c))
	assert.Equal(t, 2, testutil.CollectAndCount(c))
	assert.Equal(t, 1, src.calls, "second scrape inside ttl is served from cache")

	now = now.Add(2 * time.Second)
	src.fail = true
	assert.Equal(t, 2, testutil.CollectAndCount(c), "failed refresh keeps the old snapshot")
	assert.Equal(t, 2, src.calls)

	expected := `
# HELP buildmesh_builds_active Unfinished builds by kind and state
# TYPE buildmesh_builds_active gauge
buildmesh_builds_active{kind="module",state="QUEUED"} 5
buildmesh_builds_active{kind="repository",state="RUNNING"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "buildmesh_builds_active"))
}

func TestHTTPHandler(t *testing.T) {
	reg := NewRegistry()
	NewPrometheusRecorder(reg).SetLanes(3)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buildmesh_scheduler_lanes 3")
}

func TestNewRegistry_BuildInfo(t *testing.T) {
	expected := `
# HELP buildmesh_build_info Build metadata of the running buildmesh binary; always 1.
# TYPE buildmesh_build_info gauge
buildmesh_build_info{commit="` + version.GitCommit + `",version="` + version.Version + `"} 1
`
	require.NoError(t, testutil.GatherAndCompare(NewRegistry(), strings.NewReader(expected), "buildmesh_build_info"))
}
