package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// ActiveBuildCounter reports unfinished builds per kind ("repository", "module") and state.
type ActiveBuildCounter interface {
	CountActiveBuilds(ctx context.Context) (map[string]map[string]int, error)
}

// DefaultActiveBuildsTTL bounds how often a scrape may hit the store.
const DefaultActiveBuildsTTL = 500 * time.Millisecond

// ActiveBuildsCollector is a prometheus.Collector exporting cached active build counts.
type ActiveBuildsCollector struct {
	source  ActiveBuildCounter
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	desc    *prom.Desc

	mu        sync.Mutex
	fetchedAt time.Time
	cached    map[string]map[string]int
}

// NewActiveBuildsCollector caches source results for ttl (DefaultActiveBuildsTTL when <= 0).
func NewActiveBuildsCollector(source ActiveBuildCounter, ttl time.Duration) *ActiveBuildsCollector {
	if ttl <= 0 {
		ttl = DefaultActiveBuildsTTL
	}
	return &ActiveBuildsCollector{
		source:  source,
		ttl:     ttl,
		timeout: 2 * time.Second,
		now:     time.Now,
		desc: prom.NewDesc(
			prom.BuildFQName(namespace, "builds", "active"),
			"Unfinished builds by kind and state",
			[]string{"kind", "state"}, nil),
	}
}

func (c *ActiveBuildsCollector) Describe(ch chan<- *prom.Desc) { ch <- c.desc }

func (c *ActiveBuildsCollector) Collect(ch chan<- prom.Metric) {
	for kind, states := range c.counts() {
		for state, n := range states {
			ch <- prom.MustNewConstMetric(c.desc, prom.GaugeValue, float64(n), kind, state)
		}
	}
}

// counts returns the cached snapshot, refreshing it when stale. A failed refresh
// keeps serving the previous snapshot.
func (c *ActiveBuildsCollector) counts() map[string]map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.cached != nil && now.Sub(c.fetchedAt) < c.ttl {
		return c.cached
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	fresh, err := c.source.CountActiveBuilds(ctx)
	if err != nil {
		slog.Warn("Active build count refresh failed", logfields.Error(err))
		return c.cached
	}
	c.cached = fresh
	c.fetchedAt = now
	return fresh
}
