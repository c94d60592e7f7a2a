package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/buildmesh/internal/config"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// Endpoint is one build-execution cluster.
type Endpoint struct {
	Name       string
	BaseURL    string
	HealthPath string
	Token      string
	Timeout    time.Duration
}

// EndpointsFromConfig converts validated cluster configuration.
func EndpointsFromConfig(clusters []config.ClusterConfig) []Endpoint {
	out := make([]Endpoint, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, Endpoint{
			Name:       c.Name,
			BaseURL:    c.URL,
			HealthPath: c.HealthPath,
			Token:      c.Token,
			Timeout:    c.TimeoutDuration(),
		})
	}
	return out
}

// HealthChecker tracks which clusters answered their last health probe.
type HealthChecker struct {
	endpoints []Endpoint
	client    *http.Client

	mu      sync.RWMutex
	healthy map[string]bool

	cronMu sync.Mutex
	cron   gocron.Scheduler
}

// NewHealthChecker creates a checker. Clusters count as unavailable until probed.
func NewHealthChecker(endpoints []Endpoint, client *http.Client) *HealthChecker {
	if client == nil {
		client = &http.Client{}
	}
	return &HealthChecker{
		endpoints: endpoints,
		client:    client,
		healthy:   make(map[string]bool, len(endpoints)),
	}
}

// IsSomeClusterAvailable reports whether at least one cluster is healthy.
// With no clusters configured there is nothing to protect, so it reports true.
func (h *HealthChecker) IsSomeClusterAvailable() bool {
	if len(h.endpoints) == 0 {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ok := range h.healthy {
		if ok {
			return true
		}
	}
	return false
}

// IsAvailable reports the last probe result for one cluster.
func (h *HealthChecker) IsAvailable(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthy[name]
}

// Status returns a copy of the last probe results.
func (h *HealthChecker) Status() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.healthy))
	for k, v := range h.healthy {
		out[k] = v
	}
	return out
}

// ProbeAll checks every cluster concurrently and records the results.
func (h *HealthChecker) ProbeAll(ctx context.Context) {
	results := make([]bool, len(h.endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range h.endpoints {
		g.Go(func() error {
			err := h.probe(gctx, ep)
			if err != nil {
				slog.Debug("Cluster health probe failed", logfields.Cluster(ep.Name), logfields.Error(err))
			}
			results[i] = err == nil
			return nil
		})
	}
	_ = g.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ep := range h.endpoints {
		if prev, seen := h.healthy[ep.Name]; !seen || prev != results[i] {
			slog.Info("Cluster health changed", logfields.Cluster(ep.Name), slog.Bool("healthy", results[i]))
		}
		h.healthy[ep.Name] = results[i]
	}
}

func (h *HealthChecker) probe(ctx context.Context, ep Endpoint) error {
	if ep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+ep.HealthPath, nil)
	if err != nil {
		return err
	}
	if ep.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ep.Token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Start probes once synchronously, then every interval on a gocron job.
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) error {
	h.cronMu.Lock()
	defer h.cronMu.Unlock()
	if h.cron != nil {
		return ferrors.DaemonError("health checker already started").Build()
	}
	h.ProbeAll(ctx)
	if len(h.endpoints) == 0 {
		return nil
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryCluster, "failed to create health scheduler").Build()
	}
	if _, err := cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() == nil {
				h.ProbeAll(ctx)
			}
		}),
		gocron.WithName("cluster-health"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = cron.Shutdown()
		return ferrors.WrapError(err, ferrors.CategoryCluster, "failed to schedule health probes").Build()
	}
	h.cron = cron
	cron.Start()
	return nil
}

// Stop ends periodic probing.
func (h *HealthChecker) Stop() error {
	h.cronMu.Lock()
	defer h.cronMu.Unlock()
	if h.cron == nil {
		return nil
	}
	err := h.cron.Shutdown()
	h.cron = nil
	return err
}
