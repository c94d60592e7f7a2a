package daemon

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// queueBacklogWarning is the number of waiting items above which the queue check degrades.
const queueBacklogWarning = 1000

// HealthCheck represents a single health check
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus  `json:"status"`
	Timestamp  time.Time     `json:"timestamp"`
	Uptime     string        `json:"uptime"`
	Version    string        `json:"version"`
	InstanceID string        `json:"instance_id"`
	Leader     bool          `json:"leader"`
	Checks     []HealthCheck `json:"checks"`
}

// PerformHealthChecks executes all health checks and returns the overall status.
// A failing store or daemon check makes the daemon unhealthy; anything else
// degrades it.
func (d *Daemon) PerformHealthChecks(ctx context.Context) *HealthResponse {
	checks := []HealthCheck{
		timed("daemon_status", d.checkDaemonHealth),
		timed("store", func() (HealthStatus, string) { return d.checkStoreHealth(ctx) }),
		timed("queue", func() (HealthStatus, string) { return d.checkQueueHealth(ctx) }),
		timed("build_clusters", d.checkClusterHealth),
	}

	overall := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy && (c.Name == "daemon_status" || c.Name == "store"):
			overall = HealthStatusUnhealthy
		case c.Status != HealthStatusHealthy && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}

	uptime := time.Duration(0)
	if !d.startTime.IsZero() {
		uptime = time.Since(d.startTime).Round(time.Second)
	}
	return &HealthResponse{
		Status:     overall,
		Timestamp:  time.Now(),
		Uptime:     uptime.String(),
		Version:    version.Version,
		InstanceID: d.instanceID,
		Leader:     d.elector.IsLeader(),
		Checks:     checks,
	}
}

func timed(name string, fn func() (HealthStatus, string)) HealthCheck {
	start := time.Now()
	status, msg := fn()
	return HealthCheck{
		Name:        name,
		Status:      status,
		Message:     msg,
		Duration:    time.Since(start),
		LastChecked: start,
	}
}

func (d *Daemon) checkDaemonHealth() (HealthStatus, string) {
	switch d.Status() {
	case StatusRunning:
		return HealthStatusHealthy, "Daemon is running normally"
	case StatusStarting:
		return HealthStatusDegraded, "Daemon is still starting up"
	case StatusStopping:
		return HealthStatusDegraded, "Daemon is shutting down"
	case StatusError:
		return HealthStatusUnhealthy, "Daemon is in error state"
	default:
		return HealthStatusUnhealthy, "Daemon is not running"
	}
}

func (d *Daemon) checkStoreHealth(ctx context.Context) (HealthStatus, string) {
	if d.store == nil {
		return HealthStatusUnhealthy, "Store is closed"
	}
	if err := d.store.Ping(ctx); err != nil {
		return HealthStatusUnhealthy, err.Error()
	}
	return HealthStatusHealthy, "Store is reachable"
}

func (d *Daemon) checkQueueHealth(ctx context.Context) (HealthStatus, string) {
	if d.store == nil {
		return HealthStatusUnhealthy, "Store is closed"
	}
	depth, err := d.store.QueueDepth(ctx)
	if err != nil {
		return HealthStatusDegraded, err.Error()
	}
	total := 0
	for _, n := range depth {
		total += n
	}
	if total > queueBacklogWarning {
		return HealthStatusDegraded, fmt.Sprintf("%d queue items waiting", total)
	}
	return HealthStatusHealthy, fmt.Sprintf("%d queue items waiting", total)
}

func (d *Daemon) checkClusterHealth() (HealthStatus, string) {
	status := d.health.Status()
	if len(status) == 0 {
		return HealthStatusHealthy, "No build clusters configured"
	}
	var down []string
	for name, ok := range status {
		if !ok {
			down = append(down, name)
		}
	}
	slices.Sort(down)
	switch {
	case len(down) == 0:
		return HealthStatusHealthy, "All build clusters are available"
	case len(down) == len(status):
		return HealthStatusDegraded, "No build cluster is available; only git events are admitted"
	default:
		return HealthStatusDegraded, "Unavailable build clusters: " + strings.Join(down, ", ")
	}
}
