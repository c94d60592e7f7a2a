package daemon

import (
	"context"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/buildmesh/internal/config"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// ReloadConfig applies the parts of cfg that can change at runtime: the queue
// poll interval and the Slack recipient lists. Other changes are logged and take
// effect after a restart.
func (d *Daemon) ReloadConfig(ctx context.Context, cfg *config.Config) error {
	current := d.Config()
	if cfg.Version != current.Version {
		return ferrors.ConfigError("configuration version change requires daemon restart").
			WithContext("current", current.Version).
			WithContext("new", cfg.Version).
			Build()
	}
	warnRestartOnly(current, cfg)

	if next := cfg.Scheduler.PollIntervalDuration(); next != current.Scheduler.PollIntervalDuration() && d.scheduler.Running() {
		d.scheduler.Stop()
		if err := d.scheduler.Start(ctx, next); err != nil {
			return err
		}
		slog.Info("Queue poll interval changed", slog.Duration("interval", next))
	}

	if d.slack != nil {
		d.slack.UpdateLists(cfg.Slack)
		slog.Info("Slack recipient lists updated",
			slog.Int("whitelist", len(cfg.Slack.Whitelist)),
			slog.Int("blacklist", len(cfg.Slack.Blacklist)),
			slog.Int("ignored_branches", len(cfg.Slack.IgnoredBranches)))
	}

	d.cfg.Store(cfg)
	return nil
}

func warnRestartOnly(current, next *config.Config) {
	var changed []string
	if current.Store != next.Store {
		changed = append(changed, "store")
	}
	if current.HTTP != next.HTTP {
		changed = append(changed, "http")
	}
	if current.Leader != next.Leader {
		changed = append(changed, "leader")
	}
	if current.NATS != next.NATS {
		changed = append(changed, "nats")
	}
	if !slices.Equal(current.Scheduler.BackpressureAllowlist, next.Scheduler.BackpressureAllowlist) ||
		current.Scheduler.MaxRetries != next.Scheduler.MaxRetries {
		changed = append(changed, "scheduler retry/backpressure")
	}
	if !slices.EqualFunc(current.Clusters, next.Clusters, func(a, b config.ClusterConfig) bool { return a == b }) {
		changed = append(changed, "clusters")
	}
	if current.Slack.Enabled != next.Slack.Enabled || current.Slack.Token != next.Slack.Token {
		changed = append(changed, "slack")
	}
	if len(changed) > 0 {
		slog.Warn("Configuration changes require a restart to take effect", slog.Any("sections", changed))
	}
}
