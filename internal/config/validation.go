package config

import (
	"fmt"
	"net/url"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/foundation"
)

// ValidateConfig checks a normalized, defaulted configuration.
// All field problems are reported together as one validation error.
func ValidateConfig(cfg *Config) error {
	result := foundation.Valid().
		Combine(validateScheduler(cfg.Scheduler)).
		Combine(validateLeader(cfg.Leader)).
		Combine(validateClusters(cfg.Clusters, cfg.Health)).
		Combine(validateNotify(cfg.NATS, cfg.Slack)).
		Combine(validateRuntime(cfg.Store, cfg.HTTP))
	return result.ToError()
}

func validateScheduler(s SchedulerConfig) foundation.ValidationResult {
	result := positiveDuration("scheduler.poll_interval", s.PollInterval)
	result = result.Combine(nonNegativeDuration("scheduler.retry_initial_delay", s.RetryInitialDelay))
	result = result.Combine(positiveDuration("scheduler.retry_max_delay", s.RetryMaxDelay))
	return result
}

func validateLeader(l LeaderConfig) foundation.ValidationResult {
	result := positiveDuration("leader.lease_ttl", l.LeaseTTL).
		Combine(positiveDuration("leader.renew_interval", l.RenewInterval))
	if !result.Valid {
		return result
	}
	if l.RenewIntervalDuration() >= l.LeaseTTLDuration() {
		return foundation.Invalid(foundation.NewValidationError("leader.renew_interval", "range",
			"renew interval must be shorter than the lease ttl"))
	}
	return result
}

func validateClusters(clusters []ClusterConfig, health HealthConfig) foundation.ValidationResult {
	result := positiveDuration("health.interval", health.Interval)
	names := make(map[string]struct{}, len(clusters))
	for i, c := range clusters {
		field := fmt.Sprintf("clusters[%d]", i)
		if c.Name == "" {
			result = result.Combine(foundation.Invalid(foundation.NewValidationError(field+".name", "required", "cluster name cannot be empty")))
		} else if _, dup := names[c.Name]; dup {
			result = result.Combine(foundation.Invalid(foundation.NewValidationError(field+".name", "duplicate", "duplicate cluster name: "+c.Name)))
		}
		names[c.Name] = struct{}{}
		result = result.Combine(absoluteURL(field+".url", c.URL))
		result = result.Combine(positiveDuration(field+".timeout", c.Timeout))
	}
	return result
}

func validateNotify(n NATSConfig, s SlackConfig) foundation.ValidationResult {
	result := foundation.Valid()
	if n.Enabled {
		result = result.Combine(absoluteURL("nats.url", n.URL))
		result = result.Combine(foundation.Check(n.SubjectPrefix != "", "nats.subject_prefix", "required", "subject prefix cannot be empty"))
	}
	if s.Enabled {
		result = result.Combine(foundation.Check(s.Token != "", "slack.token", "required", "slack token is required when slack is enabled"))
		result = result.Combine(absoluteURL("slack.api_url", s.APIURL))
	}
	return result
}

func validateRuntime(s StoreConfig, h HTTPConfig) foundation.ValidationResult {
	return foundation.Check(s.Path != "", "store.path", "required", "store path cannot be empty").
		Combine(foundation.Check(h.MetricsPath != h.HealthPath, "http.health_path", "conflict", "metrics and health paths must differ"))
}

func positiveDuration(field, raw string) foundation.ValidationResult {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return foundation.Invalid(foundation.NewValidationError(field, "duration", fmt.Sprintf("invalid duration %q", raw)))
	}
	if d <= 0 {
		return foundation.Invalid(foundation.NewValidationError(field, "range", "duration must be positive"))
	}
	return foundation.Valid()
}

func nonNegativeDuration(field, raw string) foundation.ValidationResult {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return foundation.Invalid(foundation.NewValidationError(field, "duration", fmt.Sprintf("invalid duration %q", raw)))
	}
	if d < 0 {
		return foundation.Invalid(foundation.NewValidationError(field, "range", "duration cannot be negative"))
	}
	return foundation.Valid()
}

func absoluteURL(field, raw string) foundation.ValidationResult {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return foundation.Invalid(foundation.NewValidationError(field, "url", fmt.Sprintf("invalid url %q", raw)))
	}
	return foundation.Valid()
}
