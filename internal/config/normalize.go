package config

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/buildmesh/internal/foundation/normalization"
)

// NormalizationResult captures adjustments & warnings from normalization pass.
type NormalizationResult struct{ Warnings []string }

// NormalizeConfig canonicalizes enumerated and list fields prior to default application.
// It mutates the provided config in-place and returns a result describing any coercions.
func NormalizeConfig(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}
	normalizeScheduler(&c.Scheduler, res)
	normalizeLogging(&c.Logging, res)
	c.Slack.Whitelist = normalizeEmails("slack.whitelist", c.Slack.Whitelist, res)
	c.Slack.Blacklist = normalizeEmails("slack.blacklist", c.Slack.Blacklist, res)
	c.Slack.IgnoredBranches = normalizeStringSlice("slack.ignored_branches", c.Slack.IgnoredBranches, res)
	for i := range c.Clusters {
		c.Clusters[i].URL = strings.TrimRight(strings.TrimSpace(c.Clusters[i].URL), "/")
	}
	return res, nil
}

func normalizeScheduler(s *SchedulerConfig, res *NormalizationResult) {
	s.RetryBackoff = resolve(retryBackoffNormalizer, "scheduler.retry_backoff", s.RetryBackoff, RetryBackoffFixed, res)
	if s.MaxRetries < 0 {
		res.Warnings = append(res.Warnings, warnChanged("scheduler.max_retries", s.MaxRetries, 0))
		s.MaxRetries = 0
	}
	s.BackpressureAllowlist = normalizeStringSlice("scheduler.backpressure_allowlist", s.BackpressureAllowlist, res)
}

func normalizeLogging(l *LoggingConfig, res *NormalizationResult) {
	l.Level = resolve(logLevelNormalizer, "logging.level", l.Level, LogLevelInfo, res)
	l.Format = resolve(logFormatNormalizer, "logging.format", l.Format, LogFormatText, res)
}

func resolve[T ~string](n *normalization.Normalizer[T], field string, current, fallback T, res *NormalizationResult) T {
	v, warning := n.Resolve(field, current, fallback)
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	return v
}

// normalizeEmails lower-cases addresses before the usual trim/dedupe/sort.
func normalizeEmails(label string, in []string, res *NormalizationResult) []string {
	for i, v := range in {
		in[i] = strings.ToLower(v)
	}
	return normalizeStringSlice(label, in, res)
}

func warnChanged(field string, from, to any) string {
	return fmt.Sprintf("normalized %s from '%v' to '%v'", field, from, to)
}
