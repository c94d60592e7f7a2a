package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// CurrentVersion is the only configuration schema version accepted by Load.
const CurrentVersion = "1"

// Config is the buildmesh daemon configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Instance  InstanceConfig  `yaml:"instance"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Leader    LeaderConfig    `yaml:"leader"`
	Store     StoreConfig     `yaml:"store"`
	Clusters  []ClusterConfig `yaml:"clusters,omitempty"`
	Health    HealthConfig    `yaml:"health"`
	NATS      NATSConfig      `yaml:"nats"`
	Slack     SlackConfig     `yaml:"slack"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this process among scheduler candidates.
type InstanceConfig struct {
	ID string `yaml:"id"` // empty: generated at startup
}

// SchedulerConfig controls the queue admission cycle.
type SchedulerConfig struct {
	PollInterval      string           `yaml:"poll_interval"`
	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"` // "0s" retries on the next cycle
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
	// BackpressureAllowlist names the event types admitted while no cluster is healthy.
	BackpressureAllowlist []string `yaml:"backpressure_allowlist"`

	maxRetriesSpecified bool
}

// UnmarshalYAML records whether max_retries was given so an explicit 0 survives defaults.
func (s *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw SchedulerConfig
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*s = SchedulerConfig(r)
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "max_retries" {
			s.maxRetriesSpecified = true
		}
	}
	return nil
}

// LeaderConfig controls the lease based leader election.
type LeaderConfig struct {
	LeaseName     string `yaml:"lease_name"`
	LeaseTTL      string `yaml:"lease_ttl"`
	RenewInterval string `yaml:"renew_interval"`
}

// StoreConfig points at the sqlite database shared by queue, builds and leases.
type StoreConfig struct {
	Path string `yaml:"path"`
	// History enables the build transition log.
	History bool `yaml:"history"`
}

// ClusterConfig describes one build-execution cluster.
type ClusterConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	HealthPath string `yaml:"health_path"`
	Token      string `yaml:"token,omitempty"`
	Timeout    string `yaml:"timeout"`
}

// HealthConfig controls cluster health probing.
type HealthConfig struct {
	Interval string `yaml:"interval"`
}

// NATSConfig controls build transition publishing.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SlackConfig controls failure direct messages.
type SlackConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Token           string   `yaml:"token,omitempty"`
	APIURL          string   `yaml:"api_url"`
	Whitelist       []string `yaml:"whitelist,omitempty"`
	Blacklist       []string `yaml:"blacklist,omitempty"`
	IgnoredBranches []string `yaml:"ignored_branches,omitempty"`
}

// HTTPConfig controls the metrics and health listener.
type HTTPConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
	HealthPath  string `yaml:"health_path"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", configPath).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Build()
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML with ${VAR} expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, CurrentVersion)).Build()
	}

	if nres, err := NormalizeConfig(&cfg); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	} else if len(nres.Warnings) > 0 {
		for _, w := range nres.Warnings {
			fmt.Fprintf(os.Stderr, "config normalization: %s\n", w)
		}
	}
	applyDefaults(&cfg)
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	example := Default()
	example.Clusters = []ClusterConfig{{
		Name:       "primary",
		URL:        "http://build-cluster.internal:8080",
		HealthPath: "/healthz",
		Token:      "${BUILD_CLUSTER_TOKEN}",
		Timeout:    "5s",
	}}
	example.Slack.Token = "${SLACK_TOKEN}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}

// PollIntervalDuration returns the parsed admission cycle interval.
func (s SchedulerConfig) PollIntervalDuration() time.Duration {
	return mustDuration(s.PollInterval, time.Second)
}

func (l LeaderConfig) LeaseTTLDuration() time.Duration      { return mustDuration(l.LeaseTTL, 15*time.Second) }
func (l LeaderConfig) RenewIntervalDuration() time.Duration { return mustDuration(l.RenewInterval, 5*time.Second) }
func (h HealthConfig) IntervalDuration() time.Duration      { return mustDuration(h.Interval, 10*time.Second) }
func (c ClusterConfig) TimeoutDuration() time.Duration      { return mustDuration(c.Timeout, 5*time.Second) }

// mustDuration parses a validated duration string, falling back to def on empty input.
func mustDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
