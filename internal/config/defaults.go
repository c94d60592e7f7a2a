package config

// DefaultBackpressureAllowlist holds the event types admitted while every cluster is down.
var DefaultBackpressureAllowlist = []string{"CreateEvent", "DeleteEvent", "PushEvent"}

// DefaultMaxRetries is the retry cap: ten attempts in total.
const DefaultMaxRetries = 9

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config)
	Domain() string
}

type schedulerDefaults struct{}

func (schedulerDefaults) Domain() string { return "scheduler" }

func (schedulerDefaults) ApplyDefaults(cfg *Config) {
	s := &cfg.Scheduler
	if s.PollInterval == "" {
		s.PollInterval = "1s"
	}
	if s.MaxRetries == 0 && !s.maxRetriesSpecified {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.RetryBackoff == "" {
		s.RetryBackoff = RetryBackoffFixed
	}
	if s.RetryInitialDelay == "" {
		s.RetryInitialDelay = "0s"
	}
	if s.RetryMaxDelay == "" {
		s.RetryMaxDelay = "5m"
	}
	if len(s.BackpressureAllowlist) == 0 {
		s.BackpressureAllowlist = append([]string(nil), DefaultBackpressureAllowlist...)
	}
}

type leaderDefaults struct{}

func (leaderDefaults) Domain() string { return "leader" }

func (leaderDefaults) ApplyDefaults(cfg *Config) {
	l := &cfg.Leader
	if l.LeaseName == "" {
		l.LeaseName = "queue-scheduler"
	}
	if l.LeaseTTL == "" {
		l.LeaseTTL = "15s"
	}
	if l.RenewInterval == "" {
		l.RenewInterval = "5s"
	}
}

type storeDefaults struct{}

func (storeDefaults) Domain() string { return "store" }

func (storeDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./buildmesh.db"
	}
}

type clusterDefaults struct{}

func (clusterDefaults) Domain() string { return "clusters" }

func (clusterDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Health.Interval == "" {
		cfg.Health.Interval = "10s"
	}
	for i := range cfg.Clusters {
		c := &cfg.Clusters[i]
		if c.HealthPath == "" {
			c.HealthPath = "/healthz"
		}
		if c.Timeout == "" {
			c.Timeout = "5s"
		}
	}
}

type notifyDefaults struct{}

func (notifyDefaults) Domain() string { return "notify" }

func (notifyDefaults) ApplyDefaults(cfg *Config) {
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "buildmesh.builds"
	}
	if cfg.Slack.APIURL == "" {
		cfg.Slack.APIURL = "https://slack.com/api"
	}
}

type runtimeDefaults struct{}

func (runtimeDefaults) Domain() string { return "runtime" }

func (runtimeDefaults) ApplyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":9090"
	}
	if cfg.HTTP.MetricsPath == "" {
		cfg.HTTP.MetricsPath = "/metrics"
	}
	if cfg.HTTP.HealthPath == "" {
		cfg.HTTP.HealthPath = "/healthz"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

// defaultAppliers run in order; later domains may rely on earlier ones.
var defaultAppliers = []DefaultApplier{
	schedulerDefaults{},
	leaderDefaults{},
	storeDefaults{},
	clusterDefaults{},
	notifyDefaults{},
	runtimeDefaults{},
}

func applyDefaults(cfg *Config) {
	for _, a := range defaultAppliers {
		a.ApplyDefaults(cfg)
	}
}
