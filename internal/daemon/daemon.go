package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/buildmesh/internal/build"
	"git.home.luguber.info/inful/buildmesh/internal/buildstate"
	"git.home.luguber.info/inful/buildmesh/internal/cluster"
	"git.home.luguber.info/inful/buildmesh/internal/config"
	"git.home.luguber.info/inful/buildmesh/internal/dispatch"
	"git.home.luguber.info/inful/buildmesh/internal/eventstore"
	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/gitevents"
	"git.home.luguber.info/inful/buildmesh/internal/interproject"
	"git.home.luguber.info/inful/buildmesh/internal/listener"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
	"git.home.luguber.info/inful/buildmesh/internal/notify"
	"git.home.luguber.info/inful/buildmesh/internal/observability"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
	"git.home.luguber.info/inful/buildmesh/internal/retry"
	"git.home.luguber.info/inful/buildmesh/internal/scheduler"
	"git.home.luguber.info/inful/buildmesh/internal/store/sqlite"
	"git.home.luguber.info/inful/buildmesh/internal/version"
	"git.home.luguber.info/inful/buildmesh/internal/visitor"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// shutdownTimeout bounds the wait for in-flight lane work and HTTP requests.
const shutdownTimeout = 30 * time.Second

// Daemon is the buildmesh process.
type Daemon struct {
	cfg        atomic.Pointer[config.Config]
	configPath string
	instanceID string
	status     atomic.Value // Status
	startTime  time.Time

	store      *sqlite.Store
	codec      *queue.Codec
	dispatcher *dispatch.Dispatcher
	builds     *build.Service
	states     *buildstate.Service
	health     *cluster.HealthChecker
	elector    *cluster.Elector
	scheduler  *scheduler.Scheduler
	registry   *prom.Registry
	slack      *notify.SlackDMVisitor
	natsConn   *nats.Conn
	history    *eventstore.SQLiteStore
	projection *eventstore.BuildHistoryProjection
	watcher    *ConfigWatcher
	server     *http.Server
}

// New opens the store and wires every component. configPath enables hot reload
// when non-empty. The caller must call Run or Close.
func New(ctx context.Context, cfg *config.Config, configPath string) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ValidationError("config is required").Build()
	}
	d := &Daemon{configPath: configPath, instanceID: cfg.Instance.ID}
	if d.instanceID == "" {
		d.instanceID = uuid.NewString()
	}
	d.cfg.Store(cfg)
	d.status.Store(StatusStopped)

	store, err := sqlite.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	d.store = store
	if err := d.wire(ctx, cfg); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) wire(ctx context.Context, cfg *config.Config) error {
	d.registry = metrics.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(d.registry)
	d.registry.MustRegister(metrics.NewActiveBuildsCollector(d.store, metrics.DefaultActiveBuildsTTL))

	d.codec = queue.NewCodec()
	build.RegisterEvents(d.codec)
	gitevents.RegisterEvents(d.codec)

	d.dispatcher = dispatch.New(slog.Default())
	d.builds = build.NewService(d.store, d.store, d.codec)
	d.states = buildstate.NewService(d.store)

	endpoints := cluster.EndpointsFromConfig(cfg.Clusters)
	d.health = cluster.NewHealthChecker(endpoints, nil)
	buildCluster := cluster.NewHTTPClient(endpoints, d.health, nil)

	visitors := visitor.NewRegistry(slog.Default())
	lifecycle := listener.New(d.builds, buildCluster)
	lifecycle.Register(visitors)
	lifecycle.RegisterReports(d.codec, d.dispatcher)
	interproject.NewCoordinator(d.store, d.store, interproject.WithRecorder(recorder)).Register(visitors)
	gitevents.NewIngestor(d.store, d.builds).Register(d.dispatcher)

	if cfg.Slack.Enabled {
		client := notify.NewHTTPSlackClient(cfg.Slack.APIURL, cfg.Slack.Token, nil)
		d.slack = notify.NewSlackDMVisitor(client, d.store, cfg.Slack)
		d.slack.Register(visitors)
	}
	visitors.Attach(d.dispatcher)

	if cfg.NATS.Enabled {
		conn, err := notify.ConnectNATS(cfg.NATS, "buildmesh-"+d.instanceID)
		if err != nil {
			return err
		}
		d.natsConn = conn
		notify.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix).Register(d.dispatcher)
	}

	if cfg.Store.History {
		history, err := eventstore.New(ctx, d.store.DB())
		if err != nil {
			return err
		}
		d.history = history
		d.projection = eventstore.NewBuildHistoryProjection(history, 100)
		eventstore.NewRecorder(history, d.instanceID).Register(d.dispatcher)
	}

	d.scheduler = scheduler.New(d.store, d.codec, d.dispatcher, d.health,
		scheduler.WithPolicy(retry.FromConfig(cfg.Scheduler)),
		scheduler.WithAllowlist(cfg.Scheduler.BackpressureAllowlist),
		scheduler.WithRecorder(recorder),
	)
	d.elector = cluster.NewElector(d.store, cfg.Leader.LeaseName,
		cluster.WithInstanceID(d.instanceID),
		cluster.WithLeaseTiming(cfg.Leader.LeaseTTLDuration(), cfg.Leader.RenewIntervalDuration()),
		cluster.WithElectorRecorder(recorder),
	)
	d.elector.Subscribe(d.scheduler)

	if d.configPath != "" {
		watcher, err := NewConfigWatcher(d.configPath, d)
		if err != nil {
			return err
		}
		d.watcher = watcher
	}
	d.server = d.newHTTPServer(cfg.HTTP)
	return nil
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config { return d.cfg.Load() }

// Status returns the lifecycle state.
func (d *Daemon) Status() Status { return d.status.Load().(Status) }

// InstanceID is the identity used for leader election.
func (d *Daemon) InstanceID() string { return d.instanceID }

// Run starts every component and blocks until ctx is cancelled or a component
// fails, then shuts down and closes the store.
func (d *Daemon) Run(ctx context.Context) error {
	if d.store == nil {
		return ferrors.DaemonError("daemon is closed").Build()
	}
	if !d.status.CompareAndSwap(StatusStopped, StatusStarting) {
		return ferrors.DaemonError("daemon is not stopped").WithContext("status", string(d.Status())).Build()
	}
	d.startTime = time.Now()
	ctx = observability.WithInstanceID(ctx, d.instanceID)
	cfg := d.Config()
	slog.Info("Starting buildmesh daemon",
		slog.String("version", version.Version),
		logfields.InstanceID(d.instanceID),
		slog.Int("clusters", len(cfg.Clusters)),
		slog.String("http_addr", cfg.HTTP.Addr))

	g, gctx := errgroup.WithContext(ctx)

	if err := d.health.Start(gctx, cfg.Health.IntervalDuration()); err != nil {
		d.status.Store(StatusError)
		return err
	}
	if err := d.scheduler.Start(gctx, cfg.Scheduler.PollIntervalDuration()); err != nil {
		d.status.Store(StatusError)
		_ = d.health.Stop()
		return err
	}
	if d.watcher != nil {
		if err := d.watcher.Start(gctx); err != nil {
			slog.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	g.Go(func() error { return d.elector.Run(gctx) })
	g.Go(func() error { return d.serveHTTP(gctx) })

	d.status.Store(StatusRunning)
	slog.Info("Buildmesh daemon started")

	err := g.Wait()
	d.shutdown()
	if err != nil && ctx.Err() == nil {
		d.status.Store(StatusError)
		return err
	}
	d.status.Store(StatusStopped)
	return nil
}

func (d *Daemon) shutdown() {
	d.status.Store(StatusStopping)
	slog.Info("Stopping buildmesh daemon")

	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.scheduler.Wait(ctx); err != nil {
		slog.Warn("In-flight queue items did not finish before shutdown", logfields.Error(err))
	}
	if err := d.health.Stop(); err != nil {
		slog.Warn("Failed to stop cluster health checks", logfields.Error(err))
	}
	if err := d.Close(); err != nil {
		slog.Error("Failed to close store", logfields.Error(err))
	}
	slog.Info("Buildmesh daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
}

// Close releases the NATS connection and the store.
func (d *Daemon) Close() error {
	if d.natsConn != nil {
		d.natsConn.Close()
		d.natsConn = nil
	}
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	return err
}
